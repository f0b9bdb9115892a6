package labelengine

import (
	"github.com/transitworks/tripassign/internal/model"
	"github.com/transitworks/tripassign/internal/supply"
)

// hyperpathCeiling bounds how far above the best cost at a stop a TBHP
// state entry may sit and still be kept, as a fixed
// generalized-cost-minutes budget. A run wanting a different tradeoff
// between pathset richness and label-table size should tune the
// dispersion instead, which already controls how sharply the
// ceiling-admitted alternatives are weighted.
const hyperpathCeiling = 45.0

// relaxStop inserts lbl into res's label set for stop, applying the
// correct dominance rule: TBSP keeps only the single lowest-cost label;
// TBHP keeps every non-dominated label within hyperpathCeiling of the
// stop's current best. Equal-cost collisions go to the earlier time on
// outbound, the later on inbound, then the smaller trip id.
func (e *Engine) relaxStop(res *Result, stop model.StopID, lbl model.Label) bool {
	existing := res.StopLabels[stop]
	if !res.Stochastic {
		if len(existing) == 0 || lbl.Cost < existing[0].Cost {
			res.StopLabels[stop] = []model.Label{lbl}
			return true
		}
		if lbl.Cost == existing[0].Cost && tieBreakWins(lbl, existing[0], res.Outbound) {
			res.StopLabels[stop] = []model.Label{lbl}
			return true
		}
		return false
	}

	// an exact duplicate of an existing state is never re-inserted,
	// otherwise re-relaxing a stop would grow its set without bound.
	for _, l := range existing {
		if l.Cost == lbl.Cost && l.TimeMin == lbl.TimeMin && l.LinkMode == lbl.LinkMode &&
			l.TripID == lbl.TripID && l.AdjStopID == lbl.AdjStopID && l.Sequence == lbl.Sequence {
			return false
		}
	}

	var minCost = lbl.Cost
	for _, l := range existing {
		if l.Cost < minCost {
			minCost = l.Cost
		}
	}
	kept := make([]model.Label, 0, len(existing)+1)
	for _, l := range existing {
		if l.Cost <= minCost+hyperpathCeiling {
			kept = append(kept, l)
		}
	}
	if lbl.Cost <= minCost+hyperpathCeiling {
		kept = append(kept, lbl)
		res.StopLabels[stop] = kept
		return true
	}
	res.StopLabels[stop] = kept
	return false
}

// tieBreakWins resolves an equal-cost label collision: prefer the
// earlier time on outbound (the later on inbound), then the
// smaller trip id.
func tieBreakWins(lbl, cur model.Label, outbound bool) bool {
	if lbl.TimeMin != cur.TimeMin {
		if outbound {
			return lbl.TimeMin < cur.TimeMin
		}
		return lbl.TimeMin > cur.TimeMin
	}
	return lbl.TripID < cur.TripID
}

// relaxForwardTrips relaxes every trip edge reachable by boarding `from`
// (inbound search: increasing time), propagating to every downstream
// stop on the boarded trip.
func (e *Engine) relaxForwardTrips(req *model.Request, res *Result, q *stopQueue, from model.StopID, label model.Label, params supply.SearchParams) {
	opps := e.snap.BoardOpportunities(from, label.TimeMin, params.TimeWindowMin, label.ArrivalTime, params.BumpBufferMin)
	for _, op := range opps {
		sts := e.snap.TripStopTimes(op.TripID)
		var boardIdx int
		for i, st := range sts {
			if st.Sequence == op.Sequence {
				boardIdx = i
				break
			}
		}
		waitCost := (op.DepartureMin - label.TimeMin) * e.weights.WaitMin
		for i := boardIdx + 1; i < len(sts); i++ {
			st := sts[i]
			ivtCost := (st.ArrivalMin - op.DepartureMin) * e.weights.InVehicleMin
			newLabel := model.Label{
				Cost:        label.Cost + waitCost + ivtCost,
				TimeMin:     st.ArrivalMin,
				LinkMode:    model.ModeGenericTransit,
				TripID:      op.TripID,
				Sequence:    st.Sequence,
				AdjStopID:   from,
				AdjSequence: op.Sequence,
				LinkTime:    st.ArrivalMin - op.DepartureMin,
				LinkCost:    waitCost + ivtCost,
				ArrivalTime: st.ArrivalMin,
			}
			if e.relaxStop(res, st.StopID, newLabel) {
				q.push(int(st.StopID), st.ArrivalMin)
			}
		}
	}
}

// relaxBackwardTrips relaxes every trip edge reachable by alighting
// `from` (outbound search: decreasing time), propagating to every
// upstream (board) stop on the alighted trip.
func (e *Engine) relaxBackwardTrips(req *model.Request, res *Result, q *stopQueue, from model.StopID, label model.Label, params supply.SearchParams) {
	opps := e.snap.AlightOpportunities(from, label.TimeMin, params.TimeWindowMin)
	for _, op := range opps {
		sts := e.snap.TripStopTimes(op.TripID)
		var alightIdx int
		for i, st := range sts {
			if st.Sequence == op.Sequence {
				alightIdx = i
				break
			}
		}
		waitCost := (label.TimeMin - op.ArrivalMin) * e.weights.WaitMin
		for i := alightIdx - 1; i >= 0; i-- {
			st := sts[i]
			if tb, ok := e.snap.BumpWait(model.BumpWaitKey{TripID: op.TripID, Sequence: st.Sequence, StopID: st.StopID}); ok {
				if st.DepartureMin > tb-params.BumpBufferMin {
					continue
				}
			}
			ivtCost := (op.ArrivalMin - st.DepartureMin) * e.weights.InVehicleMin
			newLabel := model.Label{
				Cost:        label.Cost + waitCost + ivtCost,
				TimeMin:     st.DepartureMin,
				LinkMode:    model.ModeGenericTransit,
				TripID:      op.TripID,
				Sequence:    st.Sequence,
				AdjStopID:   from,
				AdjSequence: op.Sequence,
				LinkTime:    op.ArrivalMin - st.DepartureMin,
				LinkCost:    waitCost + ivtCost,
				ArrivalTime: op.ArrivalMin,
			}
			if e.relaxStop(res, st.StopID, newLabel) {
				q.push(int(st.StopID), st.DepartureMin)
			}
		}
	}
}

// relaxTransfers relaxes walking transfer edges out of (outbound) or
// into (inbound) a labeled stop.
func (e *Engine) relaxTransfers(res *Result, q *stopQueue, stop model.StopID, label model.Label, outbound bool) {
	for _, tr := range e.snap.Transfers(stop) {
		walkCost := tr.TimeMin * e.weights.WalkMin
		var t float64
		var to model.StopID
		if outbound {
			to = tr.ToStop
			t = label.TimeMin - tr.TimeMin
		} else {
			to = tr.ToStop
			t = label.TimeMin + tr.TimeMin
		}
		newLabel := model.Label{
			Cost:        label.Cost + walkCost,
			TimeMin:     t,
			LinkMode:    model.ModeTransfer,
			AdjStopID:   stop,
			LinkTime:    tr.TimeMin,
			LinkCost:    walkCost,
			ArrivalTime: t,
		}
		if e.relaxStop(res, to, newLabel) {
			q.push(int(to), t)
		}
	}
}
