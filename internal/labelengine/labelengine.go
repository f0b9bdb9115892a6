// Package labelengine implements trip-based shortest-path (TBSP) and
// trip-based hyperpath (TBHP) label search: backward labeling for
// outbound requests, forward for inbound, over a time-expanded transit
// graph, capacity-aware via the BumpWait registry.
package labelengine

import (
	"math"
	"math/rand"

	"github.com/transitworks/tripassign/internal/model"
	"github.com/transitworks/tripassign/internal/supply"
)

// CostWeights are the modal weights the label engine applies while
// building generalized cost, independent of the scorer's per-user-class
// weight table, which is applied later over the enumerated pathset. The
// search needs its own light-weight cost function to drive itself.
type CostWeights struct {
	InVehicleMin float64
	WaitMin      float64
	TransferMin  float64
	WalkMin      float64
}

// DefaultCostWeights is the Label Engine's compiled-in cost function,
// used when a run does not override it.
var DefaultCostWeights = CostWeights{InVehicleMin: 1.0, WaitMin: 1.5, TransferMin: 2.0, WalkMin: 1.2}

// Result is what Search returns for one request: the per-stop label
// table (singleton per stop under TBSP, a hyperpath set under TBHP) plus
// performance counters. The Path Enumerator walks StopLabels to produce
// a PathSet.
type Result struct {
	Stochastic    bool
	Outbound      bool
	StopLabels    map[model.StopID][]model.Label
	OriginStop    model.StopID
	OriginFound   bool
	DestStop      model.StopID
	Perf          PerfCounters
}

// PerfCounters are the performance artifacts returned alongside the
// label table.
type PerfCounters struct {
	LabelIterations      int
	MaxStopProcessCount  int
}

// Engine runs label search against one immutable Supply Snapshot.
type Engine struct {
	snap    *supply.Snapshot
	weights CostWeights
}

// New returns an Engine bound to snap, using weights for its internal
// generalized-cost function (DefaultCostWeights if zero-valued).
func New(snap *supply.Snapshot, weights CostWeights) *Engine {
	if weights == (CostWeights{}) {
		weights = DefaultCostWeights
	}
	return &Engine{snap: snap, weights: weights}
}

// Search runs TBSP (stochastic=false) or TBHP (stochastic=true) for one
// request, choosing access/egress stops from the request's TAZs.
// rng is nil for TBSP (deterministic); TBHP does not consume rng itself
// (labeling is exhaustive within the ceiling) but future stochastic
// tie-break extensions may need it, so it is threaded through.
func (e *Engine) Search(req *model.Request, stochastic bool, rng *rand.Rand) *Result {
	params := e.snap.Params()
	outbound := req.Outbound()

	res := &Result{
		Stochastic: stochastic,
		Outbound:   outbound,
		StopLabels: make(map[model.StopID][]model.Label),
	}

	q := newQueue(outbound)
	processCount := make(map[model.StopID]int)

	if outbound {
		for _, eg := range e.snap.Egress(req.DestinationTAZ) {
			t := req.PreferredTimeMin - eg.TimeMin
			lbl := model.Label{Cost: eg.Cost * e.weights.WalkMin, TimeMin: t, LinkMode: model.ModeEgress,
				LinkTime: eg.TimeMin, LinkCost: eg.Cost * e.weights.WalkMin, ArrivalTime: req.PreferredTimeMin}
			e.relaxStop(res, eg.Stop, lbl)
			q.push(int(eg.Stop), t)
		}
	} else {
		for _, ac := range e.snap.Access(req.OriginTAZ) {
			t := req.PreferredTimeMin + ac.TimeMin
			lbl := model.Label{Cost: ac.Cost * e.weights.WalkMin, TimeMin: t, LinkMode: model.ModeAccess,
				LinkTime: ac.TimeMin, LinkCost: ac.Cost * e.weights.WalkMin, ArrivalTime: req.PreferredTimeMin}
			e.relaxStop(res, ac.Stop, lbl)
			q.push(int(ac.Stop), t)
		}
	}

	for {
		stopI, timeMin, ok := q.pop()
		if !ok {
			break
		}
		stop := model.StopID(stopI)
		if params.MaxStopProcessCount >= 0 && processCount[stop] >= params.MaxStopProcessCount {
			continue
		}
		processCount[stop]++
		res.Perf.LabelIterations++
		if processCount[stop] > res.Perf.MaxStopProcessCount {
			res.Perf.MaxStopProcessCount = processCount[stop]
		}

		labels := res.StopLabels[stop]
		if len(labels) == 0 {
			continue
		}
		fresh := false
		for _, l := range labels {
			if l.TimeMin == timeMin {
				fresh = true
				break
			}
		}
		if !fresh {
			// every label behind this queue entry has since been
			// superseded; the stop was re-pushed with improved times.
			continue
		}

		// relax from every state entry at the stop (TBSP holds exactly
		// one). Snapshot first: relaxations may grow the set under us.
		snapshot := append([]model.Label(nil), labels...)
		for _, lbl := range snapshot {
			if outbound {
				e.relaxBackwardTrips(req, res, q, stop, lbl, params)
			} else {
				e.relaxForwardTrips(req, res, q, stop, lbl, params)
			}
			e.relaxTransfers(res, q, stop, lbl, outbound)
		}
	}

	if outbound {
		res.OriginStop, res.OriginFound = e.bestReachedAccessStop(res, req.OriginTAZ)
	} else {
		res.DestStop, res.OriginFound = e.bestReachedEgressStop(res, req.DestinationTAZ)
	}
	return res
}

func (e *Engine) bestReachedAccessStop(res *Result, taz model.TAZID) (model.StopID, bool) {
	best := model.StopID(0)
	found := false
	bestCost := math.Inf(1)
	for _, ac := range e.snap.Access(taz) {
		labels, ok := res.StopLabels[ac.Stop]
		if !ok || len(labels) == 0 {
			continue
		}
		c := combinedCost(labels, res.Stochastic, e.snap.Params().Dispersion) + ac.Cost
		if c < bestCost {
			bestCost = c
			best = ac.Stop
			found = true
		}
	}
	return best, found
}

func (e *Engine) bestReachedEgressStop(res *Result, taz model.TAZID) (model.StopID, bool) {
	best := model.StopID(0)
	found := false
	bestCost := math.Inf(1)
	for _, eg := range e.snap.Egress(taz) {
		labels, ok := res.StopLabels[eg.Stop]
		if !ok || len(labels) == 0 {
			continue
		}
		c := combinedCost(labels, res.Stochastic, e.snap.Params().Dispersion) + eg.Cost
		if c < bestCost {
			bestCost = c
			best = eg.Stop
			found = true
		}
	}
	return best, found
}

// combinedCost is the stop's current combined label used for comparisons:
// the single label's cost under TBSP, or the logit expected-minimum cost
// -(1/theta)*ln(sum(exp(-theta*c_i))) under TBHP.
func combinedCost(labels []model.Label, stochastic bool, theta float64) float64 {
	if !stochastic || len(labels) == 1 {
		min := labels[0].Cost
		for _, l := range labels[1:] {
			if l.Cost < min {
				min = l.Cost
			}
		}
		return min
	}
	if theta <= 0 {
		theta = 1.0
	}
	// shift by the minimum cost for numerical stability before summing
	// exponentials.
	min := labels[0].Cost
	for _, l := range labels[1:] {
		if l.Cost < min {
			min = l.Cost
		}
	}
	sum := 0.0
	for _, l := range labels {
		sum += math.Exp(-theta * (l.Cost - min))
	}
	return min - math.Log(sum)/theta
}
