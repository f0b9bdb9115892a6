package supply

import "github.com/transitworks/tripassign/internal/model"

// Snapshot is the read-only view of a Store handed to each worker at
// the start of a pathfinding pass. It carries no mutex: nothing in it
// is ever written again once constructed.
type Snapshot struct {
	stops          map[model.StopID]model.Stop
	trips          map[model.TripID]*model.Trip
	tripStopTimes  map[model.TripID][]model.StopTime
	stopBoardIndex map[model.StopID][]BoardOpportunity
	stopAlightIndex map[model.StopID][]AlightOpportunity
	transfers      map[model.StopID][]model.TransferEdge
	access         map[model.TAZID][]model.AccessEdge
	egress         map[model.TAZID][]model.EgressEdge
	bumpWait       map[model.BumpWaitKey]float64
	params         SearchParams
}

// Params returns the process-wide search configuration.
func (s *Snapshot) Params() SearchParams { return s.params }

// Stop looks up a stop by id.
func (s *Snapshot) Stop(id model.StopID) (model.Stop, bool) {
	st, ok := s.stops[id]
	return st, ok
}

// Trip looks up a trip by id.
func (s *Snapshot) Trip(id model.TripID) (*model.Trip, bool) {
	t, ok := s.trips[id]
	return t, ok
}

// TripStopTimes returns a trip's stop-times sorted by sequence.
func (s *Snapshot) TripStopTimes(id model.TripID) []model.StopTime {
	return s.tripStopTimes[id]
}

// BoardOpportunities returns the board opportunities at a stop, sorted
// by departure time ascending, restricted to those departing within
// timeWindowMin of afterMin and not forbidden by the BumpWait registry
// (a boarding whose passenger A-time is later than
// BumpWait[(trip,seq,stop)] - bump_buffer is treated as edge-absent).
func (s *Snapshot) BoardOpportunities(stop model.StopID, afterMin, timeWindowMin, passengerATime, bumpBufferMin float64) []BoardOpportunity {
	all := s.stopBoardIndex[stop]
	out := make([]BoardOpportunity, 0, len(all))
	for _, o := range all {
		if o.DepartureMin < afterMin {
			continue
		}
		if timeWindowMin >= 0 && o.DepartureMin > afterMin+timeWindowMin {
			break
		}
		if tb, ok := s.bumpWait[model.BumpWaitKey{TripID: o.TripID, Sequence: o.Sequence, StopID: stop}]; ok {
			if passengerATime > tb-bumpBufferMin {
				continue
			}
		}
		out = append(out, o)
	}
	return out
}

// AlightOpportunities returns the alight opportunities at a stop, sorted
// by arrival time descending, restricted to those arriving within
// timeWindowMin before beforeMin — used by backward (outbound) search.
func (s *Snapshot) AlightOpportunities(stop model.StopID, beforeMin, timeWindowMin float64) []AlightOpportunity {
	all := s.stopAlightIndex[stop]
	out := make([]AlightOpportunity, 0, len(all))
	for _, o := range all {
		if o.ArrivalMin > beforeMin {
			continue
		}
		if timeWindowMin >= 0 && beforeMin-o.ArrivalMin > timeWindowMin {
			break
		}
		out = append(out, o)
	}
	return out
}

// Transfers returns the walking transfer edges out of a stop.
func (s *Snapshot) Transfers(stop model.StopID) []model.TransferEdge {
	return s.transfers[stop]
}

// Access returns the access edges out of a TAZ.
func (s *Snapshot) Access(taz model.TAZID) []model.AccessEdge {
	return s.access[taz]
}

// Egress returns the egress edges into a TAZ.
func (s *Snapshot) Egress(taz model.TAZID) []model.EgressEdge {
	return s.egress[taz]
}

// BumpWait looks up the earliest bumped-passenger arrival time for a
// (trip, sequence, stop) key.
func (s *Snapshot) BumpWait(key model.BumpWaitKey) (float64, bool) {
	v, ok := s.bumpWait[key]
	return v, ok
}
