// Package supply implements the Supply Store: the time-expanded
// schedule (stop-times, capacities, transfer/access/egress edges) and
// the process-wide search parameters, indexed for fast forward and
// backward traversal. A Store is built once per run and is immutable
// during one outer iteration; InitializeSupply / InitializeParameters /
// AddTransfers / AddAccessEgress fill it at load time, and SetBumpWait,
// called by the Assignment Driver between passes, is the only mutation
// during a run. Workers only ever see a read-only Snapshot.
package supply

import (
	"sort"
	"sync"

	"github.com/transitworks/tripassign/internal/model"
	"github.com/transitworks/tripassign/internal/txerr"
)

// SearchParams is the process-wide search configuration loaded via
// InitializeParameters.
type SearchParams struct {
	TimeWindowMin       float64
	BumpBufferMin       float64
	PathsetSize         int
	Dispersion          float64
	MaxStopProcessCount int // -1 = unbounded
	MaxNumPaths         int // -1 = unbounded
	MinPathProbability  float64
}

// BoardOpportunity is one entry in the stop -> board-opportunity index:
// a trip that can be boarded at a stop, at a given sequence and
// departure time.
type BoardOpportunity struct {
	TripID        model.TripID
	Sequence      int
	DepartureMin  float64
}

// AlightOpportunity is one entry in the stop -> alight-opportunity index
// used by backward (outbound) search: a trip that can be alighted at a
// stop, at a given sequence and arrival time.
type AlightOpportunity struct {
	TripID      model.TripID
	Sequence    int
	ArrivalMin  float64
}

// Store owns the schedule arrays and the BumpWait registry. Safe for
// concurrent read access once a pass has started; mutation methods take
// mu and must only be called by the driver between passes.
type Store struct {
	mu sync.RWMutex

	stops map[model.StopID]model.Stop
	trips map[model.TripID]*model.Trip

	// tripStopTimes holds, per trip, its StopTimes sorted by Sequence.
	tripStopTimes map[model.TripID][]model.StopTime

	// stopBoardIndex is "stop -> list of (trip_id, sequence, departure)"
	// for constant-time lookup of board opportunities, sorted by
	// departure time ascending.
	stopBoardIndex map[model.StopID][]BoardOpportunity

	// stopAlightIndex is "stop -> list of (trip_id, sequence, arrival)"
	// for the Label Engine's backward (outbound) search, sorted by
	// arrival time descending.
	stopAlightIndex map[model.StopID][]AlightOpportunity

	transfers map[model.StopID][]model.TransferEdge
	access    map[model.TAZID][]model.AccessEdge
	egress    map[model.TAZID][]model.EgressEdge

	bumpWait map[model.BumpWaitKey]float64

	params SearchParams
}

// New returns an empty Store. Call InitializeSupply and
// InitializeParameters before use.
func New() *Store {
	return &Store{
		stops:          make(map[model.StopID]model.Stop),
		trips:          make(map[model.TripID]*model.Trip),
		tripStopTimes:  make(map[model.TripID][]model.StopTime),
		stopBoardIndex:  make(map[model.StopID][]BoardOpportunity),
		stopAlightIndex: make(map[model.StopID][]AlightOpportunity),
		transfers:      make(map[model.StopID][]model.TransferEdge),
		access:         make(map[model.TAZID][]model.AccessEdge),
		egress:         make(map[model.TAZID][]model.EgressEdge),
		bumpWait:       make(map[model.BumpWaitKey]float64),
	}
}

// InitializeSupply bulk-loads the schedule: stops, trips and their
// stop-times. Stop-times per trip are sorted by sequence, and
// arrival_min <= departure_min must hold for each one.
func (s *Store) InitializeSupply(stops []model.Stop, trips []model.Trip, stopTimes []model.StopTime) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, st := range stops {
		s.stops[st.ID] = st
	}
	for i := range trips {
		t := trips[i]
		s.trips[t.ID] = &t
	}

	grouped := make(map[model.TripID][]model.StopTime, len(trips))
	for _, st := range stopTimes {
		if st.ArrivalMin > st.DepartureMin {
			return txerr.Supply("arrival_min > departure_min", nil)
		}
		if _, ok := s.stops[st.StopID]; !ok {
			return txerr.Supply("stop_time references unknown stop", nil)
		}
		grouped[st.TripID] = append(grouped[st.TripID], st)
	}

	for tripID, sts := range grouped {
		sort.Slice(sts, func(i, j int) bool { return sts[i].Sequence < sts[j].Sequence })
		for i := 1; i < len(sts); i++ {
			if sts[i].Sequence <= sts[i-1].Sequence {
				return txerr.Supply("stop_times not strictly increasing by sequence", nil)
			}
		}
		s.tripStopTimes[tripID] = sts
		// every stop_time except the last is a board opportunity; every
		// stop_time except the first is an alight opportunity.
		for i, st := range sts {
			if i != len(sts)-1 {
				s.stopBoardIndex[st.StopID] = append(s.stopBoardIndex[st.StopID], BoardOpportunity{
					TripID:       tripID,
					Sequence:     st.Sequence,
					DepartureMin: st.DepartureMin,
				})
			}
			if i != 0 {
				s.stopAlightIndex[st.StopID] = append(s.stopAlightIndex[st.StopID], AlightOpportunity{
					TripID:     tripID,
					Sequence:   st.Sequence,
					ArrivalMin: st.ArrivalMin,
				})
			}
		}
	}

	for stopID, opps := range s.stopBoardIndex {
		sort.Slice(opps, func(i, j int) bool { return opps[i].DepartureMin < opps[j].DepartureMin })
		s.stopBoardIndex[stopID] = opps
	}
	for stopID, opps := range s.stopAlightIndex {
		sort.Slice(opps, func(i, j int) bool { return opps[i].ArrivalMin > opps[j].ArrivalMin })
		s.stopAlightIndex[stopID] = opps
	}

	return nil
}

// InitializeParameters loads the process-wide search configuration.
func (s *Store) InitializeParameters(p SearchParams) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.params = p
}

// SetBumpWait loads (or merges into) the BumpWait registry. Per key, the
// stored value is the minimum of the existing and incoming value
// (insert-or-min, monotone non-increasing).
func (s *Store) SetBumpWait(keys []model.BumpWaitKey, earliestTimes []float64) error {
	if len(keys) != len(earliestTimes) {
		return txerr.Configuration("SetBumpWait: keys and earliestTimes length mismatch", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, k := range keys {
		if prev, ok := s.bumpWait[k]; !ok || earliestTimes[i] < prev {
			s.bumpWait[k] = earliestTimes[i]
		}
	}
	return nil
}

// AddTransfers registers walking transfer edges.
func (s *Store) AddTransfers(edges []model.TransferEdge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range edges {
		s.transfers[e.FromStop] = append(s.transfers[e.FromStop], e)
	}
}

// AddAccessEgress registers TAZ<->Stop access and egress edges.
func (s *Store) AddAccessEgress(access []model.AccessEdge, egress []model.EgressEdge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range access {
		s.access[e.TAZ] = append(s.access[e.TAZ], e)
	}
	for _, e := range egress {
		s.egress[e.TAZ] = append(s.egress[e.TAZ], e)
	}
}

// Snapshot returns an immutable read-only view for workers. The
// returned Snapshot shares the Store's schedule arrays (never mutated
// again once the pass starts) and holds its own copy of the BumpWait
// registry, so a later SetBumpWait does not change it.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bw := make(map[model.BumpWaitKey]float64, len(s.bumpWait))
	for k, v := range s.bumpWait {
		bw[k] = v
	}
	return &Snapshot{
		stops:           s.stops,
		trips:           s.trips,
		tripStopTimes:   s.tripStopTimes,
		stopBoardIndex:  s.stopBoardIndex,
		stopAlightIndex: s.stopAlightIndex,
		transfers:       s.transfers,
		access:          s.access,
		egress:          s.egress,
		bumpWait:        bw,
		params:          s.params,
	}
}
