package assignment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/transitworks/tripassign/internal/model"
	"github.com/transitworks/tripassign/internal/scorer"
	"github.com/transitworks/tripassign/internal/supply"
	"github.com/transitworks/tripassign/internal/workerpool"
)

func intPtr(v int) *int { return &v }

// singleTripStore wires the smallest interesting network: a two-stop trip
// departing stop 1 at 08:00 (480) and arriving stop 2 at 08:10 (490).
func singleTripStore(t *testing.T, cap *int) *supply.Store {
	t.Helper()
	s := supply.New()
	require.NoError(t, s.InitializeSupply(
		[]model.Stop{{ID: 1}, {ID: 2}},
		[]model.Trip{{ID: 10, RouteID: "R1", ServiceID: "WKDY", Capacity: cap}},
		[]model.StopTime{
			{TripID: 10, Sequence: 1, StopID: 1, ArrivalMin: 480, DepartureMin: 480},
			{TripID: 10, Sequence: 2, StopID: 2, ArrivalMin: 490, DepartureMin: 490},
		},
	))
	s.AddAccessEgress(
		[]model.AccessEdge{{TAZ: 0, Stop: 1, TimeMin: 2, Cost: 2}},
		[]model.EgressEdge{{Stop: 2, TAZ: 1, TimeMin: 2, Cost: 2}},
	)
	return s
}

func initParams(s *supply.Store, cfg Config) {
	s.InitializeParameters(supply.SearchParams{
		TimeWindowMin:       cfg.TimeWindowMin,
		BumpBufferMin:       cfg.BumpBufferMin,
		PathsetSize:         cfg.StochasticPathsetSize,
		Dispersion:          cfg.StochasticDispersion,
		MaxStopProcessCount: cfg.StochasticMaxStopProcess,
		MaxNumPaths:         cfg.MaxNumPaths,
		MinPathProbability:  cfg.MinPathProbability,
	})
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Iterations = 2
	cfg.PathfindingType = Deterministic
	cfg.NumberOfProcesses = 1
	return cfg
}

func inboundReq(person, request string, preferred float64) *model.Request {
	return &model.Request{
		PersonID: person, RequestID: request,
		OriginTAZ: 0, DestinationTAZ: 1,
		Direction: model.Inbound, PreferredTimeMin: preferred,
	}
}

func runDriver(t *testing.T, store *supply.Store, cfg Config, requests []*model.Request) *RunSummary {
	t.Helper()
	initParams(store, cfg)
	d := NewDriver(store, scorer.NewRegistry(), workerpool.New(cfg.NumberOfProcesses), cfg)
	summary, err := d.Run(context.Background(), requests)
	require.NoError(t, err)
	return summary
}

func TestScenarioSinglePassengerAmpleCapacity(t *testing.T) {
	store := singleTripStore(t, intPtr(40))
	cfg := testConfig()

	summary := runDriver(t, store, cfg, []*model.Request{inboundReq("p1", "r1", 478)})

	require.Len(t, summary.PathSets, 1)
	ps := summary.PathSets[0]
	require.False(t, ps.NoPath)
	require.Len(t, ps.Paths, 1)
	require.Equal(t, 1.0, ps.Paths[0].Probability)
	require.True(t, ps.Paths[0].Chosen.IsChosen())

	require.Len(t, summary.Profiles, 2)
	require.Equal(t, 1, summary.Profiles[0].Onboard)
	require.Equal(t, 0, summary.Profiles[1].Onboard)

	require.Equal(t, 0.0, summary.Iterations[0].CapacityGapPct)
	// the even iteration has nothing left to search
	require.Equal(t, 0, summary.Iterations[1].RequestsSearched)
}

func TestScenarioCapacityBump(t *testing.T) {
	store := singleTripStore(t, intPtr(1))
	cfg := testConfig()

	summary := runDriver(t, store, cfg, []*model.Request{
		inboundReq("p1", "r1", 478),
		inboundReq("p2", "r2", 478),
	})

	require.Equal(t, 50.0, summary.Iterations[0].CapacityGapPct)
	require.Equal(t, 2, summary.Iterations[0].Assigned)
	require.Equal(t, 1, summary.Iterations[0].Arrived)
	require.Equal(t, 1, summary.Iterations[0].Bumped)

	v, ok := store.Snapshot().BumpWait(model.BumpWaitKey{TripID: 10, Sequence: 1, StopID: 1})
	require.True(t, ok)
	require.Equal(t, 480.0, v)

	arrived, bumped := 0, 0
	for _, ps := range summary.PathSets {
		for _, p := range ps.Paths {
			if p.Chosen.IsChosen() {
				arrived++
			}
			if p.BumpedIter > 0 {
				bumped++
			}
		}
	}
	require.Equal(t, 1, arrived)
	require.Equal(t, 1, bumped)
}

func TestScenarioDownstreamBumpKeepsThroughRiders(t *testing.T) {
	// three-stop trip, capacity 2: one passenger rides from stop 1 past
	// stop 2, so when two more try to board at stop 2 only one seat is
	// actually free there
	s := supply.New()
	require.NoError(t, s.InitializeSupply(
		[]model.Stop{{ID: 1}, {ID: 2}, {ID: 3}},
		[]model.Trip{{ID: 10, RouteID: "R1", ServiceID: "WKDY", Capacity: intPtr(2)}},
		[]model.StopTime{
			{TripID: 10, Sequence: 1, StopID: 1, ArrivalMin: 480, DepartureMin: 480},
			{TripID: 10, Sequence: 2, StopID: 2, ArrivalMin: 490, DepartureMin: 490},
			{TripID: 10, Sequence: 3, StopID: 3, ArrivalMin: 500, DepartureMin: 500},
		},
	))
	s.AddAccessEgress(
		[]model.AccessEdge{
			{TAZ: 0, Stop: 1, TimeMin: 2, Cost: 2},
			{TAZ: 1, Stop: 2, TimeMin: 2, Cost: 2},
		},
		[]model.EgressEdge{{Stop: 3, TAZ: 2, TimeMin: 2, Cost: 2}},
	)

	cfg := testConfig()
	cfg.Iterations = 1

	thru := inboundReq("p1", "thru", 478)
	mid1 := inboundReq("p2", "mid1", 488)
	mid1.OriginTAZ = 1
	mid2 := inboundReq("p3", "mid2", 488)
	mid2.OriginTAZ = 1
	for _, r := range []*model.Request{thru, mid1, mid2} {
		r.DestinationTAZ = 2
	}

	summary := runDriver(t, s, cfg, []*model.Request{thru, mid1, mid2})

	require.Equal(t, 3, summary.Iterations[0].Assigned)
	require.Equal(t, 2, summary.Iterations[0].Arrived)
	require.InDelta(t, 100.0/3, summary.Iterations[0].CapacityGapPct, 1e-9)

	require.True(t, summary.PathSets[0].Paths[0].Chosen.IsChosen(),
		"the upstream rider keeps its seat through the overcapacity stop")
	bumpedAtStop2 := 0
	for _, ps := range summary.PathSets[1:] {
		if ps.Paths[0].BumpedIter > 0 {
			bumpedAtStop2++
		}
	}
	require.Equal(t, 1, bumpedAtStop2, "exactly one stop-2 boarder loses the last seat")

	for _, p := range summary.Profiles {
		require.LessOrEqual(t, p.Onboard, 2)
	}
	v, ok := s.Snapshot().BumpWait(model.BumpWaitKey{TripID: 10, Sequence: 2, StopID: 2})
	require.True(t, ok)
	require.Equal(t, 490.0, v)
}

func TestScenarioHyperpathParallelTrips(t *testing.T) {
	s := supply.New()
	require.NoError(t, s.InitializeSupply(
		[]model.Stop{{ID: 1}, {ID: 2}},
		[]model.Trip{{ID: 10}, {ID: 11}},
		[]model.StopTime{
			{TripID: 10, Sequence: 1, StopID: 1, ArrivalMin: 480, DepartureMin: 480},
			{TripID: 10, Sequence: 2, StopID: 2, ArrivalMin: 490, DepartureMin: 490},
			{TripID: 11, Sequence: 1, StopID: 1, ArrivalMin: 482, DepartureMin: 482},
			{TripID: 11, Sequence: 2, StopID: 2, ArrivalMin: 492, DepartureMin: 492},
		},
	))
	s.AddAccessEgress(
		[]model.AccessEdge{{TAZ: 0, Stop: 1, TimeMin: 2, Cost: 2}},
		[]model.EgressEdge{{Stop: 2, TAZ: 1, TimeMin: 2, Cost: 2}},
	)
	store := s

	cfg := testConfig()
	cfg.Iterations = 1
	cfg.PathfindingType = Stochastic
	cfg.StochasticPathsetSize = 200

	summary := runDriver(t, store, cfg, []*model.Request{inboundReq("p1", "r1", 478)})

	require.Len(t, summary.PathSets, 1)
	ps := summary.PathSets[0]
	require.Len(t, ps.Paths, 2)

	total := 0.0
	trips := map[model.TripID]bool{}
	for _, p := range ps.Paths {
		total += p.Probability
		for _, l := range p.Links {
			if l.Mode == model.ModeGenericTransit {
				trips[l.TripID] = true
			}
		}
	}
	require.InDelta(t, 1.0, total, 1e-9)
	require.True(t, trips[10] && trips[11], "both parallel trips appear in the pathset")
}

func TestScenarioDeterministicRepeatability(t *testing.T) {
	run := func() *RunSummary {
		store := singleTripStore(t, intPtr(1))
		cfg := testConfig()
		return runDriver(t, store, cfg, []*model.Request{
			inboundReq("p1", "r1", 478),
			inboundReq("p2", "r2", 478),
		})
	}

	a, b := run(), run()
	require.Equal(t, a.Iterations, b.Iterations)
	require.Equal(t, len(a.PathSets), len(b.PathSets))
	for i := range a.PathSets {
		require.Equal(t, len(a.PathSets[i].Paths), len(b.PathSets[i].Paths))
		for j := range a.PathSets[i].Paths {
			require.Equal(t, a.PathSets[i].Paths[j].Chosen, b.PathSets[i].Paths[j].Chosen)
		}
	}
	require.Equal(t, a.Profiles, b.Profiles)
}

func TestScenarioMissedTransfer(t *testing.T) {
	s := supply.New()
	require.NoError(t, s.InitializeSupply(
		[]model.Stop{{ID: 1}, {ID: 2}, {ID: 3}},
		[]model.Trip{{ID: 10}, {ID: 11}},
		[]model.StopTime{
			// trip A reaches the transfer stop at 08:10
			{TripID: 10, Sequence: 1, StopID: 1, ArrivalMin: 480, DepartureMin: 480},
			{TripID: 10, Sequence: 2, StopID: 2, ArrivalMin: 490, DepartureMin: 490},
			// trip B already left at 08:09
			{TripID: 11, Sequence: 1, StopID: 2, ArrivalMin: 489, DepartureMin: 489},
			{TripID: 11, Sequence: 2, StopID: 3, ArrivalMin: 495, DepartureMin: 495},
		},
	))
	snap := s.Snapshot()

	req := inboundReq("p1", "r1", 478)
	path := model.Path{
		Chosen: model.Chosen(1, 0),
		Links: []model.PathLink{
			{Mode: model.ModeAccess, AStop: 1, BStop: 1, PfLinkTime: 2},
			{Mode: model.ModeGenericTransit, AStop: 1, BStop: 2, TripID: 10, ASeq: 1, BSeq: 2},
			{Mode: model.ModeGenericTransit, AStop: 2, BStop: 3, TripID: 11, ASeq: 1, BSeq: 2},
			{Mode: model.ModeEgress, AStop: 3, BStop: 3, PfLinkTime: 2},
		},
	}

	simulatePath(snap, req, &path)

	xfer := path.Links[2]
	require.True(t, xfer.MissedXfer)
	require.Less(t, xfer.WaitTime, 0.0, "wait is negative before correction")
	require.False(t, arrives(&path), "a missed transfer is a non-arrival")

	pathsets := []model.PathSet{{Request: req, Paths: []model.Path{path}}}
	assigned, arrived := countAssignedArrived(pathsets)
	require.Equal(t, 1, assigned)
	require.Equal(t, 0, arrived)
}

func TestScenarioMSAAcrossIterations(t *testing.T) {
	store := singleTripStore(t, intPtr(40))
	cfg := testConfig()
	cfg.Iterations = 2

	summary := runDriver(t, store, cfg, []*model.Request{inboundReq("p1", "r1", 478)})

	// identical loads both iterations: the MSA average equals the raw count
	require.Equal(t, 1.0, summary.Profiles[0].MSABoards)
	require.Equal(t, float64(summary.Profiles[0].Boards), summary.Profiles[0].MSABoards)
}

func TestFilterRequests(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SkipPersonIDs = []string{"p2"}
	cfg.TracePersonIDs = []string{"p3"}

	requests := []*model.Request{
		{PersonID: "p1", RequestID: "r1"},
		{PersonID: "p2", RequestID: "r2"},
		{PersonID: "p3", RequestID: "r3"},
	}

	out := FilterRequests(cfg, requests)
	require.Len(t, out, 2)
	require.Equal(t, "r1", out[0].RequestID)
	require.True(t, out[1].Trace)

	cfg.DebugTraceOnly = true
	out = FilterRequests(cfg, requests)
	require.Len(t, out, 1)
	require.Equal(t, "r3", out[0].RequestID)

	cfg.DebugTraceOnly = false
	cfg.DebugNumTrips = 1
	out = FilterRequests(cfg, requests)
	require.Len(t, out, 1)
}

func TestNoCapacityConstraintUsesArgmax(t *testing.T) {
	store := singleTripStore(t, intPtr(1))
	cfg := testConfig()
	cfg.Iterations = 1
	cfg.CapacityConstraint = false

	summary := runDriver(t, store, cfg, []*model.Request{
		inboundReq("p1", "r1", 478),
		inboundReq("p2", "r2", 478),
	})

	// without the capacity constraint both passengers ride the 1-seat trip
	require.Equal(t, 0.0, summary.Iterations[0].CapacityGapPct)
	require.Equal(t, 2, summary.Profiles[0].Onboard)
	require.Equal(t, 1, summary.Profiles[0].Overcap)
}
