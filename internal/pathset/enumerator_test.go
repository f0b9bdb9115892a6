package pathset

import (
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/transitworks/tripassign/internal/labelengine"
	"github.com/transitworks/tripassign/internal/model"
	"github.com/transitworks/tripassign/internal/supply"
)

// parallelTripsSupply: TAZ 0 -> stop 1 -> {trip 10 @480, trip 11 @482} ->
// stop 2 -> TAZ 1.
func parallelTripsSupply(t *testing.T) *supply.Store {
	t.Helper()
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
	s.InitializeParameters(supply.SearchParams{TimeWindowMin: 30, Dispersion: 1, MaxStopProcessCount: -1})
	return s
}

func searchRequest(dir model.Direction, preferred float64) *model.Request {
	return &model.Request{
		PersonID: "p1", RequestID: "r1",
		OriginTAZ: 0, DestinationTAZ: 1,
		Direction: dir, PreferredTimeMin: preferred,
	}
}

func TestEnumerateDeterministicSinglePath(t *testing.T) {
	s := parallelTripsSupply(t)
	snap := s.Snapshot()
	req := searchRequest(model.Outbound, 500)

	eng := labelengine.New(snap, labelengine.CostWeights{})
	res := eng.Search(req, false, nil)
	ps := Enumerate(snap, req, res, Config{}, nil)

	require.False(t, ps.NoPath)
	require.Len(t, ps.Paths, 1)
	p := ps.Paths[0]
	require.Equal(t, 1.0, p.Probability)
	require.Equal(t, model.ModeAccess, p.Links[0].Mode)
	require.Equal(t, model.ModeGenericTransit, p.Links[1].Mode)
	require.Equal(t, model.ModeEgress, p.Links[2].Mode)
	require.Equal(t, model.StopID(1), p.Links[1].AStop)
	require.Equal(t, model.StopID(2), p.Links[1].BStop)
}

func TestEnumerateInboundLinkOrientation(t *testing.T) {
	s := parallelTripsSupply(t)
	snap := s.Snapshot()
	req := searchRequest(model.Inbound, 478)

	eng := labelengine.New(snap, labelengine.CostWeights{})
	res := eng.Search(req, false, nil)
	ps := Enumerate(snap, req, res, Config{}, nil)

	require.False(t, ps.NoPath)
	p := ps.Paths[0]
	require.Equal(t, model.ModeAccess, p.Links[0].Mode)
	require.Equal(t, model.ModeEgress, p.Links[len(p.Links)-1].Mode)
	transit := p.Links[1]
	require.Equal(t, model.StopID(1), transit.AStop, "A must be the board stop after reversal")
	require.Equal(t, model.StopID(2), transit.BStop)
	require.Less(t, transit.ASeq, transit.BSeq)
	require.LessOrEqual(t, transit.PfATime, transit.PfBTime)
}

func TestEnumerateStochasticFindsBothTrips(t *testing.T) {
	s := parallelTripsSupply(t)
	snap := s.Snapshot()
	req := searchRequest(model.Outbound, 500)

	eng := labelengine.New(snap, labelengine.CostWeights{})
	res := eng.Search(req, true, nil)

	rng := rand.New(rand.NewSource(42))
	ps := Enumerate(snap, req, res, Config{StochPathsetSize: 200, Dispersion: 1}, rng)
	require.False(t, ps.NoPath)
	require.Len(t, ps.Paths, 2)

	total := 0.0
	mult := 0
	for _, p := range ps.Paths {
		total += p.Probability
		mult += p.Multiplicity
	}
	require.InDelta(t, 1.0, total, 1e-9)
	require.Equal(t, 200, mult)
	// sorted by probability descending; the cheaper trip dominates
	require.GreaterOrEqual(t, ps.Paths[0].Probability, ps.Paths[1].Probability)
}

func TestEnumerateStochasticIsSeedStable(t *testing.T) {
	s := parallelTripsSupply(t)
	snap := s.Snapshot()
	req := searchRequest(model.Outbound, 500)

	eng := labelengine.New(snap, labelengine.CostWeights{})
	res := eng.Search(req, true, nil)

	a := Enumerate(snap, req, res, Config{StochPathsetSize: 50, Dispersion: 1}, rand.New(rand.NewSource(7)))
	b := Enumerate(snap, req, res, Config{StochPathsetSize: 50, Dispersion: 1}, rand.New(rand.NewSource(7)))

	require.Equal(t, len(a.Paths), len(b.Paths))
	for i := range a.Paths {
		require.Equal(t, a.Paths[i].Multiplicity, b.Paths[i].Multiplicity)
		require.Equal(t, pathKey(a.Paths[i]), pathKey(b.Paths[i]))
	}
}

func TestEnumerateMaxNumPathsCollapsesToOne(t *testing.T) {
	s := parallelTripsSupply(t)
	snap := s.Snapshot()
	req := searchRequest(model.Outbound, 500)

	eng := labelengine.New(snap, labelengine.CostWeights{})
	res := eng.Search(req, true, nil)

	rng := rand.New(rand.NewSource(42))
	ps := Enumerate(snap, req, res, Config{StochPathsetSize: 200, Dispersion: 1, MaxNumPaths: 1}, rng)
	require.Len(t, ps.Paths, 1)
}

func TestEnumerateMinProbabilityFilter(t *testing.T) {
	s := parallelTripsSupply(t)
	snap := s.Snapshot()
	req := searchRequest(model.Outbound, 500)

	eng := labelengine.New(snap, labelengine.CostWeights{})
	res := eng.Search(req, true, nil)

	rng := rand.New(rand.NewSource(42))
	ps := Enumerate(snap, req, res, Config{StochPathsetSize: 200, Dispersion: 1, MinPathProbability: 0.99}, rng)
	// only a path drawn in ≥99% of samples survives; at most one can
	require.LessOrEqual(t, len(ps.Paths), 1)
}

func TestEnumerateNoPathOnUnreachedOrigin(t *testing.T) {
	s := parallelTripsSupply(t)
	snap := s.Snapshot()
	req := searchRequest(model.Outbound, 500)

	res := &labelengine.Result{StopLabels: map[model.StopID][]model.Label{}}
	ps := Enumerate(snap, req, res, Config{}, nil)
	require.True(t, ps.NoPath)
	require.Empty(t, ps.Paths)
}

func TestRecordsRoundTrip(t *testing.T) {
	s := parallelTripsSupply(t)
	snap := s.Snapshot()
	req := searchRequest(model.Outbound, 500)

	eng := labelengine.New(snap, labelengine.CostWeights{})
	res := eng.Search(req, true, nil)
	rng := rand.New(rand.NewSource(42))
	ps := Enumerate(snap, req, res, Config{StochPathsetSize: 100, Dispersion: 1}, rng)
	require.False(t, ps.NoPath)

	dir := t.TempDir()
	pathsFile := filepath.Join(dir, "paths.csv")
	linksFile := filepath.Join(dir, "links.csv")
	require.NoError(t, WriteRecords(pathsFile, linksFile, []model.PathSet{ps}))

	loaded, err := ReadRecords(pathsFile, linksFile, []*model.Request{req})
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.Len(t, loaded[0].Paths, len(ps.Paths))

	for i, p := range loaded[0].Paths {
		orig := ps.Paths[i]
		require.Equal(t, orig.Cost, p.Cost)
		require.Equal(t, orig.Probability, p.Probability)
		require.Equal(t, orig.Multiplicity, p.Multiplicity)
		require.Len(t, p.Links, len(orig.Links))
		for j, l := range p.Links {
			require.Equal(t, orig.Links[j].Mode, l.Mode)
			require.Equal(t, orig.Links[j].AStop, l.AStop)
			require.Equal(t, orig.Links[j].BStop, l.BStop)
			require.Equal(t, orig.Links[j].TripID, l.TripID)
			require.Equal(t, orig.Links[j].PfATime, l.PfATime)
			require.Equal(t, orig.Links[j].PfLinkTime, l.PfLinkTime)
		}
	}
}
