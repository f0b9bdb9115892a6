package labelengine

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/transitworks/tripassign/internal/model"
	"github.com/transitworks/tripassign/internal/supply"
)

func intPtr(v int) *int { return &v }

// twoStopSupply wires the smallest usable network: TAZ 0 --access-->
// stop 1 --trip 10--> stop 2 --egress--> TAZ 1.
func twoStopSupply(t *testing.T, params supply.SearchParams) *supply.Store {
	t.Helper()
	s := supply.New()
	require.NoError(t, s.InitializeSupply(
		[]model.Stop{{ID: 1}, {ID: 2}},
		[]model.Trip{{ID: 10, RouteID: "R1", Capacity: intPtr(40)}},
		[]model.StopTime{
			{TripID: 10, Sequence: 1, StopID: 1, ArrivalMin: 480, DepartureMin: 480},
			{TripID: 10, Sequence: 2, StopID: 2, ArrivalMin: 490, DepartureMin: 490},
		},
	))
	s.AddAccessEgress(
		[]model.AccessEdge{{TAZ: 0, Stop: 1, TimeMin: 2, Cost: 2}},
		[]model.EgressEdge{{Stop: 2, TAZ: 1, TimeMin: 2, Cost: 2}},
	)
	s.InitializeParameters(params)
	return s
}

func outboundRequest() *model.Request {
	return &model.Request{
		PersonID: "p1", RequestID: "r1",
		OriginTAZ: 0, DestinationTAZ: 1,
		Direction: model.Outbound, PreferredTimeMin: 500,
	}
}

func inboundRequest() *model.Request {
	return &model.Request{
		PersonID: "p1", RequestID: "r1",
		OriginTAZ: 0, DestinationTAZ: 1,
		Direction: model.Inbound, PreferredTimeMin: 478,
	}
}

func TestSearchOutboundReachesOrigin(t *testing.T) {
	s := twoStopSupply(t, supply.SearchParams{TimeWindowMin: 30, MaxStopProcessCount: -1})
	eng := New(s.Snapshot(), CostWeights{})

	res := eng.Search(outboundRequest(), false, nil)
	require.True(t, res.OriginFound)
	require.Equal(t, model.StopID(1), res.OriginStop)

	labels := res.StopLabels[1]
	require.Len(t, labels, 1, "TBSP keeps a single label per stop")
	require.Equal(t, model.TripID(10), labels[0].TripID)
	require.Equal(t, 480.0, labels[0].TimeMin)
	require.Greater(t, res.Perf.LabelIterations, 0)
}

func TestSearchInboundReachesDestination(t *testing.T) {
	s := twoStopSupply(t, supply.SearchParams{TimeWindowMin: 30, MaxStopProcessCount: -1})
	eng := New(s.Snapshot(), CostWeights{})

	res := eng.Search(inboundRequest(), false, nil)
	require.True(t, res.OriginFound)
	require.Equal(t, model.StopID(2), res.DestStop)
	require.Equal(t, model.TripID(10), res.StopLabels[2][0].TripID)
}

func TestSearchZeroTimeWindowBoardsOnlyExactLanding(t *testing.T) {
	// access lands at 480.0 only if PreferredTimeMin + 2 == departure;
	// with preferred 478 the arrival matches exactly, with 477 it cannot.
	s := twoStopSupply(t, supply.SearchParams{TimeWindowMin: 0, MaxStopProcessCount: -1})
	eng := New(s.Snapshot(), CostWeights{})

	req := inboundRequest()
	res := eng.Search(req, false, nil)
	require.True(t, res.OriginFound, "an exact landing still boards")

	req.PreferredTimeMin = 477
	res = eng.Search(req, false, nil)
	require.False(t, res.OriginFound)
}

func TestSearchRespectsBumpWait(t *testing.T) {
	s := twoStopSupply(t, supply.SearchParams{TimeWindowMin: 30, BumpBufferMin: 5, MaxStopProcessCount: -1})
	require.NoError(t, s.SetBumpWait(
		[]model.BumpWaitKey{{TripID: 10, Sequence: 1, StopID: 1}},
		[]float64{480},
	))
	eng := New(s.Snapshot(), CostWeights{})

	res := eng.Search(inboundRequest(), false, nil)
	require.False(t, res.OriginFound, "the only boarding is bump-forbidden")
}

func TestHyperpathKeepsParallelTrips(t *testing.T) {
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

	eng := New(s.Snapshot(), CostWeights{})
	res := eng.Search(outboundRequest(), true, nil)
	require.True(t, res.OriginFound)

	trips := map[model.TripID]bool{}
	for _, l := range res.StopLabels[1] {
		trips[l.TripID] = true
	}
	require.True(t, trips[10] && trips[11], "both parallel trips must survive as hyperpath states")
}

func TestCombinedCostLogsum(t *testing.T) {
	labels := []model.Label{{Cost: 10}, {Cost: 12}}

	det := combinedCost(labels, false, 1)
	require.Equal(t, 10.0, det)

	stoch := combinedCost(labels, true, 1)
	want := -math.Log(math.Exp(-10) + math.Exp(-12))
	require.InDelta(t, want, stoch, 1e-9)
	require.Less(t, stoch, det, "the logsum lies below the minimum cost")
}

func TestMaxStopProcessCountBoundsWork(t *testing.T) {
	s := twoStopSupply(t, supply.SearchParams{TimeWindowMin: 30, MaxStopProcessCount: 1})
	eng := New(s.Snapshot(), CostWeights{})

	res := eng.Search(outboundRequest(), false, nil)
	require.True(t, res.OriginFound)
	require.LessOrEqual(t, res.Perf.MaxStopProcessCount, 1)
}
