package assignment

import (
	"math"

	"github.com/transitworks/tripassign/internal/model"
	"github.com/transitworks/tripassign/internal/supply"
)

// simulatePathsets walks every path in pathsets forward against the
// schedule in snap, filling the realized fields (ATime, BoardTime,
// AlightTime, WaitTime) and flagging missed transfers: a boarding whose
// vehicle departs before the passenger reaches the stop gets a negative
// wait time and MissedXfer=1, and the path counts as a non-arrival.
// Unchosen paths are simulated too, so capacity enforcement's hedge
// candidates carry realized A-times.
func simulatePathsets(snap *supply.Snapshot, pathsets []model.PathSet) {
	for i := range pathsets {
		ps := &pathsets[i]
		for j := range ps.Paths {
			simulatePath(snap, ps.Request, &ps.Paths[j])
		}
	}
}

func simulatePath(snap *supply.Snapshot, req *model.Request, p *model.Path) {
	pre := 0.0
	firstDep := math.NaN()
	for _, l := range p.Links {
		if l.Mode == model.ModeGenericTransit || l.Mode >= 0 {
			firstDep = scheduleDeparture(snap, l.TripID, l.ASeq)
			break
		}
		pre += l.PfLinkTime
	}

	clock := req.PreferredTimeMin
	if req.Outbound() && !math.IsNaN(firstDep) {
		clock = firstDep - pre
	}

	for i := range p.Links {
		l := &p.Links[i]
		if l.Mode == model.ModeGenericTransit || l.Mode >= 0 {
			dep := scheduleDeparture(snap, l.TripID, l.ASeq)
			arr := scheduleArrival(snap, l.TripID, l.BSeq)
			l.ATime = clock
			l.BoardTime = dep
			l.AlightTime = arr
			l.WaitTime = dep - clock
			l.MissedXfer = l.WaitTime < 0
			clock = arr
			continue
		}
		l.ATime = clock
		l.BoardTime = clock
		clock += l.PfLinkTime
		l.AlightTime = clock
		l.WaitTime = 0
		l.MissedXfer = false
	}
}

// arrives reports whether a chosen path actually reaches its
// destination: no missed transfers and no overcapacity bump.
func arrives(p *model.Path) bool {
	for _, l := range p.Links {
		if l.MissedXfer || l.OvercapFlag {
			return false
		}
	}
	return true
}

func scheduleDeparture(snap *supply.Snapshot, trip model.TripID, seq int) float64 {
	for _, st := range snap.TripStopTimes(trip) {
		if st.Sequence == seq {
			return st.DepartureMin
		}
	}
	return math.NaN()
}

func scheduleArrival(snap *supply.Snapshot, trip model.TripID, seq int) float64 {
	for _, st := range snap.TripStopTimes(trip) {
		if st.Sequence == seq {
			return st.ArrivalMin
		}
	}
	return math.NaN()
}
