package capacity

import (
	"sort"

	"github.com/transitworks/tripassign/internal/model"
	"github.com/transitworks/tripassign/internal/supply"
	"github.com/transitworks/tripassign/internal/vehicleloader"
)

type tripSeq struct {
	trip model.TripID
	seq  int
}

type candidate struct {
	psIdx, pathIdx, linkIdx int
	requestID               string
	tripID                  model.TripID
	sequence                int
	stopID                  model.StopID
	realizedATime           float64
	pfATime                 float64
	alreadyChosen           bool
}

// EnforceOnce runs one pass of the bump algorithm over pathsets, using
// snap for capacities and the schedule. bumpOneAtATime selects a single
// earliest bump-stop across all trips when true, one per trip
// otherwise. iter tags bumped paths. It returns the recomputed load
// profiles and whether any chosen path was bumped this pass; callers
// loop (rebuilding the load each time) until it returns false.
func EnforceOnce(snap *supply.Snapshot, pathsets []model.PathSet, registry *BumpWaitRegistry, bumpOneAtATime bool, iter int) ([]model.VehicleLoadProfile, bool) {
	profiles := vehicleloader.Load(snap, pathsets)
	if len(profiles) == 0 {
		return profiles, false
	}

	overcapByTripSeq := make(map[tripSeq]model.VehicleLoadProfile)
	for _, p := range profiles {
		if p.Capacity != nil {
			overcapByTripSeq[tripSeq{p.TripID, p.Sequence}] = p
		}
	}

	bumpStops := selectBumpStops(profiles, bumpOneAtATime)
	if len(bumpStops) == 0 {
		return profiles, false
	}

	atCapacity := make(map[tripSeq]bool)
	for _, p := range profiles {
		if p.Capacity != nil && p.Overcap > 0 {
			atCapacity[tripSeq{p.TripID, p.Sequence}] = true
		}
	}

	candidates := gatherCandidates(pathsets, bumpStops, atCapacity)
	if len(candidates) == 0 {
		return profiles, false
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.realizedATime != b.realizedATime {
			return a.realizedATime < b.realizedATime
		}
		if a.tripID != b.tripID {
			return a.tripID < b.tripID
		}
		if a.sequence != b.sequence {
			return a.sequence < b.sequence
		}
		if a.pfATime != b.pfATime {
			return a.pfATime > b.pfATime
		}
		return a.requestID > b.requestID
	})

	// Group candidates by bump stop key so the keep threshold is applied
	// per key, not globally.
	byStop := make(map[tripSeq][]candidate)
	for _, c := range candidates {
		k := tripSeq{c.tripID, c.sequence}
		byStop[k] = append(byStop[k], c)
	}

	bumpedAny := false
	for k, group := range byStop {
		prof, ok := overcapByTripSeq[k]
		if !ok || prof.Capacity == nil {
			continue
		}
		// Only the seats left after through-riders are available to new
		// boarders at this stop: boards - overcap, not the raw vehicle
		// capacity, which would let a downstream overcapacity stop keep
		// every boarding whenever riders from upstream are still aboard.
		keep := prof.Boards - prof.Overcap
		if keep < 0 {
			keep = 0
		}
		kept := 0
		for _, c := range group {
			// only actual boardings occupy capacity; hedge candidates
			// (unchosen paths at at-capacity stops) never fit.
			if c.alreadyChosen && kept < keep {
				kept++
				continue
			}
			path := &pathsets[c.psIdx].Paths[c.pathIdx]
			path.Chosen = model.Rejected
			path.BumpedIter = iter
			path.Links[c.linkIdx].OvercapFlag = true
			registry.Merge(model.BumpWaitKey{TripID: c.tripID, Sequence: c.sequence, StopID: c.stopID}, c.realizedATime)
			if c.alreadyChosen {
				bumpedAny = true
			}
		}
	}

	if bumpedAny {
		profiles = vehicleloader.Load(snap, pathsets)
	}
	return profiles, bumpedAny
}

// selectBumpStops finds, for every trip, its first stop where overcap
// becomes positive. If bumpOneAtATime, only the single earliest such
// stop (by arrival time) across all trips is returned.
func selectBumpStops(profiles []model.VehicleLoadProfile, bumpOneAtATime bool) []tripSeq {
	firstOvercap := make(map[model.TripID]model.VehicleLoadProfile)
	for _, p := range profiles {
		if p.Capacity == nil || p.Overcap <= 0 {
			continue
		}
		if existing, ok := firstOvercap[p.TripID]; !ok || p.Sequence < existing.Sequence {
			firstOvercap[p.TripID] = p
		}
	}
	if len(firstOvercap) == 0 {
		return nil
	}
	if !bumpOneAtATime {
		out := make([]tripSeq, 0, len(firstOvercap))
		for _, p := range firstOvercap {
			out = append(out, tripSeq{p.TripID, p.Sequence})
		}
		return out
	}
	var earliest model.VehicleLoadProfile
	set := false
	for _, p := range firstOvercap {
		if !set || p.ArrivalTime < earliest.ArrivalTime {
			earliest = p
			set = true
		}
	}
	return []tripSeq{{earliest.TripID, earliest.Sequence}}
}

func gatherCandidates(pathsets []model.PathSet, bumpStops []tripSeq, atCapacity map[tripSeq]bool) []candidate {
	bumpSet := make(map[tripSeq]bool, len(bumpStops))
	for _, b := range bumpStops {
		bumpSet[b] = true
	}

	var out []candidate
	for psi := range pathsets {
		ps := &pathsets[psi]
		for pi := range ps.Paths {
			p := &ps.Paths[pi]
			chosen := p.Chosen.IsChosen()
			for li, l := range p.Links {
				if l.Mode != model.ModeGenericTransit {
					continue
				}
				k := tripSeq{l.TripID, l.ASeq}
				isBumpStop := bumpSet[k]
				isHedge := !chosen && atCapacity[k]
				if chosen && isBumpStop {
					out = append(out, candidate{psIdx: psi, pathIdx: pi, linkIdx: li,
						requestID: ps.Request.RequestID, tripID: l.TripID, sequence: l.ASeq, stopID: l.AStop,
						realizedATime: l.ATime, pfATime: l.PfATime, alreadyChosen: true})
				} else if isHedge {
					out = append(out, candidate{psIdx: psi, pathIdx: pi, linkIdx: li,
						requestID: ps.Request.RequestID, tripID: l.TripID, sequence: l.ASeq, stopID: l.AStop,
						realizedATime: l.ATime, pfATime: l.PfATime, alreadyChosen: false})
				}
			}
		}
	}
	return out
}
