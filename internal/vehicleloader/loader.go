// Package vehicleloader aggregates chosen path-links into per
// (trip_id, sequence) boards, alights and onboard counts, smooths them
// across outer iterations with the method of successive averages, and
// recomputes per-stop travel/dwell times from boards and alights. The
// recomputed times are stored on the load profiles only; they are not
// written back into the Supply Store, so the next pathfinding pass
// searches the original timetable.
package vehicleloader

import (
	"sort"

	"github.com/transitworks/tripassign/internal/model"
	"github.com/transitworks/tripassign/internal/supply"
)

// DwellParams are the static acceleration/deceleration parameters used
// to recompute travel and dwell time as a function of boards/alights.
type DwellParams struct {
	SecPerBoard      float64
	SecPerAlight     float64
	MinDwellSec      float64
	AccelPenaltySec  float64
}

// DefaultDwellParams is a plausible compiled-in default.
var DefaultDwellParams = DwellParams{SecPerBoard: 2.2, SecPerAlight: 1.8, MinDwellSec: 10, AccelPenaltySec: 6}

// Load aggregates the chosen, unbumped links of pathsets into a
// VehicleLoadProfile per (trip_id, sequence), using snap for the
// schedule skeleton (arrival/departure, capacity, route/service ids).
func Load(snap *supply.Snapshot, pathsets []model.PathSet) []model.VehicleLoadProfile {
	type key struct {
		trip model.TripID
		seq  int
	}
	boards := make(map[key]int)
	alights := make(map[key]int)

	for _, ps := range pathsets {
		for _, p := range ps.Paths {
			if !p.Chosen.IsChosen() {
				continue
			}
			for _, l := range p.Links {
				if l.Mode != model.ModeGenericTransit {
					continue
				}
				if l.OvercapFlag {
					continue
				}
				boards[key{l.TripID, l.ASeq}]++
				alights[key{l.TripID, l.BSeq}]++
			}
		}
	}

	tripIDs := make(map[model.TripID]bool)
	for k := range boards {
		tripIDs[k.trip] = true
	}
	for k := range alights {
		tripIDs[k.trip] = true
	}

	var profiles []model.VehicleLoadProfile
	for tripID := range tripIDs {
		sts := snap.TripStopTimes(tripID)
		trip, _ := snap.Trip(tripID)
		onboard := 0
		for _, st := range sts {
			k := key{tripID, st.Sequence}
			b := boards[k]
			a := alights[k]
			onboard += b - a
			profile := model.VehicleLoadProfile{
				TripID:        tripID,
				Sequence:      st.Sequence,
				StopID:        st.StopID,
				ArrivalTime:   st.ArrivalMin,
				DepartureTime: st.DepartureMin,
				Boards:        b,
				Alights:       a,
				Onboard:       onboard,
			}
			if trip != nil {
				profile.RouteID = trip.RouteID
				profile.ServiceID = trip.ServiceID
				profile.Capacity = trip.Capacity
				if trip.Capacity != nil {
					profile.Overcap = onboard - *trip.Capacity
					if profile.Overcap > 0 {
						profile.Standees = profile.Overcap
					}
				}
			}
			profiles = append(profiles, profile)
		}
	}

	sort.Slice(profiles, func(i, j int) bool {
		if profiles[i].TripID != profiles[j].TripID {
			return profiles[i].TripID < profiles[j].TripID
		}
		return profiles[i].Sequence < profiles[j].Sequence
	})

	applyDwellTimes(profiles, DefaultDwellParams)
	return profiles
}

// applyDwellTimes updates TravelTimeSec/DwellTimeSec in place as a
// function of boards/alights.
func applyDwellTimes(profiles []model.VehicleLoadProfile, p DwellParams) {
	for i := range profiles {
		pr := &profiles[i]
		dwell := p.MinDwellSec + float64(pr.Boards)*p.SecPerBoard + float64(pr.Alights)*p.SecPerAlight
		pr.DwellTimeSec = dwell
		if i > 0 && profiles[i-1].TripID == pr.TripID {
			scheduled := (pr.ArrivalTime - profiles[i-1].DepartureTime) * 60
			pr.TravelTimeSec = scheduled + p.AccelPenaltySec*boolFloat(pr.Boards+pr.Alights > 0)
		}
		pr.Friction = float64(pr.Standees) * pr.TravelTimeSec
	}
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// MSA applies method-of-successive-averages smoothing at outer iteration
// n (1-indexed) to prev's stored MSA values, writing into cur in place:
// x_new = (1/n)*x_raw + (1-1/n)*x_prev.
func MSA(cur []model.VehicleLoadProfile, prev map[model.BumpWaitKey]model.VehicleLoadProfile, n int) {
	if n <= 0 {
		n = 1
	}
	w := 1.0 / float64(n)
	for i := range cur {
		pr := &cur[i]
		key := model.BumpWaitKey{TripID: pr.TripID, Sequence: pr.Sequence, StopID: pr.StopID}
		prevProfile, ok := prev[key]
		if !ok {
			pr.MSABoards = float64(pr.Boards)
			pr.MSAAlights = float64(pr.Alights)
			pr.MSAOnboard = float64(pr.Onboard)
			pr.MSAStandees = float64(pr.Standees)
			pr.MSAFriction = pr.Friction
			pr.MSAOvercap = float64(pr.Overcap)
			continue
		}
		pr.MSABoards = w*float64(pr.Boards) + (1-w)*prevProfile.MSABoards
		pr.MSAAlights = w*float64(pr.Alights) + (1-w)*prevProfile.MSAAlights
		pr.MSAOnboard = w*float64(pr.Onboard) + (1-w)*prevProfile.MSAOnboard
		pr.MSAStandees = w*float64(pr.Standees) + (1-w)*prevProfile.MSAStandees
		pr.MSAFriction = w*pr.Friction + (1-w)*prevProfile.MSAFriction
		pr.MSAOvercap = w*float64(pr.Overcap) + (1-w)*prevProfile.MSAOvercap
	}
}

// Index builds a lookup of the latest profile per (trip, sequence, stop)
// key, used to feed MSA's prev argument on the next iteration.
func Index(profiles []model.VehicleLoadProfile) map[model.BumpWaitKey]model.VehicleLoadProfile {
	out := make(map[model.BumpWaitKey]model.VehicleLoadProfile, len(profiles))
	for _, p := range profiles {
		out[model.BumpWaitKey{TripID: p.TripID, Sequence: p.Sequence, StopID: p.StopID}] = p
	}
	return out
}
