package vehicleloader

import (
	"os"
	"strconv"

	"github.com/gocarina/gocsv"

	"github.com/transitworks/tripassign/internal/model"
	"github.com/transitworks/tripassign/internal/txerr"
)

// loadRow is the flat CSV row shape of the vehicle load output.
// The capacity column is left blank for a trip with no capacity; no
// direction_id column is written.
type loadRow struct {
	Iteration     int     `csv:"iteration"`
	ServiceID     string  `csv:"service_id"`
	RouteID       string  `csv:"route_id"`
	TripID        string  `csv:"trip_id"`
	Sequence      int     `csv:"sequence"`
	StopID        int     `csv:"stop_id"`
	ArrivalTime   float64 `csv:"arrival_time"`
	DepartureTime float64 `csv:"departure_time"`
	TravelTimeSec float64 `csv:"travel_time_sec"`
	DwellTimeSec  float64 `csv:"dwell_time_sec"`
	Capacity      string  `csv:"capacity"`
	Boards        int     `csv:"boards"`
	Alights       int     `csv:"alights"`
	Onboard       int     `csv:"onboard"`
	Standees      int     `csv:"standees"`
	Friction      float64 `csv:"friction"`
	Overcap       int     `csv:"overcap"`
	MSABoards     float64 `csv:"msa_boards"`
	MSAAlights    float64 `csv:"msa_alights"`
	MSAOnboard    float64 `csv:"msa_onboard"`
	MSAStandees   float64 `csv:"msa_standees"`
	MSAFriction   float64 `csv:"msa_friction"`
	MSAOvercap    float64 `csv:"msa_overcap"`
}

// WriteCSV appends profiles for the given outer iteration to path,
// writing the gocsv header only when path does not already exist.
// prependRouteID renders the trip_id column as route_id_trip_id.
func WriteCSV(path string, iteration int, profiles []model.VehicleLoadProfile, prependRouteID bool) error {
	rows := make([]*loadRow, 0, len(profiles))
	for _, p := range profiles {
		cap := ""
		if p.Capacity != nil {
			cap = strconv.Itoa(*p.Capacity)
		}
		tripID := strconv.Itoa(int(p.TripID))
		if prependRouteID && p.RouteID != "" {
			tripID = p.RouteID + "_" + tripID
		}
		rows = append(rows, &loadRow{
			Iteration:     iteration,
			ServiceID:     p.ServiceID,
			RouteID:       p.RouteID,
			TripID:        tripID,
			Sequence:      p.Sequence,
			StopID:        int(p.StopID),
			ArrivalTime:   p.ArrivalTime,
			DepartureTime: p.DepartureTime,
			TravelTimeSec: p.TravelTimeSec,
			DwellTimeSec:  p.DwellTimeSec,
			Capacity:      cap,
			Boards:        p.Boards,
			Alights:       p.Alights,
			Onboard:       p.Onboard,
			Standees:      p.Standees,
			Friction:      p.Friction,
			Overcap:       p.Overcap,
			MSABoards:     p.MSABoards,
			MSAAlights:    p.MSAAlights,
			MSAOnboard:    p.MSAOnboard,
			MSAStandees:   p.MSAStandees,
			MSAFriction:   p.MSAFriction,
			MSAOvercap:    p.MSAOvercap,
		})
	}

	exists := false
	if _, err := os.Stat(path); err == nil {
		exists = true
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return txerr.Supply("opening vehicle load csv for append", err)
	}
	defer f.Close()

	if !exists {
		if err := gocsv.Marshal(rows, f); err != nil {
			return txerr.Supply("writing vehicle load csv header+rows", err)
		}
		return nil
	}
	if err := gocsv.MarshalWithoutHeaders(rows, f); err != nil {
		return txerr.Supply("appending vehicle load csv rows", err)
	}
	return nil
}
