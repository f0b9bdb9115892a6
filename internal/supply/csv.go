package supply

import (
	"os"

	"github.com/gocarina/gocsv"

	"github.com/transitworks/tripassign/internal/geo"
	"github.com/transitworks/tripassign/internal/model"
	"github.com/transitworks/tripassign/internal/txerr"
)

// stopRow, tripRow, stopTimeRow and transferRow are the flat CSV row
// shapes gocsv decodes into before conversion to model types; they are
// never kept around as a generic table once decoded.
type stopRow struct {
	StopID string  `csv:"stop_id"`
	Name   string  `csv:"stop_name"`
	Lat    float64 `csv:"stop_lat"`
	Lon    float64 `csv:"stop_lon"`
}

type tripRow struct {
	TripID    string `csv:"trip_id"`
	RouteID   string `csv:"route_id"`
	ServiceID string `csv:"service_id"`
	Capacity  int    `csv:"capacity"`
	HasCap    bool   `csv:"has_capacity"`
}

type stopTimeRow struct {
	TripID       string  `csv:"trip_id"`
	Sequence     int     `csv:"stop_sequence"`
	StopID       string  `csv:"stop_id"`
	ArrivalMin   float64 `csv:"arrival_min"`
	DepartureMin float64 `csv:"departure_min"`
	Overcap      float64 `csv:"overcap"`
}

type transferRow struct {
	FromStop string  `csv:"from_stop_id"`
	ToStop   string  `csv:"to_stop_id"`
	TimeMin  float64 `csv:"time_min"`
	HasTime  bool    `csv:"has_time_min"`
}

// IDInterner assigns dense small integer ids to stop/trip/TAZ string
// keys as they are first seen.
type IDInterner struct {
	stopIDs map[string]model.StopID
	tripIDs map[string]model.TripID
	tazIDs  map[string]model.TAZID
}

func NewIDInterner() *IDInterner {
	return &IDInterner{
		stopIDs: make(map[string]model.StopID),
		tripIDs: make(map[string]model.TripID),
		tazIDs:  make(map[string]model.TAZID),
	}
}

func (n *IDInterner) Stop(key string) model.StopID {
	if id, ok := n.stopIDs[key]; ok {
		return id
	}
	id := model.StopID(len(n.stopIDs))
	n.stopIDs[key] = id
	return id
}

func (n *IDInterner) Trip(key string) model.TripID {
	if id, ok := n.tripIDs[key]; ok {
		return id
	}
	id := model.TripID(len(n.tripIDs))
	n.tripIDs[key] = id
	return id
}

func (n *IDInterner) TAZ(key string) model.TAZID {
	if id, ok := n.tazIDs[key]; ok {
		return id
	}
	id := model.TAZID(len(n.tazIDs))
	n.tazIDs[key] = id
	return id
}

// LoadCSV ingests a schedule feed laid out as four CSV files
// (stops.csv, trips.csv, stop_times.csv, transfers.csv) into s.
// transfers.csv is optional; a missing file yields
// no transfer edges rather than an error. The returned IDInterner must
// be reused by LoadAccessEgressCSV and LoadRequestsCSV so stop/trip/TAZ
// ids stay consistent across files.
func LoadCSV(s *Store, stopsPath, tripsPath, stopTimesPath, transfersPath string) (*IDInterner, error) {
	ids := NewIDInterner()
	if err := loadCSVWithInterner(s, ids, stopsPath, tripsPath, stopTimesPath, transfersPath); err != nil {
		return nil, err
	}
	return ids, nil
}

func loadCSVWithInterner(s *Store, ids *IDInterner, stopsPath, tripsPath, stopTimesPath, transfersPath string) error {
	var stopRows []*stopRow
	if f, err := os.Open(stopsPath); err != nil {
		return txerr.Supply("opening stops csv", err)
	} else {
		defer f.Close()
		if err := gocsv.UnmarshalFile(f, &stopRows); err != nil {
			return txerr.Supply("decoding stops csv", err)
		}
	}

	var tripRows []*tripRow
	if f, err := os.Open(tripsPath); err != nil {
		return txerr.Supply("opening trips csv", err)
	} else {
		defer f.Close()
		if err := gocsv.UnmarshalFile(f, &tripRows); err != nil {
			return txerr.Supply("decoding trips csv", err)
		}
	}

	var stRows []*stopTimeRow
	if f, err := os.Open(stopTimesPath); err != nil {
		return txerr.Supply("opening stop_times csv", err)
	} else {
		defer f.Close()
		if err := gocsv.UnmarshalFile(f, &stRows); err != nil {
			return txerr.Supply("decoding stop_times csv", err)
		}
	}

	stops := make([]model.Stop, 0, len(stopRows))
	stopLatLon := make(map[model.StopID][2]float64, len(stopRows))
	for _, r := range stopRows {
		id := ids.Stop(r.StopID)
		stops = append(stops, model.Stop{ID: id, Name: r.Name, Lat: r.Lat, Lon: r.Lon})
		stopLatLon[id] = [2]float64{r.Lat, r.Lon}
	}

	trips := make([]model.Trip, 0, len(tripRows))
	for _, r := range tripRows {
		t := model.Trip{ID: ids.Trip(r.TripID), RouteID: r.RouteID, ServiceID: r.ServiceID}
		if r.HasCap {
			cap := r.Capacity
			t.Capacity = &cap
		}
		trips = append(trips, t)
	}

	stopTimes := make([]model.StopTime, 0, len(stRows))
	for _, r := range stRows {
		stopTimes = append(stopTimes, model.StopTime{
			TripID:       ids.Trip(r.TripID),
			Sequence:     r.Sequence,
			StopID:       ids.Stop(r.StopID),
			ArrivalMin:   r.ArrivalMin,
			DepartureMin: r.DepartureMin,
			Overcap:      r.Overcap,
		})
	}

	if err := s.InitializeSupply(stops, trips, stopTimes); err != nil {
		return err
	}

	if transfersPath == "" {
		return nil
	}
	f, err := os.Open(transfersPath)
	if err != nil {
		return nil // optional file
	}
	defer f.Close()
	var trRows []*transferRow
	if err := gocsv.UnmarshalFile(f, &trRows); err != nil {
		return txerr.Supply("decoding transfers csv", err)
	}
	edges := make([]model.TransferEdge, 0, len(trRows))
	for _, r := range trRows {
		from, to := ids.Stop(r.FromStop), ids.Stop(r.ToStop)
		timeMin := r.TimeMin
		distKm := 0.0
		if fl, ok := stopLatLon[from]; ok {
			if tl, ok := stopLatLon[to]; ok {
				distKm = geo.HaversineKm(fl[0], fl[1], tl[0], tl[1])
			}
		}
		if !r.HasTime {
			timeMin = geo.WalkMinutes(distKm, 4.8)
		}
		edges = append(edges, model.TransferEdge{FromStop: from, ToStop: to, TimeMin: timeMin, DistKm: distKm})
	}
	s.AddTransfers(edges)
	return nil
}

type accessRow struct {
	TAZ     string  `csv:"taz"`
	StopID  string  `csv:"stop_id"`
	TimeMin float64 `csv:"time_min"`
	Cost    float64 `csv:"cost"`
}

type requestRow struct {
	PersonID         string  `csv:"person_id"`
	RequestID        string  `csv:"request_id"`
	OriginTAZ        string  `csv:"o_taz"`
	DestinationTAZ   string  `csv:"d_taz"`
	Direction        string  `csv:"direction"`
	PreferredTimeMin float64 `csv:"preferred_time_min"`
	UserClass        string  `csv:"user_class"`
	Purpose          string  `csv:"purpose"`
	AccessMode       string  `csv:"access_mode"`
	TransitMode      string  `csv:"transit_mode"`
	EgressMode       string  `csv:"egress_mode"`
	VOT              float64 `csv:"vot"`
}

// LoadAccessEgressCSV ingests access.csv and egress.csv (taz, stop_id,
// time_min, cost rows) into s, reusing ids so TAZ and stop ids stay
// consistent with the schedule feed.
func LoadAccessEgressCSV(s *Store, ids *IDInterner, accessPath, egressPath string) error {
	var acRows []*accessRow
	f, err := os.Open(accessPath)
	if err != nil {
		return txerr.Supply("opening access csv", err)
	}
	defer f.Close()
	if err := gocsv.UnmarshalFile(f, &acRows); err != nil {
		return txerr.Supply("decoding access csv", err)
	}

	var egRows []*accessRow
	g, err := os.Open(egressPath)
	if err != nil {
		return txerr.Supply("opening egress csv", err)
	}
	defer g.Close()
	if err := gocsv.UnmarshalFile(g, &egRows); err != nil {
		return txerr.Supply("decoding egress csv", err)
	}

	access := make([]model.AccessEdge, 0, len(acRows))
	for _, r := range acRows {
		access = append(access, model.AccessEdge{
			TAZ: ids.TAZ(r.TAZ), Stop: ids.Stop(r.StopID), TimeMin: r.TimeMin, Cost: r.Cost,
		})
	}
	egress := make([]model.EgressEdge, 0, len(egRows))
	for _, r := range egRows {
		egress = append(egress, model.EgressEdge{
			TAZ: ids.TAZ(r.TAZ), Stop: ids.Stop(r.StopID), TimeMin: r.TimeMin, Cost: r.Cost,
		})
	}
	s.AddAccessEgress(access, egress)
	return nil
}

// LoadRequestsCSV reads the trip list (one passenger request per row),
// reusing ids so TAZ ids match the access/egress edges.
func LoadRequestsCSV(ids *IDInterner, path string) ([]*model.Request, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, txerr.Supply("opening requests csv", err)
	}
	defer f.Close()
	var rows []*requestRow
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, txerr.Supply("decoding requests csv", err)
	}

	out := make([]*model.Request, 0, len(rows))
	for _, r := range rows {
		dir := model.Outbound
		if r.Direction == "INBOUND" {
			dir = model.Inbound
		}
		out = append(out, &model.Request{
			PersonID:         r.PersonID,
			RequestID:        r.RequestID,
			OriginTAZ:        ids.TAZ(r.OriginTAZ),
			DestinationTAZ:   ids.TAZ(r.DestinationTAZ),
			Direction:        dir,
			PreferredTimeMin: r.PreferredTimeMin,
			UserClass:        r.UserClass,
			Purpose:          r.Purpose,
			AccessMode:       r.AccessMode,
			TransitMode:      r.TransitMode,
			EgressMode:       r.EgressMode,
			VOT:              r.VOT,
		})
	}
	return out, nil
}
