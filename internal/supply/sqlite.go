package supply

import (
	"context"
	"database/sql"

	_ "github.com/mattn/go-sqlite3"

	"github.com/transitworks/tripassign/internal/model"
	"github.com/transitworks/tripassign/internal/txerr"
)

// SQLiteStorage persists a Store's schedule to a local SQLite file, for
// single-machine/dev runs where a full Postgres instance is overkill.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens (creating if necessary) a SQLite database at
// path and ensures its schema exists.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, txerr.Configuration("opening sqlite storage", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, txerr.Configuration("creating sqlite schema", err)
	}
	return &SQLiteStorage{db: db}, nil
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS stops (stop_id INTEGER PRIMARY KEY, name TEXT, lat REAL, lon REAL);
CREATE TABLE IF NOT EXISTS trips (trip_id INTEGER PRIMARY KEY, route_id TEXT, service_id TEXT, capacity INTEGER, has_capacity INTEGER);
CREATE TABLE IF NOT EXISTS stop_times (trip_id INTEGER, sequence INTEGER, stop_id INTEGER, arrival_min REAL, departure_min REAL, overcap REAL);
`

func (s *SQLiteStorage) Close() error { return s.db.Close() }

// Persist writes stop, trip and stop_time rows, replacing any prior
// content, so a later LoadInto can rebuild the schedule without
// re-parsing its source feed.
func (s *SQLiteStorage) Persist(ctx context.Context, store *Store) error {
	store.mu.RLock()
	defer store.mu.RUnlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return txerr.Supply("beginning sqlite persist tx", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{"DELETE FROM stops", "DELETE FROM trips", "DELETE FROM stop_times"} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return txerr.Supply("clearing sqlite tables", err)
		}
	}

	for id, st := range store.stops {
		if _, err := tx.ExecContext(ctx, `INSERT INTO stops (stop_id, name, lat, lon) VALUES (?, ?, ?, ?)`,
			int(id), st.Name, st.Lat, st.Lon); err != nil {
			return txerr.Supply("inserting stop", err)
		}
	}
	for id, t := range store.trips {
		hasCap := 0
		cap := 0
		if t.Capacity != nil {
			hasCap = 1
			cap = *t.Capacity
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO trips (trip_id, route_id, service_id, capacity, has_capacity) VALUES (?, ?, ?, ?, ?)`,
			int(id), t.RouteID, t.ServiceID, cap, hasCap); err != nil {
			return txerr.Supply("inserting trip", err)
		}
	}
	for tripID, sts := range store.tripStopTimes {
		for _, st := range sts {
			if _, err := tx.ExecContext(ctx, `INSERT INTO stop_times (trip_id, sequence, stop_id, arrival_min, departure_min, overcap) VALUES (?, ?, ?, ?, ?, ?)`,
				int(tripID), st.Sequence, int(st.StopID), st.ArrivalMin, st.DepartureMin, st.Overcap); err != nil {
				return txerr.Supply("inserting stop_time", err)
			}
		}
	}
	return tx.Commit()
}

// LoadInto reads a previously persisted schedule back into store.
func (s *SQLiteStorage) LoadInto(ctx context.Context, store *Store) error {
	var stops []model.Stop
	rows, err := s.db.QueryContext(ctx, `SELECT stop_id, name, lat, lon FROM stops`)
	if err != nil {
		return txerr.Supply("querying stops", err)
	}
	for rows.Next() {
		var id int
		var st model.Stop
		if err := rows.Scan(&id, &st.Name, &st.Lat, &st.Lon); err != nil {
			rows.Close()
			return txerr.Supply("scanning stop", err)
		}
		st.ID = model.StopID(id)
		stops = append(stops, st)
	}
	rows.Close()

	var trips []model.Trip
	rows, err = s.db.QueryContext(ctx, `SELECT trip_id, route_id, service_id, capacity, has_capacity FROM trips`)
	if err != nil {
		return txerr.Supply("querying trips", err)
	}
	for rows.Next() {
		var id, cap, hasCap int
		var t model.Trip
		if err := rows.Scan(&id, &t.RouteID, &t.ServiceID, &cap, &hasCap); err != nil {
			rows.Close()
			return txerr.Supply("scanning trip", err)
		}
		t.ID = model.TripID(id)
		if hasCap != 0 {
			t.Capacity = &cap
		}
		trips = append(trips, t)
	}
	rows.Close()

	var stopTimes []model.StopTime
	rows, err = s.db.QueryContext(ctx, `SELECT trip_id, sequence, stop_id, arrival_min, departure_min, overcap FROM stop_times`)
	if err != nil {
		return txerr.Supply("querying stop_times", err)
	}
	for rows.Next() {
		var tripID, stopID int
		var st model.StopTime
		if err := rows.Scan(&tripID, &st.Sequence, &stopID, &st.ArrivalMin, &st.DepartureMin, &st.Overcap); err != nil {
			rows.Close()
			return txerr.Supply("scanning stop_time", err)
		}
		st.TripID = model.TripID(tripID)
		st.StopID = model.StopID(stopID)
		stopTimes = append(stopTimes, st)
	}
	rows.Close()

	if len(stops) == 0 && len(trips) == 0 {
		return ErrNoSchedule
	}
	return store.InitializeSupply(stops, trips, stopTimes)
}
