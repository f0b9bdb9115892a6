package supply

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/transitworks/tripassign/internal/model"
	"github.com/transitworks/tripassign/internal/txerr"
)

// PostgresStorage persists a Store's schedule to a shared Postgres
// database, for multi-run/shared deployments.
type PostgresStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresStorage connects to Postgres using connString (a standard
// libpq/pgx connection URL) and ensures the schema exists.
func NewPostgresStorage(ctx context.Context, connString string) (*PostgresStorage, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, txerr.Configuration("connecting to postgres storage", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, txerr.Configuration("creating postgres schema", err)
	}
	return &PostgresStorage{pool: pool}, nil
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS tripassign_stops (stop_id INTEGER PRIMARY KEY, name TEXT, lat DOUBLE PRECISION, lon DOUBLE PRECISION);
CREATE TABLE IF NOT EXISTS tripassign_trips (trip_id INTEGER PRIMARY KEY, route_id TEXT, service_id TEXT, capacity INTEGER, has_capacity BOOLEAN);
CREATE TABLE IF NOT EXISTS tripassign_stop_times (trip_id INTEGER, sequence INTEGER, stop_id INTEGER, arrival_min DOUBLE PRECISION, departure_min DOUBLE PRECISION, overcap DOUBLE PRECISION);
`

func (p *PostgresStorage) Close() error {
	p.pool.Close()
	return nil
}

// Persist writes stop, trip and stop_time rows inside one transaction,
// replacing any prior content.
func (p *PostgresStorage) Persist(ctx context.Context, store *Store) error {
	store.mu.RLock()
	defer store.mu.RUnlock()

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return txerr.Supply("beginning postgres persist tx", err)
	}
	defer tx.Rollback(ctx)

	for _, stmt := range []string{"DELETE FROM tripassign_stops", "DELETE FROM tripassign_trips", "DELETE FROM tripassign_stop_times"} {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return txerr.Supply("clearing postgres tables", err)
		}
	}

	for id, st := range store.stops {
		if _, err := tx.Exec(ctx, `INSERT INTO tripassign_stops (stop_id, name, lat, lon) VALUES ($1, $2, $3, $4)`,
			int(id), st.Name, st.Lat, st.Lon); err != nil {
			return txerr.Supply("inserting postgres stop", err)
		}
	}
	for id, t := range store.trips {
		hasCap := false
		cap := 0
		if t.Capacity != nil {
			hasCap = true
			cap = *t.Capacity
		}
		if _, err := tx.Exec(ctx, `INSERT INTO tripassign_trips (trip_id, route_id, service_id, capacity, has_capacity) VALUES ($1, $2, $3, $4, $5)`,
			int(id), t.RouteID, t.ServiceID, cap, hasCap); err != nil {
			return txerr.Supply("inserting postgres trip", err)
		}
	}
	for tripID, sts := range store.tripStopTimes {
		for _, st := range sts {
			if _, err := tx.Exec(ctx, `INSERT INTO tripassign_stop_times (trip_id, sequence, stop_id, arrival_min, departure_min, overcap) VALUES ($1, $2, $3, $4, $5, $6)`,
				int(tripID), st.Sequence, int(st.StopID), st.ArrivalMin, st.DepartureMin, st.Overcap); err != nil {
				return txerr.Supply("inserting postgres stop_time", err)
			}
		}
	}
	return tx.Commit(ctx)
}

// LoadInto reads a previously persisted schedule back into store.
func (p *PostgresStorage) LoadInto(ctx context.Context, store *Store) error {
	var stops []model.Stop
	rows, err := p.pool.Query(ctx, `SELECT stop_id, name, lat, lon FROM tripassign_stops`)
	if err != nil {
		return txerr.Supply("querying postgres stops", err)
	}
	for rows.Next() {
		var id int
		var st model.Stop
		if err := rows.Scan(&id, &st.Name, &st.Lat, &st.Lon); err != nil {
			rows.Close()
			return txerr.Supply("scanning postgres stop", err)
		}
		st.ID = model.StopID(id)
		stops = append(stops, st)
	}
	rows.Close()

	var trips []model.Trip
	rows, err = p.pool.Query(ctx, `SELECT trip_id, route_id, service_id, capacity, has_capacity FROM tripassign_trips`)
	if err != nil {
		return txerr.Supply("querying postgres trips", err)
	}
	for rows.Next() {
		var id, cap int
		var hasCap bool
		var t model.Trip
		if err := rows.Scan(&id, &t.RouteID, &t.ServiceID, &cap, &hasCap); err != nil {
			rows.Close()
			return txerr.Supply("scanning postgres trip", err)
		}
		t.ID = model.TripID(id)
		if hasCap {
			t.Capacity = &cap
		}
		trips = append(trips, t)
	}
	rows.Close()

	var stopTimes []model.StopTime
	rows, err = p.pool.Query(ctx, `SELECT trip_id, sequence, stop_id, arrival_min, departure_min, overcap FROM tripassign_stop_times`)
	if err != nil {
		return txerr.Supply("querying postgres stop_times", err)
	}
	for rows.Next() {
		var tripID, stopID int
		var st model.StopTime
		if err := rows.Scan(&tripID, &st.Sequence, &stopID, &st.ArrivalMin, &st.DepartureMin, &st.Overcap); err != nil {
			rows.Close()
			return txerr.Supply("scanning postgres stop_time", err)
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
