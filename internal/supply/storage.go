package supply

import "context"

// Storage is a pluggable persistence backend for a built Store, letting
// a run reload a previously ingested schedule without re-parsing CSV.
type Storage interface {
	// LoadInto ingests the persisted schedule into s.
	LoadInto(ctx context.Context, s *Store) error
	// Persist writes s's current schedule arrays to the backend.
	Persist(ctx context.Context, s *Store) error
	Close() error
}

// ErrNoSchedule is returned by a Storage backend when asked to load a
// schedule that was never persisted.
var ErrNoSchedule = storageErr("no schedule persisted")

type storageErr string

func (e storageErr) Error() string { return string(e) }
