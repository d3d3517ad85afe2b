// Package snapshot holds the most recently published metric snapshot.
// The scheduler is the only writer; HTTP handlers read concurrently without
// blocking it.
package snapshot

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/vitalis-app/exporter/internal/models"
)

// Store holds exactly one current Snapshot, or none before the first
// successful collection cycle.
type Store struct {
	current     atomic.Pointer[models.Snapshot]
	placeholder *models.Snapshot

	// writeMu serializes writers; readers never take it.
	writeMu sync.Mutex
}

// NewStore creates an empty store. descs are the declared families rendered
// as header-only output until the first snapshot is published.
func NewStore(descs []models.Desc) *Store {
	return &Store{
		placeholder: &models.Snapshot{Set: models.EmptySet(descs)},
	}
}

// Read returns the current snapshot and true, or a header-only placeholder
// and false when nothing has been published yet. The returned snapshot must
// be treated as read-only.
func (s *Store) Read() (*models.Snapshot, bool) {
	if snap := s.current.Load(); snap != nil {
		return snap, true
	}
	return s.placeholder, false
}

// Ready reports whether at least one snapshot has been published.
func (s *Store) Ready() bool {
	return s.current.Load() != nil
}

// Replace atomically installs a snapshot built from set and captured at ts.
// Sequence numbers strictly increase, and a timestamp that is not after the
// previous one is moved 1ns past it. The installed snapshot is returned.
func (s *Store) Replace(set *models.MetricSet, ts time.Time) *models.Snapshot {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	next := &models.Snapshot{Set: set, Timestamp: ts, Sequence: 1}
	if prev := s.current.Load(); prev != nil {
		next.Sequence = prev.Sequence + 1
		if !ts.After(prev.Timestamp) {
			next.Timestamp = prev.Timestamp.Add(time.Nanosecond)
		}
	}
	s.current.Store(next)
	return next
}
