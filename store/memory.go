package store

import (
	"context"
	"sync"

	"github.com/yourusername/floodgate/pkg/floodgate"
)

// MemoryStore keeps the snapshot in process memory. Useful for tests and
// hosts that handle persistence elsewhere.
type MemoryStore struct {
	mu   sync.Mutex
	snap *floodgate.ReputationSnapshot
}

var _ SnapshotStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory snapshot store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Save stores a snapshot, replacing any previous one.
func (s *MemoryStore) Save(_ context.Context, snap *floodgate.ReputationSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap
	return nil
}

// Load returns the stored snapshot, or ErrNoSnapshot.
func (s *MemoryStore) Load(_ context.Context) (*floodgate.ReputationSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap == nil {
		return nil, ErrNoSnapshot
	}
	if s.snap.Version != floodgate.SnapshotVersion {
		return nil, ErrVersionMismatch
	}
	return s.snap, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
