// Package store provides persistence backends for reputation snapshots, so
// host applications can carry bans and trust lists across restarts.
package store

import (
	"context"
	"errors"

	"github.com/yourusername/floodgate/pkg/floodgate"
)

// ErrNoSnapshot is returned by Load when no snapshot has been saved.
var ErrNoSnapshot = errors.New("no snapshot stored")

// ErrVersionMismatch is returned when a stored snapshot uses an
// incompatible schema version.
var ErrVersionMismatch = errors.New("snapshot version mismatch")

// SnapshotStore persists reputation snapshots.
type SnapshotStore interface {
	// Save stores a snapshot, replacing any previous one.
	Save(ctx context.Context, snap *floodgate.ReputationSnapshot) error

	// Load returns the most recently saved snapshot, or ErrNoSnapshot.
	Load(ctx context.Context) (*floodgate.ReputationSnapshot, error)

	// Close releases any backing resources.
	Close() error
}
