// Package state persists the sync checkpoint: the instant up to which the
// search index is known to be current.
package state

import (
	"context"
	"time"
)

// DefaultCheckpoint is the checkpoint assumed when none has been saved yet.
// It predates every Panopto site, so a fresh connector performs a full sync.
var DefaultCheckpoint = time.Date(2008, time.January, 1, 0, 0, 0, 0, time.UTC)

// Store loads and saves the last-update-time checkpoint.
type Store interface {
	// Load returns the saved checkpoint, or DefaultCheckpoint when the
	// store holds none.
	Load(ctx context.Context) (time.Time, error)

	// Save records a new checkpoint.
	Save(ctx context.Context, checkpoint time.Time) error
}
