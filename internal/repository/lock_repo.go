package repository

import (
	"context"
	"time"

	"github.com/user/harvester/internal/entity"
)

// LockRepository guards a source against concurrent runs.
type LockRepository interface {
	// Acquire writes the marker. It returns ErrLockHeld when an unexpired marker exists.
	// A zero ttl means markers never expire.
	Acquire(ctx context.Context, marker *entity.LockMarker, ttl time.Duration) error
	// Release removes the marker if it is still owned by marker.Owner.
	Release(ctx context.Context, marker *entity.LockMarker) error
	// Refresh restarts the marker's ttl. It returns ErrLockLost when the
	// marker is gone or owned by another run.
	Refresh(ctx context.Context, marker *entity.LockMarker, ttl time.Duration) error
}
