package filestore

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/harvester/internal/entity"
	"github.com/user/harvester/internal/repository"
)

func TestLockRepo_Exclusive(t *testing.T) {
	ctx := context.Background()
	repo := NewLockRepo(t.TempDir())
	now := time.Now()

	first := &entity.LockMarker{Source: "wechat", Owner: "run-1", CreatedAt: now}
	second := &entity.LockMarker{Source: "wechat", Owner: "run-2", CreatedAt: now}

	require.NoError(t, repo.Acquire(ctx, first, time.Hour))
	assert.ErrorIs(t, repo.Acquire(ctx, second, time.Hour), repository.ErrLockHeld)

	// Other sources are independent.
	require.NoError(t, repo.Acquire(ctx, &entity.LockMarker{Source: "nankai", Owner: "run-3", CreatedAt: now}, time.Hour))

	assert.Error(t, repo.Release(ctx, second))
	require.NoError(t, repo.Release(ctx, first))
	require.NoError(t, repo.Acquire(ctx, second, time.Hour))
}

func TestLockRepo_StaleMarker(t *testing.T) {
	ctx := context.Background()
	repo := NewLockRepo(t.TempDir())
	now := time.Now()
	repo.now = func() time.Time { return now }

	old := &entity.LockMarker{Source: "wechat", Owner: "crashed", CreatedAt: now.Add(-7 * time.Hour)}
	require.NoError(t, repo.Acquire(ctx, old, 6*time.Hour))

	fresh := &entity.LockMarker{Source: "wechat", Owner: "run-2", CreatedAt: now}
	assert.ErrorIs(t, repo.Acquire(ctx, fresh, 0), repository.ErrLockHeld, "zero ttl never expires")
	require.NoError(t, repo.Acquire(ctx, fresh, 6*time.Hour))
}

func TestLockRepo_Refresh(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	repo := NewLockRepo(dir)
	start := time.Now()
	repo.now = func() time.Time { return start }

	mine := &entity.LockMarker{Source: "wechat", Owner: "run-1", CreatedAt: start}
	require.NoError(t, repo.Acquire(ctx, mine, time.Hour))

	repo.now = func() time.Time { return start.Add(50 * time.Minute) }
	require.NoError(t, repo.Refresh(ctx, mine, time.Hour))

	// Past the original ttl but within the refreshed one.
	other := NewLockRepo(dir)
	other.now = func() time.Time { return start.Add(90 * time.Minute) }
	theirs := &entity.LockMarker{Source: "wechat", Owner: "run-2", CreatedAt: other.now()}
	assert.ErrorIs(t, other.Acquire(ctx, theirs, time.Hour), repository.ErrLockHeld)

	assert.ErrorIs(t, other.Refresh(ctx, theirs, time.Hour), repository.ErrLockLost)
	require.NoError(t, repo.Release(ctx, mine))
	assert.ErrorIs(t, repo.Refresh(ctx, mine, time.Hour), repository.ErrLockLost)
}

func TestLockRepo_ConcurrentStaleTakeover(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	for trial := 0; trial < 50; trial++ {
		dir := t.TempDir()
		crashed := &entity.LockMarker{Source: "wechat", Owner: "crashed", CreatedAt: now.Add(-48 * time.Hour)}
		require.NoError(t, NewLockRepo(dir).Acquire(ctx, crashed, 0))

		var (
			wg       sync.WaitGroup
			acquired atomic.Int32
		)
		start := make(chan struct{})
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				// Separate repos stand in for separate processes.
				repo := NewLockRepo(dir)
				marker := &entity.LockMarker{Source: "wechat", Owner: fmt.Sprintf("run-%d", i), CreatedAt: now}
				<-start
				err := repo.Acquire(ctx, marker, 6*time.Hour)
				if err == nil {
					acquired.Add(1)
					return
				}
				assert.ErrorIs(t, err, repository.ErrLockHeld)
			}()
		}
		close(start)
		wg.Wait()

		require.EqualValues(t, 1, acquired.Load(), "trial %d: stale marker taken over more than once", trial)
	}
}

func TestLockRepo_ReleaseMissing(t *testing.T) {
	repo := NewLockRepo(t.TempDir())
	assert.NoError(t, repo.Release(context.Background(), &entity.LockMarker{Source: "none", Owner: "x"}))
}
