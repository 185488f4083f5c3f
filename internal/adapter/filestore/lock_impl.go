package filestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/user/harvester/internal/entity"
	"github.com/user/harvester/internal/repository"
)

const (
	lockFile    = "lock.txt"
	guardSuffix = ".guard"
	guardPoll   = 10 * time.Millisecond
)

// LockRepoImpl keeps the lock marker in <dir>/<source>/lock.txt. The file
// holds the Unix creation time and the owning run id. Every read-check-write
// of the marker runs under an OS lock on lock.txt.guard, so a stale marker
// is replaced by exactly one process.
type LockRepoImpl struct {
	dir string
	now func() time.Time
}

func NewLockRepo(dir string) *LockRepoImpl {
	return &LockRepoImpl{dir: dir, now: time.Now}
}

func (r *LockRepoImpl) path(source string) string {
	return filepath.Join(r.dir, source, lockFile)
}

// guard takes the OS file lock for source. The returned func releases it.
func (r *LockRepoImpl) guard(ctx context.Context, source string) (func(), error) {
	path := r.path(source)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	fl := flock.New(path + guardSuffix)
	ok, err := fl.TryLockContext(ctx, guardPoll)
	if err != nil {
		return nil, fmt.Errorf("take lock guard: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("take lock guard: %w", ctx.Err())
	}
	return func() { _ = fl.Unlock() }, nil
}

func (r *LockRepoImpl) Acquire(ctx context.Context, marker *entity.LockMarker, ttl time.Duration) error {
	unlock, err := r.guard(ctx, marker.Source)
	if err != nil {
		return err
	}
	defer unlock()

	path := r.path(marker.Source)

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			_, werr := fmt.Fprintf(f, "%d\n%s\n", marker.CreatedAt.Unix(), marker.Owner)
			cerr := f.Close()
			if werr != nil || cerr != nil {
				os.Remove(path)
				return fmt.Errorf("write lock file: %w", errors.Join(werr, cerr))
			}
			return nil
		}
		if !errors.Is(err, os.ErrExist) {
			return fmt.Errorf("create lock file: %w", err)
		}

		held, err := r.read(marker.Source)
		if err != nil {
			return err
		}
		if !held.Expired(r.now(), ttl) {
			return fmt.Errorf("%s locked since %s: %w", marker.Source, held.CreatedAt.Format(time.RFC3339), repository.ErrLockHeld)
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove stale lock: %w", err)
		}
	}
	return fmt.Errorf("%s: %w", marker.Source, repository.ErrLockHeld)
}

func (r *LockRepoImpl) Release(ctx context.Context, marker *entity.LockMarker) error {
	unlock, err := r.guard(ctx, marker.Source)
	if err != nil {
		return err
	}
	defer unlock()

	held, err := r.read(marker.Source)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if held.Owner != "" && held.Owner != marker.Owner {
		return fmt.Errorf("lock for %s is owned by run %s", marker.Source, held.Owner)
	}
	if err := os.Remove(r.path(marker.Source)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove lock file: %w", err)
	}
	return nil
}

// Refresh rewrites the marker with the current time so Acquire sees it as fresh.
func (r *LockRepoImpl) Refresh(ctx context.Context, marker *entity.LockMarker, ttl time.Duration) error {
	unlock, err := r.guard(ctx, marker.Source)
	if err != nil {
		return err
	}
	defer unlock()

	held, err := r.read(marker.Source)
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%s: %w", marker.Source, repository.ErrLockLost)
	}
	if err != nil {
		return err
	}
	if held.Owner != marker.Owner {
		return fmt.Errorf("%s now owned by run %s: %w", marker.Source, held.Owner, repository.ErrLockLost)
	}
	data := fmt.Sprintf("%d\n%s\n", r.now().Unix(), marker.Owner)
	if err := writeFileAtomic(r.path(marker.Source), []byte(data)); err != nil {
		return fmt.Errorf("refresh lock file: %w", err)
	}
	return nil
}

func (r *LockRepoImpl) read(source string) (*entity.LockMarker, error) {
	data, err := os.ReadFile(r.path(source))
	if errors.Is(err, os.ErrNotExist) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read lock file: %w", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	m := &entity.LockMarker{Source: source}
	if ts, err := strconv.ParseInt(strings.TrimSpace(lines[0]), 10, 64); err == nil {
		m.CreatedAt = time.Unix(ts, 0)
	} else {
		// An unreadable marker is treated as freshly written.
		m.CreatedAt = r.now()
	}
	if len(lines) > 1 {
		m.Owner = strings.TrimSpace(lines[1])
	}
	return m, nil
}
