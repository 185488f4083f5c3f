package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/user/harvester/internal/entity"
	"github.com/user/harvester/internal/repository"
)

const lockKeyPrefix = "harvester:lock:"

// releaseScript deletes the lock only when it still carries the caller's owner id.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// refreshScript extends the lock only when it still carries the caller's owner id.
var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

// LockRepoImpl keeps lock markers in Redis. SET NX makes acquisition atomic
// across hosts, and the key TTL expires markers left by crashed runs.
type LockRepoImpl struct {
	client *redis.Client
}

func NewLockRepo(client *redis.Client) *LockRepoImpl {
	return &LockRepoImpl{client: client}
}

func (r *LockRepoImpl) generateKey(source string) string {
	return lockKeyPrefix + source
}

func (r *LockRepoImpl) Acquire(ctx context.Context, marker *entity.LockMarker, ttl time.Duration) error {
	// A zero expiration in SET NX keeps the key forever.
	ok, err := r.client.SetNX(ctx, r.generateKey(marker.Source), marker.Owner, ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire lock %s: %w", marker.Source, err)
	}
	if !ok {
		owner, _ := r.client.Get(ctx, r.generateKey(marker.Source)).Result()
		return fmt.Errorf("%s held by run %s: %w", marker.Source, owner, repository.ErrLockHeld)
	}
	return nil
}

func (r *LockRepoImpl) Release(ctx context.Context, marker *entity.LockMarker) error {
	if err := releaseScript.Run(ctx, r.client, []string{r.generateKey(marker.Source)}, marker.Owner).Err(); err != nil {
		return fmt.Errorf("release lock %s: %w", marker.Source, err)
	}
	return nil
}

func (r *LockRepoImpl) Refresh(ctx context.Context, marker *entity.LockMarker, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	n, err := refreshScript.Run(ctx, r.client, []string{r.generateKey(marker.Source)}, marker.Owner, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("refresh lock %s: %w", marker.Source, err)
	}
	if n == 0 {
		return fmt.Errorf("%s for run %s: %w", marker.Source, marker.Owner, repository.ErrLockLost)
	}
	return nil
}
