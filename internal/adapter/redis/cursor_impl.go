package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/user/harvester/internal/entity"
)

const cursorKey = "harvester:export_cursor"

// CursorRepoImpl stores the export cursor in a Redis hash.
type CursorRepoImpl struct {
	client *redis.Client
	key    string
}

func NewCursorRepo(client *redis.Client) *CursorRepoImpl {
	return &CursorRepoImpl{client: client, key: cursorKey}
}

func (r *CursorRepoImpl) Load(ctx context.Context) (*entity.ExportCursor, error) {
	vals, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("load cursor: %w", err)
	}
	c := &entity.ExportCursor{}
	if v, ok := vals["offset"]; ok {
		if c.Offset, err = strconv.ParseInt(v, 10, 64); err != nil {
			return nil, fmt.Errorf("cursor offset %q: %w", v, err)
		}
	}
	if v, ok := vals["last_export_time"]; ok && v != "" {
		if c.LastExportTime, err = time.Parse(time.RFC3339, v); err != nil {
			return nil, fmt.Errorf("cursor time %q: %w", v, err)
		}
	}
	return c, nil
}

func (r *CursorRepoImpl) Save(ctx context.Context, c *entity.ExportCursor) error {
	err := r.client.HSet(ctx, r.key,
		"offset", strconv.FormatInt(c.Offset, 10),
		"last_export_time", c.LastExportTime.Format(time.RFC3339),
	).Err()
	if err != nil {
		return fmt.Errorf("save cursor: %w", err)
	}
	return nil
}
