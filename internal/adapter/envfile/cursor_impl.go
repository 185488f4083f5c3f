package envfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"

	"github.com/user/harvester/internal/entity"
)

const (
	offsetKey   = "EXPORT_OFFSET"
	lastTimeKey = "EXPORT_LAST_TIME"
)

// CursorRepoImpl keeps the export cursor in a dotenv file. Other keys in the
// file are preserved on save.
type CursorRepoImpl struct {
	path string
	mu   sync.Mutex
}

func NewCursorRepo(path string) *CursorRepoImpl {
	return &CursorRepoImpl{path: path}
}

func (r *CursorRepoImpl) Load(_ context.Context) (*entity.ExportCursor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	vals, err := r.read()
	if err != nil {
		return nil, err
	}
	c := &entity.ExportCursor{}
	if v := vals[offsetKey]; v != "" {
		if c.Offset, err = strconv.ParseInt(v, 10, 64); err != nil {
			return nil, fmt.Errorf("%s=%q in %s: %w", offsetKey, v, r.path, err)
		}
	}
	if v := vals[lastTimeKey]; v != "" {
		if c.LastExportTime, err = time.Parse(time.RFC3339, v); err != nil {
			return nil, fmt.Errorf("%s=%q in %s: %w", lastTimeKey, v, r.path, err)
		}
	}
	return c, nil
}

func (r *CursorRepoImpl) Save(_ context.Context, c *entity.ExportCursor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	vals, err := r.read()
	if err != nil {
		return err
	}
	vals[offsetKey] = strconv.FormatInt(c.Offset, 10)
	vals[lastTimeKey] = c.LastExportTime.Format(time.RFC3339)

	if dir := filepath.Dir(r.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := r.path + ".tmp"
	if err := godotenv.Write(vals, tmp); err != nil {
		return fmt.Errorf("write cursor file: %w", err)
	}
	return os.Rename(tmp, r.path)
}

func (r *CursorRepoImpl) read() (map[string]string, error) {
	vals, err := godotenv.Read(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cursor file %s: %w", r.path, err)
	}
	return vals, nil
}
