package filestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/user/harvester/internal/entity"
)

const (
	counterFile   = "counter.txt"
	counterHeader = "time,elapsed_s,total,processed,success,error,skipped\n"
)

// CounterRepoImpl appends one CSV line per run to <dir>/<source>/counter.txt.
type CounterRepoImpl struct {
	dir string
}

func NewCounterRepo(dir string) *CounterRepoImpl {
	return &CounterRepoImpl{dir: dir}
}

func (r *CounterRepoImpl) Append(_ context.Context, report *entity.RunReport) error {
	path := filepath.Join(r.dir, report.Source, counterFile)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	_, statErr := os.Stat(path)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open counter file: %w", err)
	}
	defer f.Close()

	if os.IsNotExist(statErr) {
		if _, err := f.WriteString(counterHeader); err != nil {
			return err
		}
	}
	c := report.Counters
	_, err = fmt.Fprintf(f, "%s,%.1f,%d,%d,%d,%d,%d\n",
		report.Finished.Format("2006-01-02 15:04:05"), report.Elapsed().Seconds(),
		c.Total, c.Processed, c.Success, c.Error, c.Skipped)
	return err
}
