package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/user/harvester/internal/entity"
)

var (
	ErrUnknownSource = errors.New("unknown source")
	ErrRunInProgress = errors.New("a run for this source is already in progress")
)

// RunFunc executes one crawl run for source.
type RunFunc func(ctx context.Context, source string) (*entity.RunReport, error)

// RunTracker starts runs in the background for the ops server and keeps the
// last report of every source. It refuses a second run of a source that is
// still running in this process; the source lock covers other processes.
type RunTracker struct {
	ctx     context.Context
	run     RunFunc
	sources map[string]struct{}
	logger  *zap.Logger

	mu      sync.Mutex
	running map[string]bool
	last    map[string]*entity.RunReport
	wg      sync.WaitGroup
}

func NewRunTracker(ctx context.Context, sources []string, run RunFunc, logger *zap.Logger) *RunTracker {
	set := make(map[string]struct{}, len(sources))
	for _, s := range sources {
		set[s] = struct{}{}
	}
	return &RunTracker{
		ctx:     ctx,
		run:     run,
		sources: set,
		logger:  logger,
		running: make(map[string]bool),
		last:    make(map[string]*entity.RunReport),
	}
}

func (t *RunTracker) Sources() []string {
	out := make([]string, 0, len(t.sources))
	for s := range t.sources {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Start launches a run and returns immediately.
func (t *RunTracker) Start(source string) error {
	if _, ok := t.sources[source]; !ok {
		return ErrUnknownSource
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running[source] {
		return ErrRunInProgress
	}
	t.running[source] = true

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		report, err := t.run(t.ctx, source)
		if err != nil {
			t.logger.Warn("triggered run failed", zap.String("source", source), zap.Error(err))
		}
		t.mu.Lock()
		defer t.mu.Unlock()
		t.running[source] = false
		if report != nil {
			t.last[source] = report
		}
	}()
	return nil
}

// Last returns the most recent report for source and whether a run is active.
func (t *RunTracker) Last(source string) (*entity.RunReport, bool, error) {
	if _, ok := t.sources[source]; !ok {
		return nil, false, ErrUnknownSource
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last[source], t.running[source], nil
}

// Wait blocks until every started run has finished.
func (t *RunTracker) Wait() {
	t.wg.Wait()
}
