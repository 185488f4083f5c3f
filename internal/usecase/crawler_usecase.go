package usecase

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/user/harvester/internal/entity"
	"github.com/user/harvester/internal/repository"
	"github.com/user/harvester/pkg/metrics"
	"github.com/user/harvester/pkg/utils"
)

// OrchestratorConfig holds the per-source run settings.
type OrchestratorConfig struct {
	Source        string
	CookieMaxAge  time.Duration
	LockTTL       time.Duration
	FetchTimeout  time.Duration
	MinDelay      time.Duration
	MaxDelay      time.Duration
	MinBodyBytes  int
	Workers       int
	SaveSnapshots bool
}

// OrchestratorDeps are the collaborators of a run. Sessions is nil for public
// sources; Counters is optional.
type OrchestratorDeps struct {
	Sessions   SessionManager
	Locks      repository.LockRepository
	Enumerator repository.EnumeratorRepository
	Fetcher    repository.FetcherRepository
	Registry   repository.ParserRegistry
	Dedup      DedupStore
	Pipeline   ContentPipeline
	Counters   repository.CounterRepository
}

// Orchestrator drives one crawl run for a source.
type Orchestrator interface {
	// Run always returns a report. The error is non-nil for fatal failures:
	// authentication, a held lock, enumeration or cancellation.
	Run(ctx context.Context) (*entity.RunReport, error)
}

type orchestrator struct {
	cfg    OrchestratorConfig
	deps   OrchestratorDeps
	logger *zap.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewOrchestrator(cfg OrchestratorConfig, deps OrchestratorDeps, logger *zap.Logger) Orchestrator {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &orchestrator{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
		now:    time.Now,
		sleep:  sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (o *orchestrator) Run(ctx context.Context) (*entity.RunReport, error) {
	run := entity.NewRunContext(o.cfg.Source, uuid.NewString(), o.now())
	logger := o.logger.With(zap.String("source", run.Source), zap.String("run_id", run.RunID))
	logger.Info("run started")

	err := o.execute(ctx, run, logger)
	if err != nil {
		run.Transition(entity.StateFailed)
	} else {
		run.Transition(entity.StateDone)
	}

	report := o.report(run, err)
	metrics.RunsTotal.WithLabelValues(run.Source, report.State.String()).Inc()
	if err != nil {
		logger.Error("run failed", zap.Stringer("state", report.State), zap.Error(err))
	}
	logger.Info(report.Summary())
	return report, err
}

func (o *orchestrator) report(run *entity.RunContext, err error) *entity.RunReport {
	r := &entity.RunReport{
		Source:   run.Source,
		RunID:    run.RunID,
		State:    run.State(),
		History:  run.History(),
		Counters: run.Counters(),
		Started:  run.Started,
		Finished: o.now(),
	}
	if err != nil {
		r.Reason = err.Error()
	}
	return r
}

func (o *orchestrator) execute(ctx context.Context, run *entity.RunContext, logger *zap.Logger) (err error) {
	if o.deps.Sessions != nil {
		session, err := o.deps.Sessions.Ensure(ctx, run.Source, o.cfg.CookieMaxAge)
		if err != nil {
			return err
		}
		run.Cookies = session.Cookies
		run.CookieTimestamp = session.SavedAt
	}
	run.Transition(entity.StateAuthenticated)

	marker := &entity.LockMarker{Source: run.Source, Owner: run.RunID, CreatedAt: o.now()}
	if err := o.deps.Locks.Acquire(ctx, marker, o.cfg.LockTTL); err != nil {
		if errors.Is(err, repository.ErrLockHeld) {
			metrics.LockContentionTotal.WithLabelValues(run.Source).Inc()
		}
		return err
	}
	run.Transition(entity.StateLockAcquired)

	defer func() {
		// Release and flush even when ctx is already cancelled.
		detached := context.WithoutCancel(ctx)
		if relErr := o.deps.Locks.Release(detached, marker); relErr != nil {
			logger.Error("failed to release lock", zap.Error(relErr))
		}
		run.Transition(entity.StateLockReleased)
		if o.deps.Counters != nil {
			if cErr := o.deps.Counters.Append(detached, o.report(run, err)); cErr != nil {
				logger.Error("failed to flush run counters", zap.Error(cErr))
			}
		}
	}()

	runCtx, cancelRun := context.WithCancelCause(ctx)
	defer cancelRun(nil)
	stopRefresh := o.keepLock(runCtx, cancelRun, marker, logger)
	defer stopRefresh()

	run.Transition(entity.StateEnumerating)
	todo, err := o.enumerate(runCtx, run, logger)
	if err == nil {
		run.Transition(entity.StateFetching)
		err = o.fetchAll(runCtx, run, todo, logger)
	}
	if cause := context.Cause(runCtx); errors.Is(cause, repository.ErrLockLost) {
		return cause
	}
	return err
}

// keepLock refreshes the marker every third of LockTTL until the returned
// func is called. Losing the marker cancels the run.
func (o *orchestrator) keepLock(ctx context.Context, cancel context.CancelCauseFunc, marker *entity.LockMarker, logger *zap.Logger) func() {
	if o.cfg.LockTTL <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(o.cfg.LockTTL / 3)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			err := o.deps.Locks.Refresh(ctx, marker, o.cfg.LockTTL)
			switch {
			case err == nil:
				logger.Debug("lock refreshed")
			case errors.Is(err, repository.ErrLockLost):
				logger.Error("lock lost, stopping run", zap.Error(err))
				cancel(err)
				return
			default:
				logger.Warn("failed to refresh lock", zap.Error(err))
			}
		}
	}()
	return func() {
		close(done)
		<-stopped
	}
}

// enumerate returns the candidates that still have to be fetched.
func (o *orchestrator) enumerate(ctx context.Context, run *entity.RunContext, logger *zap.Logger) ([]entity.Candidate, error) {
	if err := o.deps.Dedup.Load(ctx, run.Source); err != nil {
		return nil, err
	}

	candidates, err := o.deps.Enumerator.Enumerate(ctx, run.Cookies)
	if err != nil {
		if ctx.Err() != nil || len(candidates) == 0 {
			return nil, fmt.Errorf("failed to enumerate %s: %w", run.Source, err)
		}
		logger.Warn("enumeration incomplete", zap.Int("candidates", len(candidates)), zap.Error(err))
	}

	seen := make(map[string]struct{}, len(candidates))
	todo := make([]entity.Candidate, 0, len(candidates))
	skipped := 0
	for _, c := range candidates {
		if c.Referrer != "" {
			if err := o.deps.Pipeline.PersistEdge(ctx, c.Referrer, c.URL); err != nil {
				logger.Warn("failed to persist link edge", zap.String("url", c.URL), zap.Error(err))
			}
		}
		if _, dup := seen[c.URL]; dup || o.deps.Dedup.Contains(c.URL) {
			skipped++
			continue
		}
		seen[c.URL] = struct{}{}
		todo = append(todo, c)
	}

	run.Count(func(c *entity.RunCounters) {
		c.Total += len(candidates)
		c.Skipped += skipped
	})
	metrics.ItemsTotal.WithLabelValues(run.Source, "skipped").Add(float64(skipped))
	logger.Info("enumeration done",
		zap.Int("candidates", len(candidates)),
		zap.Int("known", skipped),
		zap.Int("new", len(todo)),
		zap.Int("captured_keys", o.deps.Dedup.Len()),
	)
	return todo, nil
}

func (o *orchestrator) fetchAll(ctx context.Context, run *entity.RunContext, todo []entity.Candidate, logger *zap.Logger) error {
	if o.cfg.Workers == 1 {
		for i, c := range todo {
			if i > 0 {
				if err := o.pause(ctx); err != nil {
					return err
				}
			} else if err := ctx.Err(); err != nil {
				return err
			}
			o.process(ctx, run, c, logger)
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Workers)
	for _, c := range todo {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := o.pause(gctx); err != nil {
				return err
			}
			o.process(gctx, run, c, logger)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// pause waits a random politeness delay between MinDelay and MaxDelay.
func (o *orchestrator) pause(ctx context.Context) error {
	d := o.cfg.MinDelay
	if spread := o.cfg.MaxDelay - o.cfg.MinDelay; spread > 0 {
		d += time.Duration(rand.Int63n(int64(spread)))
	}
	return o.sleep(ctx, d)
}

// process handles one candidate. Errors are counted and logged, never returned.
func (o *orchestrator) process(ctx context.Context, run *entity.RunContext, c entity.Candidate, logger *zap.Logger) {
	run.Count(func(rc *entity.RunCounters) { rc.Processed++ })
	log := logger.With(zap.String("url", c.URL))

	res, err := o.fetch(ctx, c.URL)
	if err != nil {
		log.Warn("fetch failed, will retry next run", zap.Error(err))
		o.countError(run)
		return
	}

	parser, err := o.deps.Registry.Resolve(c.URL)
	if err != nil {
		var noAdapter *repository.NoAdapterError
		if errors.As(err, &noAdapter) {
			log.Info("no site adapter, item skipped")
			o.countSkipped(run)
			return
		}
		log.Error("adapter lookup failed", zap.Error(err))
		o.countError(run)
		return
	}

	page, err := parser.Parse(res.Body, c.URL)
	if err != nil {
		log.Error("parse failed", zap.Error(err))
		o.countError(run)
		return
	}

	run.Transition(entity.StatePersisting)
	defer run.Transition(entity.StateFetching)

	item := o.buildItem(run.Source, c, page)
	result, err := o.deps.Pipeline.Persist(ctx, item)
	if err != nil {
		log.Error("persist failed", zap.Error(err))
		o.countError(run)
		return
	}
	if o.cfg.SaveSnapshots {
		if err := o.deps.Pipeline.PersistSnapshot(ctx, run.Source, c.URL, res.Body); err != nil {
			log.Warn("snapshot not saved", zap.Error(err))
		}
	}
	o.deps.Dedup.Add(c.URL)

	if result == PersistSkipped {
		o.countSkipped(run)
		return
	}
	run.Count(func(rc *entity.RunCounters) { rc.Success++ })
	metrics.ItemsTotal.WithLabelValues(run.Source, "success").Inc()
	log.Info("item stored", zap.String("title", item.Title), zap.String("publish_time", item.PublishTime))
}

// fetch applies the per-fetch timeout and the body checks. Every failure is a
// *repository.TransientFetchError.
func (o *orchestrator) fetch(ctx context.Context, url string) (*entity.FetchResult, error) {
	fctx := ctx
	if o.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(ctx, o.cfg.FetchTimeout)
		defer cancel()
	}

	start := o.now()
	res, err := o.deps.Fetcher.Fetch(fctx, url)
	metrics.FetchDuration.WithLabelValues(utils.Hostname(url)).Observe(o.now().Sub(start).Seconds())
	if err != nil {
		if errors.Is(err, repository.ErrTransientFetch) {
			return nil, err
		}
		return nil, &repository.TransientFetchError{URL: url, Err: err}
	}
	if res.StatusCode != http.StatusOK {
		return nil, &repository.TransientFetchError{URL: url, Status: res.StatusCode, Err: errors.New("unexpected status")}
	}
	if len(res.Body) < o.cfg.MinBodyBytes {
		return nil, &repository.TransientFetchError{URL: url, Status: res.StatusCode, Err: fmt.Errorf("body too short: %d bytes", len(res.Body))}
	}
	return res, nil
}

func (o *orchestrator) buildItem(source string, c entity.Candidate, page *entity.ParsedPage) *entity.ContentItem {
	item := &entity.ContentItem{
		SourceID:       c.URL,
		Title:          page.Title,
		PublishTime:    page.PublishTime,
		Author:         page.Author,
		ContentType:    page.ContentType,
		Content:        page.Content,
		MediaReference: page.MediaRef,
		DownloadStatus: entity.DownloadStatusDownloaded,
		Platform:       source,
		ScrapeTime:     o.now(),
	}
	// Listing metadata fills what the page itself did not carry.
	if item.Title == "" {
		item.Title = c.Title
	}
	if item.PublishTime == "" {
		item.PublishTime = c.PublishTime
	}
	if item.ContentType == "" {
		item.ContentType = entity.ContentTypeArticle
	}
	return item
}

func (o *orchestrator) countError(run *entity.RunContext) {
	run.Count(func(rc *entity.RunCounters) { rc.Error++ })
	metrics.ItemsTotal.WithLabelValues(run.Source, "error").Inc()
}

func (o *orchestrator) countSkipped(run *entity.RunContext) {
	run.Count(func(rc *entity.RunCounters) { rc.Skipped++ })
	metrics.ItemsTotal.WithLabelValues(run.Source, "skipped").Inc()
}
