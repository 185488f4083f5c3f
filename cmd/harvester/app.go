package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/user/harvester/internal/adapter/chromedp_crawler"
	"github.com/user/harvester/internal/adapter/colly_spider"
	"github.com/user/harvester/internal/adapter/envfile"
	"github.com/user/harvester/internal/adapter/filestore"
	mongorepo "github.com/user/harvester/internal/adapter/mongo"
	"github.com/user/harvester/internal/adapter/postgres"
	redisrepo "github.com/user/harvester/internal/adapter/redis"
	"github.com/user/harvester/internal/adapter/sqlite"
	"github.com/user/harvester/internal/entity"
	"github.com/user/harvester/internal/repository"
	"github.com/user/harvester/internal/sites"
	"github.com/user/harvester/internal/usecase"
	"github.com/user/harvester/pkg/config"
	"github.com/user/harvester/pkg/proxy"
)

const (
	sourceWechat = "wechat"
	sourceWeb    = "web"
)

var knownSources = []string{sourceWechat, sourceWeb}

// app wires backends chosen by configuration. Network clients are opened on
// first use so commands only connect to what they need.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	agents *proxy.Manager

	rules    []sites.Rule
	registry *sites.Registry

	files    *filestore.ContentRepoImpl
	content  repository.ContentRepository
	links    repository.LinkRepository
	locks    repository.LockRepository
	counters repository.CounterRepository
	pipeline usecase.ContentPipeline

	rdb     *goredis.Client
	pg      *pgxpool.Pool
	staging *sqlite.StagingRepoImpl
	mongo   *mongorepo.ContentRepoImpl

	closers []func()
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	rules, err := sites.DefaultRules()
	if err != nil {
		return nil, err
	}
	registry, err := sites.NewRegistryFromRules(rules)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		agents:   proxy.NewManager(cfg.Proxies, nil),
		rules:    rules,
		registry: registry,
		files:    filestore.NewContentRepo(cfg.DataDir),
		counters: filestore.NewCounterRepo(cfg.DataDir),
	}
	if err := a.initStores(ctx); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) initStores(ctx context.Context) error {
	switch a.cfg.ContentBackend {
	case "file":
		a.content = a.files
		a.links = a.files
	case "sqlite":
		staging, err := a.sqliteStaging(ctx)
		if err != nil {
			return err
		}
		a.content = staging
		a.links = staging
	case "mongo":
		repo, err := a.mongoContent(ctx)
		if err != nil {
			return err
		}
		a.content = repo
		a.links = repo
	default:
		return fmt.Errorf("unknown content backend %q", a.cfg.ContentBackend)
	}

	// The link graph belongs to the central store whenever one is configured.
	if a.cfg.PostgresURL != "" {
		pool, err := a.postgres(ctx)
		if err != nil {
			return err
		}
		a.links = postgres.NewLinkRepo(pool)
	}

	switch a.cfg.LockBackend {
	case "file":
		a.locks = filestore.NewLockRepo(a.cfg.DataDir)
	case "redis":
		rdb, err := a.redis(ctx)
		if err != nil {
			return err
		}
		a.locks = redisrepo.NewLockRepo(rdb)
	default:
		return fmt.Errorf("unknown lock backend %q", a.cfg.LockBackend)
	}

	// Raw pages always go to the file store, next to the per-source data.
	var snapshots repository.SnapshotRepository
	if a.cfg.SaveSnapshots {
		snapshots = a.files
	}
	a.pipeline = usecase.NewContentPipeline(a.content, snapshots, a.links, a.logger)
	return nil
}

func (a *app) redis(ctx context.Context) (*goredis.Client, error) {
	if a.rdb != nil {
		return a.rdb, nil
	}
	if a.cfg.RedisAddr == "" {
		return nil, fmt.Errorf("REDIS_ADDR is required for the redis backend")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     a.cfg.RedisAddr,
		Password: a.cfg.RedisPassword,
		DB:       a.cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	a.rdb = rdb
	a.closers = append(a.closers, func() { _ = rdb.Close() })
	a.logger.Info("redis connection established", zap.String("addr", a.cfg.RedisAddr))
	return rdb, nil
}

func (a *app) postgres(ctx context.Context) (*pgxpool.Pool, error) {
	if a.pg != nil {
		return a.pg, nil
	}
	if a.cfg.PostgresURL == "" {
		return nil, fmt.Errorf("POSTGRES_URL is required for the central store")
	}
	pool, err := pgxpool.New(ctx, a.cfg.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	a.pg = pool
	a.closers = append(a.closers, pool.Close)
	a.logger.Info("postgres connection pool established")
	return pool, nil
}

func (a *app) sqliteStaging(ctx context.Context) (*sqlite.StagingRepoImpl, error) {
	if a.staging != nil {
		return a.staging, nil
	}
	db, err := sqlite.Open(a.cfg.SQLitePath)
	if err != nil {
		return nil, err
	}
	repo := sqlite.NewStagingRepo(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	a.staging = repo
	a.closers = append(a.closers, func() { _ = db.Close() })
	return repo, nil
}

func (a *app) mongoContent(ctx context.Context) (*mongorepo.ContentRepoImpl, error) {
	if a.mongo != nil {
		return a.mongo, nil
	}
	if a.cfg.MongoURI == "" {
		return nil, fmt.Errorf("MONGO_URI is required for the mongo backend")
	}
	client, err := mongorepo.Connect(ctx, a.cfg.MongoURI)
	if err != nil {
		return nil, err
	}
	repo := mongorepo.NewContentRepo(client.Database(a.cfg.MongoDatabase))
	if err := repo.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	a.mongo = repo
	a.closers = append(a.closers, func() { _ = client.Disconnect(context.Background()) })
	return repo, nil
}

// central returns the PostgreSQL store with its schema in place.
func (a *app) central(ctx context.Context) (*postgres.ArticleRepoImpl, error) {
	pool, err := a.postgres(ctx)
	if err != nil {
		return nil, err
	}
	repo := postgres.NewArticleRepo(pool)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return repo, nil
}

func (a *app) sessions() usecase.SessionManager {
	auth := chromedp_crawler.NewLoginAuthenticator(nil, a.cfg.LoginWait, a.cfg.Headless, a.agents.GetUserAgent(), a.logger)
	repo := filestore.NewSessionRepo(filepath.Join(a.cfg.DataDir, "sessions"))
	return usecase.NewSessionManager(repo, auth, a.cfg.MinCookies, a.logger)
}

// orchestrator builds the run for source. The returned cleanup stops any browser it started.
func (a *app) orchestrator(source string) (usecase.Orchestrator, func(), error) {
	cfg := a.cfg
	runCfg := usecase.OrchestratorConfig{
		Source:        source,
		CookieMaxAge:  cfg.CookieMaxAgeFor(source),
		LockTTL:       cfg.LockTTL,
		FetchTimeout:  cfg.FetchTimeout,
		MinDelay:      cfg.MinDelay,
		MaxDelay:      cfg.MaxDelay,
		MinBodyBytes:  cfg.MinBodyBytes,
		Workers:       cfg.CrawlWorkers,
		SaveSnapshots: cfg.SaveSnapshots,
	}
	deps := usecase.OrchestratorDeps{
		Locks:    a.locks,
		Registry: a.registry,
		Dedup:    usecase.NewDedupStore(a.content),
		Pipeline: a.pipeline,
		Counters: a.counters,
	}

	switch source {
	case sourceWechat:
		browser := chromedp_crawler.NewBrowserFetcher(chromedp_crawler.BrowserOptions{
			Headless:       cfg.Headless,
			MaxConcurrency: cfg.CrawlWorkers,
			PageTimeout:    cfg.FetchTimeout,
		}, a.agents, a.logger)
		deps.Sessions = a.sessions()
		deps.Enumerator = chromedp_crawler.NewWechatEnumerator(cfg.WechatAccounts, cfg.MaxArticles,
			cfg.Headless, a.agents.GetUserAgent(), cfg.FetchTimeout, cfg.MinDelay, a.logger)
		deps.Fetcher = browser
		return usecase.NewOrchestrator(runCfg, deps, a.logger), func() { _ = browser.Close() }, nil

	case sourceWeb:
		fetcher, err := colly_spider.NewHTTPFetcher(cfg.FetchTimeout, cfg.Proxies, a.agents, a.logger)
		if err != nil {
			return nil, nil, err
		}
		deps.Enumerator = colly_spider.NewSpiderEnumerator(colly_spider.SpiderOptions{
			Seeds:          sites.Seeds(a.rules),
			AllowedDomains: sites.AllowedDomains(a.rules),
			MaxDepth:       cfg.SpiderMaxDepth,
			MaxCandidates:  cfg.SpiderMaxCandidates,
			Parallelism:    cfg.CrawlWorkers,
			Delay:          cfg.MinDelay,
			RandomDelay:    cfg.MaxDelay - cfg.MinDelay,
			RequestTimeout: cfg.FetchTimeout,
		}, a.agents, a.logger)
		deps.Fetcher = fetcher
		return usecase.NewOrchestrator(runCfg, deps, a.logger), func() {}, nil
	}
	return nil, nil, fmt.Errorf("%w: %s", usecase.ErrUnknownSource, source)
}

// run executes one crawl run and logs its summary.
func (a *app) run(ctx context.Context, source string) (*entity.RunReport, error) {
	orch, cleanup, err := a.orchestrator(source)
	if err != nil {
		return nil, err
	}
	defer cleanup()
	return orch.Run(ctx)
}

func (a *app) exporter(ctx context.Context) (usecase.Exporter, error) {
	var source repository.ExportSource
	switch a.cfg.ExportSource {
	case config.ExportSQLite:
		staging, err := a.sqliteStaging(ctx)
		if err != nil {
			return nil, err
		}
		source = staging
	case config.ExportMongo:
		repo, err := a.mongoContent(ctx)
		if err != nil {
			return nil, err
		}
		source = repo
	case config.ExportDataset:
		source = filestore.NewDatasetRepo(a.cfg.DatasetPath)
	default:
		return nil, fmt.Errorf("unknown export source %q", a.cfg.ExportSource)
	}

	var cursors repository.CursorRepository
	switch a.cfg.CursorBackend {
	case "env":
		cursors = envfile.NewCursorRepo(a.cfg.CursorFile)
	case "redis":
		rdb, err := a.redis(ctx)
		if err != nil {
			return nil, err
		}
		cursors = redisrepo.NewCursorRepo(rdb)
	default:
		return nil, fmt.Errorf("unknown cursor backend %q", a.cfg.CursorBackend)
	}

	central, err := a.central(ctx)
	if err != nil {
		return nil, err
	}
	return usecase.NewExporter(source, central, cursors, a.logger), nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
