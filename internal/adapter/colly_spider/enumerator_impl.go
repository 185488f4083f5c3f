package colly_spider

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/user/harvester/internal/entity"
	"github.com/user/harvester/pkg/proxy"
)

// SpiderOptions configures a breadth-first crawl of the configured seeds.
type SpiderOptions struct {
	Seeds          []string
	AllowedDomains []string
	MaxDepth       int
	MaxCandidates  int
	Parallelism    int
	Delay          time.Duration
	RandomDelay    time.Duration
	RequestTimeout time.Duration
}

// SpiderEnumerator walks category pages starting at the seeds and reports
// every article link it finds, together with the page that linked to it.
type SpiderEnumerator struct {
	opts   SpiderOptions
	agents *proxy.Manager
	logger *zap.Logger
}

func NewSpiderEnumerator(opts SpiderOptions, agents *proxy.Manager, logger *zap.Logger) *SpiderEnumerator {
	if opts.Parallelism < 1 {
		opts.Parallelism = 1
	}
	if agents == nil {
		agents = proxy.NewManager(nil, nil)
	}
	return &SpiderEnumerator{opts: opts, agents: agents, logger: logger}
}

func (s *SpiderEnumerator) newCollector(ctx context.Context) (*colly.Collector, error) {
	opts := []colly.CollectorOption{
		colly.StdlibContext(ctx),
		colly.Async(true),
		colly.IgnoreRobotsTxt(),
	}
	if s.opts.MaxDepth > 0 {
		opts = append(opts, colly.MaxDepth(s.opts.MaxDepth))
	}
	// Only set allowed domains if they are configured
	if len(s.opts.AllowedDomains) > 0 {
		opts = append(opts, colly.AllowedDomains(s.opts.AllowedDomains...))
	}
	c := colly.NewCollector(opts...)
	if s.opts.RequestTimeout > 0 {
		c.SetRequestTimeout(s.opts.RequestTimeout)
	}
	err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: s.opts.Parallelism,
		Delay:       s.opts.Delay,
		RandomDelay: s.opts.RandomDelay,
	})
	return c, err
}

// Enumerate ignores cookies; the university sites are public.
func (s *SpiderEnumerator) Enumerate(ctx context.Context, _ entity.Cookies) ([]entity.Candidate, error) {
	c, err := s.newCollector(ctx)
	if err != nil {
		return nil, err
	}

	var (
		mu         sync.Mutex
		seen       = make(map[string]struct{})
		candidates []entity.Candidate
	)
	full := func() bool {
		return s.opts.MaxCandidates > 0 && len(candidates) >= s.opts.MaxCandidates
	}

	c.OnRequest(func(r *colly.Request) {
		mu.Lock()
		stop := full()
		mu.Unlock()
		if stop || ctx.Err() != nil {
			r.Abort()
			return
		}
		r.Headers.Set("User-Agent", s.agents.GetUserAgent())
	})

	c.OnHTML("a[href]", func(e *colly.HTMLElement) {
		href := e.Attr("href")
		if ShouldSkipLink(href) {
			return
		}
		link := e.Request.AbsoluteURL(href)
		if link == "" {
			return
		}
		if !IsArticleURL(link) {
			// Visit errors are expected for revisits, depth and domain limits.
			_ = e.Request.Visit(link)
			return
		}

		mu.Lock()
		defer mu.Unlock()
		if _, ok := seen[link]; ok || full() {
			return
		}
		seen[link] = struct{}{}
		candidates = append(candidates, entity.Candidate{
			URL:      link,
			Title:    strings.Join(strings.Fields(e.Text), " "),
			Referrer: e.Request.URL.String(),
		})
	})

	c.OnError(func(r *colly.Response, err error) {
		s.logger.Debug("spider request failed", zap.String("url", r.Request.URL.String()), zap.Int("status", r.StatusCode), zap.Error(err))
	})

	for _, seed := range s.opts.Seeds {
		if err := c.Visit(seed); err != nil {
			s.logger.Warn("seed rejected", zap.String("seed", seed), zap.Error(err))
		}
	}
	c.Wait()

	s.logger.Info("spider finished", zap.Int("seeds", len(s.opts.Seeds)), zap.Int("candidates", len(candidates)))
	if err := ctx.Err(); err != nil {
		return candidates, err
	}
	return candidates, nil
}
