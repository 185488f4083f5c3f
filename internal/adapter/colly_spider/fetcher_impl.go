package colly_spider

import (
	"context"
	"fmt"
	"time"

	"github.com/gocolly/colly/v2"
	collyproxy "github.com/gocolly/colly/v2/proxy"
	"go.uber.org/zap"

	"github.com/user/harvester/internal/entity"
	"github.com/user/harvester/internal/repository"
	"github.com/user/harvester/pkg/proxy"
	"github.com/user/harvester/pkg/utils"
)

// HTTPFetcher downloads static pages with colly. Politeness delays are applied
// by the orchestrator, so the collector itself runs without a limit rule.
type HTTPFetcher struct {
	base   *colly.Collector
	agents *proxy.Manager
	logger *zap.Logger
}

func NewHTTPFetcher(timeout time.Duration, proxies []string, agents *proxy.Manager, logger *zap.Logger) (*HTTPFetcher, error) {
	c := colly.NewCollector(
		colly.ParseHTTPErrorResponse(),
		colly.IgnoreRobotsTxt(),
		colly.AllowURLRevisit(),
	)
	if timeout > 0 {
		c.SetRequestTimeout(timeout)
	}
	if len(proxies) > 0 {
		rp, err := collyproxy.RoundRobinProxySwitcher(proxies...)
		if err != nil {
			return nil, fmt.Errorf("failed to create proxy switcher: %w", err)
		}
		c.SetProxyFunc(rp)
	}
	if agents == nil {
		agents = proxy.NewManager(nil, nil)
	}
	return &HTTPFetcher{base: c, agents: agents, logger: logger}, nil
}

// Fetch returns the page with its status code. Transport failures and
// cancellation become *repository.TransientFetchError.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*entity.FetchResult, error) {
	c := f.base.Clone()

	var result *entity.FetchResult
	var fetchErr error

	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
			return
		}
		r.Headers.Set("User-Agent", f.agents.GetUserAgent())
	})
	c.OnResponse(func(r *colly.Response) {
		result = &entity.FetchResult{URL: r.Request.URL.String(), StatusCode: r.StatusCode, Body: r.Body}
	})
	c.OnError(func(r *colly.Response, err error) {
		status := 0
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = &repository.TransientFetchError{URL: url, Status: status, Err: err}
	})

	if err := c.Visit(url); err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return nil, &repository.TransientFetchError{URL: url, Err: err}
	}
	if fetchErr != nil {
		f.logger.Debug("fetch failed", zap.String("url", url), zap.Error(fetchErr))
		return nil, fetchErr
	}
	if result == nil {
		err := ctx.Err()
		if err == nil {
			err = fmt.Errorf("no response from %s", utils.Hostname(url))
		}
		return nil, &repository.TransientFetchError{URL: url, Err: err}
	}
	return result, nil
}
