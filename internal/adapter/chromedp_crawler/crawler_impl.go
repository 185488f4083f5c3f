package chromedp_crawler

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/user/harvester/internal/entity"
	"github.com/user/harvester/internal/repository"
	"github.com/user/harvester/pkg/proxy"
)

// BrowserOptions configures the allocators backing a BrowserFetcher.
type BrowserOptions struct {
	Headless       bool
	MaxConcurrency int
	PageTimeout    time.Duration
}

type allocator struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// BrowserFetcher renders pages in headless Chrome. It is used for sources whose
// article bodies are assembled by scripts.
type BrowserFetcher struct {
	allocators chan allocator
	timeout    time.Duration
	logger     *zap.Logger
}

func allocatorOptions(headless bool, userAgent, proxyURL string) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(userAgent),
	)
	if proxyURL != "" {
		opts = append(opts, chromedp.ProxyServer(proxyURL))
	}
	return opts
}

// NewBrowserFetcher creates one allocator per concurrent fetch. Call Close to stop them.
func NewBrowserFetcher(opts BrowserOptions, pm *proxy.Manager, logger *zap.Logger) *BrowserFetcher {
	if opts.MaxConcurrency < 1 {
		opts.MaxConcurrency = 1
	}
	if pm == nil {
		pm = proxy.NewManager(nil, nil)
	}
	f := &BrowserFetcher{
		allocators: make(chan allocator, opts.MaxConcurrency),
		timeout:    opts.PageTimeout,
		logger:     logger,
	}
	for i := 0; i < opts.MaxConcurrency; i++ {
		ctx, cancel := chromedp.NewExecAllocator(context.Background(),
			allocatorOptions(opts.Headless, pm.GetUserAgent(), pm.GetProxy())...)
		f.allocators <- allocator{ctx: ctx, cancel: cancel}
	}
	return f
}

// Fetch navigates to url and returns the rendered document.
func (f *BrowserFetcher) Fetch(ctx context.Context, url string) (*entity.FetchResult, error) {
	var alloc allocator
	select {
	case alloc = <-f.allocators:
	case <-ctx.Done():
		return nil, &repository.TransientFetchError{URL: url, Err: ctx.Err()}
	}
	defer func() { f.allocators <- alloc }()

	taskCtx, cancel := chromedp.NewContext(alloc.ctx)
	defer cancel()
	if f.timeout > 0 {
		taskCtx, cancel = context.WithTimeout(taskCtx, f.timeout)
		defer cancel()
	}
	// Propagate cancellation of the caller into the browser tab.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var status atomic.Int64
	chromedp.ListenTarget(taskCtx, func(ev interface{}) {
		if resp, ok := ev.(*network.EventResponseReceived); ok && resp.Type == network.ResourceTypeDocument {
			status.CompareAndSwap(0, resp.Response.Status)
		}
	})

	var html string
	err := chromedp.Run(taskCtx,
		network.Enable(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		f.logger.Warn("browser fetch failed", zap.String("url", url), zap.Error(err))
		return nil, &repository.TransientFetchError{URL: url, Err: err}
	}

	code := int(status.Load())
	if code == 0 {
		// Pages served from cache emit no document response.
		code = 200
	}
	f.logger.Debug("browser fetch done", zap.String("url", url), zap.Int("status", code), zap.Int("bytes", len(html)))
	return &entity.FetchResult{URL: url, StatusCode: code, Body: []byte(html)}, nil
}

// Close shuts down every browser started by the fetcher.
func (f *BrowserFetcher) Close() error {
	for {
		select {
		case alloc := <-f.allocators:
			alloc.cancel()
		default:
			return nil
		}
	}
}

func newBrowser(parent context.Context, headless bool, userAgent string) (context.Context, context.CancelFunc) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, allocatorOptions(headless, userAgent, "")...)
	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	return taskCtx, func() {
		taskCancel()
		allocCancel()
	}
}
