package chromedp_crawler

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/user/harvester/internal/entity"
)

// LoginTarget describes a scripted login page. ReadyExpr is a JavaScript
// expression that becomes truthy once the operator has signed in.
type LoginTarget struct {
	URL       string
	ReadyExpr string
}

// DefaultLoginTargets holds the sources that need an authenticated session.
var DefaultLoginTargets = map[string]LoginTarget{
	"wechat": {
		URL:       wechatHome,
		ReadyExpr: `location.href.indexOf("token=") !== -1`,
	},
}

type LoginAuthenticator struct {
	targets   map[string]LoginTarget
	wait      time.Duration
	headless  bool
	userAgent string
	logger    *zap.Logger
}

// NewLoginAuthenticator opens a visible browser unless headless is set;
// QR-code logins need an operator in front of the window.
func NewLoginAuthenticator(targets map[string]LoginTarget, wait time.Duration, headless bool, userAgent string, logger *zap.Logger) *LoginAuthenticator {
	if targets == nil {
		targets = DefaultLoginTargets
	}
	return &LoginAuthenticator{
		targets:   targets,
		wait:      wait,
		headless:  headless,
		userAgent: userAgent,
		logger:    logger,
	}
}

// Login waits up to the configured duration for the login to complete and returns the browser cookies.
func (a *LoginAuthenticator) Login(ctx context.Context, source string) (entity.Cookies, error) {
	target, ok := a.targets[source]
	if !ok {
		return nil, fmt.Errorf("no login page configured for source %q", source)
	}

	taskCtx, cancel := newBrowser(ctx, a.headless, a.userAgent)
	defer cancel()
	taskCtx, cancelWait := context.WithTimeout(taskCtx, a.wait)
	defer cancelWait()

	a.logger.Info("waiting for login", zap.String("source", source), zap.String("url", target.URL), zap.Duration("wait", a.wait))

	var ready bool
	var raw []*network.Cookie
	err := chromedp.Run(taskCtx,
		network.Enable(),
		chromedp.Navigate(target.URL),
		chromedp.Poll(target.ReadyExpr, &ready, chromedp.WithPollingInterval(time.Second)),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			raw, err = network.GetCookies().Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("login %s: %w", source, err)
	}

	cookies := cookieMap(raw)
	a.logger.Info("login completed", zap.String("source", source), zap.Int("cookies", len(cookies)))
	return cookies, nil
}

func cookieMap(raw []*network.Cookie) entity.Cookies {
	cookies := make(entity.Cookies, len(raw))
	for _, c := range raw {
		if c == nil || c.Name == "" {
			continue
		}
		cookies[c.Name] = c.Value
	}
	return cookies
}

// setCookies installs cookies for domain before the first navigation.
func setCookies(cookies entity.Cookies, domain string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		for name, value := range cookies {
			if err := network.SetCookie(name, value).WithDomain(domain).WithPath("/").Do(ctx); err != nil {
				return fmt.Errorf("set cookie %s: %w", name, err)
			}
		}
		return nil
	})
}
