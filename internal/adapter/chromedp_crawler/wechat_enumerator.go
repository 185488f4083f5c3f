package chromedp_crawler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/user/harvester/internal/entity"
	"github.com/user/harvester/internal/repository"
	"github.com/user/harvester/pkg/utils"
)

const (
	wechatHome     = "https://mp.weixin.qq.com/"
	wechatPageSize = 5

	// base_resp.ret values returned by the MP backend.
	wechatRetOK          = 0
	wechatRetInvalidSess = 200003
	wechatRetFreqControl = 200013
)

type wechatBaseResp struct {
	Ret    int    `json:"ret"`
	ErrMsg string `json:"err_msg"`
}

type wechatAccount struct {
	FakeID   string `json:"fakeid"`
	Nickname string `json:"nickname"`
}

type searchBizResponse struct {
	BaseResp wechatBaseResp  `json:"base_resp"`
	List     []wechatAccount `json:"list"`
}

type wechatMessage struct {
	Title      string `json:"title"`
	Link       string `json:"link"`
	UpdateTime int64  `json:"update_time"`
	CreateTime int64  `json:"create_time"`
}

type appMsgResponse struct {
	BaseResp   wechatBaseResp  `json:"base_resp"`
	AppMsgList []wechatMessage `json:"app_msg_list"`
	AppMsgCnt  int             `json:"app_msg_cnt"`
}

// WechatEnumerator lists recent articles of the configured official accounts
// through the search endpoints of the MP editor's link dialog.
type WechatEnumerator struct {
	accounts    []string
	maxArticles int
	headless    bool
	userAgent   string
	timeout     time.Duration
	pageDelay   time.Duration
	logger      *zap.Logger
}

func NewWechatEnumerator(accounts []string, maxArticles int, headless bool, userAgent string, timeout, pageDelay time.Duration, logger *zap.Logger) *WechatEnumerator {
	return &WechatEnumerator{
		accounts:    accounts,
		maxArticles: maxArticles,
		headless:    headless,
		userAgent:   userAgent,
		timeout:     timeout,
		pageDelay:   pageDelay,
		logger:      logger,
	}
}

// Enumerate returns at most maxArticles candidates per account. Accounts that
// cannot be found are logged and skipped.
func (e *WechatEnumerator) Enumerate(ctx context.Context, cookies entity.Cookies) ([]entity.Candidate, error) {
	taskCtx, cancel := newBrowser(ctx, e.headless, e.userAgent)
	defer cancel()

	var location string
	err := chromedp.Run(taskCtx,
		setCookies(cookies, "mp.weixin.qq.com"),
		chromedp.Navigate(wechatHome),
		chromedp.Location(&location),
	)
	if err != nil {
		return nil, fmt.Errorf("open mp home: %w", err)
	}
	token := extractToken(location)
	if token == "" {
		return nil, fmt.Errorf("%w: no token in %s, session expired", repository.ErrAuthentication, location)
	}

	var candidates []entity.Candidate
	for _, account := range e.accounts {
		found, err := e.enumerateAccount(taskCtx, token, account)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, repository.ErrAuthentication) {
				return candidates, err
			}
			e.logger.Warn("account enumeration failed", zap.String("account", account), zap.Error(err))
			continue
		}
		e.logger.Info("account enumerated", zap.String("account", account), zap.Int("articles", len(found)))
		candidates = append(candidates, found...)
	}
	return candidates, nil
}

func (e *WechatEnumerator) enumerateAccount(ctx context.Context, token, account string) ([]entity.Candidate, error) {
	raw, err := e.get(ctx, searchBizURL(token, account))
	if err != nil {
		return nil, err
	}
	fakeID, err := parseSearchBiz(raw, account)
	if err != nil {
		return nil, err
	}

	var out []entity.Candidate
	for begin := 0; len(out) < e.maxArticles; begin += wechatPageSize {
		if begin > 0 {
			if err := e.pause(ctx); err != nil {
				return out, err
			}
		}
		raw, err := e.get(ctx, appMsgURL(token, fakeID, begin))
		if err != nil {
			return out, err
		}
		page, total, err := parseAppMsgList(raw)
		if err != nil {
			return out, err
		}
		out = append(out, page...)
		if len(page) == 0 || begin+wechatPageSize >= total {
			break
		}
	}
	if len(out) > e.maxArticles {
		out = out[:e.maxArticles]
	}
	return out, nil
}

// get runs fetch() inside the logged-in page so the request carries its cookies.
func (e *WechatEnumerator) get(ctx context.Context, endpoint string) ([]byte, error) {
	reqCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	var body string
	script := fmt.Sprintf(`fetch(%q, {credentials: "include"}).then(r => r.text())`, endpoint)
	err := chromedp.Run(reqCtx, chromedp.Evaluate(script, &body, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	}))
	if err != nil {
		return nil, &repository.TransientFetchError{URL: endpoint, Err: err}
	}
	return []byte(body), nil
}

func (e *WechatEnumerator) pause(ctx context.Context) error {
	if e.pageDelay <= 0 {
		return nil
	}
	t := time.NewTimer(e.pageDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func extractToken(location string) string {
	u, err := url.Parse(location)
	if err != nil {
		return ""
	}
	return u.Query().Get("token")
}

func searchBizURL(token, account string) string {
	q := url.Values{}
	q.Set("action", "search_biz")
	q.Set("begin", "0")
	q.Set("count", strconv.Itoa(wechatPageSize))
	q.Set("query", account)
	q.Set("token", token)
	q.Set("lang", "zh_CN")
	q.Set("f", "json")
	q.Set("ajax", "1")
	return wechatHome + "cgi-bin/searchbiz?" + q.Encode()
}

func appMsgURL(token, fakeID string, begin int) string {
	q := url.Values{}
	q.Set("action", "list_ex")
	q.Set("begin", strconv.Itoa(begin))
	q.Set("count", strconv.Itoa(wechatPageSize))
	q.Set("fakeid", fakeID)
	q.Set("type", "9")
	q.Set("query", "")
	q.Set("token", token)
	q.Set("lang", "zh_CN")
	q.Set("f", "json")
	q.Set("ajax", "1")
	return wechatHome + "cgi-bin/appmsg?" + q.Encode()
}

func checkBaseResp(r wechatBaseResp) error {
	switch r.Ret {
	case wechatRetOK:
		return nil
	case wechatRetInvalidSess:
		return fmt.Errorf("%w: %s", repository.ErrAuthentication, r.ErrMsg)
	case wechatRetFreqControl:
		return fmt.Errorf("rate limited by mp backend: %s", r.ErrMsg)
	default:
		return fmt.Errorf("mp backend error %d: %s", r.Ret, r.ErrMsg)
	}
}

// parseSearchBiz returns the fakeid of the account whose nickname equals
// account, or the first result when none matches exactly.
func parseSearchBiz(raw []byte, account string) (string, error) {
	var resp searchBizResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("decode searchbiz: %w", err)
	}
	if err := checkBaseResp(resp.BaseResp); err != nil {
		return "", err
	}
	if len(resp.List) == 0 {
		return "", fmt.Errorf("account %q: %w", account, repository.ErrNotFound)
	}
	for _, a := range resp.List {
		if a.Nickname == account {
			return a.FakeID, nil
		}
	}
	return resp.List[0].FakeID, nil
}

// parseAppMsgList converts one page of the article list into candidates and
// returns the total number of articles reported by the backend.
func parseAppMsgList(raw []byte) ([]entity.Candidate, int, error) {
	var resp appMsgResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, 0, fmt.Errorf("decode appmsg: %w", err)
	}
	if err := checkBaseResp(resp.BaseResp); err != nil {
		return nil, 0, err
	}
	out := make([]entity.Candidate, 0, len(resp.AppMsgList))
	for _, m := range resp.AppMsgList {
		if m.Link == "" {
			continue
		}
		ts := m.UpdateTime
		if ts == 0 {
			ts = m.CreateTime
		}
		c := entity.Candidate{URL: m.Link, Title: m.Title}
		if ts > 0 {
			c.PublishTime = time.Unix(ts, 0).Format(utils.DateTimeLayout)
		}
		out = append(out, c)
	}
	return out, resp.AppMsgCnt, nil
}
