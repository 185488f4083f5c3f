package sites

import (
	"bytes"
	"regexp"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/user/harvester/internal/entity"
	"github.com/user/harvester/internal/repository"
	"github.com/user/harvester/pkg/utils"
)

var (
	wechatCreateTime = regexp.MustCompile(`\bct\s*=\s*"(\d{10})"`)
	wechatCreateAlt  = regexp.MustCompile(`create_time\s*[:=]\s*['"]?(\d{10})`)
)

// WechatAdapter parses mp.weixin.qq.com article pages.
type WechatAdapter struct {
	now func() time.Time
}

func NewWechatAdapter(opts ...AdapterOption) *WechatAdapter {
	o := newAdapterOptions(opts)
	return &WechatAdapter{now: o.now}
}

func (a *WechatAdapter) Name() string { return "wechat" }

func (a *WechatAdapter) Parse(html []byte, pageURL string) (*entity.ParsedPage, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, &repository.ParseError{URL: pageURL, Reason: err.Error()}
	}

	// The publish time is only rendered by script; read it before scripts are dropped.
	var published string
	for _, p := range []*regexp.Regexp{wechatCreateTime, wechatCreateAlt} {
		if m := p.FindSubmatch(html); m != nil {
			published, _ = utils.NormalizeDate(string(m[1]), a.now())
			break
		}
	}
	doc.Find("script, style").Remove()
	if published == "" {
		published, _ = utils.NormalizeDate(doc.Find("#publish_time").Text(), a.now())
	}

	page := &entity.ParsedPage{
		Title:       pickText(doc, []string{"#activity-name", `meta[property="og:title"]@content`}),
		Author:      pickText(doc, []string{"#js_name", `meta[name="author"]@content`}),
		PublishTime: published,
		Content:     pickContent(doc, []string{"#js_content"}),
	}
	if page.Title == "" {
		page.Title = fallbackTitle(doc)
	}
	if media := pickText(doc, []string{`meta[property="og:image"]@content`, "#js_content img@data-src"}); media != "" {
		page.MediaRef = utils.ResolveAgainst(pageURL, media)
	}

	switch {
	case page.Content != "":
		page.ContentType = entity.ContentTypeArticle
	case page.MediaRef != "":
		page.ContentType = entity.ContentTypeImage
	default:
		return nil, &repository.ParseError{URL: pageURL, Reason: "empty article body"}
	}
	return page, nil
}
