package sites

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/harvester/internal/entity"
	"github.com/user/harvester/internal/repository"
)

var chemRule = Rule{
	Name:     "chem",
	Patterns: []string{"chem.nankai.edu.cn"},
	Title:    []string{"div.page-news-title", "h1.arti_title"},
	Time:     []string{"div.page-news-souse", "span.arti_update"},
	Author:   []string{"span.arti_publisher"},
	Content:  []string{"div.wp_articlecontent"},
	Media:    []string{"img[data-layer=photo]@src"},
	Document: []string{"div.wp_pdf_player@pdfsrc"},
}

const chemPage = `<html><head><title>Site title</title><script>var x = 1;</script></head><body>
<div class="page-news-title">  化学学院举办学术报告会 </div>
<div class="page-news-souse">发布时间：2024-01-05  来源：化学学院</div>
<span class="arti_publisher">Admin</span>
<div class="wp_articlecontent">
  <p>第一段</p>
  <p>&nbsp;</p>
  <p>第二段</p>
  <img data-layer="photo" src="/_upload/article/images/a.jpg">
</div>
</body></html>`

func TestSelectorAdapter_Parse(t *testing.T) {
	a := NewSelectorAdapter(chemRule)

	page, err := a.Parse([]byte(chemPage), "https://chem.nankai.edu.cn/2024/0105/c1a2/page.htm")
	require.NoError(t, err)

	assert.Equal(t, "化学学院举办学术报告会", page.Title)
	assert.Equal(t, "2024-01-05", page.PublishTime)
	assert.Equal(t, "Admin", page.Author)
	assert.Equal(t, "第一段\n第二段", page.Content)
	assert.Equal(t, "https://chem.nankai.edu.cn/_upload/article/images/a.jpg", page.MediaRef)
	assert.Equal(t, entity.ContentTypeArticle, page.ContentType)
	assert.Equal(t, "chem", a.Name())
}

func TestSelectorAdapter_Pure(t *testing.T) {
	a := NewSelectorAdapter(chemRule)
	u := "https://chem.nankai.edu.cn/2024/0105/c1a2/page.htm"

	first, err := a.Parse([]byte(chemPage), u)
	require.NoError(t, err)
	second, err := a.Parse([]byte(chemPage), u)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSelectorAdapter_RelativeDateUsesReferenceTime(t *testing.T) {
	ref := time.Date(2024, 3, 15, 9, 30, 0, 0, time.Local)
	clock := func() time.Time { return ref }
	html := []byte(`<html><body><div class="page-news-title">Notice</div>
<div class="page-news-souse">发布时间：昨天</div><div class="wp_articlecontent">body</div></body></html>`)
	u := "https://chem.nankai.edu.cn/info/1/2.htm"

	page, err := NewSelectorAdapter(chemRule, WithReferenceTime(clock)).Parse(html, u)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-14 00:00:00", page.PublishTime)

	// The same clock through the registry gives the same answer on a later day.
	r, err := NewRegistryFromRules([]Rule{chemRule}, WithReferenceTime(clock))
	require.NoError(t, err)
	parser, err := r.Resolve(u)
	require.NoError(t, err)
	again, err := parser.Parse(html, u)
	require.NoError(t, err)
	assert.Equal(t, page, again)
}

func TestSelectorAdapter_Fallbacks(t *testing.T) {
	a := NewSelectorAdapter(chemRule)

	t.Run("secondary selectors", func(t *testing.T) {
		html := `<html><body><h1 class="arti_title">Second</h1><span class="arti_update">2023年11月3日</span>
<div class="wp_articlecontent">body</div></body></html>`
		page, err := a.Parse([]byte(html), "https://chem.nankai.edu.cn/info/1/2.htm")
		require.NoError(t, err)
		assert.Equal(t, "Second", page.Title)
		assert.Equal(t, "2023-11-03", page.PublishTime)
	})

	t.Run("time from url and title from head", func(t *testing.T) {
		html := `<html><head><title>Head title</title></head><body><div class="wp_articlecontent">body</div></body></html>`
		page, err := a.Parse([]byte(html), "https://chem.nankai.edu.cn/2022/0910/c5a6/page.htm")
		require.NoError(t, err)
		assert.Equal(t, "Head title", page.Title)
		assert.Equal(t, "2022-09-10", page.PublishTime)
	})

	t.Run("og title", func(t *testing.T) {
		html := `<html><head><meta property="og:title" content="OG"><title>Head</title></head><body><div class="wp_articlecontent">x</div></body></html>`
		page, err := a.Parse([]byte(html), "https://chem.nankai.edu.cn/a.htm")
		require.NoError(t, err)
		assert.Equal(t, "OG", page.Title)
	})

	t.Run("missing title is empty string", func(t *testing.T) {
		html := `<html><body><div class="wp_articlecontent">x</div></body></html>`
		page, err := a.Parse([]byte(html), "https://chem.nankai.edu.cn/a.htm")
		require.NoError(t, err)
		assert.Equal(t, "", page.Title)
		assert.Equal(t, "", page.PublishTime)
	})

	t.Run("image only", func(t *testing.T) {
		html := `<html><body><div class="wp_articlecontent">&nbsp;<img data-layer="photo" src="p.png"></div></body></html>`
		page, err := a.Parse([]byte(html), "https://chem.nankai.edu.cn/x/a.htm")
		require.NoError(t, err)
		assert.Equal(t, "", page.Content)
		assert.Equal(t, "https://chem.nankai.edu.cn/x/p.png", page.MediaRef)
		assert.Equal(t, entity.ContentTypeImage, page.ContentType)
	})

	t.Run("document surrogate", func(t *testing.T) {
		html := `<html><body><div class="wp_articlecontent">&nbsp;&nbsp;</div>
<div class="wp_pdf_player" pdfsrc="/_upload/article/files/notice.pdf"></div></body></html>`
		page, err := a.Parse([]byte(html), "https://chem.nankai.edu.cn/2024/0105/c1/page.htm")
		require.NoError(t, err)
		assert.Equal(t, "https://chem.nankai.edu.cn/_upload/article/files/notice.pdf", page.MediaRef)
		assert.Equal(t, entity.ContentTypeDocument, page.ContentType)
	})
}

func TestSelectorAdapter_ParseError(t *testing.T) {
	a := NewSelectorAdapter(chemRule)

	_, err := a.Parse([]byte(`<html><body><p>list page</p></body></html>`), "https://chem.nankai.edu.cn/list.htm")
	var parseErr *repository.ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Equal(t, "https://chem.nankai.edu.cn/list.htm", parseErr.URL)
}

func TestSplitSelector(t *testing.T) {
	tests := []struct{ in, css, attr string }{
		{"img[data-layer=photo]@src", "img[data-layer=photo]", "src"},
		{"div.page-news-title", "div.page-news-title", ""},
		{"#js_content img@data-src", "#js_content img", "data-src"},
		{"a[href*=@x]", "a[href*=@x]", ""},
	}
	for _, tt := range tests {
		css, attr := splitSelector(tt.in)
		assert.Equal(t, tt.css, css, tt.in)
		assert.Equal(t, tt.attr, attr, tt.in)
	}
}
