package colly_spider

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShouldSkipLink(t *testing.T) {
	skipped := []string{
		"", "#", "#top",
		"javascript:void(0)",
		"JavaScript:openWin()",
		"mailto:office@nankai.edu.cn",
		"office@nankai.edu.cn",
		"/upload/notice.pdf",
		"/files/form.DOCX",
		"/a/*/b",
	}
	for _, href := range skipped {
		assert.True(t, ShouldSkipLink(href), href)
	}

	kept := []string{"/2024/0301/c1234a567890/page.htm", "list.htm", "https://news.nankai.edu.cn/ywsd/index.shtml"}
	for _, href := range kept {
		assert.False(t, ShouldSkipLink(href), href)
	}
}

func TestIsArticleURL(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://news.nankai.edu.cn/ywsd/system/2024/03/01/030061234.shtml", true},
		{"https://chem.nankai.edu.cn/2024/0301/c1234a567890/page.htm", true},
		{"https://jwc.nankai.edu.cn/info/1035/5678.htm", true},
		{"https://www.example.edu.cn/news-detail?id=9", true},
		{"https://blog.example.com/post/42", true},
		{"https://mp.weixin.qq.com/s/abcdef", true},
		{"https://chem.nankai.edu.cn/xwzx/list.htm", false},
		{"https://chem.nankai.edu.cn/list/1.htm", false},
		{"https://chem.nankai.edu.cn/", false},
		{"https://mp.weixin.qq.com/cgi-bin/home", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsArticleURL(tt.url), tt.url)
	}
}
