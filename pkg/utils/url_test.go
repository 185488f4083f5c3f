package utils

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashURL(t *testing.T) {
	a := HashURL("https://example.com/a")
	assert.Len(t, a, 64)
	assert.Equal(t, a, HashURL("https://example.com/a"))
	assert.NotEqual(t, a, HashURL("https://example.com/b"))
}

func TestToAbsoluteURL(t *testing.T) {
	base, err := url.Parse("https://cc.nankai.edu.cn/2024/0105/c1a2/page.htm")
	require.NoError(t, err)

	got, err := ToAbsoluteURL(base, "/_upload/article/images/x.jpg")
	require.NoError(t, err)
	assert.Equal(t, "https://cc.nankai.edu.cn/_upload/article/images/x.jpg", got)
}

func TestResolveAgainst(t *testing.T) {
	assert.Equal(t, "", ResolveAgainst("https://a.com/x", ""))
	assert.Equal(t, "https://a.com/img.png", ResolveAgainst("https://a.com/x/", "../img.png"))
}

func TestHostname(t *testing.T) {
	assert.Equal(t, "law.nankai.edu.cn", Hostname("http://LAW.nankai.edu.cn:8080/a"))
	assert.Equal(t, "unknown", Hostname("::"))
}
