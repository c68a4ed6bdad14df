package process

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const site = "https://example.com"

func TestExtractMetricsCountsStructure(t *testing.T) {
	content := `
<h2>Intro</h2><p>Is this useful? It is. Very much so!</p>
<h3>Details</h3><h3>More</h3>
<a href="/about">About</a>
<a href="https://EXAMPLE.com/contact">Contact</a>
<a href="https://other.org/x">Other</a>
<a href="//cdn.other.org/y">CDN</a>
<a href="#top">Top</a>
<a href="mailto:me@example.com">Mail</a>
<p>Frequently Asked Questions</p>`

	m, err := ExtractMetrics("A title", content, site)
	require.NoError(t, err)

	assert.Equal(t, 1, m.H2Count)
	assert.Equal(t, 2, m.H3Count)
	assert.Equal(t, 2, m.InternalLinks)
	assert.Equal(t, 2, m.ExternalLinks)
	assert.Equal(t, 1, m.QuestionMarks)
	assert.True(t, m.HasFAQKeyword)
	assert.Greater(t, m.WordCount, 10)
	assert.False(t, m.HasAISummary)
}

func TestExtractMetricsWordCountAndSentences(t *testing.T) {
	m, err := ExtractMetrics("Hello", "<p>one two three. four five six!</p><script>var x = 1;</script>", site)
	require.NoError(t, err)

	// "Hello one two three. four five six!" -> 7 words, 2 sentences
	assert.Equal(t, 7, m.WordCount)
	assert.InDelta(t, 3.5, m.AvgSentenceLength, 0.001)
}

func TestExtractMetricsEmpty(t *testing.T) {
	m, err := ExtractMetrics("", "", site)
	require.NoError(t, err)
	assert.Zero(t, m.WordCount)
	assert.Zero(t, m.AvgSentenceLength)
	assert.False(t, m.HasFAQKeyword)
}

func TestExtractMetricsWithoutSiteURL(t *testing.T) {
	m, err := ExtractMetrics("", `<a href="/a">a</a><a href="https://example.com/b">b</a>`, "")
	require.NoError(t, err)
	assert.Equal(t, 1, m.InternalLinks)
	assert.Equal(t, 1, m.ExternalLinks)
}

func TestFAQKeywordIsCaseInsensitive(t *testing.T) {
	m, err := ExtractMetrics("", "<p>see our Faq</p>", site)
	require.NoError(t, err)
	assert.True(t, m.HasFAQKeyword)
}

func TestExtractPagePrefersArticle(t *testing.T) {
	doc := `<html><head><title> My Page </title></head><body>
<nav><a href="/nav">nav</a></nav>
<article><h2>Heading</h2><p>Body <a href="other">x</a></p><script>bad()</script></article>
</body></html>`

	page, err := ExtractPage(strings.NewReader(doc), "https://example.com/blog/post")
	require.NoError(t, err)

	assert.Equal(t, "My Page", page.Title)
	assert.Contains(t, page.BodyHTML, "<h2>Heading</h2>")
	assert.NotContains(t, page.BodyHTML, "bad()")
	assert.NotContains(t, page.BodyHTML, "nav")
	assert.Contains(t, page.Links, "https://example.com/nav")
	assert.Contains(t, page.Links, "https://example.com/blog/other")
}

func TestStripTags(t *testing.T) {
	assert.Equal(t, "a b c", StripTags("<p>a</p>\n<div> b <span>c</span></div>"))
}

func TestHost(t *testing.T) {
	assert.Equal(t, "example.com", Host("HTTPS://Example.COM:443/path"))
	assert.Equal(t, "", Host("::bad"))
}

func TestAuditAICrawlers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("User-agent: GPTBot\nDisallow: /\n\nUser-agent: *\nAllow: /\n"))
	}))
	defer srv.Close()

	access, err := AuditAICrawlers(srv.URL+"/", srv.Client())
	require.NoError(t, err)
	require.Len(t, access, len(AICrawlers))

	byAgent := map[string]bool{}
	for _, a := range access {
		byAgent[a.Agent] = a.Allowed
	}
	assert.False(t, byAgent["GPTBot"])
	assert.True(t, byAgent["ClaudeBot"])
}

func TestRobotsCacheMissingFileAllows(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	c := NewRobotsCache(srv.Client())
	assert.True(t, c.Allowed("airank", srv.URL+"/page"))
}

func TestContentLinks(t *testing.T) {
	links, err := ContentLinks(`<p><a href="/a">a</a> <a href="mailto:x@y.z">m</a> <a href="https://other.org/b">b</a></p>`, "https://example.com/post/")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/a", "https://other.org/b"}, links)
}
