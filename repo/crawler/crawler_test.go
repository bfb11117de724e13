package crawler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/hildam/unghost-agent-go/entity/conf"
)

const page = `<html><head><title>Ada Lovelace | Acme</title><script>var x = 1;</script></head>
<body><nav>Home | About</nav>
<main><h1>Ada Lovelace</h1><p>VP of Engineering at <b>Acme</b>.</p>
<ul><li>Speaker at GopherCon</li><li>Writes about compilers</li></ul></main>
<footer>copyright</footer></body></html>`

func newCrawler(t *testing.T, maxChars int) *Crawler {
	t.Helper()
	c, err := New(conf.CrawlerConfig{Timeout: 5, UserAgent: "test-agent", MaxContentChars: maxChars})
	require.NoError(t, err)
	return c
}

func TestConvert(t *testing.T) {
	article, err := newCrawler(t, 0).Convert("http://x", []byte(page))
	require.NoError(t, err)

	assert.Equal(t, "Ada Lovelace | Acme", article.Title)
	assert.Contains(t, article.Markdown, "# Ada Lovelace")
	assert.Contains(t, article.Markdown, "**Acme**")
	assert.Contains(t, article.Markdown, "Speaker at GopherCon")
	assert.NotContains(t, article.Markdown, "Home | About")
	assert.NotContains(t, article.Markdown, "var x")
	assert.True(t, strings.HasPrefix(article.ToMarkdown(), "# Ada Lovelace | Acme\n\n"))
}

func TestConvertTruncates(t *testing.T) {
	article, err := newCrawler(t, 10).Convert("http://x", []byte(page))
	require.NoError(t, err)
	assert.Len(t, []rune(article.Markdown), 10)
}

func TestCrawlAndTool(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(page))
	}))
	defer srv.Close()

	c := newCrawler(t, 0)
	article, err := c.Crawl(context.Background(), srv.URL+"/profile")
	require.NoError(t, err)
	assert.Equal(t, "test-agent", gotUA)
	assert.Equal(t, "Ada Lovelace | Acme", article.Title)

	_, err = c.Crawl(context.Background(), srv.URL+"/missing")
	assert.ErrorContains(t, err, "404")

	crawl, err := c.Tool()
	require.NoError(t, err)
	out, err := crawl.InvokableRun(context.Background(), `{"url":"`+srv.URL+`/profile"}`)
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/profile", gjson.Get(out, "url").String())
	assert.Contains(t, gjson.Get(out, "crawled_content").String(), "VP of Engineering")

	out, err = crawl.InvokableRun(context.Background(), `{"url":"`+srv.URL+`/missing"}`)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Failed to crawl. Error:"))
}
