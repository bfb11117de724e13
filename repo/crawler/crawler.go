// Package crawler 抓取网页并转换为 markdown
package crawler

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"github.com/cloudwego/hertz/pkg/app/client"
	"github.com/cloudwego/hertz/pkg/protocol"
	hconsts "github.com/cloudwego/hertz/pkg/protocol/consts"
	"golang.org/x/net/html"

	"github.com/hildam/unghost-agent-go/entity/conf"
)

const maxRedirects = 5

var excessiveLines = regexp.MustCompile(`\n{3,}`)

// Article 抓取结果
type Article struct {
	URL      string `json:"url"`
	Title    string `json:"title"`
	Markdown string `json:"markdown"`
}

// ToMarkdown 标题与正文
func (a *Article) ToMarkdown() string {
	if a.Title == "" {
		return a.Markdown
	}
	return fmt.Sprintf("# %s\n\n%s", a.Title, a.Markdown)
}

// Crawler 网页抓取器，可在多个运行间共享
type Crawler struct {
	cli       *client.Client
	userAgent string
	maxChars  int
	converter *md.Converter
}

// New 创建抓取器
func New(cfg conf.CrawlerConfig) (*Crawler, error) {
	timeout := time.Duration(cfg.Timeout) * time.Second
	cli, err := client.NewClient(
		client.WithDialTimeout(timeout),
		client.WithClientReadTimeout(timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("create http client: %w", err)
	}

	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.GitHubFlavored())
	converter.Remove("script", "style", "noscript", "nav", "footer", "iframe", "form")

	return &Crawler{
		cli:       cli,
		userAgent: cfg.UserAgent,
		maxChars:  cfg.MaxContentChars,
		converter: converter,
	}, nil
}

// Crawl 抓取并转换页面
func (c *Crawler) Crawl(ctx context.Context, url string) (*Article, error) {
	req, resp := protocol.AcquireRequest(), protocol.AcquireResponse()
	defer protocol.ReleaseRequest(req)
	defer protocol.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.SetMethod(hconsts.MethodGet)
	if c.userAgent != "" {
		req.Header.SetUserAgentBytes([]byte(c.userAgent))
	}

	if err := c.cli.DoRedirects(ctx, req, resp, maxRedirects); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	if status := resp.StatusCode(); status >= 400 {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", url, status)
	}

	return c.Convert(url, resp.Body())
}

// Convert 将 HTML 转换为文章
func (c *Crawler) Convert(url string, body []byte) (*Article, error) {
	content := string(body)
	title := extractTitle(content)

	markdown, err := c.converter.ConvertString(mainContent(content))
	if err != nil {
		return nil, fmt.Errorf("convert %s: %w", url, err)
	}
	markdown = strings.TrimSpace(excessiveLines.ReplaceAllString(markdown, "\n\n"))
	if c.maxChars > 0 && len([]rune(markdown)) > c.maxChars {
		markdown = string([]rune(markdown)[:c.maxChars])
	}

	return &Article{URL: url, Title: title, Markdown: markdown}, nil
}

// extractTitle 提取 <title>
func extractTitle(content string) string {
	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return ""
	}
	var title string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if title != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
			title = strings.TrimSpace(n.FirstChild.Data)
			return
		}
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			walk(ch)
		}
	}
	walk(doc)
	return title
}

// mainContent 优先使用 main / article 区域，找不到时返回原文
func mainContent(content string) string {
	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return content
	}
	for _, tag := range []string{"main", "article"} {
		if node := findElement(doc, tag); node != nil {
			var sb strings.Builder
			if err := html.Render(&sb, node); err == nil {
				return sb.String()
			}
		}
	}
	return content
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
		if found := findElement(ch, tag); found != nil {
			return found
		}
	}
	return nil
}
