package crawler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/HildaM/logs/slog"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"

	"github.com/hildam/unghost-agent-go/entity/consts"
)

// CrawlInput 抓取参数
type CrawlInput struct {
	URL string `json:"url" jsonschema:"description=The url to crawl"`
}

// crawlOutput 抓取结果
type crawlOutput struct {
	URL            string `json:"url"`
	CrawledContent string `json:"crawled_content"`
}

// Tool 抓取工具，失败时返回错误描述而不是错误，便于模型继续推理
func (c *Crawler) Tool() (tool.InvokableTool, error) {
	return utils.InferTool(consts.CrawlTool,
		"Use this to crawl a url and get readable content in markdown format.",
		func(ctx context.Context, in *CrawlInput) (string, error) {
			article, err := c.Crawl(ctx, in.URL)
			if err != nil {
				slog.Error("crawlTool failed, url = %s, err = %+v", in.URL, err)
				return fmt.Sprintf("Failed to crawl. Error: %v", err), nil
			}
			data, err := json.Marshal(crawlOutput{URL: in.URL, CrawledContent: article.ToMarkdown()})
			if err != nil {
				return "", err
			}
			return string(data), nil
		})
}
