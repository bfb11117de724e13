// Package search 网络检索：Tavily 客户端与面向触达场景的检索工具
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cloudwego/hertz/pkg/app/client"
	"github.com/cloudwego/hertz/pkg/protocol"
	hconsts "github.com/cloudwego/hertz/pkg/protocol/consts"

	"github.com/hildam/unghost-agent-go/entity/conf"
)

// 检索结果类型
const (
	TypePage  = "page"
	TypeImage = "image"
)

// Result 单条检索结果，页面与图片共用
type Result struct {
	Type             string  `json:"type"`
	Title            string  `json:"title,omitempty"`
	URL              string  `json:"url,omitempty"`
	Content          string  `json:"content,omitempty"`
	Score            float64 `json:"score,omitempty"`
	ImageURL         string  `json:"image_url,omitempty"`
	ImageDescription string  `json:"image_description,omitempty"`
}

// tavilyRequest 请求体
type tavilyRequest struct {
	APIKey                   string `json:"api_key"`
	Query                    string `json:"query"`
	MaxResults               int    `json:"max_results"`
	IncludeImages            bool   `json:"include_images"`
	IncludeImageDescriptions bool   `json:"include_image_descriptions"`
}

// tavilyResponse 响应体
type tavilyResponse struct {
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
	Images []struct {
		URL         string `json:"url"`
		Description string `json:"description"`
	} `json:"images"`
}

// Tavily 检索客户端
type Tavily struct {
	cli        *client.Client
	apiKey     string
	endpoint   string
	maxResults int
}

// NewTavily 创建客户端
func NewTavily(cfg conf.SearchConfig, maxResults int) (*Tavily, error) {
	timeout := time.Duration(cfg.Timeout) * time.Second
	cli, err := client.NewClient(
		client.WithDialTimeout(timeout),
		client.WithClientReadTimeout(timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("create http client: %w", err)
	}
	return &Tavily{cli: cli, apiKey: cfg.TavilyAPIKey, endpoint: cfg.Endpoint, maxResults: maxResults}, nil
}

// Search 检索并返回页面与图片结果
func (t *Tavily) Search(ctx context.Context, query string) ([]Result, error) {
	body, err := json.Marshal(tavilyRequest{
		APIKey:                   t.apiKey,
		Query:                    query,
		MaxResults:               t.maxResults,
		IncludeImages:            true,
		IncludeImageDescriptions: true,
	})
	if err != nil {
		return nil, err
	}

	req, resp := protocol.AcquireRequest(), protocol.AcquireResponse()
	defer protocol.ReleaseRequest(req)
	defer protocol.ReleaseResponse(resp)

	req.SetRequestURI(t.endpoint)
	req.SetMethod(hconsts.MethodPost)
	req.Header.SetContentTypeBytes([]byte(hconsts.MIMEApplicationJSON))
	req.SetBody(body)

	if err := t.cli.Do(ctx, req, resp); err != nil {
		return nil, fmt.Errorf("tavily request: %w", err)
	}
	if status := resp.StatusCode(); status != hconsts.StatusOK {
		return nil, fmt.Errorf("tavily request: unexpected status %d: %s", status, string(resp.Body()))
	}

	var parsed tavilyResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return nil, fmt.Errorf("tavily response: %w", err)
	}

	results := make([]Result, 0, len(parsed.Results)+len(parsed.Images))
	for _, r := range parsed.Results {
		results = append(results, Result{Type: TypePage, Title: r.Title, URL: r.URL, Content: r.Content, Score: r.Score})
	}
	for _, img := range parsed.Images {
		results = append(results, Result{Type: TypeImage, ImageURL: img.URL, ImageDescription: img.Description})
	}
	return results, nil
}
