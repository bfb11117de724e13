// Package investigator 计划前的背景调查，用一次网络检索补充上下文
package investigator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/HildaM/logs/slog"
	"github.com/cloudwego/eino/components/tool"
	"github.com/tidwall/gjson"

	"github.com/hildam/unghost-agent-go/entity/consts"
	"github.com/hildam/unghost-agent-go/entity/model"
)

// errNoSearchTool 没有可用的检索工具
var errNoSearchTool = errors.New("no search tool available")

// Investigator 背景调查者
type Investigator struct {
	searcher tool.InvokableTool // 检索工具，可以为空
}

// New 创建实例
func New(searcher tool.InvokableTool) *Investigator {
	return &Investigator{searcher: searcher}
}

// Name 节点名称
func (i *Investigator) Name() string {
	return consts.BackgroundInvestigator
}

// Run 检索失败时记录错误文本，不中断流程
func (i *Investigator) Run(ctx context.Context, state *model.State) (string, error) {
	query := state.ResearchTopic
	if query == "" {
		query = state.LastUserInput()
	}

	result, err := i.search(ctx, query)
	if err != nil {
		slog.Error("search failed, query = %s, err = %+v", query, err)
		state.BackgroundInvestigationResults = fmt.Sprintf("Error occurred during background investigation: %v", err)
		return consts.Planner, nil
	}
	state.BackgroundInvestigationResults = Normalize(result)
	slog.Debug("search debug, query = %s, result = %s", query, state.BackgroundInvestigationResults)
	return consts.Planner, nil
}

// search 调用检索工具
func (i *Investigator) search(ctx context.Context, query string) (string, error) {
	if i.searcher == nil {
		return "", errNoSearchTool
	}
	args, err := json.Marshal(map[string]any{"query": query})
	if err != nil {
		return "", err
	}
	return i.searcher.InvokableRun(ctx, string(args))
}

// Normalize 将检索结果整理为文本：页面转为标题加正文，图片转为 markdown 图片，
// 非 JSON 文本原样保留，非列表的 JSON 保留其 JSON 文本
func Normalize(result string) string {
	trimmed := strings.TrimSpace(result)
	if !gjson.Valid(trimmed) {
		return result
	}
	parsed := gjson.Parse(trimmed)
	if parsed.Type == gjson.String {
		return parsed.String()
	}
	if !parsed.IsArray() {
		return trimmed
	}

	var parts []string
	parsed.ForEach(func(_, item gjson.Result) bool {
		if text := normalizeItem(item); text != "" {
			parts = append(parts, text)
		}
		return true
	})
	return strings.Join(parts, "\n\n")
}

// normalizeItem 整理单条结果
func normalizeItem(item gjson.Result) string {
	switch item.Get("type").String() {
	case "page":
		return fmt.Sprintf("## %s\n\n%s", item.Get("title").String(), item.Get("content").String())
	case "image":
		return fmt.Sprintf("![%s](%s)", item.Get("image_description").String(), item.Get("image_url").String())
	case "text":
		if text := item.Get("text"); text.Exists() {
			return text.String()
		}
	}
	if item.Get("title").Exists() && item.Get("content").Exists() {
		return fmt.Sprintf("## %s\n\n%s", item.Get("title").String(), item.Get("content").String())
	}
	if item.Type == gjson.String {
		return item.String()
	}
	return item.Raw
}
