// Package researcher 收件人与公司信息调研的执行者
package researcher

import (
	"context"
	"fmt"
	"strings"

	"github.com/HildaM/logs/slog"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/hildam/unghost-agent-go/agent/comm"
	"github.com/hildam/unghost-agent-go/agent/executor"
	"github.com/hildam/unghost-agent-go/entity/consts"
	"github.com/hildam/unghost-agent-go/entity/model"
	"github.com/hildam/unghost-agent-go/repo/mcp"
	"github.com/hildam/unghost-agent-go/repo/metrics"
	"github.com/hildam/unghost-agent-go/repo/rag"
	"github.com/hildam/unghost-agent-go/repo/search"
)

// citationReminder 引用格式要求
const citationReminder = "IMPORTANT: DO NOT include inline citations in the text. Instead, track all sources and include a References section at the end using link reference format. Include an empty line between each citation for better readability. Use this format for each reference:\n- [Source Title](URL)\n\n- [Another Source](URL)"

// Tools 研究者可用的工具来源
type Tools struct {
	Crawl     tool.BaseTool      // 网页抓取
	WebSearch tool.InvokableTool // 网络检索，同时作为定向检索工具的底层
	Retriever *rag.Retriever     // 本地资料检索，为空时不提供
	Catalog   *mcp.Catalog       // MCP 工具
}

// NewRole 创建研究者角色，静态工具只构建一次
func NewRole(tools Tools) (executor.Role, error) {
	static := []tool.BaseTool{}
	if tools.WebSearch != nil {
		static = append(static, tools.WebSearch)
	}
	if tools.Crawl != nil {
		static = append(static, tools.Crawl)
	}
	focused, err := search.FocusedTools(tools.WebSearch)
	if err != nil {
		return executor.Role{}, fmt.Errorf("build focused search tools: %w", err)
	}
	static = append(static, focused...)
	static = append(static, tools.Catalog.ToolsFor(consts.Researcher)...)

	return executor.Role{
		Name: consts.Researcher,
		Tools: func(ctx context.Context, state *model.State) ([]tool.BaseTool, error) {
			if len(state.Resources) == 0 || tools.Retriever == nil {
				return static, nil
			}
			local, err := tools.Retriever.Tool(state.Resources)
			if err != nil {
				return nil, err
			}
			// 本地资料优先
			return append([]tool.BaseTool{local}, static...), nil
		},
		Extra: extra,
	}, nil
}

// New 创建研究者
func New(tools Tools, llm einomodel.ToolCallingChatModel, prompts comm.PromptLoader, factory executor.Factory,
	recursionLimit int, recorder *metrics.Recorder) (*executor.Executor, error) {
	role, err := NewRole(tools)
	if err != nil {
		slog.Error("researcher failed, new role err = %+v", err)
		return nil, err
	}
	return executor.New(role, llm, prompts, factory, recursionLimit, recorder), nil
}

// extra 用户提供的资料说明与引用格式要求
func extra(state *model.State) []*schema.Message {
	var msgs []*schema.Message
	if len(state.Resources) > 0 {
		var sb strings.Builder
		sb.WriteString("**The user mentioned the following resource files:**\n\n")
		for _, res := range state.Resources {
			sb.WriteString(fmt.Sprintf("- %s (%s)\n", res.Title, res.Description))
		}
		msgs = append(msgs, schema.UserMessage(sb.String()+"\n\nYou MUST use the **"+consts.LocalSearch+
			"** to retrieve the information from the resource files."))
	}
	return append(msgs, schema.SystemMessage(citationReminder))
}
