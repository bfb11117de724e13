// Package coder 数据处理步骤的执行者
package coder

import (
	"context"
	"fmt"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"

	"github.com/hildam/unghost-agent-go/agent/comm"
	"github.com/hildam/unghost-agent-go/agent/executor"
	"github.com/hildam/unghost-agent-go/entity/consts"
	"github.com/hildam/unghost-agent-go/entity/model"
	"github.com/hildam/unghost-agent-go/repo/mcp"
	"github.com/hildam/unghost-agent-go/repo/metrics"
	"github.com/hildam/unghost-agent-go/repo/pyrepl"
)

// NewRole 创建执行者角色：python 执行工具（repl 为空时不提供）、与 python 相关的 MCP 工具、挂载给执行者的 MCP 工具
func NewRole(repl *pyrepl.Runner, catalog *mcp.Catalog) (executor.Role, error) {
	var tools []tool.BaseTool
	if repl != nil {
		replTool, err := repl.Tool()
		if err != nil {
			return executor.Role{}, fmt.Errorf("build python repl tool: %w", err)
		}
		tools = append(tools, replTool)
	}
	tools = append(tools, catalog.ToolsMatching("python")...)
	tools = append(tools, catalog.ToolsFor(consts.Coder)...)

	return executor.Role{
		Name: consts.Coder,
		Tools: func(ctx context.Context, state *model.State) ([]tool.BaseTool, error) {
			return tools, nil
		},
	}, nil
}

// New 创建执行者
func New(repl *pyrepl.Runner, catalog *mcp.Catalog, llm einomodel.ToolCallingChatModel, prompts comm.PromptLoader,
	factory executor.Factory, recursionLimit int, recorder *metrics.Recorder) (*executor.Executor, error) {
	role, err := NewRole(repl, catalog)
	if err != nil {
		return nil, err
	}
	return executor.New(role, llm, prompts, factory, recursionLimit, recorder), nil
}
