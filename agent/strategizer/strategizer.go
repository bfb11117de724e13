// Package strategizer 触达策略制定与消息起草的执行者
package strategizer

import (
	"context"
	"fmt"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/hildam/unghost-agent-go/agent/comm"
	"github.com/hildam/unghost-agent-go/agent/executor"
	"github.com/hildam/unghost-agent-go/entity/consts"
	"github.com/hildam/unghost-agent-go/entity/model"
	"github.com/hildam/unghost-agent-go/repo/mcp"
	"github.com/hildam/unghost-agent-go/repo/metrics"
	"github.com/hildam/unghost-agent-go/repo/outreach"
)

// NewRole 创建策略者角色：模板工具加上挂载给策略者的 MCP 工具
func NewRole(store *outreach.Store, catalog *mcp.Catalog) (executor.Role, error) {
	var tools []tool.BaseTool
	if store != nil {
		templateTools, err := store.Tools()
		if err != nil {
			return executor.Role{}, fmt.Errorf("build template tools: %w", err)
		}
		tools = append(tools, templateTools...)
	}
	tools = append(tools, catalog.ToolsFor(consts.Strategizer)...)

	return executor.Role{
		Name: consts.Strategizer,
		Tools: func(ctx context.Context, state *model.State) ([]tool.BaseTool, error) {
			return tools, nil
		},
		Extra: extra,
	}, nil
}

// New 创建策略者
func New(store *outreach.Store, catalog *mcp.Catalog, llm einomodel.ToolCallingChatModel, prompts comm.PromptLoader,
	factory executor.Factory, recursionLimit int, recorder *metrics.Recorder) (*executor.Executor, error) {
	role, err := NewRole(store, catalog)
	if err != nil {
		return nil, err
	}
	return executor.New(role, llm, prompts, factory, recursionLimit, recorder), nil
}

// extra 已选定的模板
func extra(state *model.State) []*schema.Message {
	if state.SelectedTemplate == nil {
		return nil
	}
	return []*schema.Message{schema.UserMessage(TemplateBlock(state.SelectedTemplate))}
}

// TemplateBlock 选定模板的说明
func TemplateBlock(tpl *model.OutreachTemplate) string {
	return fmt.Sprintf("# Selected Outreach Template\n\n"+
		"Template ID: %s\nTone: %s\nUse Case: %s\nHook Type: %s\nCTA Type: %s\nTemplate: %s\n\n"+
		"IMPORTANT: Use this template as the foundation of the outreach message. "+
		"Keep its tone, hook and call to action, and fill every variable with the research findings.",
		tpl.TemplateID, tpl.Tone, tpl.UseCase, tpl.HookType, tpl.CTAType, tpl.PromptTemplate)
}
