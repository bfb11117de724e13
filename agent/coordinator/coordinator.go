// Package coordinator 理解用户需求，决定是否移交给计划者
package coordinator

import (
	"context"
	"fmt"
	"strings"

	"github.com/HildaM/logs/slog"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/tidwall/gjson"

	"github.com/hildam/unghost-agent-go/agent/comm"
	"github.com/hildam/unghost-agent-go/agent/transition"
	"github.com/hildam/unghost-agent-go/entity/consts"
	"github.com/hildam/unghost-agent-go/entity/model"
)

// handoffTool 协调者唯一可用的工具，用于移交给计划者并识别用户语言
var handoffTool = &schema.ToolInfo{
	Name: consts.HandoffToPlanner,
	Desc: "Handoff to planner agent to do plan.",
	ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
		"research_topic": {
			Type:     schema.String,
			Desc:     "The topic of the outreach task to be handed off, including who the recipient is.",
			Required: true,
		},
		"locale": {
			Type:     schema.String,
			Desc:     "The user's detected language locale (e.g., en-US, zh-CN).",
			Required: true,
		},
	}),
}

// Coordinator 任务协调者
type Coordinator struct {
	llm     einomodel.ToolCallingChatModel // llm模型服务
	prompts comm.PromptLoader              // 提示词
}

// New 创建实例
func New(llm einomodel.ToolCallingChatModel, prompts comm.PromptLoader) *Coordinator {
	return &Coordinator{llm: llm, prompts: prompts}
}

// Name 节点名称
func (c *Coordinator) Name() string {
	return consts.Coordinator
}

// Run 调用模型，有工具调用时视为移交
func (c *Coordinator) Run(ctx context.Context, state *model.State) (string, error) {
	input, err := c.loadMsg(ctx, state)
	if err != nil {
		return "", err
	}

	chat, err := c.llm.WithTools([]*schema.ToolInfo{handoffTool})
	if err != nil {
		return "", fmt.Errorf("coordinator bind tools: %w", err)
	}
	output, err := chat.Generate(ctx, input)
	if err != nil {
		slog.Error("coordinator failed, generate err = %+v", err)
		return "", fmt.Errorf("coordinator generate: %w", err)
	}
	return c.router(state, output), nil
}

// loadMsg 加载提示词模板和准备输入数据
func (c *Coordinator) loadMsg(ctx context.Context, state *model.State) ([]*schema.Message, error) {
	return comm.Render(ctx, c.prompts, consts.Coordinator, comm.Variables(state), state.Messages)
}

// router 解析工具调用结果，参数缺失时保留原值
func (c *Coordinator) router(state *model.State, output *schema.Message) string {
	handoff := output != nil && len(output.ToolCalls) > 0
	if !handoff {
		slog.Info("coordinator info, no handoff, terminate the workflow")
		if output != nil && strings.TrimSpace(output.Content) != "" {
			reply := schema.AssistantMessage(output.Content, nil)
			reply.Name = consts.Coordinator
			state.AppendMessage(reply)
		}
		return transition.AfterCoordinator(false, state.EnableBackgroundInvestigation)
	}

	call := output.ToolCalls[0]
	for _, tc := range output.ToolCalls {
		if tc.Function.Name == consts.HandoffToPlanner {
			call = tc
			break
		}
	}
	args := call.Function.Arguments
	if locale := strings.TrimSpace(gjson.Get(args, "locale").String()); locale != "" {
		state.Locale = locale
	}
	if topic := strings.TrimSpace(gjson.Get(args, "research_topic").String()); topic != "" {
		state.ResearchTopic = topic
	}
	if state.ResearchTopic == "" {
		state.ResearchTopic = state.LastUserInput()
	}
	slog.Debug("coordinator debug, handoff, locale = %s, research_topic = %s", state.Locale, state.ResearchTopic)
	return transition.AfterCoordinator(true, state.EnableBackgroundInvestigation)
}
