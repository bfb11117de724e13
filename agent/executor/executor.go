// Package executor 步骤执行者的公共流程：组装输入、运行工具智能体、记录结果
package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/HildaM/logs/slog"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/flow/agent"
	"github.com/cloudwego/eino/flow/agent/react"
	"github.com/cloudwego/eino/schema"

	"github.com/hildam/unghost-agent-go/agent/comm"
	"github.com/hildam/unghost-agent-go/entity/consts"
	"github.com/hildam/unghost-agent-go/entity/model"
	"github.com/hildam/unghost-agent-go/repo/metrics"
)

// errEmptyResult 智能体没有产出内容
var errEmptyResult = errors.New("agent returned an empty result")

// Runnable 可执行的智能体
type Runnable interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...agent.AgentOption) (*schema.Message, error)
}

// Factory 根据模型与工具创建智能体，maxStep 为工具调用往返上限
type Factory func(ctx context.Context, chat einomodel.ToolCallingChatModel, tools []tool.BaseTool, maxStep int) (Runnable, error)

// Role 执行者角色
type Role struct {
	// Name 节点名称，同时是提示词名称
	Name string
	// Tools 本次执行可用的工具
	Tools func(ctx context.Context, state *model.State) ([]tool.BaseTool, error)
	// Extra 任务之后追加的上下文
	Extra func(state *model.State) []*schema.Message
}

// Executor 步骤执行者
type Executor struct {
	role           Role
	llm            einomodel.ToolCallingChatModel // llm模型服务
	prompts        comm.PromptLoader              // 提示词
	factory        Factory                        // 智能体工厂
	recursionLimit int                            // 工具调用往返上限
	metrics        *metrics.Recorder              // 指标
}

// New 创建实例，factory 为空时使用 ReAct 智能体
func New(role Role, llm einomodel.ToolCallingChatModel, prompts comm.PromptLoader, factory Factory,
	recursionLimit int, recorder *metrics.Recorder) *Executor {
	if factory == nil {
		factory = ReactFactory(0)
	}
	return &Executor{
		role:           role,
		llm:            llm,
		prompts:        prompts,
		factory:        factory,
		recursionLimit: recursionLimit,
		metrics:        recorder,
	}
}

// Name 节点名称
func (e *Executor) Name() string {
	return e.role.Name
}

// Run 执行第一个未完成的步骤，执行失败时把错误文本作为步骤结果，不向上抛出
func (e *Executor) Run(ctx context.Context, state *model.State) (string, error) {
	// 寻找第一个未执行的步骤
	idx, step := state.CurrentPlan.NextStep()
	if step == nil {
		slog.Info("%s info, no pending step, back to %s", e.role.Name, consts.ResearchTeam)
		return consts.ResearchTeam, nil
	}

	start := time.Now()
	result, err := e.execute(ctx, state, step)
	if err != nil {
		slog.Error("%s failed, step = %s, err = %+v", e.role.Name, step.Title, err)
		result = fmt.Sprintf("Agent execution failed due to: %v", err)
	}
	e.metrics.StepExecuted(e.role.Name, err == nil)
	slog.Info("%s info, step %d done in %s", e.role.Name, idx, time.Since(start))

	// 记录结果，后续步骤与报告可以看到
	res := strings.Clone(result)
	state.CurrentPlan.Steps[idx].ExecutionRes = &res
	state.Observations = append(state.Observations, result)
	msg := schema.UserMessage(result)
	msg.Name = e.role.Name
	state.AppendMessage(msg)
	return consts.ResearchTeam, nil
}

// execute 运行智能体，panic 转为错误
func (e *Executor) execute(ctx context.Context, state *model.State, step *model.Step) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("%s panic_recover, err = %v", e.role.Name, r)
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	// 1. load节点，组装输入
	input, err := e.loadMsg(ctx, state, step)
	if err != nil {
		return "", err
	}

	// 2. 准备工具，同名工具只保留一个
	var tools []tool.BaseTool
	if e.role.Tools != nil {
		if tools, err = e.role.Tools(ctx, state); err != nil {
			return "", fmt.Errorf("build tools: %w", err)
		}
	}
	tools = dedupe(ctx, tools)

	// 3. agent节点，运行智能体
	runner, err := e.factory(ctx, e.llm, tools, e.recursionLimit)
	if err != nil {
		return "", fmt.Errorf("create agent: %w", err)
	}
	output, err := runner.Generate(ctx, input)
	if err != nil {
		return "", err
	}
	if output == nil || strings.TrimSpace(output.Content) == "" {
		return "", errEmptyResult
	}
	return output.Content, nil
}

// loadMsg 组装提示词、已完成步骤的结果与当前任务
func (e *Executor) loadMsg(ctx context.Context, state *model.State, step *model.Step) ([]*schema.Message, error) {
	input := []*schema.Message{schema.UserMessage(TaskInput(state.CurrentPlan.CompletedSteps(), step, state.Locale))}
	if e.role.Extra != nil {
		input = append(input, e.role.Extra(state)...)
	}
	return comm.Render(ctx, e.prompts, e.role.Name, comm.Variables(state), input)
}

// TaskInput 已完成步骤的结果加上当前任务
func TaskInput(completed []model.Step, step *model.Step, locale string) string {
	var sb strings.Builder
	if len(completed) > 0 {
		sb.WriteString("# Existing Research Findings\n\n")
		for i, s := range completed {
			res := ""
			if s.ExecutionRes != nil {
				res = *s.ExecutionRes
			}
			sb.WriteString(fmt.Sprintf("## Existing Finding %d: %s\n\n<finding>\n%s\n</finding>\n\n", i+1, s.Title, res))
		}
	}
	sb.WriteString(fmt.Sprintf("# Current Task\n\n## Title\n\n%s\n\n## Description\n\n%s\n\n## Locale\n\n%s",
		step.Title, step.Description, locale))
	return sb.String()
}

// dedupe 按名称去重，先出现的工具优先
func dedupe(ctx context.Context, tools []tool.BaseTool) []tool.BaseTool {
	seen := make(map[string]bool, len(tools))
	out := make([]tool.BaseTool, 0, len(tools))
	for _, t := range tools {
		if t == nil {
			continue
		}
		info, err := t.Info(ctx)
		if err != nil {
			slog.Error("dedupe failed, tool info err = %+v", err)
			continue
		}
		if seen[info.Name] {
			continue
		}
		seen[info.Name] = true
		out = append(out, t)
	}
	return out
}

// ReactFactory ReAct 智能体工厂，没有工具时直接调用模型
func ReactFactory(maxLimitToken int) Factory {
	modifier := comm.NewMessageModifier(maxLimitToken)
	return func(ctx context.Context, chat einomodel.ToolCallingChatModel, tools []tool.BaseTool, maxStep int) (Runnable, error) {
		if len(tools) == 0 {
			return &plainRunner{chat: chat, modifier: modifier}, nil
		}
		reactAgent, err := react.NewAgent(ctx, &react.AgentConfig{
			MaxStep:               maxStep,
			ToolCallingModel:      chat,
			ToolsConfig:           compose.ToolsNodeConfig{Tools: tools},
			MessageModifier:       modifier,
			StreamToolCallChecker: comm.ToolCallChecker,
		})
		if err != nil {
			return nil, err
		}
		return reactAgent, nil
	}
}

// plainRunner 无工具时的单次模型调用
type plainRunner struct {
	chat     einomodel.ToolCallingChatModel
	modifier react.MessageModifier
}

// Generate 实现 Runnable
func (p *plainRunner) Generate(ctx context.Context, input []*schema.Message, _ ...agent.AgentOption) (*schema.Message, error) {
	return p.chat.Generate(ctx, p.modifier(ctx, input))
}
