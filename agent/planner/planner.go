// Package planner 生成执行计划，并决定计划是否需要人工审核
package planner

import (
	"context"
	"fmt"
	"strings"

	"github.com/HildaM/logs/slog"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/hildam/unghost-agent-go/agent/comm"
	"github.com/hildam/unghost-agent-go/agent/transition"
	"github.com/hildam/unghost-agent-go/entity/consts"
	"github.com/hildam/unghost-agent-go/entity/model"
	"github.com/hildam/unghost-agent-go/repo/llm"
	"github.com/hildam/unghost-agent-go/repo/metrics"
	"github.com/hildam/unghost-agent-go/repo/repair"
)

// Planner 计划者
type Planner struct {
	models    *llm.Models        // llm模型服务
	tier      string             // 计划者使用的模型档位
	prompts   comm.PromptLoader  // 提示词
	templates comm.TemplateStore // 触达模板
	metrics   *metrics.Recorder  // 指标
}

// New 创建实例
func New(models *llm.Models, tier string, prompts comm.PromptLoader, templates comm.TemplateStore,
	recorder *metrics.Recorder) *Planner {
	return &Planner{models: models, tier: tier, prompts: prompts, templates: templates, metrics: recorder}
}

// Name 节点名称
func (p *Planner) Name() string {
	return consts.Planner
}

// Run 生成计划；模型调用失败或输出为空时结束流程
func (p *Planner) Run(ctx context.Context, state *model.State) (string, error) {
	// 1. 达到最大迭代次数，分派给Reporter生成最终报告
	if transition.ReachedCeiling(state.PlanIterations, state.MaxPlanIterations) {
		slog.Info("planner info, plan iterations %d reached max %d, go to reporter", state.PlanIterations, state.MaxPlanIterations)
		return consts.Reporter, nil
	}

	// 2. load节点，渲染提示词
	input, err := p.loadMsg(ctx, state)
	if err != nil {
		return "", err
	}

	// 3. agent节点，调用失败视为空输出
	chat, structured := p.pick(state)
	content, err := generate(ctx, chat, structured, input)
	if err != nil {
		slog.Error("planner failed, generate err = %+v", err)
		content = ""
	}
	// 4. router节点，校验计划并决定流向
	return p.router(state, content, structured), nil
}

// loadMsg 加载提示词模板，背景调查结果作为额外的用户消息
func (p *Planner) loadMsg(ctx context.Context, state *model.State) ([]*schema.Message, error) {
	variables := comm.Variables(state)
	if p.templates != nil {
		variables["templates_summary"] = p.templates.Summary()
	}

	input := append([]*schema.Message(nil), state.Messages...)
	if state.EnableBackgroundInvestigation && state.BackgroundInvestigationResults != "" {
		input = append(input, schema.UserMessage(
			fmt.Sprintf("background investigation results of user query:\n%s\n", state.BackgroundInvestigationResults)))
	}
	return comm.Render(ctx, p.prompts, consts.Planner, variables, input)
}

// pick 选择模型：深度思考使用推理模型，basic 档位使用结构化输出，其余档位使用流式输出
func (p *Planner) pick(state *model.State) (einomodel.ToolCallingChatModel, bool) {
	switch {
	case state.EnableDeepThinking:
		return p.models.Reasoning(), false
	case p.tier == "" || p.tier == consts.LLMBasic:
		return p.models.Plan(), true
	default:
		return p.models.ForTier(p.tier), false
	}
}

// generate 结构化模式一次返回，其他模式读取完整的流式输出
func generate(ctx context.Context, chat einomodel.ToolCallingChatModel, structured bool,
	input []*schema.Message) (string, error) {
	if structured {
		msg, err := chat.Generate(ctx, input)
		if err != nil {
			return "", err
		}
		return msg.Content, nil
	}

	sr, err := chat.Stream(ctx, input)
	if err != nil {
		return "", err
	}
	msg, err := comm.Concat(sr)
	if err != nil {
		return "", err
	}
	return msg.Content, nil
}

// router 校验计划并决定流向
func (p *Planner) router(state *model.State, content string, structured bool) string {
	in := transition.PlanningInput{
		Structured:      structured,
		PriorIterations: state.PlanIterations,
	}

	raw := strings.TrimSpace(content)
	in.Empty = raw == ""
	// 非结构化输出先尽力修复，修复结果只在输入为空时为空
	if !in.Empty && !structured {
		raw = repair.JSON(raw)
		in.RepairFailed = raw == ""
	}

	var plan *model.Plan
	if !in.Empty && !in.RepairFailed {
		var err error
		plan, err = model.ParsePlan(raw)
		if err != nil {
			slog.Error("planner failed, invalid plan err = %+v, content = %s", err, content)
		}
		in.Valid = err == nil
		in.HasEnoughContext = in.Valid && plan.HasEnoughContext
	}

	outcome, next := transition.ClassifyPlanning(in)
	p.metrics.PlanOutcome(outcome.String())
	slog.Info("planner info, outcome = %s, next = %s", outcome, next)

	// 只有通过校验的计划写入状态
	switch outcome {
	case transition.OutcomeEnoughContext:
		state.CurrentPlan = plan
		state.RawPlan = ""
		if plan.Locale != "" {
			state.Locale = plan.Locale
		}
		comm.ResolveTemplate(state, plan, p.templates)
		state.AppendMessage(comm.PlanMessage(raw))
	case transition.OutcomeNeedsReview:
		// 待审核的计划原文，人工接受后再解析
		state.RawPlan = raw
		state.AppendMessage(comm.PlanMessage(raw))
	}
	return next
}
