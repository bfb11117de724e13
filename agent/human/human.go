// Package human 计划的人工审核
package human

import (
	"context"
	"fmt"
	"strings"

	"github.com/HildaM/logs/slog"
	"github.com/cloudwego/eino/schema"

	"github.com/hildam/unghost-agent-go/agent/comm"
	"github.com/hildam/unghost-agent-go/agent/transition"
	"github.com/hildam/unghost-agent-go/entity/consts"
	"github.com/hildam/unghost-agent-go/entity/model"
	"github.com/hildam/unghost-agent-go/repo/repair"
)

// Gate 人工反馈节点
type Gate struct {
	templates comm.TemplateStore // 触达模板
}

// New 创建实例
func New(templates comm.TemplateStore) *Gate {
	return &Gate{templates: templates}
}

// Name 节点名称
func (g *Gate) Name() string {
	return consts.Human
}

// Run 没有反馈信号时返回 model.ErrInterrupt 挂起，信号在处理后清空
func (g *Gate) Run(ctx context.Context, state *model.State) (next string, err error) {
	feedback := state.InterruptFeedback
	// 计划已自动接受时忽略反馈内容
	kind := transition.ClassifyFeedback(state.AutoAcceptedPlan, feedback)

	switch kind {
	case transition.FeedbackNone:
		// 无有效反馈，中断等待用户输入
		slog.Info("human_feedback info, waiting for feedback")
		return "", model.ErrInterrupt
	case transition.FeedbackUnsupported:
		state.InterruptFeedback = ""
		return "", fmt.Errorf("%w: %q", model.ErrUnsupportedFeedback, feedback)
	case transition.FeedbackEdit:
		// 用户要求修改计划，修改意见作为用户消息交给Planner重新规划
		state.InterruptFeedback = ""
		msg := schema.UserMessage(strings.TrimSpace(feedback))
		msg.Name = "feedback"
		state.AppendMessage(msg)
		slog.Info("human_feedback info, plan edit requested")
		return consts.Planner, nil
	}

	// 用户接受当前计划，清理反馈状态，避免影响后续流程
	state.InterruptFeedback = ""
	return g.accept(state), nil
}

// accept 计数加一后解析待审核的计划
func (g *Gate) accept(state *model.State) string {
	// 1. 先计数，解析失败时用之前的次数决定是否兜底生成报告
	prior := state.PlanIterations
	state.PlanIterations++

	// 2. 解析计划
	plan, err := g.parse(state)
	if err != nil {
		slog.Error("human_feedback failed, parse plan err = %+v", err)
		return transition.AfterAcceptance(false, false, prior)
	}

	// 3. 计划生效，语言与模板以计划为准
	state.CurrentPlan = plan
	state.RawPlan = ""
	if plan.Locale != "" {
		state.Locale = plan.Locale
	}
	comm.ResolveTemplate(state, plan, g.templates)
	slog.Info("human_feedback info, plan accepted, iterations = %d", state.PlanIterations)
	return transition.AfterAcceptance(true, plan.HasEnoughContext, prior)
}

// parse 解析待审核的计划，没有待审核内容时使用已校验的计划
func (g *Gate) parse(state *model.State) (*model.Plan, error) {
	if state.RawPlan == "" {
		if state.CurrentPlan != nil {
			return state.CurrentPlan, nil
		}
		return nil, fmt.Errorf("no plan to accept")
	}
	return model.ParsePlan(repair.JSON(state.RawPlan))
}
