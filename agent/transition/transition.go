// Package transition 工作流的路由决策表，不依赖模型调用，可独立测试
package transition

import (
	"strings"

	"github.com/hildam/unghost-agent-go/entity/consts"
	"github.com/hildam/unghost-agent-go/entity/model"
)

// AfterCoordinator 协调者之后的流向：未移交则结束，移交后按配置决定是否先做背景调查
func AfterCoordinator(handoff, backgroundEnabled bool) string {
	switch {
	case !handoff:
		return consts.End
	case backgroundEnabled:
		return consts.BackgroundInvestigator
	default:
		return consts.Planner
	}
}

// ReachedCeiling 计划迭代次数是否达到上限
func ReachedCeiling(planIterations, maxPlanIterations int) bool {
	return planIterations >= maxPlanIterations
}

// Salvage 计划无法解析时的兜底流向：之前至少完成过一轮迭代则尽力生成报告，否则结束
func Salvage(priorIterations int) string {
	if priorIterations > 0 {
		return consts.Reporter
	}
	return consts.End
}

// PlanOutcome 计划者单次生成的结果分类
type PlanOutcome int

const (
	OutcomeEmpty         PlanOutcome = iota // 模型输出为空或调用失败
	OutcomeRepairFailed                     // 非结构化输出修复后为空
	OutcomeInvalid                          // 缺失必填字段或无法解析
	OutcomeEnoughContext                    // 上下文充足，直接生成报告
	OutcomeNeedsReview                      // 需要人工审核
)

var outcomeNames = map[PlanOutcome]string{
	OutcomeEmpty:         "empty",
	OutcomeRepairFailed:  "repair_failed",
	OutcomeInvalid:       "invalid",
	OutcomeEnoughContext: "enough_context",
	OutcomeNeedsReview:   "needs_review",
}

func (o PlanOutcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return "unknown"
}

// PlanningInput 计划结果的判定条件
type PlanningInput struct {
	Empty            bool // 输出为空
	Structured       bool // 结构化输出模式，不做修复
	RepairFailed     bool // 修复后为空
	Valid            bool // 必填字段齐全且可解析
	HasEnoughContext bool // 计划声明上下文充足
	PriorIterations  int  // 已接受的计划迭代次数
}

// ClassifyPlanning 根据判定条件返回结果分类与下一个节点
func ClassifyPlanning(in PlanningInput) (PlanOutcome, string) {
	switch {
	case in.Empty:
		return OutcomeEmpty, consts.End
	case !in.Structured && in.RepairFailed:
		return OutcomeRepairFailed, consts.End
	case !in.Valid:
		return OutcomeInvalid, Salvage(in.PriorIterations)
	case in.HasEnoughContext:
		return OutcomeEnoughContext, consts.Reporter
	default:
		return OutcomeNeedsReview, consts.Human
	}
}

// FeedbackKind 人工反馈信号分类
type FeedbackKind int

const (
	FeedbackNone        FeedbackKind = iota // 尚无信号，需要挂起
	FeedbackEdit                            // 修改计划
	FeedbackAccept                          // 接受计划
	FeedbackUnsupported                     // 不支持的信号
)

// ClassifyFeedback 按前缀（忽略大小写）识别反馈信号，自动接受时总是视为接受
func ClassifyFeedback(autoAccept bool, signal string) FeedbackKind {
	if autoAccept {
		return FeedbackAccept
	}
	signal = strings.TrimSpace(signal)
	if signal == "" {
		return FeedbackNone
	}

	upper := strings.ToUpper(signal)
	switch {
	case strings.HasPrefix(upper, consts.EditPlan):
		return FeedbackEdit
	case strings.HasPrefix(upper, consts.AcceptPlan):
		return FeedbackAccept
	default:
		return FeedbackUnsupported
	}
}

// AfterAcceptance 计划被接受后的流向，priorIterations 为本次计数之前的迭代次数
func AfterAcceptance(parsed, hasEnoughContext bool, priorIterations int) string {
	switch {
	case !parsed:
		return Salvage(priorIterations)
	case hasEnoughContext:
		return consts.Reporter
	default:
		return consts.ResearchTeam
	}
}

// StepExecutors 步骤类型到执行者的映射，新增步骤类型时在此登记
var StepExecutors = map[model.StepType]string{
	model.Research:            consts.Researcher,
	model.PersonaResearch:     consts.Researcher,
	model.Processing:          consts.Coder,
	model.StrategyFormulation: consts.Strategizer,
	model.MessageDrafting:     consts.Strategizer,
}

// RouteStep 选择执行下一个步骤的节点，没有可执行步骤或类型未知时回到计划者
func RouteStep(plan *model.Plan) string {
	if plan == nil || len(plan.Steps) == 0 {
		return consts.Planner
	}

	_, step := plan.NextStep()
	if step == nil {
		return consts.Planner
	}
	if executor, ok := StepExecutors[step.StepType]; ok {
		return executor
	}
	return consts.Planner
}
