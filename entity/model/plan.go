package model

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// StepType 步骤类型
type StepType string

const (
	Research            StepType = "research"             // 通用调研
	Processing          StepType = "processing"           // 数据处理
	PersonaResearch     StepType = "persona_research"     // 收件人画像调研
	StrategyFormulation StepType = "strategy_formulation" // 触达策略制定
	MessageDrafting     StepType = "message_drafting"     // 消息起草
)

// StepTypes 全部步骤类型，新增类型时需要同步路由表
var StepTypes = []StepType{Research, Processing, PersonaResearch, StrategyFormulation, MessageDrafting}

// Step 计划中的单个步骤
type Step struct {
	NeedSearch   bool     `json:"need_search"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	StepType     StepType `json:"step_type"`
	ExecutionRes *string  `json:"execution_res,omitempty"`

	Channels                []string `json:"channels,omitempty"`
	FollowUpSequence        []string `json:"follow_up_sequence,omitempty"`
	ABTestVariants          []string `json:"ab_test_variants,omitempty"`
	TrendHijackingReference string   `json:"trend_hijacking_reference,omitempty"`
}

// Done 步骤是否已有执行结果
func (s *Step) Done() bool {
	return s.ExecutionRes != nil && *s.ExecutionRes != ""
}

// Plan 一次运行的执行计划
type Plan struct {
	Locale           string `json:"locale"`
	HasEnoughContext bool   `json:"has_enough_context"`
	Thought          string `json:"thought"`
	Title            string `json:"title"`
	Steps            []Step `json:"steps"`

	SelectedTemplateID      string   `json:"selected_template_id,omitempty"`
	SelectedTone            string   `json:"selected_tone,omitempty"`
	OverallChannels         []string `json:"overall_channels,omitempty"`
	OverallFollowUpSequence []string `json:"overall_follow_up_sequence,omitempty"`
	ABTestSummary           string   `json:"ab_test_summary,omitempty"`
	TrendHijackingSummary   string   `json:"trend_hijacking_summary,omitempty"`
}

// NextStep 返回第一个未执行的步骤及其下标，全部完成时返回 -1
func (p *Plan) NextStep() (int, *Step) {
	if p == nil {
		return -1, nil
	}
	for i := range p.Steps {
		if !p.Steps[i].Done() {
			return i, &p.Steps[i]
		}
	}
	return -1, nil
}

// AllDone 所有步骤是否执行完成
func (p *Plan) AllDone() bool {
	idx, _ := p.NextStep()
	return idx < 0
}

// CompletedSteps 返回第一个未执行步骤之前的已完成步骤
func (p *Plan) CompletedSteps() []Step {
	if p == nil {
		return nil
	}
	idx, _ := p.NextStep()
	if idx < 0 {
		return p.Steps
	}
	return p.Steps[:idx]
}

// RequiredPlanFields 计划必须包含的顶层字段
var RequiredPlanFields = []string{"locale", "has_enough_context", "thought", "title", "steps"}

// MissingPlanFields 返回 JSON 文本中缺失的必填字段
func MissingPlanFields(raw string) []string {
	var missing []string
	results := gjson.GetMany(raw, RequiredPlanFields...)
	for i, r := range results {
		if !r.Exists() {
			missing = append(missing, RequiredPlanFields[i])
		}
	}
	return missing
}

// ParsePlan 校验必填字段并解析计划
func ParsePlan(raw string) (*Plan, error) {
	if missing := MissingPlanFields(raw); len(missing) > 0 {
		return nil, fmt.Errorf("plan missing required fields: %s", strings.Join(missing, ", "))
	}
	plan := &Plan{}
	if err := json.Unmarshal([]byte(raw), plan); err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}
	return plan, nil
}
