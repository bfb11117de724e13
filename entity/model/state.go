package model

import (
	"encoding/json"

	"github.com/cloudwego/eino/schema"

	"github.com/hildam/unghost-agent-go/entity/consts"
)

// State 一次运行的会话状态，在所有节点间传递
type State struct {
	// 用户输入与各节点产出的消息，只追加
	Messages []*schema.Message `json:"messages,omitempty"`

	// 节点共享变量
	Goto                           string            `json:"goto,omitempty"`
	Locale                         string            `json:"locale,omitempty"`
	ResearchTopic                  string            `json:"research_topic,omitempty"`
	Observations                   []string          `json:"observations,omitempty"`
	Resources                      []Resource        `json:"resources,omitempty"`
	PlanIterations                 int               `json:"plan_iterations"`
	CurrentPlan                    *Plan             `json:"current_plan,omitempty"`
	RawPlan                        string            `json:"raw_plan,omitempty"`
	FinalReport                    string            `json:"final_report,omitempty"`
	BackgroundInvestigationResults string            `json:"background_investigation_results,omitempty"`
	InterruptFeedback              string            `json:"interrupt_feedback,omitempty"`
	SelectedTemplateID             string            `json:"selected_template_id,omitempty"`
	SelectedTemplate               *OutreachTemplate `json:"selected_template,omitempty"`
	UserBackground                 string            `json:"user_background,omitempty"`
	ReportStyle                    string            `json:"report_style,omitempty"`

	// 运行配置变量
	MaxPlanIterations             int  `json:"max_plan_iterations,omitempty"`
	MaxStepNum                    int  `json:"max_step_num,omitempty"`
	AutoAcceptedPlan              bool `json:"auto_accepted_plan"`
	EnableBackgroundInvestigation bool `json:"enable_background_investigation"`
	EnableDeepThinking            bool `json:"enable_deep_thinking"`
}

// NewState 使用用户输入创建初始状态
func NewState(userInput string) *State {
	return &State{
		Messages:          []*schema.Message{schema.UserMessage(userInput)},
		Locale:            consts.DefaultLocale,
		Goto:              consts.Coordinator,
		MaxPlanIterations: consts.DefaultMaxPlanIterations,
		MaxStepNum:        consts.DefaultMaxStepNum,
	}
}

// ApplyDefaults 补齐未设置的运行配置，避免迭代上限为 0 时计划者直接跳到报告
func (s *State) ApplyDefaults() {
	if s.MaxPlanIterations <= 0 {
		s.MaxPlanIterations = consts.DefaultMaxPlanIterations
	}
	if s.MaxStepNum <= 0 {
		s.MaxStepNum = consts.DefaultMaxStepNum
	}
	if s.Locale == "" {
		s.Locale = consts.DefaultLocale
	}
	if s.Goto == "" {
		s.Goto = consts.Coordinator
	}
}

// stateJSON 去掉方法集，避免 MarshalJSON 递归
type stateJSON State

// MarshalJSON 图检查点按 JSON 整体保存状态
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(stateJSON(s))
}

// UnmarshalJSON 从 JSON 恢复状态
func (s *State) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, (*stateJSON)(s))
}

// AppendMessage 追加消息
func (s *State) AppendMessage(msg *schema.Message) {
	s.Messages = append(s.Messages, msg)
}

// LastUserInput 返回最后一条用户消息内容
func (s *State) LastUserInput() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i] != nil && s.Messages[i].Role == schema.User {
			return s.Messages[i].Content
		}
	}
	return ""
}

// Resource 用户提供的参考资料
type Resource struct {
	URI         string `json:"uri" yaml:"uri"`
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description,omitempty" yaml:"description"`
}

// OutreachTemplate 触达消息模板
type OutreachTemplate struct {
	TemplateID     string `json:"template_id"`
	Tone           string `json:"tone"`
	UseCase        string `json:"use_case"`
	HookType       string `json:"hook_type"`
	CTAType        string `json:"cta_type"`
	PromptTemplate string `json:"prompt_template"`
}
