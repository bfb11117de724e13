package outreach

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"

	"github.com/hildam/unghost-agent-go/entity/model"
)

// 模板工具名称
const (
	ListToolName   = "list_outreach_templates"
	GetToolName    = "get_outreach_template"
	SelectToolName = "select_outreach_template"
	FillToolName   = "fill_outreach_template"
)

// ListInput 模板列表参数
type ListInput struct {
	Tone    string `json:"tone,omitempty" jsonschema:"description=Optional tone filter such as Friendly or Professional"`
	UseCase string `json:"use_case,omitempty" jsonschema:"description=Optional use case keyword filter"`
}

// GetInput 模板查询参数
type GetInput struct {
	TemplateID string `json:"template_id" jsonschema:"description=The template ID such as T01"`
}

// SelectInput 模板选择参数
type SelectInput struct {
	RecipientName     string `json:"recipient_name,omitempty" jsonschema:"description=Name of the recipient if known"`
	RecipientCompany  string `json:"recipient_company,omitempty" jsonschema:"description=Company of the recipient if known"`
	RecentActivity    string `json:"recent_activity,omitempty" jsonschema:"description=A recent post or topic the recipient engaged with"`
	SharedCommunities string `json:"shared_communities,omitempty" jsonschema:"description=Communities shared by sender and recipient"`
	PreferredTone     string `json:"preferred_tone,omitempty" jsonschema:"description=Preferred tone of the message"`
	UseCase           string `json:"use_case,omitempty" jsonschema:"description=The outreach goal"`
}

// FillInput 模板填充参数
type FillInput struct {
	TemplateID string            `json:"template_id" jsonschema:"description=The template ID to fill"`
	Values     map[string]string `json:"values" jsonschema:"description=Variable values keyed by variable name without braces"`
}

// Tools 策略者使用的模板工具
func (s *Store) Tools() ([]tool.BaseTool, error) {
	list, err := utils.InferTool(ListToolName,
		"List the available outreach message templates, optionally filtered by tone or use case.",
		s.listTool)
	if err != nil {
		return nil, err
	}
	get, err := utils.InferTool(GetToolName,
		"Get the full outreach template for a template ID including its variables.",
		s.getTool)
	if err != nil {
		return nil, err
	}
	sel, err := utils.InferTool(SelectToolName,
		"Select the outreach template that best matches what is known about the recipient.",
		s.selectTool)
	if err != nil {
		return nil, err
	}
	fill, err := utils.InferTool(FillToolName,
		"Fill the variables of an outreach template and return the resulting message draft.",
		s.fillTool)
	if err != nil {
		return nil, err
	}
	return []tool.BaseTool{list, get, sel, fill}, nil
}

func (s *Store) listTool(_ context.Context, in *ListInput) (string, error) {
	templates := s.templates
	if in.Tone != "" {
		templates = s.ByTone(in.Tone)
	}
	if in.UseCase != "" {
		var filtered []model.OutreachTemplate
		for _, tpl := range s.ByUseCase(in.UseCase) {
			if in.Tone == "" || containsTemplate(templates, tpl.TemplateID) {
				filtered = append(filtered, tpl)
			}
		}
		templates = filtered
	}
	if len(templates) == 0 {
		return "No outreach templates match the given filters.", nil
	}
	return Summarize(templates), nil
}

func (s *Store) getTool(_ context.Context, in *GetInput) (string, error) {
	tpl, ok := s.Get(in.TemplateID)
	if !ok {
		return fmt.Sprintf("Template %s not found.", in.TemplateID), nil
	}
	return templateJSON(*tpl)
}

func (s *Store) selectTool(_ context.Context, in *SelectInput) (string, error) {
	ctx := map[string]string{
		"recipient_name":     in.RecipientName,
		"recipient_company":  in.RecipientCompany,
		"recent_activity":    in.RecentActivity,
		"shared_communities": in.SharedCommunities,
	}
	tpl := s.SelectBest(ctx, in.PreferredTone, in.UseCase)
	if tpl == nil {
		return "No suitable outreach template found for the given context.", nil
	}
	return templateJSON(*tpl)
}

func (s *Store) fillTool(_ context.Context, in *FillInput) (string, error) {
	tpl, ok := s.Get(in.TemplateID)
	if !ok {
		return fmt.Sprintf("Template %s not found.", in.TemplateID), nil
	}
	return Fill(*tpl, in.Values), nil
}

// templateJSON 模板与其变量列表
func templateJSON(tpl model.OutreachTemplate) (string, error) {
	data, err := json.Marshal(struct {
		model.OutreachTemplate
		Variables []string `json:"variables"`
	}{tpl, Variables(tpl)})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func containsTemplate(templates []model.OutreachTemplate, id string) bool {
	for _, tpl := range templates {
		if tpl.TemplateID == id {
			return true
		}
	}
	return false
}
