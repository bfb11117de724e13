package comm

import (
	"github.com/HildaM/logs/slog"

	"github.com/hildam/unghost-agent-go/entity/model"
)

// TemplateStore 触达模板查询
type TemplateStore interface {
	Get(id string) (*model.OutreachTemplate, bool)
	Summary() string
}

// ResolveTemplate 按计划中的模板ID（为空时使用预选ID）确定本次使用的模板
func ResolveTemplate(state *model.State, plan *model.Plan, store TemplateStore) {
	if store == nil {
		return
	}
	id := state.SelectedTemplateID
	if plan != nil && plan.SelectedTemplateID != "" {
		id = plan.SelectedTemplateID
	}
	if id == "" {
		return
	}
	tpl, ok := store.Get(id)
	if !ok {
		slog.Error("ResolveTemplate failed, template %s not found", id)
		return
	}
	state.SelectedTemplateID = id
	state.SelectedTemplate = tpl
}
