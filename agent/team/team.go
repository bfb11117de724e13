// Package team 根据计划分派步骤执行者
package team

import (
	"context"

	"github.com/HildaM/logs/slog"

	"github.com/hildam/unghost-agent-go/agent/transition"
	"github.com/hildam/unghost-agent-go/entity/consts"
	"github.com/hildam/unghost-agent-go/entity/model"
)

// Team 步骤路由节点，不修改状态
type Team struct{}

// New 创建实例
func New() *Team {
	return &Team{}
}

// Name 节点名称
func (t *Team) Name() string {
	return consts.ResearchTeam
}

// Run 选择第一个未完成步骤的执行者，没有可执行步骤时回到计划者
func (t *Team) Run(ctx context.Context, state *model.State) (string, error) {
	next := transition.RouteStep(state.CurrentPlan)
	slog.Debug("research_team debug, next = %s", next)
	return next, nil
}
