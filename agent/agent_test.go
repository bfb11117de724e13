package agent

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	einoagent "github.com/cloudwego/eino/flow/agent"
	"github.com/cloudwego/eino/schema"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hildam/unghost-agent-go/agent/coder"
	"github.com/hildam/unghost-agent-go/agent/coordinator"
	"github.com/hildam/unghost-agent-go/agent/executor"
	"github.com/hildam/unghost-agent-go/agent/human"
	"github.com/hildam/unghost-agent-go/agent/investigator"
	"github.com/hildam/unghost-agent-go/agent/planner"
	"github.com/hildam/unghost-agent-go/agent/reporter"
	"github.com/hildam/unghost-agent-go/agent/researcher"
	"github.com/hildam/unghost-agent-go/agent/strategizer"
	"github.com/hildam/unghost-agent-go/agent/team"
	"github.com/hildam/unghost-agent-go/entity/consts"
	"github.com/hildam/unghost-agent-go/entity/model"
	"github.com/hildam/unghost-agent-go/repo/callback"
	"github.com/hildam/unghost-agent-go/repo/checkpoint"
	"github.com/hildam/unghost-agent-go/repo/llm"
	"github.com/hildam/unghost-agent-go/repo/llm/llmtest"
	"github.com/hildam/unghost-agent-go/repo/metrics"
	"github.com/hildam/unghost-agent-go/repo/outreach"
	"github.com/hildam/unghost-agent-go/repo/template"
)

const handoff = `{"research_topic":"Cold email to Ada Lovelace, CTO at Acme","locale":"en-US"}`

const reviewPlan = `{"locale":"en-US","has_enough_context":false,"thought":"Profile Ada then draft","title":"Email Ada",
"steps":[
 {"need_search":true,"title":"Profile Ada","description":"Find Ada's role and interests","step_type":"persona_research"},
 {"need_search":false,"title":"Draft email","description":"Write the email","step_type":"message_drafting"}]}`

// direct 不带工具循环的执行者，直接调用模型
type direct struct {
	chat einomodel.ToolCallingChatModel
}

func (d *direct) Generate(ctx context.Context, input []*schema.Message, opts ...einoagent.AgentOption) (*schema.Message, error) {
	return d.chat.Generate(ctx, input)
}

func directFactory(ctx context.Context, chat einomodel.ToolCallingChatModel, tools []tool.BaseTool, maxStep int) (executor.Runnable, error) {
	return &direct{chat: chat}, nil
}

type harness struct {
	coordinator *llmtest.Model
	plan        *llmtest.Model
	executor    *llmtest.Model
	reporter    *llmtest.Model
	store       compose.CheckPointStore
	registry    *prometheus.Registry
}

func newHarness(coordinatorReplies, planReplies []llmtest.Reply) *harness {
	h := &harness{
		coordinator: llmtest.New(coordinatorReplies...),
		plan:        llmtest.New(planReplies...),
		executor:    llmtest.New(),
		reporter:    llmtest.New(llmtest.Text("Subject: Compilers at Acme\n\nHi Ada, ...")),
		store:       checkpoint.NewMemory(),
	}
	h.executor.Handler = func(input []*schema.Message) (*schema.Message, error) {
		return schema.AssistantMessage("Ada leads the compiler team and spoke at GopherCon.", nil), nil
	}
	return h
}

func (h *harness) workflow(t *testing.T) *Workflow {
	t.Helper()
	prompts := template.NewLoader("")
	templates, err := outreach.NewStore("")
	require.NoError(t, err)
	h.registry = prometheus.NewRegistry()
	recorder := metrics.NewRecorder(h.registry)
	models := llm.NewModelsFrom(llmtest.New(), llmtest.New(), h.plan)

	research, err := researcher.New(researcher.Tools{}, h.executor, prompts, directFactory, 25, recorder)
	require.NoError(t, err)
	strategy, err := strategizer.New(templates, nil, h.executor, prompts, directFactory, 25, recorder)
	require.NoError(t, err)
	code, err := coder.New(nil, nil, h.executor, prompts, directFactory, 25, recorder)
	require.NoError(t, err)

	w, err := NewWorkflow(context.Background(), []Agent{
		coordinator.New(h.coordinator, prompts),
		investigator.New(nil),
		planner.New(models, consts.LLMBasic, prompts, templates, recorder),
		human.New(templates),
		team.New(),
		research,
		strategy,
		code,
		reporter.New(h.reporter, prompts),
	}, h.store, recorder)
	require.NoError(t, err)
	return w
}

func (h *harness) runs(t *testing.T, status model.RunStatus) float64 {
	t.Helper()
	families, err := h.registry.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "unghost_runs_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "status" && l.GetValue() == string(status) {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func newState(autoAccept bool) *model.State {
	state := model.NewState("Write a cold email to Ada Lovelace, CTO at Acme")
	state.MaxPlanIterations = 1
	state.MaxStepNum = 3
	state.AutoAcceptedPlan = autoAccept
	return state
}

func TestNewWorkflowMissingAgents(t *testing.T) {
	_, err := NewWorkflow(context.Background(), []Agent{team.New()}, checkpoint.NewMemory(), nil)
	assert.ErrorContains(t, err, "missing agents")

	_, err = NewWorkflow(context.Background(), []Agent{team.New(), team.New()}, checkpoint.NewMemory(), nil)
	assert.ErrorContains(t, err, "duplicate agent")
}

func TestRunAutoAccept(t *testing.T) {
	h := newHarness(
		[]llmtest.Reply{llmtest.ToolCall(consts.HandoffToPlanner, handoff)},
		[]llmtest.Reply{llmtest.Text(reviewPlan)},
	)
	w := h.workflow(t)

	res, err := w.Run(context.Background(), "", newState(true))
	require.NoError(t, err)
	assert.NotEmpty(t, res.ThreadID)
	assert.Equal(t, model.StatusCompleted, res.Status)
	assert.Contains(t, res.FinalReport, "Hi Ada")

	state := res.State
	assert.Equal(t, 1, state.PlanIterations)
	require.NotNil(t, state.CurrentPlan)
	assert.True(t, state.CurrentPlan.AllDone())
	assert.Len(t, state.Observations, 2)
	assert.Len(t, h.executor.Calls(), 2)

	cp, err := w.Checkpoint(context.Background(), res.ThreadID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, cp.Status)
	assert.False(t, cp.PendingFeedback)
	assert.Equal(t, 1.0, h.runs(t, model.StatusCompleted))
	assert.Equal(t, 0.0, h.runs(t, model.StatusSuspended))
}

func TestRunSuspendAndResume(t *testing.T) {
	h := newHarness(
		[]llmtest.Reply{llmtest.ToolCall(consts.HandoffToPlanner, handoff)},
		[]llmtest.Reply{llmtest.Text(reviewPlan)},
	)
	w := h.workflow(t)
	ctx := context.Background()

	res, err := w.Run(ctx, "thread-1", newState(false))
	require.NoError(t, err)
	assert.Equal(t, model.StatusSuspended, res.Status)
	assert.Equal(t, "thread-1", res.ThreadID)
	assert.Equal(t, 0, res.State.PlanIterations)
	assert.NotEmpty(t, res.State.RawPlan)

	cp, err := w.Checkpoint(ctx, "thread-1")
	require.NoError(t, err)
	assert.True(t, cp.PendingFeedback)
	assert.Equal(t, consts.Human, cp.State.Goto)

	res, err = w.Resume(ctx, "thread-1", "[ACCEPTED]")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, res.Status)
	assert.Equal(t, 1, res.State.PlanIterations)
	assert.NotEmpty(t, res.FinalReport)

	// 已完成的会话不能再次恢复
	_, err = w.Resume(ctx, "thread-1", "[ACCEPTED]")
	assert.ErrorIs(t, err, model.ErrNotSuspended)
}

func TestRunEditLoop(t *testing.T) {
	h := newHarness(
		[]llmtest.Reply{llmtest.ToolCall(consts.HandoffToPlanner, handoff)},
		[]llmtest.Reply{llmtest.Text(reviewPlan), llmtest.Text(reviewPlan)},
	)
	w := h.workflow(t)
	ctx := context.Background()

	res, err := w.Run(ctx, "edit", newState(false))
	require.NoError(t, err)
	require.Equal(t, model.StatusSuspended, res.Status)

	res, err = w.Resume(ctx, "edit", "[EDIT_PLAN] also mention her GopherCon talk")
	require.NoError(t, err)
	assert.Equal(t, model.StatusSuspended, res.Status)
	assert.Equal(t, 0, res.State.PlanIterations)

	// 修改意见作为用户消息交给计划者
	calls := h.plan.Calls()
	require.Len(t, calls, 2)
	last := calls[1][len(calls[1])-1]
	assert.Equal(t, schema.User, last.Role)
	assert.Contains(t, last.Content, "GopherCon")

	res, err = w.Resume(ctx, "edit", "[accepted]")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, res.Status)
}

func TestRunUnsupportedFeedback(t *testing.T) {
	h := newHarness(
		[]llmtest.Reply{llmtest.ToolCall(consts.HandoffToPlanner, handoff)},
		[]llmtest.Reply{llmtest.Text(reviewPlan)},
	)
	w := h.workflow(t)
	ctx := context.Background()

	_, err := w.Run(ctx, "bad", newState(false))
	require.NoError(t, err)

	res, err := w.Resume(ctx, "bad", "maybe later")
	assert.ErrorIs(t, err, model.ErrUnsupportedFeedback)
	assert.Equal(t, model.StatusFailed, res.Status)

	cp, err := w.Checkpoint(ctx, "bad")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, cp.Status)
	assert.Contains(t, cp.Error, "unsupported feedback")
}

func TestRunTerminatesEarly(t *testing.T) {
	tests := []struct {
		name        string
		coordinator []llmtest.Reply
		plan        []llmtest.Reply
	}{
		{
			name:        "no handoff",
			coordinator: []llmtest.Reply{llmtest.Text("Hi! I only help with outreach messages.")},
		},
		{
			name:        "empty plan",
			coordinator: []llmtest.Reply{llmtest.ToolCall(consts.HandoffToPlanner, handoff)},
			plan:        []llmtest.Reply{llmtest.Text("")},
		},
		{
			name:        "invalid first plan",
			coordinator: []llmtest.Reply{llmtest.ToolCall(consts.HandoffToPlanner, handoff)},
			plan:        []llmtest.Reply{llmtest.Text(`{"title":"x"}`)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(tt.coordinator, tt.plan)
			res, err := h.workflow(t).Run(context.Background(), "", newState(true))
			require.NoError(t, err)
			assert.Equal(t, model.StatusTerminated, res.Status)
			assert.Empty(t, res.FinalReport)
			assert.Empty(t, h.reporter.Calls())
		})
	}
}

func TestRunCeilingSalvage(t *testing.T) {
	h := newHarness(nil, nil)
	w := h.workflow(t)

	// 已接受过一轮计划，计划者到达上限后直接生成报告
	state := newState(true)
	state.PlanIterations = 1
	state.Goto = consts.Planner
	res, err := w.Run(context.Background(), "", state)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, res.Status)
	assert.Empty(t, h.plan.Calls())
	assert.NotEmpty(t, res.FinalReport)
}

func TestRunCoordinatorError(t *testing.T) {
	h := newHarness([]llmtest.Reply{llmtest.Fail(errors.New("rate limited"))}, nil)
	w := h.workflow(t)

	res, err := w.Run(context.Background(), "boom", newState(true))
	assert.ErrorContains(t, err, "rate limited")
	assert.Equal(t, model.StatusFailed, res.Status)
	assert.Equal(t, 1.0, h.runs(t, model.StatusFailed))
}

func TestRunUnknownNode(t *testing.T) {
	w := newHarness(nil, nil).workflow(t)
	state := newState(true)
	state.Goto = "nowhere"
	_, err := w.Run(context.Background(), "", state)
	assert.ErrorIs(t, err, model.ErrUnknownNode)
}

func TestRunCanceled(t *testing.T) {
	w := newHarness(nil, nil).workflow(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := w.Run(ctx, "canceled", newState(true))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, model.StatusFailed, res.Status)

	cp, err := w.Checkpoint(context.Background(), "canceled")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, cp.Status)
}

func TestResumeErrors(t *testing.T) {
	w := newHarness(nil, nil).workflow(t)
	ctx := context.Background()

	_, err := w.Resume(ctx, "missing", "[ACCEPTED]")
	assert.ErrorIs(t, err, model.ErrThreadNotFound)

	require.NoError(t, w.acquire("busy"))
	_, err = w.Resume(ctx, "busy", "[ACCEPTED]")
	assert.ErrorIs(t, err, model.ErrThreadBusy)
	_, err = w.Run(ctx, "busy", newState(true))
	assert.ErrorIs(t, err, model.ErrThreadBusy)
	w.release("busy")
}

func TestRunCallbacks(t *testing.T) {
	h := newHarness(
		[]llmtest.Reply{llmtest.ToolCall(consts.HandoffToPlanner, handoff)},
		[]llmtest.Reply{llmtest.Text(reviewPlan)},
	)
	w := h.workflow(t)
	out := make(chan *model.ChatResp, 64)

	_, err := w.Run(context.Background(), "cb", newState(false), WithCallbacks(&callback.LoggerCallback{ID: "cb", Out: out}))
	require.NoError(t, err)
	close(out)

	var nodes []string
	for resp := range out {
		if resp.Event == "node_start" {
			nodes = append(nodes, resp.Agent)
		}
	}
	assert.Equal(t, []string{consts.Coordinator, consts.Planner, consts.Human}, nodes)
}

func TestRunWithSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoints.db")
	store, err := checkpoint.NewSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	h := newHarness(
		[]llmtest.Reply{llmtest.ToolCall(consts.HandoffToPlanner, handoff)},
		[]llmtest.Reply{llmtest.Text(reviewPlan)},
	)
	h.store = store
	w := h.workflow(t)
	ctx := context.Background()

	res, err := w.Run(ctx, "persisted", newState(false))
	require.NoError(t, err)
	require.Equal(t, model.StatusSuspended, res.Status)

	// 新的工作流实例从同一存储中恢复
	res, err = h.workflow(t).Resume(ctx, "persisted", "[ACCEPTED]")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, res.Status)
	assert.Len(t, res.State.Observations, 2)
}

func TestRunFillsZeroIterations(t *testing.T) {
	h := newHarness(
		[]llmtest.Reply{llmtest.ToolCall(consts.HandoffToPlanner, handoff)},
		[]llmtest.Reply{llmtest.Text(reviewPlan)},
	)
	w := h.workflow(t)

	// 未设置迭代上限时仍然先生成一轮计划
	state := newState(true)
	state.MaxPlanIterations = 0
	state.MaxStepNum = 0
	res, err := w.Run(context.Background(), "", state)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, res.Status)
	assert.Equal(t, 1, res.State.MaxPlanIterations)
	assert.Equal(t, 3, res.State.MaxStepNum)
	assert.Len(t, h.plan.Calls(), 1)
	require.NotNil(t, res.State.CurrentPlan)
	assert.Len(t, res.State.Observations, 2)
}

func TestRunSuspendWritesGraphCheckpoint(t *testing.T) {
	h := newHarness(
		[]llmtest.Reply{llmtest.ToolCall(consts.HandoffToPlanner, handoff)},
		[]llmtest.Reply{llmtest.Text(reviewPlan)},
	)
	w := h.workflow(t)
	ctx := context.Background()

	_, err := w.Run(ctx, "graph", newState(false))
	require.NoError(t, err)

	_, ok, err := h.store.Get(ctx, graphCheckPointID("graph"))
	require.NoError(t, err)
	assert.True(t, ok)

	// 恢复时只执行人工反馈之后的节点
	res, err := w.Resume(ctx, "graph", "[ACCEPTED]")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, res.Status)
	assert.Len(t, h.coordinator.Calls(), 1)
	assert.Len(t, h.plan.Calls(), 1)
	assert.Empty(t, res.State.InterruptFeedback)
}

func TestResumeFromRunRecordOnly(t *testing.T) {
	h := newHarness(
		[]llmtest.Reply{llmtest.ToolCall(consts.HandoffToPlanner, handoff)},
		[]llmtest.Reply{llmtest.Text(reviewPlan)},
	)
	ctx := context.Background()
	_, err := h.workflow(t).Run(ctx, "record", newState(false))
	require.NoError(t, err)

	// 只迁移运行记录，不带图检查点
	data, ok, err := h.store.Get(ctx, "record")
	require.NoError(t, err)
	require.True(t, ok)
	h.store = checkpoint.NewMemory()
	require.NoError(t, h.store.Set(ctx, "record", data))

	res, err := h.workflow(t).Resume(ctx, "record", "[ACCEPTED]")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, res.Status)
	assert.Equal(t, 1, res.State.PlanIterations)
	assert.Len(t, h.coordinator.Calls(), 1)
}
