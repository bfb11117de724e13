// Package agent 将各节点编排为 eino 任务图，在人工反馈处中断并通过检查点恢复
package agent

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/HildaM/logs/slog"
	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/compose"
	"github.com/google/uuid"

	"github.com/hildam/unghost-agent-go/entity/consts"
	"github.com/hildam/unghost-agent-go/entity/model"
	"github.com/hildam/unghost-agent-go/repo/callback"
	"github.com/hildam/unghost-agent-go/repo/metrics"
)

// maxRunSteps 单次调用最多执行的节点数
const maxRunSteps = 200

func init() {
	// 图检查点中保存会话状态
	if err := compose.RegisterSerializableType[model.State]("unghost_state"); err != nil {
		slog.Error("agent init failed, register state err = %+v", err)
	}
}

// Agent 工作流中的一个节点，返回下一个节点的名称
type Agent interface {
	Name() string
	Run(ctx context.Context, state *model.State) (next string, err error)
}

// Result 一次调用的结果
type Result struct {
	ThreadID    string          `json:"thread_id"`
	Status      model.RunStatus `json:"status"`
	FinalReport string          `json:"final_report,omitempty"`
	State       *model.State    `json:"state"`
}

// RunOption 单次调用的选项
type RunOption func(*runOptions)

type runOptions struct {
	handlers []callbacks.Handler
}

// WithCallbacks 本次调用使用的回调
func WithCallbacks(handlers ...callbacks.Handler) RunOption {
	return func(o *runOptions) {
		o.handlers = append(o.handlers, handlers...)
	}
}

// Workflow 工作流，多个会话可以并发运行，同一会话同时只能被一个调用驱动
type Workflow struct {
	agents   map[string]Agent
	runnable compose.Runnable[string, string]
	store    compose.CheckPointStore // 运行记录与图检查点存储，用 threadID 索引
	metrics  *metrics.Recorder

	mu     sync.Mutex
	active map[string]bool // 正在运行的会话
}

// NewWorkflow 创建工作流并编译任务图，所有节点都必须注册
func NewWorkflow(ctx context.Context, agents []Agent, store compose.CheckPointStore,
	recorder *metrics.Recorder) (*Workflow, error) {
	registry := make(map[string]Agent, len(agents))
	for _, a := range agents {
		if _, ok := registry[a.Name()]; ok {
			return nil, fmt.Errorf("duplicate agent: %s", a.Name())
		}
		registry[a.Name()] = a
	}

	var missing []string
	for _, name := range consts.GetAgentNameList() {
		if _, ok := registry[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		slog.Error("NewWorkflow failed, missing agents = %v", missing)
		return nil, fmt.Errorf("missing agents: %s", strings.Join(missing, ", "))
	}

	w := &Workflow{
		agents:  registry,
		store:   store,
		metrics: recorder,
		active:  make(map[string]bool),
	}
	runnable, err := w.build(ctx)
	if err != nil {
		return nil, err
	}
	w.runnable = runnable
	return w, nil
}

// build 构建任务图：START 按 state.Goto 分派，每个节点执行后同样按 state.Goto 路由
func (w *Workflow) build(ctx context.Context) (compose.Runnable[string, string], error) {
	// 初始化状态，新的调用使用会话中的初始状态，恢复时由检查点覆盖
	genState := func(ctx context.Context) *model.State {
		if s := sessionFrom(ctx); s != nil && s.state != nil {
			return s.state
		}
		return &model.State{}
	}
	graph := compose.NewGraph[string, string](compose.WithGenLocalState(genState))

	// 添加节点
	for name, a := range w.agents {
		if err := graph.AddLambdaNode(name, w.node(a), compose.WithNodeName(name)); err != nil {
			slog.Error("build failed, add node %s err = %+v", name, err)
			return nil, err
		}
	}

	// 构造branch
	ends := w.endNodes()
	if err := graph.AddBranch(compose.START, compose.NewGraphBranch(w.route, ends)); err != nil {
		return nil, err
	}
	for name := range w.agents {
		if err := graph.AddBranch(name, compose.NewGraphBranch(w.route, ends)); err != nil {
			return nil, err
		}
	}

	// 编译图
	runnable, err := graph.Compile(ctx,
		compose.WithGraphName(consts.GraphName),
		compose.WithNodeTriggerMode(compose.AnyPredecessor),
		compose.WithCheckPointStore(w.store),
		compose.WithMaxRunSteps(maxRunSteps),
	)
	if err != nil {
		slog.Error("build failed, compile err = %+v", err)
		return nil, err
	}
	return runnable, nil
}

// endNodes 分支可以到达的节点
func (w *Workflow) endNodes() map[string]bool {
	ends := map[string]bool{compose.END: true}
	for name := range w.agents {
		ends[name] = true
	}
	return ends
}

// node 将节点包装为 lambda，节点的输入输出为下一个节点的名称
func (w *Workflow) node(a Agent) *compose.Lambda {
	name := a.Name()
	return compose.InvokableLambda(func(ctx context.Context, input string) (output string, err error) {
		s := sessionFrom(ctx)
		err = compose.ProcessState[*model.State](ctx, func(ctx context.Context, state *model.State) error {
			if s != nil {
				s.state = state
			}

			start := time.Now()
			next, err := a.Run(callback.WithAgent(ctx, name), state)
			// 人工反馈挂起，图在此中断并保存检查点，恢复后重新执行本节点
			if errors.Is(err, model.ErrInterrupt) {
				w.metrics.ObserveNode(name, time.Since(start), nil)
				return compose.InterruptAndRerun
			}
			w.metrics.ObserveNode(name, time.Since(start), err)
			if err != nil {
				slog.Error("node failed, node = %s, err = %+v", name, err)
				return fmt.Errorf("%s: %w", name, err)
			}

			state.Goto = next
			output = next
			if s == nil {
				return nil
			}
			s.last = name
			return w.save(ctx, s.threadID, model.StatusRunning, state, "")
		})
		return output, err
	}, compose.WithLambdaType(consts.GraphName))
}

// route 根据状态中的Goto字段路由到下一个节点
func (w *Workflow) route(ctx context.Context, input string) (next string, err error) {
	defer func() {
		slog.Info("route_to_next_agent info, input = %s, next = %s", input, next)
	}()
	_ = compose.ProcessState[*model.State](ctx, func(_ context.Context, state *model.State) error {
		next = state.Goto
		return nil
	})

	if next == consts.End || next == compose.END {
		return compose.END, nil
	}
	if _, ok := w.agents[next]; !ok {
		return "", fmt.Errorf("%w: %s", model.ErrUnknownNode, next)
	}
	return next, nil
}

// Run 从 state.Goto（为空时从协调者）开始运行，threadID 为空时自动生成
func (w *Workflow) Run(ctx context.Context, threadID string, state *model.State, opts ...RunOption) (*Result, error) {
	if threadID == "" {
		threadID = uuid.New().String()
	}
	if err := w.acquire(threadID); err != nil {
		return nil, err
	}
	defer w.release(threadID)

	state.ApplyDefaults()
	slog.Info("Run info, thread = %s, start from %s", threadID, state.Goto)

	// 新的运行忽略该会话之前的检查点
	s := &session{threadID: threadID, state: state}
	return w.invoke(ctx, s, state.Goto, opts, compose.WithForceNewRun())
}

// Resume 向挂起的会话提交一条人工反馈，从检查点恢复运行
func (w *Workflow) Resume(ctx context.Context, threadID, feedback string, opts ...RunOption) (*Result, error) {
	if err := w.acquire(threadID); err != nil {
		return nil, err
	}
	defer w.release(threadID)

	cp, err := w.Checkpoint(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if cp.Status != model.StatusSuspended {
		return nil, fmt.Errorf("%w: status is %s", model.ErrNotSuspended, cp.Status)
	}
	slog.Info("Resume info, thread = %s, feedback = %s", threadID, feedback)

	// 图检查点缺失时，从运行记录中的状态重新进入人工反馈节点
	cp.State.InterruptFeedback = feedback
	cp.State.Goto = consts.Human

	// 检查点恢复出的状态写入人工反馈
	s := &session{threadID: threadID, state: cp.State}
	modifier := func(_ context.Context, _ compose.NodePath, state any) error {
		st, ok := state.(*model.State)
		if !ok {
			return fmt.Errorf("unexpected checkpoint state %T", state)
		}
		st.InterruptFeedback = feedback
		s.state = st
		return nil
	}
	return w.invoke(ctx, s, consts.Human, opts, compose.WithStateModifier(modifier))
}

// Checkpoint 读取会话的运行记录
func (w *Workflow) Checkpoint(ctx context.Context, threadID string) (*model.Checkpoint, error) {
	data, ok, err := w.store.Get(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrThreadNotFound, threadID)
	}
	return model.UnmarshalCheckpoint(data)
}

// invoke 执行任务图，按结果记录结束、挂起或失败
func (w *Workflow) invoke(ctx context.Context, s *session, input string, opts []RunOption,
	extra ...compose.Option) (*Result, error) {
	o := &runOptions{}
	for _, opt := range opts {
		opt(o)
	}

	// 构造调用选项
	callOpts := append([]compose.Option{compose.WithCheckPointID(graphCheckPointID(s.threadID))}, extra...)
	if len(o.handlers) > 0 {
		callOpts = append(callOpts, compose.WithCallbacks(o.handlers...))
	}

	_, err := w.runnable.Invoke(withSession(ctx, s), input, callOpts...)
	if info, ok := compose.ExtractInterruptInfo(err); ok {
		if st, ok := info.State.(*model.State); ok {
			s.state = st
		}
		return w.finish(ctx, s, model.StatusSuspended)
	}
	if err != nil {
		return w.fail(ctx, s, err)
	}

	status := model.StatusTerminated
	if s.last == consts.Reporter {
		status = model.StatusCompleted
	}
	return w.finish(ctx, s, status)
}

// finish 保存最终状态
func (w *Workflow) finish(ctx context.Context, s *session, status model.RunStatus) (*Result, error) {
	if err := w.save(ctx, s.threadID, status, s.state, ""); err != nil {
		return nil, err
	}
	w.metrics.RunFinished(string(status))
	slog.Info("Run info, thread = %s, status = %s", s.threadID, status)
	return &Result{ThreadID: s.threadID, Status: status, FinalReport: s.state.FinalReport, State: s.state}, nil
}

// fail 保存失败状态并返回错误
func (w *Workflow) fail(ctx context.Context, s *session, cause error) (*Result, error) {
	slog.Error("Run failed, thread = %s, err = %+v", s.threadID, cause)
	if err := w.save(ctx, s.threadID, model.StatusFailed, s.state, cause.Error()); err != nil {
		slog.Error("fail failed, save checkpoint err = %+v", err)
	}
	w.metrics.RunFinished(string(model.StatusFailed))
	return &Result{ThreadID: s.threadID, Status: model.StatusFailed, State: s.state}, cause
}

// save 写入运行记录，取消的 ctx 不影响写入
func (w *Workflow) save(ctx context.Context, threadID string, status model.RunStatus, state *model.State, errMsg string) error {
	cp := &model.Checkpoint{
		ThreadID:        threadID,
		Status:          status,
		PendingFeedback: status == model.StatusSuspended,
		Error:           errMsg,
		State:           state,
		UpdatedAt:       time.Now(),
	}
	data, err := cp.Marshal()
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	if err := w.store.Set(context.WithoutCancel(ctx), threadID, data); err != nil {
		slog.Error("save failed, thread = %s, err = %+v", threadID, err)
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// acquire 标记会话正在运行
func (w *Workflow) acquire(threadID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.active[threadID] {
		return fmt.Errorf("%w: %s", model.ErrThreadBusy, threadID)
	}
	w.active[threadID] = true
	return nil
}

// release 释放会话
func (w *Workflow) release(threadID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.active, threadID)
}

// graphCheckPointID 图检查点与运行记录分开存储
func graphCheckPointID(threadID string) string {
	return threadID + "#graph"
}

// session 一次调用内节点共享的会话信息
type session struct {
	threadID string
	state    *model.State // 最近一次节点看到的状态
	last     string       // 最近执行完成的节点
}

type sessionKey struct{}

func withSession(ctx context.Context, s *session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

func sessionFrom(ctx context.Context) *session {
	s, _ := ctx.Value(sessionKey{}).(*session)
	return s
}
