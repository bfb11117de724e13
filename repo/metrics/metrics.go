// Package metrics 工作流运行指标，基于 prometheus
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder 指标记录器，nil 时所有方法为空操作
type Recorder struct {
	nodeRuns       *prometheus.CounterVec
	nodeDuration   *prometheus.HistogramVec
	planOutcomes   *prometheus.CounterVec
	stepExecutions *prometheus.CounterVec
	runs           *prometheus.CounterVec
}

// NewRecorder 创建记录器，reg 为空时使用默认注册器
func NewRecorder(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Recorder{
		nodeRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "unghost_node_runs_total",
				Help: "Total number of workflow node executions by node and result",
			},
			[]string{"node", "result"},
		),
		nodeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "unghost_node_duration_seconds",
				Help:    "Duration of workflow node executions in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"node"},
		),
		planOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "unghost_plan_outcomes_total",
				Help: "Planner outcomes by classification",
			},
			[]string{"outcome"},
		),
		stepExecutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "unghost_step_executions_total",
				Help: "Plan step executions by executor and status",
			},
			[]string{"executor", "status"},
		),
		runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "unghost_runs_total",
				Help: "Workflow invocations by final status",
			},
			[]string{"status"},
		),
	}
}

// ObserveNode 记录节点执行
func (r *Recorder) ObserveNode(node string, duration time.Duration, err error) {
	if r == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	r.nodeRuns.WithLabelValues(node, result).Inc()
	r.nodeDuration.WithLabelValues(node).Observe(duration.Seconds())
}

// PlanOutcome 记录计划结果
func (r *Recorder) PlanOutcome(outcome string) {
	if r == nil {
		return
	}
	r.planOutcomes.WithLabelValues(outcome).Inc()
}

// StepExecuted 记录步骤执行
func (r *Recorder) StepExecuted(executor string, success bool) {
	if r == nil {
		return
	}
	status := "success"
	if !success {
		status = "failed"
	}
	r.stepExecutions.WithLabelValues(executor, status).Inc()
}

// RunFinished 记录一次调用的最终状态
func (r *Recorder) RunFinished(status string) {
	if r == nil {
		return
	}
	r.runs.WithLabelValues(status).Inc()
}
