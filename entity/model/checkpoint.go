package model

import (
	"encoding/json"
	"time"
)

// RunStatus 运行状态
type RunStatus string

const (
	StatusRunning    RunStatus = "running"    // 运行中
	StatusSuspended  RunStatus = "suspended"  // 等待人工反馈
	StatusCompleted  RunStatus = "completed"  // 已生成最终报告
	StatusTerminated RunStatus = "terminated" // 提前终止，无报告
	StatusFailed     RunStatus = "failed"     // 运行出错
)

// Checkpoint 可恢复的运行快照，人工反馈挂起时持久化
type Checkpoint struct {
	ThreadID        string    `json:"thread_id"`
	Status          RunStatus `json:"status"`
	PendingFeedback bool      `json:"pending_feedback"`
	Error           string    `json:"error,omitempty"`
	State           *State    `json:"state"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Marshal 序列化
func (c *Checkpoint) Marshal() ([]byte, error) {
	return json.Marshal(c)
}

// UnmarshalCheckpoint 反序列化
func UnmarshalCheckpoint(data []byte) (*Checkpoint, error) {
	cp := &Checkpoint{}
	if err := json.Unmarshal(data, cp); err != nil {
		return nil, err
	}
	return cp, nil
}
