// Package llmtest 测试用的脚本化聊天模型
package llmtest

import (
	"context"
	"errors"
	"sync"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ErrNoResponse 脚本中的回复已用完
var ErrNoResponse = errors.New("llmtest: no scripted response")

// Reply 一次调用的返回
type Reply struct {
	Message *schema.Message
	Err     error
}

// Model 按顺序返回预设回复的聊天模型，记录每次调用的输入
type Model struct {
	mu      sync.Mutex
	replies []Reply
	calls   [][]*schema.Message
	tools   []*schema.ToolInfo

	// Handler 不为空时优先使用，用于根据输入动态生成回复
	Handler func(input []*schema.Message) (*schema.Message, error)
}

// New 使用预设回复创建模型
func New(replies ...Reply) *Model {
	return &Model{replies: replies}
}

// Text 返回纯文本回复
func Text(content string) Reply {
	return Reply{Message: schema.AssistantMessage(content, nil)}
}

// ToolCall 返回工具调用回复
func ToolCall(name, args string) Reply {
	return Reply{Message: schema.AssistantMessage("", []schema.ToolCall{{
		ID:       name + "_call",
		Type:     "function",
		Function: schema.FunctionCall{Name: name, Arguments: args},
	}})}
}

// Fail 返回错误
func Fail(err error) Reply {
	return Reply{Err: err}
}

// Generate 实现 model.BaseChatModel
func (m *Model) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, input)
	if m.Handler != nil {
		return m.Handler(input)
	}
	if len(m.replies) == 0 {
		return nil, ErrNoResponse
	}
	reply := m.replies[0]
	m.replies = m.replies[1:]
	return reply.Message, reply.Err
}

// Stream 实现 model.BaseChatModel，整条回复作为单个分片返回
func (m *Model) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

// WithTools 实现 model.ToolCallingChatModel，与原模型共享脚本与调用记录
func (m *Model) WithTools(tools []*schema.ToolInfo) (einomodel.ToolCallingChatModel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tools = tools
	return m, nil
}

// Calls 返回每次调用的输入
func (m *Model) Calls() [][]*schema.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]*schema.Message(nil), m.calls...)
}

// LastCall 返回最近一次调用的输入
func (m *Model) LastCall() []*schema.Message {
	calls := m.Calls()
	if len(calls) == 0 {
		return nil
	}
	return calls[len(calls)-1]
}

// Tools 返回最近一次绑定的工具
func (m *Model) Tools() []*schema.ToolInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tools
}
