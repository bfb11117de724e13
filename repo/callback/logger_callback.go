// Package callback 将节点执行过程与模型输出推送到控制台
package callback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/HildaM/logs/slog"
	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	ecmodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/hildam/unghost-agent-go/entity/consts"
	"github.com/hildam/unghost-agent-go/entity/model"
)

// maxToolResultChars 工具结果在控制台上展示的最大长度
const maxToolResultChars = 500

type agentKey struct{}

// WithAgent 在 ctx 中记录当前执行的节点名称
func WithAgent(ctx context.Context, agent string) context.Context {
	return context.WithValue(ctx, agentKey{}, agent)
}

// AgentFrom 读取当前执行的节点名称
func AgentFrom(ctx context.Context) string {
	agent, _ := ctx.Value(agentKey{}).(string)
	return agent
}

// LoggerCallback 日志回调
type LoggerCallback struct {
	callbacks.HandlerBuilder // 可以用 callbacks.HandlerBuilder 来辅助实现 callback

	ID  string                 // 线程ID，用于标识当前对话会话
	Out chan<- *model.ChatResp // 输出通道，为空时只写日志
}

// pushF 推送数据到输出通道
func (cb *LoggerCallback) pushF(ctx context.Context, event string, data *model.ChatResp) {
	data.Event = event
	if cb.Out == nil {
		slog.Debug("pushF debug, event = %s, agent = %s, content = %s", event, data.Agent, data.Content)
		return
	}
	select {
	case cb.Out <- data:
	case <-ctx.Done():
	}
}

// pushMsg 根据消息类型（普通消息、工具调用、工具结果）推送
func (cb *LoggerCallback) pushMsg(ctx context.Context, msgID string, msg *schema.Message) {
	if msg == nil {
		return
	}

	fr := ""
	if msg.ResponseMeta != nil {
		fr = msg.ResponseMeta.FinishReason
	}
	data := &model.ChatResp{
		ThreadID:     cb.ID,
		Agent:        AgentFrom(ctx),
		ID:           msgID,
		Role:         "assistant",
		Content:      msg.Content,
		FinishReason: fr,
	}

	// 工具调用结果
	if msg.Role == schema.Tool {
		data.Role = "tool"
		data.ToolCallID = msg.ToolCallID
		if r := []rune(data.Content); len(r) > maxToolResultChars {
			data.Content = string(r[:maxToolResultChars]) + "..."
		}
		cb.pushF(ctx, "tool_call_result", data)
		return
	}

	// 工具调用
	if len(msg.ToolCalls) > 0 {
		event := "tool_call_chunks"
		for _, tc := range msg.ToolCalls {
			fn := tc.Function.Name
			if len(fn) > 0 {
				event = "tool_calls"
				data.ToolCalls = append(data.ToolCalls, model.ToolResp{
					Name: fn,
					Args: map[string]any{},
					Type: "tool_call",
					ID:   tc.ID,
				})
			}
			data.ToolCallChunks = append(data.ToolCallChunks, model.ToolChunkResp{
				Name: fn,
				Args: tc.Function.Arguments,
				Type: "tool_call_chunk",
				ID:   tc.ID,
			})
		}
		cb.pushF(ctx, event, data)
		return
	}

	if msg.Content == "" && msg.ReasoningContent == "" {
		return
	}
	if msg.Content == "" {
		data.Content = msg.ReasoningContent
		cb.pushF(ctx, "reasoning_chunk", data)
		return
	}
	cb.pushF(ctx, "message_chunk", data)
}

// pushFrame 按回调输出的类型推送
func (cb *LoggerCallback) pushFrame(ctx context.Context, msgID string, frame callbacks.CallbackOutput) {
	switch v := frame.(type) {
	case *schema.Message:
		cb.pushMsg(ctx, msgID, v)
	case *ecmodel.CallbackOutput:
		cb.pushMsg(ctx, msgID, v.Message)
	case []*schema.Message:
		for _, m := range v {
			cb.pushMsg(ctx, msgID, m)
		}
	case *tool.CallbackOutput:
		cb.pushMsg(ctx, msgID, schema.ToolMessage(v.Response, ""))
	}
}

// visible 只推送模型与工具的输出，避免智能体与图的汇总输出重复推送
func visible(info *callbacks.RunInfo) bool {
	return info != nil && (info.Component == components.ComponentOfChatModel || info.Component == components.ComponentOfTool)
}

// OnStart 工作流节点开始执行时推送分隔标记
func (cb *LoggerCallback) OnStart(ctx context.Context, info *callbacks.RunInfo, input callbacks.CallbackInput) context.Context {
	if info != nil && info.Type == consts.GraphName && info.Component == compose.ComponentOfLambda {
		slog.Info("OnStart info, thread = %s, node = %s", cb.ID, info.Name)
		cb.pushF(ctx, "node_start", &model.ChatResp{ThreadID: cb.ID, Agent: info.Name, Role: "system", Content: info.Name})
	}
	return ctx
}

// OnEnd 非流式的模型输出
func (cb *LoggerCallback) OnEnd(ctx context.Context, info *callbacks.RunInfo, output callbacks.CallbackOutput) context.Context {
	if !visible(info) {
		return ctx
	}
	cb.pushFrame(ctx, uuid.New().String(), output)
	return ctx
}

// OnError 记录错误，人工反馈中断不算错误
func (cb *LoggerCallback) OnError(ctx context.Context, info *callbacks.RunInfo, err error) context.Context {
	if _, ok := compose.IsInterruptRerunError(err); ok {
		slog.Info("OnError info, thread = %s, agent = %s, waiting for feedback", cb.ID, AgentFrom(ctx))
		return ctx
	}
	name := ""
	if info != nil {
		name = info.Name
	}
	slog.Error("OnError failed, thread = %s, agent = %s, component = %s, err = %+v", cb.ID, AgentFrom(ctx), name, err)
	return ctx
}

// OnEndWithStreamOutput 处理流式输出，逐帧推送
func (cb *LoggerCallback) OnEndWithStreamOutput(ctx context.Context, info *callbacks.RunInfo,
	output *schema.StreamReader[callbacks.CallbackOutput]) context.Context {
	if !visible(info) {
		output.Close()
		return ctx
	}
	// 生成唯一消息ID，用于标识本次流式会话
	msgID := uuid.New().String()
	go func() {
		defer output.Close()
		defer func() {
			if err := recover(); err != nil {
				slog.Error("OnEndStream panic_recover, msgID = %s, err = %v", msgID, err)
			}
		}()
		for {
			frame, err := output.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				slog.Error("OnEndStream recv_error, msgID = %s, err = %v", msgID, err)
				return
			}
			cb.pushFrame(ctx, msgID, frame)
		}
	}()
	return ctx
}

// OnStartWithStreamInput 流式输入不做处理，只负责关闭
func (cb *LoggerCallback) OnStartWithStreamInput(ctx context.Context, info *callbacks.RunInfo,
	input *schema.StreamReader[callbacks.CallbackInput]) context.Context {
	defer input.Close()
	return ctx
}

// Format 控制台展示格式
func Format(resp *model.ChatResp) string {
	switch resp.Event {
	case "node_start":
		return fmt.Sprintf("\n==================\n [%s] \n==================\n", resp.Agent)
	case "tool_calls":
		names := make([]string, 0, len(resp.ToolCalls))
		for _, tc := range resp.ToolCalls {
			names = append(names, tc.Name)
		}
		args := make([]string, 0, len(resp.ToolCallChunks))
		for _, tc := range resp.ToolCallChunks {
			args = append(args, tc.Args)
		}
		return fmt.Sprintf("\n[tool_call] %s %s", strings.Join(names, ","), strings.Join(args, ""))
	case "tool_call_chunks":
		args := make([]string, 0, len(resp.ToolCallChunks))
		for _, tc := range resp.ToolCallChunks {
			args = append(args, tc.Args)
		}
		return strings.Join(args, "")
	case "tool_call_result":
		return fmt.Sprintf("\n[tool_result] %s\n", resp.Content)
	default:
		return resp.Content
	}
}
