// Package comm 各节点共用的提示词渲染与消息处理
package comm

import (
	"context"
	"io"
	"time"

	"github.com/HildaM/logs/slog"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/flow/agent/react"
	"github.com/cloudwego/eino/schema"

	"github.com/hildam/unghost-agent-go/entity/model"
)

// PromptLoader 提示词加载
type PromptLoader interface {
	GetPromptTemplate(ctx context.Context, promptName string) (string, error)
}

// Variables 所有提示词共用的模板变量
func Variables(state *model.State) map[string]any {
	return map[string]any{
		"locale":               state.Locale,                             // 用户语言设置
		"max_step_num":         state.MaxStepNum,                         // 最大步骤数
		"max_plan_iterations":  state.MaxPlanIterations,                  // 最大计划迭代次数
		"CURRENT_TIME":         time.Now().Format("2006-01-02 15:04:05"), // 当前时间
		"user_background":      state.UserBackground,                     // 发件人背景
		"report_style":         state.ReportStyle,                        // 报告风格
		"selected_template_id": state.SelectedTemplateID,                 // 预选模板
		"templates_summary":    "",                                       // 模板概览，由计划者填充
	}
}

// Render 渲染系统提示词，并把 input 作为用户输入拼接在其后
func Render(ctx context.Context, loader PromptLoader, name string, variables map[string]any,
	input []*schema.Message) ([]*schema.Message, error) {
	sysPrompt, err := loader.GetPromptTemplate(ctx, name)
	if err != nil {
		slog.Error("Render failed, GetPromptTemplate err = %+v, prompt name = %+v", err, name)
		return nil, err
	}

	promptTemp := prompt.FromMessages(schema.Jinja2,
		schema.SystemMessage(sysPrompt),
		schema.MessagesPlaceholder("user_input", true),
	)

	vars := make(map[string]any, len(variables)+1)
	for k, v := range variables {
		vars[k] = v
	}
	vars["user_input"] = input
	return promptTemp.Format(ctx, vars)
}

// NewMessageModifier 按 maxLimit 截断发送给模型的消息，只保留每条消息的后半段，state 中的消息不受影响
func NewMessageModifier(maxLimit int) react.MessageModifier {
	return func(ctx context.Context, inputList []*schema.Message) []*schema.Message {
		return Truncate(inputList, maxLimit)
	}
}

// Truncate 返回截断后的消息副本
func Truncate(inputList []*schema.Message, maxLimit int) []*schema.Message {
	if maxLimit <= 0 {
		return inputList
	}
	sum := 0
	output := make([]*schema.Message, 0, len(inputList))
	for _, input := range inputList {
		if input == nil {
			slog.Debug("ModifyInputFunc debug, input is nil")
			continue
		}

		content := []rune(input.Content)
		if length := len(content); length > maxLimit {
			slog.Debug("ModifyInputFunc debug, input content length is %d, max limit token is %d", length, maxLimit)
			cp := *input
			cp.Content = string(content[length-maxLimit:])
			input = &cp
		}
		sum += len(input.Content)
		output = append(output, input)
	}

	slog.Debug("ModifyInputFunc debug, input content sum length is %d", sum)
	return output
}

// ToolCallChecker 工具调用检查函数
func ToolCallChecker(ctx context.Context, sr *schema.StreamReader[*schema.Message]) (bool, error) {
	defer sr.Close()

	for {
		msg, err := sr.Recv()
		if err == io.EOF {
			slog.Debug("toolCallChecker debug, stream message eof")
			return false, nil
		}
		if err != nil {
			slog.Error("toolCallChecker failed, recv stream message failed, err = %+v", err)
			return false, err
		}

		if len(msg.ToolCalls) > 0 {
			return true, nil
		}
	}
}

// Concat 读取并合并流式消息
func Concat(sr *schema.StreamReader[*schema.Message]) (*schema.Message, error) {
	defer sr.Close()

	var chunks []*schema.Message
	for {
		chunk, err := sr.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	if len(chunks) == 0 {
		return schema.AssistantMessage("", nil), nil
	}
	return schema.ConcatMessages(chunks)
}
