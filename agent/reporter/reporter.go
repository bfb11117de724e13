// Package reporter 汇总所有观察结果，输出最终的触达报告
package reporter

import (
	"context"
	"fmt"

	"github.com/HildaM/logs/slog"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/hildam/unghost-agent-go/agent/comm"
	"github.com/hildam/unghost-agent-go/entity/consts"
	"github.com/hildam/unghost-agent-go/entity/model"
)

// structureReminder 报告结构要求
const structureReminder = "IMPORTANT: Structure your report according to the format in the prompt. Remember to include:\n\n" +
	"1. Outreach Summary - Who the message is for, the channel and the goal\n" +
	"2. Recipient Profile - The most relevant facts found about the recipient and their company\n" +
	"3. Outreach Strategy - The chosen template, tone, hook and call to action, and why they fit\n" +
	"4. Outreach Message - The final ready to send message, with a subject line for emails\n" +
	"5. Next Steps - Follow up timing and alternative variants worth testing\n" +
	"6. Sources - List all references at the end\n\n" +
	"For citations, DO NOT include inline citations in the text. Instead, place all citations in the 'Sources' section at the end using the format: `- [Source Title](URL)`. Include an empty line between each citation for better readability."

// Reporter 报告者
type Reporter struct {
	llm     einomodel.ToolCallingChatModel // llm模型服务
	prompts comm.PromptLoader              // 提示词
}

// New 创建实例
func New(llm einomodel.ToolCallingChatModel, prompts comm.PromptLoader) *Reporter {
	return &Reporter{llm: llm, prompts: prompts}
}

// Name 节点名称
func (r *Reporter) Name() string {
	return consts.Reporter
}

// Run 生成最终报告，模型调用失败时返回错误
func (r *Reporter) Run(ctx context.Context, state *model.State) (string, error) {
	input, err := r.loadMsg(ctx, state)
	if err != nil {
		return "", err
	}

	sr, err := r.llm.Stream(ctx, input)
	if err != nil {
		slog.Error("reporter failed, stream err = %+v", err)
		return "", fmt.Errorf("reporter stream: %w", err)
	}
	output, err := comm.Concat(sr)
	if err != nil {
		slog.Error("reporter failed, recv err = %+v", err)
		return "", fmt.Errorf("reporter recv: %w", err)
	}

	state.FinalReport = output.Content
	slog.Debug("reporter debug, final report = %s", state.FinalReport)
	return consts.End, nil
}

// loadMsg 组装任务说明、格式要求与每条观察结果
func (r *Reporter) loadMsg(ctx context.Context, state *model.State) ([]*schema.Message, error) {
	title, thought := state.ResearchTopic, state.ResearchTopic
	if state.CurrentPlan != nil {
		title, thought = state.CurrentPlan.Title, state.CurrentPlan.Thought
	}
	if title == "" && thought == "" {
		title = state.LastUserInput()
	}

	input := []*schema.Message{
		schema.UserMessage(fmt.Sprintf("# Research Requirements\n\n## Task\n\n%s\n\n## Description\n\n%s", title, thought)),
		schema.SystemMessage(structureReminder),
	}
	for _, obs := range state.Observations {
		input = append(input, schema.UserMessage(fmt.Sprintf("Below are some observations for the research task:\n\n%s", obs)))
	}
	return comm.Render(ctx, r.prompts, consts.Reporter, comm.Variables(state), input)
}
