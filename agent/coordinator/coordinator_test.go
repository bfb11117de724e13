package coordinator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hildam/unghost-agent-go/entity/consts"
	"github.com/hildam/unghost-agent-go/entity/model"
	"github.com/hildam/unghost-agent-go/repo/llm/llmtest"
	"github.com/hildam/unghost-agent-go/repo/template"
)

func TestCoordinatorHandoff(t *testing.T) {
	chat := llmtest.New(llmtest.ToolCall(consts.HandoffToPlanner, `{"research_topic":"Email Ada at Acme","locale":"zh-CN"}`))
	c := New(chat, template.NewLoader(""))

	state := model.NewState("帮我给 Acme 的 Ada 写一封邮件")
	state.EnableBackgroundInvestigation = true
	next, err := c.Run(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, consts.BackgroundInvestigator, next)
	assert.Equal(t, "zh-CN", state.Locale)
	assert.Equal(t, "Email Ada at Acme", state.ResearchTopic)

	require.Len(t, chat.Tools(), 1)
	assert.Equal(t, consts.HandoffToPlanner, chat.Tools()[0].Name)
	assert.Len(t, state.Messages, 1)
}

func TestCoordinatorHandoffFallbacks(t *testing.T) {
	// 任意工具调用都视为移交，缺失的参数保留原值
	chat := llmtest.New(llmtest.ToolCall("something_else", `{}`))
	state := model.NewState("write to Ada")

	next, err := New(chat, template.NewLoader("")).Run(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, consts.Planner, next)
	assert.Equal(t, consts.DefaultLocale, state.Locale)
	assert.Equal(t, "write to Ada", state.ResearchTopic)
}

func TestCoordinatorNoHandoff(t *testing.T) {
	chat := llmtest.New(llmtest.Text("Hello! What outreach can I help with?"))
	state := model.NewState("hi")

	next, err := New(chat, template.NewLoader("")).Run(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, consts.End, next)
	require.Len(t, state.Messages, 2)
	assert.Equal(t, consts.Coordinator, state.Messages[1].Name)
}

func TestCoordinatorModelError(t *testing.T) {
	chat := llmtest.New(llmtest.Fail(errors.New("rate limited")))
	_, err := New(chat, template.NewLoader("")).Run(context.Background(), model.NewState("hi"))
	assert.ErrorContains(t, err, "rate limited")
}
