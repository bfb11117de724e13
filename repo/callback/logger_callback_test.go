package callback

import (
	"context"
	"testing"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	ecmodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hildam/unghost-agent-go/entity/consts"
	"github.com/hildam/unghost-agent-go/entity/model"
)

var modelInfo = &callbacks.RunInfo{Name: "openai", Component: components.ComponentOfChatModel}

func TestAgentContext(t *testing.T) {
	assert.Equal(t, "", AgentFrom(context.Background()))
	assert.Equal(t, "planner", AgentFrom(WithAgent(context.Background(), "planner")))
}

func TestOnStartPushesNodeBanner(t *testing.T) {
	out := make(chan *model.ChatResp, 4)
	cb := &LoggerCallback{ID: "t1", Out: out}

	cb.OnStart(context.Background(), &callbacks.RunInfo{Name: consts.Planner, Type: consts.GraphName, Component: compose.ComponentOfLambda}, consts.Planner)
	cb.OnStart(context.Background(), &callbacks.RunInfo{Name: consts.GraphName, Component: compose.ComponentOfGraph}, consts.Planner)
	cb.OnStart(context.Background(), modelInfo, &ecmodel.CallbackInput{})

	require.Len(t, out, 1)
	resp := <-out
	assert.Equal(t, "node_start", resp.Event)
	assert.Equal(t, consts.Planner, resp.Agent)
	assert.Contains(t, Format(resp), "[planner]")
}

func TestOnEndPushesModelOutput(t *testing.T) {
	out := make(chan *model.ChatResp, 4)
	cb := &LoggerCallback{ID: "t1", Out: out}
	ctx := WithAgent(context.Background(), consts.Researcher)

	cb.OnEnd(ctx, modelInfo, &ecmodel.CallbackOutput{Message: schema.AssistantMessage("hello", nil)})
	cb.OnEnd(ctx, modelInfo, &ecmodel.CallbackOutput{Message: schema.AssistantMessage("", []schema.ToolCall{{
		ID:       "c1",
		Function: schema.FunctionCall{Name: "web_search", Arguments: `{"query":"acme"}`},
	}})})
	// 非模型组件的输出不推送
	cb.OnEnd(ctx, &callbacks.RunInfo{Component: "Lambda"}, schema.AssistantMessage("dup", nil))

	require.Len(t, out, 2)
	msg := <-out
	assert.Equal(t, "message_chunk", msg.Event)
	assert.Equal(t, consts.Researcher, msg.Agent)
	assert.Equal(t, "hello", Format(msg))

	call := <-out
	assert.Equal(t, "tool_calls", call.Event)
	assert.Equal(t, "\n[tool_call] web_search {\"query\":\"acme\"}", Format(call))
}

func TestOnEndWithStreamOutput(t *testing.T) {
	out := make(chan *model.ChatResp, 4)
	cb := &LoggerCallback{ID: "t1", Out: out}

	sr, sw := schema.Pipe[callbacks.CallbackOutput](2)
	go func() {
		defer sw.Close()
		sw.Send(&ecmodel.CallbackOutput{Message: schema.AssistantMessage("a", nil)}, nil)
		sw.Send(&ecmodel.CallbackOutput{Message: schema.AssistantMessage("b", nil)}, nil)
	}()
	cb.OnEndWithStreamOutput(context.Background(), modelInfo, sr)

	var got string
	for i := 0; i < 2; i++ {
		select {
		case resp := <-out:
			got += resp.Content
		case <-time.After(time.Second):
			t.Fatal("stream output not pushed")
		}
	}
	assert.Equal(t, "ab", got)
}

func TestToolResultTruncated(t *testing.T) {
	out := make(chan *model.ChatResp, 1)
	cb := &LoggerCallback{Out: out}
	long := make([]rune, maxToolResultChars+10)
	for i := range long {
		long[i] = 'x'
	}

	cb.OnEnd(context.Background(), &callbacks.RunInfo{Component: components.ComponentOfTool},
		schema.ToolMessage(string(long), "c1"))

	resp := <-out
	assert.Equal(t, "tool_call_result", resp.Event)
	assert.Equal(t, "c1", resp.ToolCallID)
	assert.Len(t, []rune(resp.Content), maxToolResultChars+3)
}

func TestOnErrorSkipsInterrupt(t *testing.T) {
	out := make(chan *model.ChatResp, 1)
	cb := &LoggerCallback{ID: "t1", Out: out}

	ctx := cb.OnError(context.Background(), &callbacks.RunInfo{Name: consts.Human}, compose.InterruptAndRerun)
	assert.NotNil(t, ctx)
	assert.Empty(t, out)
}
