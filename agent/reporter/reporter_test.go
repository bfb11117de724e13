package reporter

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hildam/unghost-agent-go/entity/consts"
	"github.com/hildam/unghost-agent-go/entity/model"
	"github.com/hildam/unghost-agent-go/repo/llm/llmtest"
	"github.com/hildam/unghost-agent-go/repo/template"
)

func TestReporterRun(t *testing.T) {
	chat := llmtest.New(llmtest.Text("## Outreach Summary\n\nHi Ada"))
	state := model.NewState("write to Ada")
	state.CurrentPlan = &model.Plan{Title: "Email Ada", Thought: "Ada is a CTO"}
	state.Observations = []string{"Ada is CTO", "Draft ready"}

	next, err := New(chat, template.NewLoader("")).Run(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, consts.End, next)
	assert.Equal(t, "## Outreach Summary\n\nHi Ada", state.FinalReport)

	input := chat.LastCall()
	require.Len(t, input, 5)
	assert.Equal(t, schema.System, input[0].Role)
	assert.Equal(t, "# Research Requirements\n\n## Task\n\nEmail Ada\n\n## Description\n\nAda is a CTO", input[1].Content)
	assert.Equal(t, structureReminder, input[2].Content)
	assert.Equal(t, "Below are some observations for the research task:\n\nAda is CTO", input[3].Content)
	assert.Equal(t, "Below are some observations for the research task:\n\nDraft ready", input[4].Content)
}

func TestReporterWithoutPlan(t *testing.T) {
	chat := llmtest.New(llmtest.Text("report"))
	state := model.NewState("write to Ada")
	state.ResearchTopic = "Email Ada at Acme"

	_, err := New(chat, template.NewLoader("")).Run(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, "# Research Requirements\n\n## Task\n\nEmail Ada at Acme\n\n## Description\n\nEmail Ada at Acme",
		chat.LastCall()[1].Content)
}

func TestReporterError(t *testing.T) {
	chat := llmtest.New(llmtest.Fail(errors.New("quota")))
	state := model.NewState("write to Ada")
	_, err := New(chat, template.NewLoader("")).Run(context.Background(), state)
	assert.ErrorContains(t, err, "quota")
	assert.Empty(t, state.FinalReport)
}
