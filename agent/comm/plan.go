package comm

import (
	"bytes"
	"encoding/json"

	"github.com/cloudwego/eino/schema"

	"github.com/hildam/unghost-agent-go/entity/consts"
)

// PlanMessage 以缩进后的 JSON 作为计划者消息，无法缩进时使用原文
func PlanMessage(raw string) *schema.Message {
	content := raw
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(raw), "", "  "); err == nil {
		content = buf.String()
	}
	msg := schema.AssistantMessage(content, nil)
	msg.Name = consts.Planner
	return msg
}
