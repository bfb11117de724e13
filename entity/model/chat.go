package model

// ChatResp 推送给控制台的消息块
type ChatResp struct {
	Event          string          `json:"event"`
	ThreadID       string          `json:"thread_id"`
	Agent          string          `json:"agent"`
	ID             string          `json:"id"`
	Role           string          `json:"role"`
	Content        string          `json:"content"`
	FinishReason   string          `json:"finish_reason,omitempty"`
	ToolCallID     string          `json:"tool_call_id,omitempty"`
	ToolCalls      []ToolResp      `json:"tool_calls,omitempty"`
	ToolCallChunks []ToolChunkResp `json:"tool_call_chunks,omitempty"`
}

// ToolResp 工具调用
type ToolResp struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
	Type string         `json:"type"`
	ID   string         `json:"id"`
}

// ToolChunkResp 工具调用参数块
type ToolChunkResp struct {
	Name string `json:"name"`
	Args string `json:"args"`
	Type string `json:"type"`
	ID   string `json:"id"`
}
