package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
)

// MCP 传输类型
const (
	transportStdio = "stdio"
	transportSSE   = "sse"
)

// Client MCP 客户端的最小接口，*client.Client 满足该接口
type Client interface {
	ListTools(ctx context.Context, request mcpgo.ListToolsRequest) (*mcpgo.ListToolsResult, error)
	CallTool(ctx context.Context, request mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error)
	Close() error
}

// transportOf 推断服务的传输类型，未显式配置时有 url 即为 sse
func transportOf(transport, url string) string {
	if transport != "" {
		return strings.ToLower(transport)
	}
	if url != "" {
		return transportSSE
	}
	return transportStdio
}

// parseHeaders 解析 "Key: Value" 格式的请求头
func parseHeaders(raw []string) map[string]string {
	headers := make(map[string]string, len(raw))
	for _, header := range raw {
		parts := strings.SplitN(header, ":", 2)
		if len(parts) == 2 {
			headers[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}
	return headers
}

// MCPTool MCP工具包装器
type MCPTool struct {
	cli         Client                // MCP客户端
	server      string                // 所属服务名称
	toolName    string                // 工具名称
	toolDesc    string                // 工具描述
	inputSchema mcpgo.ToolInputSchema // 输入参数Schema
}

// Name 工具名称
func (t *MCPTool) Name() string {
	return t.toolName
}

// Info 获取工具信息
func (t *MCPTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	params, err := convertMCPSchemaToEinoParams(t.inputSchema)
	if err != nil {
		return nil, fmt.Errorf("failed to convert schema: %w", err)
	}

	return &schema.ToolInfo{
		Name:        t.toolName,
		Desc:        t.toolDesc,
		ParamsOneOf: params,
	}, nil
}

// InvokableRun 可调用运行
func (t *MCPTool) InvokableRun(ctx context.Context, argumentsInJSON string, opts ...tool.Option) (string, error) {
	// 解析JSON参数
	var paramsMap map[string]any
	if strings.TrimSpace(argumentsInJSON) != "" {
		if err := json.Unmarshal([]byte(argumentsInJSON), &paramsMap); err != nil {
			return "", fmt.Errorf("failed to unmarshal params: %w", err)
		}
	}

	// 调用MCP工具
	callReq := mcpgo.CallToolRequest{}
	callReq.Params.Name = t.toolName
	callReq.Params.Arguments = paramsMap

	resp, err := t.cli.CallTool(ctx, callReq)
	if err != nil {
		return "", fmt.Errorf("MCP tool %s call failed: %w", t.toolName, err)
	}

	text, err := contentText(resp.Content)
	if err != nil {
		return "", err
	}
	if resp.IsError {
		if text == "" {
			text = "unknown error"
		}
		return "", fmt.Errorf("MCP tool %s error: %s", t.toolName, text)
	}
	return text, nil
}

// contentText 合并响应内容：文本直接拼接，其他类型序列化为 JSON
func contentText(contents []mcpgo.Content) (string, error) {
	parts := make([]string, 0, len(contents))
	for _, content := range contents {
		if text, ok := mcpgo.AsTextContent(content); ok {
			parts = append(parts, text.Text)
			continue
		}
		data, err := json.Marshal(content)
		if err != nil {
			return "", fmt.Errorf("failed to marshal response: %w", err)
		}
		parts = append(parts, string(data))
	}
	return strings.Join(parts, "\n"), nil
}
