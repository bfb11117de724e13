// Package mcp 管理 MCP 服务连接，并按执行者角色提供工具
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/HildaM/logs/slog"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/hildam/unghost-agent-go/entity/conf"
)

// initTimeout 单个服务初始化超时
const initTimeout = 30 * time.Second

// serverTools 单个服务的配置与工具
type serverTools struct {
	name  string
	cfg   conf.MCPServerConfig
	tools []*MCPTool
}

// Catalog MCP 工具目录，创建后只读，可在多个运行间共享；nil 表示没有配置 MCP 服务
type Catalog struct {
	clients map[string]Client
	servers []serverTools
}

// NewCatalog 连接所有配置的 MCP 服务并加载工具
func NewCatalog(ctx context.Context, servers map[string]conf.MCPServerConfig) (*Catalog, error) {
	clients, err := createMcpClients(ctx, servers)
	if err != nil {
		return nil, err
	}
	return NewCatalogFromClients(ctx, clients, servers), nil
}

// createMcpClients 创建MCP客户端
func createMcpClients(ctx context.Context, servers map[string]conf.MCPServerConfig) (map[string]Client, error) {
	clients := make(map[string]Client)
	closeAll := func() {
		for _, c := range clients {
			_ = c.Close()
		}
	}

	for name, server := range servers {
		var mcpClient *client.Client
		var err error

		kind := transportOf(server.Transport, server.URL)
		slog.Debug("createMcpClients debug, load mcp client = %+v, mcp type = %+v", name, kind)
		switch kind {
		case transportSSE:
			options := []transport.ClientOption{}
			if len(server.Headers) > 0 {
				options = append(options, transport.WithHeaders(parseHeaders(server.Headers)))
			}
			mcpClient, err = client.NewSSEMCPClient(server.URL, options...)
			if err == nil {
				err = mcpClient.Start(ctx)
			}
		case transportStdio:
			var env []string
			for k, v := range server.Env {
				env = append(env, fmt.Sprintf("%s=%s", k, v))
			}
			mcpClient, err = client.NewStdioMCPClient(server.Command, env, server.Args...)
		default:
			err = fmt.Errorf("unsupported transport %q", server.Transport)
		}
		if err != nil {
			closeAll()
			slog.Error("createMcpClients failed, name = %+v, err = %+v", name, err)
			return nil, fmt.Errorf("failed to create MCP client for %s: %w", name, err)
		}

		if err := initialize(ctx, mcpClient); err != nil {
			_ = mcpClient.Close()
			closeAll()
			slog.Error("createMcpClients failed, initialize name = %+v, err = %+v", name, err)
			return nil, fmt.Errorf("failed to initialize MCP client for %s: %w", name, err)
		}
		clients[name] = mcpClient
	}
	return clients, nil
}

// initialize 握手
func initialize(ctx context.Context, c *client.Client) error {
	ctx, cancel := context.WithTimeout(ctx, initTimeout)
	defer cancel()

	initRequest := mcpgo.InitializeRequest{}
	initRequest.Params.ProtocolVersion = mcpgo.LATEST_PROTOCOL_VERSION
	initRequest.Params.ClientInfo = mcpgo.Implementation{
		Name:    "unghost-agent",
		Version: "0.1.0",
	}
	initRequest.Params.Capabilities = mcpgo.ClientCapabilities{}
	_, err := c.Initialize(ctx, initRequest)
	return err
}

// NewCatalogFromClients 使用已连接的客户端加载工具，列举失败的服务会被跳过
func NewCatalogFromClients(ctx context.Context, clients map[string]Client, servers map[string]conf.MCPServerConfig) *Catalog {
	names := make([]string, 0, len(clients))
	for name := range clients {
		names = append(names, name)
	}
	// 保证工具顺序稳定
	sort.Strings(names)

	c := &Catalog{clients: clients}
	for _, name := range names {
		mcpClient := clients[name]
		toolsResp, err := mcpClient.ListTools(ctx, mcpgo.ListToolsRequest{})
		if err != nil {
			slog.Error("loadMCPTools failed, listing tools from %s, err = %+v", name, err)
			continue
		}

		entry := serverTools{name: name, cfg: servers[name]}
		for _, t := range toolsResp.Tools {
			entry.tools = append(entry.tools, &MCPTool{
				cli:         mcpClient,
				server:      name,
				toolName:    t.Name,
				toolDesc:    t.Description,
				inputSchema: t.InputSchema,
			})
		}
		slog.Debug("loadMCPTools debug, found %d tools from %s", len(entry.tools), name)
		c.servers = append(c.servers, entry)
	}
	return c
}

// All 全部工具
func (c *Catalog) All() []tool.BaseTool {
	if c == nil {
		return nil
	}
	var out []tool.BaseTool
	for _, s := range c.servers {
		for _, t := range s.tools {
			out = append(out, t)
		}
	}
	return out
}

// ToolsFor 返回挂载到指定执行者的工具：服务的 add_to_agents 包含该角色，且工具在 enabled_tools 中。
// 工具描述会加上所属服务的前缀。
func (c *Catalog) ToolsFor(role string) []tool.BaseTool {
	if c == nil {
		return nil
	}
	var out []tool.BaseTool
	for _, s := range c.servers {
		if !slices.Contains(s.cfg.AddToAgents, role) {
			continue
		}
		for _, t := range s.tools {
			if !slices.Contains(s.cfg.EnabledTools, t.toolName) {
				continue
			}
			scoped := *t
			scoped.toolDesc = fmt.Sprintf("Powered by '%s'.\n%s", s.name, t.toolDesc)
			out = append(out, &scoped)
		}
	}
	return out
}

// SearchTool 返回第一个名称以 search 结尾的工具，没有时返回 nil
func (c *Catalog) SearchTool() tool.InvokableTool {
	if c == nil {
		return nil
	}
	for _, s := range c.servers {
		for _, t := range s.tools {
			if strings.HasSuffix(t.toolName, "search") {
				return t
			}
		}
	}
	return nil
}

// ToolsMatching 返回名称或描述包含关键词的工具
func (c *Catalog) ToolsMatching(keyword string) []tool.BaseTool {
	if c == nil {
		return nil
	}
	keyword = strings.ToLower(keyword)
	var out []tool.BaseTool
	for _, s := range c.servers {
		for _, t := range s.tools {
			if strings.Contains(strings.ToLower(t.toolName), keyword) ||
				strings.Contains(strings.ToLower(t.toolDesc), keyword) {
				out = append(out, t)
			}
		}
	}
	return out
}

// Close 关闭所有连接
func (c *Catalog) Close() error {
	if c == nil {
		return nil
	}
	var firstErr error
	for name, cli := range c.clients {
		if err := cli.Close(); err != nil {
			slog.Error("Close failed, mcp server = %s, err = %+v", name, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// convertMCPSchemaToEinoParams 将MCP的InputSchema转换为eino的ParamsOneOf
func convertMCPSchemaToEinoParams(inputSchema mcpgo.ToolInputSchema) (*schema.ParamsOneOf, error) {
	schemaBytes, err := json.Marshal(inputSchema)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal input schema: %w", err)
	}

	var schemaMap map[string]interface{}
	if err := json.Unmarshal(schemaBytes, &schemaMap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal to map: %w", err)
	}

	// 确保schema有type字段
	if _, hasType := schemaMap["type"]; !hasType {
		if _, hasAnyOf := schemaMap["anyOf"]; !hasAnyOf {
			schemaMap["type"] = "object"
		}
	}

	// 属性缺少类型时按字符串处理
	if properties, ok := schemaMap["properties"].(map[string]interface{}); ok {
		for _, propValue := range properties {
			if propMap, ok := propValue.(map[string]interface{}); ok {
				if _, hasType := propMap["type"]; !hasType {
					if _, hasAnyOf := propMap["anyOf"]; !hasAnyOf {
						propMap["type"] = "string"
					}
				}
			}
		}
	}

	fixedSchemaBytes, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal fixed schema: %w", err)
	}

	var openAPISchema openapi3.Schema
	if err := json.Unmarshal(fixedSchemaBytes, &openAPISchema); err != nil {
		return nil, fmt.Errorf("failed to unmarshal to OpenAPI schema: %w", err)
	}
	return schema.NewParamsOneOfByOpenAPIV3(&openAPISchema), nil
}
