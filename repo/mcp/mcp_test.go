package mcp

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/components/tool"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hildam/unghost-agent-go/entity/conf"
)

type fakeClient struct {
	tools   []mcpgo.Tool
	listErr error
	result  *mcpgo.CallToolResult
	callErr error
	lastReq mcpgo.CallToolRequest
	closed  bool
}

func (f *fakeClient) ListTools(ctx context.Context, request mcpgo.ListToolsRequest) (*mcpgo.ListToolsResult, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return &mcpgo.ListToolsResult{Tools: f.tools}, nil
}

func (f *fakeClient) CallTool(ctx context.Context, request mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	f.lastReq = request
	return f.result, f.callErr
}

func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

func mcpTool(name, desc string) mcpgo.Tool {
	return mcpgo.Tool{
		Name:        name,
		Description: desc,
		InputSchema: mcpgo.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{"query": map[string]any{"description": "search query"}},
			Required:   []string{"query"},
		},
	}
}

func toolNames(t *testing.T, tools []tool.BaseTool) []string {
	t.Helper()
	var names []string
	for _, tl := range tools {
		info, err := tl.Info(context.Background())
		require.NoError(t, err)
		names = append(names, info.Name)
	}
	return names
}

func newTestCatalog(t *testing.T) (*Catalog, *fakeClient, *fakeClient) {
	t.Helper()
	web := &fakeClient{tools: []mcpgo.Tool{mcpTool("tavily_search", "web search"), mcpTool("fetch", "fetch a url")}}
	py := &fakeClient{tools: []mcpgo.Tool{mcpTool("run_code", "Execute Python code")}}
	broken := &fakeClient{listErr: errors.New("down")}

	servers := map[string]conf.MCPServerConfig{
		"web":    {EnabledTools: []string{"tavily_search"}, AddToAgents: []string{"researcher"}},
		"py":     {EnabledTools: []string{"run_code"}, AddToAgents: []string{"coder"}},
		"broken": {EnabledTools: []string{"x"}, AddToAgents: []string{"researcher"}},
	}
	c := NewCatalogFromClients(context.Background(),
		map[string]Client{"web": web, "py": py, "broken": broken}, servers)
	return c, web, py
}

func TestCatalogToolsFor(t *testing.T) {
	c, _, _ := newTestCatalog(t)

	assert.Equal(t, []string{"tavily_search"}, toolNames(t, c.ToolsFor("researcher")))
	assert.Equal(t, []string{"run_code"}, toolNames(t, c.ToolsFor("coder")))
	assert.Empty(t, c.ToolsFor("strategizer"))

	info, err := c.ToolsFor("researcher")[0].Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Powered by 'web'.\nweb search", info.Desc)

	// 原始工具描述不受影响
	assert.Equal(t, "web search", c.servers[1].tools[0].toolDesc)
}

func TestCatalogLookups(t *testing.T) {
	c, _, _ := newTestCatalog(t)

	assert.Len(t, c.All(), 3)
	require.NotNil(t, c.SearchTool())
	assert.Equal(t, []string{"run_code"}, toolNames(t, c.ToolsMatching("python")))
}

func TestNilCatalog(t *testing.T) {
	var c *Catalog
	assert.Nil(t, c.All())
	assert.Nil(t, c.ToolsFor("researcher"))
	assert.Nil(t, c.SearchTool())
	assert.Nil(t, c.ToolsMatching("python"))
	assert.NoError(t, c.Close())
}

func TestCatalogClose(t *testing.T) {
	c, web, py := newTestCatalog(t)
	require.NoError(t, c.Close())
	assert.True(t, web.closed)
	assert.True(t, py.closed)
}

func TestMCPToolInvoke(t *testing.T) {
	c, web, _ := newTestCatalog(t)
	search := c.SearchTool()

	web.result = &mcpgo.CallToolResult{Content: []mcpgo.Content{
		mcpgo.TextContent{Type: "text", Text: "first"},
		mcpgo.TextContent{Type: "text", Text: "second"},
	}}
	out, err := search.InvokableRun(context.Background(), `{"query":"acme"}`)
	require.NoError(t, err)
	assert.Equal(t, "first\nsecond", out)
	assert.Equal(t, "tavily_search", web.lastReq.Params.Name)

	web.result = &mcpgo.CallToolResult{IsError: true, Content: []mcpgo.Content{mcpgo.TextContent{Type: "text", Text: "quota"}}}
	_, err = search.InvokableRun(context.Background(), `{"query":"acme"}`)
	assert.ErrorContains(t, err, "quota")

	web.callErr = errors.New("broken pipe")
	_, err = search.InvokableRun(context.Background(), `{"query":"acme"}`)
	assert.ErrorContains(t, err, "broken pipe")

	_, err = search.InvokableRun(context.Background(), `not json`)
	assert.Error(t, err)
}

func TestTransportOf(t *testing.T) {
	assert.Equal(t, transportStdio, transportOf("", ""))
	assert.Equal(t, transportSSE, transportOf("", "http://localhost:8000/sse"))
	assert.Equal(t, transportSSE, transportOf("SSE", ""))
}

func TestParseHeaders(t *testing.T) {
	got := parseHeaders([]string{"Authorization: Bearer x:y", "bad", " X-Key :v "})
	assert.Equal(t, map[string]string{"Authorization": "Bearer x:y", "X-Key": "v"}, got)
}
