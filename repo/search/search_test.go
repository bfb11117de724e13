package search

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/hildam/unghost-agent-go/entity/conf"
)

func tavilyServer(t *testing.T, status int) (*httptest.Server, *tavilyRequest) {
	t.Helper()
	got := &tavilyRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, got)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{
			"results": [{"title": "Acme raises Series B", "url": "https://news/acme", "content": "Acme raised $20M", "score": 0.9}],
			"images": [{"url": "https://img/acme.png", "description": "Acme logo"}]
		}`))
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func TestTavilySearch(t *testing.T) {
	srv, got := tavilyServer(t, http.StatusOK)
	tv, err := NewTavily(conf.SearchConfig{TavilyAPIKey: "key", Endpoint: srv.URL, Timeout: 5}, 3)
	require.NoError(t, err)

	results, err := tv.Search(context.Background(), "acme funding")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, Result{Type: TypePage, Title: "Acme raises Series B", URL: "https://news/acme", Content: "Acme raised $20M", Score: 0.9}, results[0])
	assert.Equal(t, Result{Type: TypeImage, ImageURL: "https://img/acme.png", ImageDescription: "Acme logo"}, results[1])

	assert.Equal(t, "key", got.APIKey)
	assert.Equal(t, "acme funding", got.Query)
	assert.Equal(t, 3, got.MaxResults)
}

func TestTavilyErrorStatus(t *testing.T) {
	srv, _ := tavilyServer(t, http.StatusUnauthorized)
	tv, err := NewTavily(conf.SearchConfig{Endpoint: srv.URL, Timeout: 5}, 3)
	require.NoError(t, err)

	_, err = tv.Search(context.Background(), "x")
	assert.ErrorContains(t, err, "401")
}

func TestTavilyTool(t *testing.T) {
	srv, _ := tavilyServer(t, http.StatusOK)
	tv, err := NewTavily(conf.SearchConfig{Endpoint: srv.URL, Timeout: 5}, 3)
	require.NoError(t, err)

	ws, err := tv.Tool()
	require.NoError(t, err)
	out, err := ws.InvokableRun(context.Background(), `{"query":"acme"}`)
	require.NoError(t, err)
	assert.Equal(t, "page", gjson.Get(out, "0.type").String())
	assert.Equal(t, "Acme logo", gjson.Get(out, "1.image_description").String())
}

// recordingSearch 记录查询的检索工具
type recordingSearch struct {
	queries []string
	err     error
}

func (r *recordingSearch) Info(ctx context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{Name: "web_search"}, nil
}

func (r *recordingSearch) InvokableRun(ctx context.Context, args string, opts ...tool.Option) (string, error) {
	r.queries = append(r.queries, gjson.Get(args, "query").String())
	if r.err != nil {
		return "", r.err
	}
	return "results", nil
}

func TestFocusedTools(t *testing.T) {
	searcher := &recordingSearch{}
	tools, err := FocusedTools(searcher)
	require.NoError(t, err)
	require.Len(t, tools, 4)

	ctx := context.Background()
	calls := []string{
		`{"name":"Ada Lovelace","company":"Acme"}`,
		`{"company":"Acme","focus":"funding"}`,
		`{"name":"Ada Lovelace"}`,
		`{"name":"Ada Lovelace","topic":"compilers"}`,
	}
	for i, args := range calls {
		out, err := tools[i].(tool.InvokableTool).InvokableRun(ctx, args)
		require.NoError(t, err)
		assert.Equal(t, "results", out)
	}
	assert.Equal(t, []string{
		"site:linkedin.com Ada Lovelace Acme",
		"Acme funding company news",
		"Ada Lovelace recent posts twitter OR x.com OR linkedin",
		"Ada Lovelace compilers talk OR podcast OR interview OR article",
	}, searcher.queries)
}

func TestFocusedToolsContainErrors(t *testing.T) {
	tools, err := FocusedTools(&recordingSearch{err: errors.New("rate limited")})
	require.NoError(t, err)

	out, err := tools[0].(tool.InvokableTool).InvokableRun(context.Background(), `{"name":"Ada"}`)
	require.NoError(t, err)
	assert.Equal(t, "Search failed. Error: rate limited", out)

	none, err := FocusedTools(nil)
	require.NoError(t, err)
	assert.Nil(t, none)
}
