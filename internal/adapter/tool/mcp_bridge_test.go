package tool

import (
	"context"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fcfilter/internal/domain"
)

type mockMCPClient struct {
	tools    []mcp.Tool
	listErr  error
	callFunc func(req mcp.CallToolRequest) (*mcp.CallToolResult, error)
	closed   bool
}

func (m *mockMCPClient) ListTools(context.Context, mcp.ListToolsRequest) (*mcp.ListToolsResult, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return &mcp.ListToolsResult{Tools: m.tools}, nil
}

func (m *mockMCPClient) CallTool(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if m.callFunc != nil {
		return m.callFunc(req)
	}
	return &mcp.CallToolResult{Content: []mcp.Content{mcp.NewTextContent("ok")}}, nil
}

func (m *mockMCPClient) Close() error {
	m.closed = true
	return nil
}

func newTestBridge(servers map[string]*mockMCPClient, order ...string) *MCPBridge {
	b := &MCPBridge{logger: newTestLogger()}
	for _, name := range order {
		b.servers = append(b.servers, mcpServerConn{name: name, client: servers[name]})
	}
	return b
}

func TestMCPBridgeSpecs(t *testing.T) {
	client := &mockMCPClient{
		tools: []mcp.Tool{
			mcp.NewTool("search-docs",
				mcp.WithDescription("Search the docs."),
				mcp.WithString("query", mcp.Required(), mcp.Description("What to look for.")),
				mcp.WithNumber("limit", mcp.Description("Max hits.")),
			),
		},
	}
	bridge := newTestBridge(map[string]*mockMCPClient{"docs.v2": client}, "docs.v2")

	builders := bridge.Specs(context.Background())
	require.Len(t, builders, 1)
	s, err := builders[0].Build()
	require.NoError(t, err)

	spec := s.Spec()
	assert.Equal(t, "mcp_docs_v2_search_docs", spec.Name)
	assert.Equal(t, "Search the docs.", spec.Description)
	assert.Equal(t, []string{"query"}, spec.Parameters.Required)
	assert.Equal(t, domain.ParamNumber, spec.Parameters.Properties["limit"].Type)

	assert.NoError(t, s.Validate(map[string]any{"query": "x"}))
	assert.ErrorIs(t, s.Validate(map[string]any{"limit": 3}), domain.ErrInvalidInput)
}

func TestMCPBridgeInvoke(t *testing.T) {
	var got mcp.CallToolRequest
	client := &mockMCPClient{
		tools: []mcp.Tool{mcp.NewTool("echo",
			mcp.WithDescription("Echo."),
			mcp.WithString("text", mcp.Required(), mcp.Description("Text.")),
		)},
		callFunc: func(req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			got = req
			return &mcp.CallToolResult{Content: []mcp.Content{
				mcp.NewTextContent("line one"),
				mcp.NewTextContent("line two"),
			}}, nil
		},
	}
	bridge := newTestBridge(map[string]*mockMCPClient{"util": client}, "util")

	s, err := bridge.Specs(context.Background())[0].Build()
	require.NoError(t, err)
	out, err := s.Invoke(context.Background(), domain.ToolArgs{"text": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two", out)
	assert.Equal(t, "echo", got.Params.Name)
	assert.Equal(t, map[string]any{"text": "hi"}, got.Params.Arguments)
}

func TestMCPBridgeToolError(t *testing.T) {
	client := &mockMCPClient{
		tools: []mcp.Tool{mcp.NewTool("fail", mcp.WithDescription("Fails."))},
		callFunc: func(mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return &mcp.CallToolResult{IsError: true, Content: []mcp.Content{mcp.NewTextContent("bad input")}}, nil
		},
	}
	bridge := newTestBridge(map[string]*mockMCPClient{"s": client}, "s")

	s, err := bridge.Specs(context.Background())[0].Build()
	require.NoError(t, err)
	_, err = s.Invoke(context.Background(), nil)
	assert.ErrorContains(t, err, "bad input")
}

func TestMCPBridgeSkipsFailingServer(t *testing.T) {
	good := &mockMCPClient{tools: []mcp.Tool{mcp.NewTool("t", mcp.WithDescription("T."))}}
	bad := &mockMCPClient{listErr: errors.New("connection reset")}
	bridge := newTestBridge(map[string]*mockMCPClient{"good": good, "bad": bad}, "bad", "good")

	builders := bridge.Specs(context.Background())
	require.Len(t, builders, 1)
	assert.Equal(t, "mcp_good_t", builders[0].name)
}

func TestMCPBridgeClose(t *testing.T) {
	a, b := &mockMCPClient{}, &mockMCPClient{}
	bridge := newTestBridge(map[string]*mockMCPClient{"a": a, "b": b}, "a", "b")
	bridge.Close()
	assert.True(t, a.closed)
	assert.True(t, b.closed)
}

func TestAddMCPToolsSkipsInvalid(t *testing.T) {
	untyped := mcp.Tool{Name: "raw", Description: "No types."}
	untyped.InputSchema.Type = "object"
	untyped.InputSchema.Properties = map[string]any{"x": map[string]any{"description": "x"}}

	client := &mockMCPClient{tools: []mcp.Tool{
		untyped,
		mcp.NewTool("fine", mcp.WithDescription("Fine.")),
	}}
	bridge := newTestBridge(map[string]*mockMCPClient{"s": client}, "s")

	reg := NewRegistry(newTestLogger())
	addMCPTools(context.Background(), reg, bridge, newTestLogger())
	require.Equal(t, 1, reg.Len())
	assert.Equal(t, "mcp_s_fine", reg.Specs()[0].Name)
}

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "my_server_v1", sanitizeName("my-server.v1"))
	assert.Equal(t, "ok_name", sanitizeName("ok_name"))
}

func TestEnvSlice(t *testing.T) {
	assert.Nil(t, envSlice(nil))
	assert.Equal(t, []string{"A=1"}, envSlice(map[string]string{"A": "1"}))
}
