package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"fcfilter/internal/domain"
	"fcfilter/internal/infra/config"
)

// MCPBridge connects to MCP servers and exposes their tools as descriptors.
type MCPBridge struct {
	servers []mcpServerConn
	logger  *slog.Logger
}

type mcpServerConn struct {
	name   string
	client mcpClient
}

// mcpClient abstracts the MCP client interface for testability.
type mcpClient interface {
	ListTools(ctx context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

// NewMCPBridge connects to every configured server. A server that fails to
// connect is logged and skipped.
func NewMCPBridge(ctx context.Context, servers []config.MCPServer, logger *slog.Logger) *MCPBridge {
	b := &MCPBridge{logger: logger}
	for _, srv := range servers {
		c, err := connectMCPServer(ctx, srv)
		if err != nil {
			logger.Warn("mcp server unavailable, skipping", "server", srv.Name, "error", err)
			continue
		}
		logger.Info("mcp server connected", "server", srv.Name, "transport", srv.Transport)
		b.servers = append(b.servers, mcpServerConn{name: srv.Name, client: c})
	}
	return b
}

func connectMCPServer(ctx context.Context, srv config.MCPServer) (mcpClient, error) {
	var c *mcpclient.Client
	var err error

	switch srv.Transport {
	case "stdio":
		c, err = mcpclient.NewStdioMCPClient(srv.Command, envSlice(srv.Env), srv.Args...)
		if err != nil {
			return nil, fmt.Errorf("create stdio client: %w", err)
		}
	case "http":
		t, tErr := transport.NewStreamableHTTP(srv.URL)
		if tErr != nil {
			return nil, fmt.Errorf("create http transport: %w", tErr)
		}
		c = mcpclient.NewClient(t)
		if err = c.Start(ctx); err != nil {
			return nil, fmt.Errorf("start http client: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported transport %q", srv.Transport)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "fcfilter", Version: "1.0.0"}
	if _, err = c.Initialize(ctx, initReq); err != nil {
		c.Close()
		return nil, domain.WrapOp("initialize", err)
	}
	return c, nil
}

// Specs lists the tools of every connected server as descriptor builders.
// A server whose listing fails is skipped.
func (b *MCPBridge) Specs(ctx context.Context) []*SpecBuilder {
	var out []*SpecBuilder
	for _, srv := range b.servers {
		result, err := srv.client.ListTools(ctx, mcp.ListToolsRequest{})
		if err != nil {
			b.logger.Warn("mcp tool discovery failed, skipping", "server", srv.name, "error", err)
			continue
		}
		for _, t := range result.Tools {
			out = append(out, mcpSpec(srv, t))
		}
		b.logger.Info("mcp tools discovered", "server", srv.name, "count", len(result.Tools))
	}
	return out
}

// Close shuts down all MCP server connections.
func (b *MCPBridge) Close() {
	for _, srv := range b.servers {
		if err := srv.client.Close(); err != nil {
			b.logger.Warn("mcp server close error", "server", srv.name, "error", err)
		}
	}
}

// mcpSpec maps an MCP tool onto a descriptor. Parameter metadata the
// descriptor cannot express is left to the tool's own input schema, which is
// used for argument validation.
func mcpSpec(srv mcpServerConn, t mcp.Tool) *SpecBuilder {
	desc := t.Description
	if desc == "" {
		desc = fmt.Sprintf("MCP tool %q from server %q", t.Name, srv.name)
	}
	b := NewSpec(fmt.Sprintf("mcp_%s_%s", sanitizeName(srv.name), sanitizeName(t.Name)), desc)

	required := make(map[string]bool, len(t.InputSchema.Required))
	for _, r := range t.InputSchema.Required {
		required[r] = true
	}

	names := make([]string, 0, len(t.InputSchema.Properties))
	for name := range t.InputSchema.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		prop, _ := t.InputSchema.Properties[name].(map[string]any)
		typ, _ := prop["type"].(string)
		pdesc, _ := prop["description"].(string)
		if pdesc == "" {
			pdesc, _ = prop["title"].(string)
		}

		var opts []ParamOption
		if enum, ok := prop["enum"].([]any); ok {
			opts = append(opts, WithEnum(enum...))
		}
		if def, ok := prop["default"]; ok {
			opts = append(opts, WithDefault(def))
		} else if !required[name] {
			opts = append(opts, Optional())
		}
		b.Param(name, typ, pdesc, opts...)
	}

	schema := map[string]any{"type": "object", "properties": t.InputSchema.Properties}
	if len(t.InputSchema.Required) > 0 {
		schema["required"] = t.InputSchema.Required
	}
	if raw, err := json.Marshal(schema); err == nil {
		b.ValidateWith(raw)
	}

	remote := t.Name
	return b.Handler(func(ctx context.Context, args domain.ToolArgs) (string, error) {
		req := mcp.CallToolRequest{}
		req.Params.Name = remote
		req.Params.Arguments = map[string]any(args)

		result, err := srv.client.CallTool(ctx, req)
		if err != nil {
			return "", fmt.Errorf("mcp %s/%s: %w", srv.name, remote, err)
		}
		content := extractMCPContent(result)
		if result.IsError {
			return "", errors.New("mcp tool error: " + truncate(content, 200))
		}
		return content, nil
	})
}

// extractMCPContent converts MCP CallToolResult content to a string.
func extractMCPContent(result *mcp.CallToolResult) string {
	var parts []string
	for _, c := range result.Content {
		switch v := c.(type) {
		case mcp.TextContent:
			parts = append(parts, v.Text)
		case *mcp.TextContent:
			parts = append(parts, v.Text)
		default:
			if data, err := json.Marshal(v); err == nil {
				parts = append(parts, string(data))
			}
		}
	}
	return strings.Join(parts, "\n")
}

// sanitizeName replaces characters that aren't valid in tool names.
func sanitizeName(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// envSlice converts a map of env vars to KEY=VALUE slices.
func envSlice(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	result := make([]string, 0, len(env))
	for k, v := range env {
		result = append(result, k+"="+v)
	}
	return result
}
