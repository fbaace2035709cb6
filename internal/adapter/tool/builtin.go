package tool

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"fcfilter/internal/domain"
	"fcfilter/internal/infra/config"
)

// Catalog is the assembled tool set with the resources it owns.
type Catalog struct {
	Registry *Registry
	bridge   *MCPBridge
}

// Close releases MCP connections.
func (c *Catalog) Close() {
	if c.bridge != nil {
		c.bridge.Close()
	}
}

// BuildCatalog registers the enabled built-in tools and any MCP-bridged
// tools. Built-in descriptor errors are fatal; MCP tools that fail
// validation are skipped. An empty result is an error.
func BuildCatalog(ctx context.Context, cfg *config.Config, gen domain.TextGenerator, logger *slog.Logger) (*Catalog, error) {
	reg := NewRegistry(logger)
	var builders []*SpecBuilder

	if cfg.Tools.Clock.Enabled {
		var loc *time.Location
		if cfg.Tools.Clock.Location != "" {
			l, err := time.LoadLocation(cfg.Tools.Clock.Location)
			if err != nil {
				return nil, domain.WrapOp("BuildCatalog", err)
			}
			loc = l
		}
		builders = append(builders, NewClock(loc).Specs()...)
	}
	if cfg.Tools.Weather.Enabled {
		client := &http.Client{Timeout: 15 * time.Second}
		builders = append(builders,
			NewWeather(cfg.Tools.Weather.BaseURL, cfg.Valves.OpenWeatherMapAPIKey, client, logger).Spec())
	}
	if cfg.Tools.Brave.Enabled {
		builders = append(builders,
			NewBraveSearch(cfg.Tools.Brave, cfg.Valves.BraveAPIKey, gen, logger).Spec())
	}
	for _, b := range builders {
		if err := reg.Add(b); err != nil {
			return nil, domain.WrapOp("BuildCatalog", err)
		}
	}

	cat := &Catalog{Registry: reg}
	if len(cfg.Tools.MCP) > 0 {
		cat.bridge = NewMCPBridge(ctx, cfg.Tools.MCP, logger)
		addMCPTools(ctx, reg, cat.bridge, logger)
	}

	if reg.Len() == 0 {
		cat.Close()
		return nil, domain.NewDomainError("BuildCatalog", domain.ErrInvalidInput, "no tools registered")
	}
	return cat, nil
}

func addMCPTools(ctx context.Context, reg *Registry, bridge *MCPBridge, logger *slog.Logger) {
	for _, b := range bridge.Specs(ctx) {
		if err := reg.Add(b); err != nil {
			logger.Warn("skipping mcp tool", "tool", b.name, "error", err)
		}
	}
}

// Describe renders the catalog as markdown, one section per tool.
func Describe(specs []domain.ToolSpec) string {
	var out strings.Builder
	for _, s := range specs {
		fmt.Fprintf(&out, "## %s\n\n%s\n\n", s.Name, s.Description)
		if len(s.Parameters.Properties) == 0 {
			out.WriteString("_No parameters._\n\n")
			continue
		}
		required := make(map[string]bool, len(s.Parameters.Required))
		for _, r := range s.Parameters.Required {
			required[r] = true
		}
		out.WriteString("| Parameter | Type | Required | Description |\n|---|---|---|---|\n")
		for _, name := range sortedKeys(s.Parameters.Properties) {
			p := s.Parameters.Properties[name]
			typ := p.Type
			if len(p.Enum) > 0 {
				typ += fmt.Sprintf(" %v", p.Enum)
			}
			fmt.Fprintf(&out, "| `%s` | %s | %t | %s |\n", name, typ, required[name], p.Description)
		}
		out.WriteString("\n")
	}
	return out.String()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
