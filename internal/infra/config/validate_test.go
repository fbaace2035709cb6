package config

import (
	"strings"
	"testing"
	"time"
)

func TestValidateDefaultsPass(t *testing.T) {
	cfg := Defaults()
	if err := Validate(cfg); err != nil {
		t.Fatalf("Defaults should pass validation: %v", err)
	}
}

func TestValidateFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty pipeline id", func(c *Config) { c.Pipeline.ID = "" }, "pipeline.id must not be empty"},
		{"pipeline id with slash", func(c *Config) { c.Pipeline.ID = "a/b" }, "must not contain '/'"},
		{"no targets", func(c *Config) { c.Valves.Pipelines = nil }, "valves.pipelines must list"},
		{"relative base url", func(c *Config) { c.Valves.OllamaAPIBaseURL = "localhost:11434" }, "valves.OLLAMA_API_BASE_URL"},
		{"empty base url", func(c *Config) { c.Valves.OllamaAPIBaseURL = "" }, "valves.OLLAMA_API_BASE_URL must not be empty"},
		{"empty model", func(c *Config) { c.Valves.TaskModel = "" }, "valves.TASK_MODEL must not be empty"},
		{"template without placeholder", func(c *Config) { c.Valves.Template = "context: none" }, "valves.TEMPLATE must contain {{CONTEXT}}"},
		{"zero aux timeout", func(c *Config) { c.Aux.Timeout = 0 }, "aux.timeout must be > 0"},
		{"bad response shape", func(c *Config) { c.Aux.ResponseShape = "xml" }, "aux.response_shape \"xml\" is invalid"},
		{"bad keep warm", func(c *Config) { c.Aux.KeepWarm = "every so often" }, "aux.keep_warm"},
		{"breaker without failures", func(c *Config) { c.Aux.CircuitBreaker.MaxFailures = 0 }, "aux.circuit_breaker.max_failures"},
		{"negative history", func(c *Config) { c.Filter.HistoryTurns = -1 }, "filter.history_turns must be >= 0"},
		{"negative context cap", func(c *Config) { c.Filter.MaxContextBytes = -1 }, "filter.max_context_bytes must be >= 0"},
		{"zero tool timeout", func(c *Config) { c.Tools.Timeout = 0 }, "tools.timeout must be > 0"},
		{"unknown zone", func(c *Config) { c.Tools.Clock.Location = "Mars/Olympus" }, "tools.clock.location"},
		{"weather url", func(c *Config) { c.Tools.Weather.BaseURL = "ftp://x" }, "tools.weather.base_url"},
		{"brave pages", func(c *Config) { c.Tools.Brave.MaxPages = 0 }, "tools.brave.max_pages must be > 0"},
		{"brave retries", func(c *Config) { c.Tools.Brave.MaxRetries = -1 }, "tools.brave.max_retries must be >= 0"},
		{"gateway addr", func(c *Config) { c.Gateway.Addr = "9099" }, "gateway.addr \"9099\" is not a valid host:port"},
		{"gateway burst", func(c *Config) { c.Gateway.BurstSize = 0 }, "gateway.burst_size must be > 0"},
		{"log level", func(c *Config) { c.Logger.Level = "trace" }, "logger.level \"trace\" is invalid"},
		{"log format", func(c *Config) { c.Logger.Format = "xml" }, "logger.format \"xml\" is invalid"},
		{"tracer exporter", func(c *Config) { c.Tracer.Enabled = true; c.Tracer.Exporter = "jaeger" }, "tracer.exporter \"jaeger\" is invalid"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			assertContains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateKeepWarmForms(t *testing.T) {
	for _, s := range []string{"5m", "@every 4m", "*/5 * * * *"} {
		cfg := Defaults()
		cfg.Aux.KeepWarm = s
		if err := Validate(cfg); err != nil {
			t.Errorf("keep_warm %q: %v", s, err)
		}
	}
}

func TestValidateDisabledToolsSkipURLChecks(t *testing.T) {
	cfg := Defaults()
	cfg.Tools.Brave.Enabled = false
	cfg.Tools.Brave.BaseURL = ""
	cfg.Tools.Weather.Enabled = false
	cfg.Tools.Weather.BaseURL = ""
	if err := Validate(cfg); err != nil {
		t.Fatalf("disabled tools should not be validated: %v", err)
	}
}

func TestValidateMCPServers(t *testing.T) {
	cfg := Defaults()
	cfg.Tools.MCP = []MCPServer{
		{Name: "fs", Transport: "stdio", Command: "mcp-fs"},
		{Name: "fs", Transport: "stdio", Command: "mcp-fs"},
		{Name: "remote", Transport: "http"},
		{Name: "", Transport: "stdio"},
		{Name: "odd", Transport: "grpc"},
		{Name: "bare", Transport: "stdio"},
	}
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	assertContains(t, msg, "duplicate server name \"fs\"")
	assertContains(t, msg, "tools.mcp[2].url must not be empty")
	assertContains(t, msg, "tools.mcp[3].name must not be empty")
	assertContains(t, msg, "transport \"grpc\" is invalid")
	assertContains(t, msg, "command is required for stdio transport")
}

func TestValidateAccumulatesErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Valves.TaskModel = ""
	cfg.Aux.Timeout = -time.Second
	cfg.Logger.Level = "loud"

	err := Validate(cfg)
	ve, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if len(ve.Errors) != 3 {
		t.Errorf("got %d errors, want 3: %v", len(ve.Errors), ve.Errors)
	}
}

func assertContains(t *testing.T, s, substr string) {
	t.Helper()
	if !strings.Contains(s, substr) {
		t.Errorf("expected %q to contain %q", s, substr)
	}
}
