package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validatePipeline(cfg, ve)
	validateValves(cfg, ve)
	validateAux(cfg, ve)
	validateFilter(cfg, ve)
	validateTools(cfg, ve)
	validateGateway(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validatePipeline(cfg *Config, ve *ValidationError) {
	if cfg.Pipeline.ID == "" {
		ve.Add("pipeline.id must not be empty")
	}
	if strings.ContainsAny(cfg.Pipeline.ID, "/ ") {
		ve.Add("pipeline.id %q must not contain '/' or spaces", cfg.Pipeline.ID)
	}
}

func validateValves(cfg *Config, ve *ValidationError) {
	v := cfg.Valves
	if len(v.Pipelines) == 0 {
		ve.Add("valves.pipelines must list at least one target (use \"*\" for all)")
	}
	validateHTTPURL("valves.OLLAMA_API_BASE_URL", v.OllamaAPIBaseURL, ve)
	if v.TaskModel == "" {
		ve.Add("valves.TASK_MODEL must not be empty")
	}
	if !strings.Contains(v.Template, ContextPlaceholder) {
		ve.Add("valves.TEMPLATE must contain %s", ContextPlaceholder)
	}
}

var validResponseShapes = map[string]bool{
	"auto":   true,
	"ollama": true,
	"openai": true,
}

func validateAux(cfg *Config, ve *ValidationError) {
	a := cfg.Aux
	if a.Timeout <= 0 {
		ve.Add("aux.timeout must be > 0")
	}
	if a.ConnTimeout < 0 {
		ve.Add("aux.conn_timeout must be >= 0")
	}
	if !validResponseShapes[a.ResponseShape] {
		ve.Add("aux.response_shape %q is invalid (want: auto, ollama, openai)", a.ResponseShape)
	}
	if a.KeepWarm != "" && !validSchedule(a.KeepWarm) {
		ve.Add("aux.keep_warm %q is neither a cron expression nor a duration", a.KeepWarm)
	}
	if a.CircuitBreaker.Enabled {
		if a.CircuitBreaker.MaxFailures == 0 {
			ve.Add("aux.circuit_breaker.max_failures must be > 0 when enabled")
		}
		if a.CircuitBreaker.Timeout <= 0 {
			ve.Add("aux.circuit_breaker.timeout must be > 0 when enabled")
		}
	}
}

func validSchedule(s string) bool {
	if strings.HasPrefix(s, "@every ") {
		_, err := cron.ParseStandard(s)
		return err == nil
	}
	if _, err := time.ParseDuration(s); err == nil {
		return true
	}
	_, err := cron.ParseStandard(s)
	return err == nil
}

func validateFilter(cfg *Config, ve *ValidationError) {
	if cfg.Filter.HistoryTurns < 0 {
		ve.Add("filter.history_turns must be >= 0")
	}
	if cfg.Filter.MaxContextBytes < 0 {
		ve.Add("filter.max_context_bytes must be >= 0")
	}
}

var validMCPTransports = map[string]bool{
	"stdio": true,
	"http":  true,
}

func validateTools(cfg *Config, ve *ValidationError) {
	t := cfg.Tools
	if t.Timeout <= 0 {
		ve.Add("tools.timeout must be > 0")
	}
	if t.Clock.Location != "" {
		if _, err := time.LoadLocation(t.Clock.Location); err != nil {
			ve.Add("tools.clock.location %q: %v", t.Clock.Location, err)
		}
	}
	if t.Weather.Enabled {
		validateHTTPURL("tools.weather.base_url", t.Weather.BaseURL, ve)
	}
	if t.Brave.Enabled {
		validateHTTPURL("tools.brave.base_url", t.Brave.BaseURL, ve)
		validateHTTPURL("tools.brave.reader_url", t.Brave.ReaderURL, ve)
		if t.Brave.MaxRetries < 0 {
			ve.Add("tools.brave.max_retries must be >= 0")
		}
		if t.Brave.MaxPages <= 0 {
			ve.Add("tools.brave.max_pages must be > 0")
		}
		if t.Brave.RequestsPerSecond < 0 {
			ve.Add("tools.brave.requests_per_second must be >= 0")
		}
	}

	seen := make(map[string]bool)
	for i, s := range t.MCP {
		if s.Name == "" {
			ve.Add("tools.mcp[%d].name must not be empty", i)
			continue
		}
		if seen[s.Name] {
			ve.Add("tools.mcp[%d]: duplicate server name %q", i, s.Name)
		}
		seen[s.Name] = true
		if !validMCPTransports[s.Transport] {
			ve.Add("tools.mcp[%d] (%s): transport %q is invalid (want: stdio, http)", i, s.Name, s.Transport)
			continue
		}
		if s.Transport == "stdio" && s.Command == "" {
			ve.Add("tools.mcp[%d] (%s): command is required for stdio transport", i, s.Name)
		}
		if s.Transport == "http" {
			validateHTTPURL(fmt.Sprintf("tools.mcp[%d].url", i), s.URL, ve)
		}
	}
}

func validateGateway(cfg *Config, ve *ValidationError) {
	if cfg.Gateway.Addr == "" {
		ve.Add("gateway.addr must not be empty")
		return
	}
	if _, _, err := net.SplitHostPort(cfg.Gateway.Addr); err != nil {
		ve.Add("gateway.addr %q is not a valid host:port", cfg.Gateway.Addr)
	}
	if cfg.Gateway.RequestsPerMin < 0 {
		ve.Add("gateway.requests_per_min must be >= 0")
	}
	if cfg.Gateway.RequestsPerMin > 0 && cfg.Gateway.BurstSize <= 0 {
		ve.Add("gateway.burst_size must be > 0 when rate limiting is enabled")
	}
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validLogFormats = map[string]bool{
	"text": true,
	"json": true,
}

func validateLogger(cfg *Config, ve *ValidationError) {
	if !validLogLevels[cfg.Logger.Level] {
		ve.Add("logger.level %q is invalid (want: debug, info, warn, error)", cfg.Logger.Level)
	}
	if !validLogFormats[cfg.Logger.Format] {
		ve.Add("logger.format %q is invalid (want: text, json)", cfg.Logger.Format)
	}
}

var validExporters = map[string]bool{
	"stdout": true,
	"noop":   true,
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if cfg.Tracer.Enabled && !validExporters[cfg.Tracer.Exporter] {
		ve.Add("tracer.exporter %q is invalid (want: stdout, noop)", cfg.Tracer.Exporter)
	}
}

func validateHTTPURL(field, raw string, ve *ValidationError) {
	if raw == "" {
		ve.Add("%s must not be empty", field)
		return
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		ve.Add("%s %q must be an absolute http(s) URL", field, raw)
	}
}
