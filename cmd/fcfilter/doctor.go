package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"fcfilter/internal/adapter/tool"
	"fcfilter/internal/infra/config"
)

// CheckStatus represents the result of a health check.
type CheckStatus string

const (
	StatusPass CheckStatus = "PASS"
	StatusWarn CheckStatus = "WARN"
	StatusFail CheckStatus = "FAIL"
)

// CheckResult holds the outcome of a single health check.
type CheckResult struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string // optional fix suggestion
}

// Check is a named health check function.
type Check struct {
	Name string
	Fn   func(cfg *config.Config) CheckResult
}

func runDoctor(w io.Writer) error {
	cfgPath := configPath()
	cfg, cfgErr := config.Load(cfgPath)

	checks := []Check{
		{Name: "Config file", Fn: checkConfigFile(cfgPath, cfgErr)},
		{Name: "Task model", Fn: checkTaskModel},
		{Name: "Tool API keys", Fn: checkToolKeys},
		{Name: "Tool catalog", Fn: checkCatalog},
		{Name: "Gateway address", Fn: checkGatewayAddr},
	}

	fmt.Fprintln(w, "fcfilter doctor")
	fmt.Fprintln(w, strings.Repeat("=", 50))
	fmt.Fprintln(w)

	var pass, warn, fail int
	for _, check := range checks {
		result := check.Fn(cfg)
		result.Name = check.Name

		fmt.Fprintf(w, "  %s %s: %s\n", statusIcon(result.Status), result.Name, result.Message)
		if result.Fix != "" {
			fmt.Fprintf(w, "      Fix: %s\n", result.Fix)
		}

		switch result.Status {
		case StatusPass:
			pass++
		case StatusWarn:
			warn++
		case StatusFail:
			fail++
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, strings.Repeat("-", 50))
	fmt.Fprintf(w, "Results: %d passed, %d warnings, %d failed\n", pass, warn, fail)

	if fail > 0 {
		return fmt.Errorf("%d check(s) failed", fail)
	}
	return nil
}

func statusIcon(s CheckStatus) string {
	switch s {
	case StatusPass:
		return "[PASS]"
	case StatusWarn:
		return "[WARN]"
	case StatusFail:
		return "[FAIL]"
	default:
		return "[????]"
	}
}

// checkConfigFile returns a check that reports on the config file. A missing
// file only warns because defaults apply.
func checkConfigFile(cfgPath string, cfgErr error) func(*config.Config) CheckResult {
	return func(_ *config.Config) CheckResult {
		if cfgErr != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: cfgErr.Error(),
				Fix:     "Correct the values listed above in " + cfgPath,
			}
		}
		if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
			return CheckResult{
				Status:  StatusWarn,
				Message: fmt.Sprintf("%s not found, using defaults", cfgPath),
				Fix:     "Create " + cfgPath + " or set FCFILTER_CONFIG",
			}
		}
		return CheckResult{Status: StatusPass, Message: cfgPath + " is valid"}
	}
}

// checkTaskModel tests whether the task model endpoint answers at all.
func checkTaskModel(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}
	}

	endpoint := cfg.Valves.OllamaAPIBaseURL
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return CheckResult{Status: StatusFail, Message: fmt.Sprintf("failed to create request: %v", err)}
	}
	if cfg.Valves.OllamaAPIKey != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.Valves.OllamaAPIKey)
	}

	start := time.Now()
	resp, err := http.DefaultClient.Do(req)
	latency := time.Since(start)
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("cannot reach %s: %v", endpoint, err),
			Fix:     "Start the model server or set OLLAMA_API_BASE_URL",
		}
	}
	resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("%s answered %d", endpoint, resp.StatusCode),
		}
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("%s reachable (latency: %dms, model: %s)", endpoint, latency.Milliseconds(), cfg.Valves.TaskModel),
	}
}

// checkToolKeys warns about enabled tools whose API key is unset.
func checkToolKeys(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}
	}

	var missing []string
	if cfg.Tools.Weather.Enabled && cfg.Valves.OpenWeatherMapAPIKey == "" {
		missing = append(missing, "OPENWEATHERMAP_API_KEY")
	}
	if cfg.Tools.Brave.Enabled && cfg.Valves.BraveAPIKey == "" {
		missing = append(missing, "BRAVE_API_KEY")
	}
	if len(missing) > 0 {
		return CheckResult{
			Status:  StatusWarn,
			Message: "missing " + strings.Join(missing, ", ") + "; those tools will report no result",
			Fix:     "Set the keys in the valves section or disable the tools",
		}
	}
	return CheckResult{Status: StatusPass, Message: "all enabled tools have keys"}
}

// checkCatalog builds the tool registry exactly as serve does.
func checkCatalog(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cat, err := tool.BuildCatalog(ctx, cfg, nil, log)
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: err.Error(),
			Fix:     "Enable at least one tool under tools:",
		}
	}
	defer cat.Close()

	specs := cat.Registry.Specs()
	names := make([]string, 0, len(specs))
	for _, s := range specs {
		names = append(names, s.Name)
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("%d tools: %s", len(names), strings.Join(names, ", ")),
	}
}

// checkGatewayAddr verifies the gateway can bind its address.
func checkGatewayAddr(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}
	}

	ln, err := net.Listen("tcp", cfg.Gateway.Addr)
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("cannot bind %s: %v", cfg.Gateway.Addr, err),
			Fix:     "Stop the process using the port or change gateway.addr",
		}
	}
	ln.Close()
	return CheckResult{Status: StatusPass, Message: cfg.Gateway.Addr + " is free"}
}
