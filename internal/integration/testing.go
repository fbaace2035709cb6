package integration

import (
	"context"
	"os"
	"testing"
	"time"
)

// Config holds integration test configuration from environment
type Config struct {
	OllamaURL      string
	OllamaKey      string
	TaskModel      string
	OpenWeatherKey string
	BraveKey       string
	TestTimeout    time.Duration
	SkipSlow       bool
}

// LoadConfig loads integration test configuration from environment
func LoadConfig() *Config {
	model := os.Getenv("FCFILTER_IT_TASK_MODEL")
	if model == "" {
		model = "llama3"
	}
	return &Config{
		OllamaURL:      os.Getenv("FCFILTER_IT_OLLAMA_URL"),
		OllamaKey:      os.Getenv("FCFILTER_IT_OLLAMA_KEY"),
		TaskModel:      model,
		OpenWeatherKey: os.Getenv("OPENWEATHERMAP_API_KEY"),
		BraveKey:       os.Getenv("BRAVE_API_KEY"),
		TestTimeout:    120 * time.Second,
		SkipSlow:       os.Getenv("SKIP_SLOW_TESTS") == "1",
	}
}

// SkipIfUnset skips the test if the required setting is empty
func SkipIfUnset(t *testing.T, value, env string) {
	t.Helper()
	if value == "" {
		t.Skipf("Skipping integration test: %s not set", env)
	}
}

// SkipIfShort skips integration tests in short mode
func SkipIfShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
}

// NewTestContext creates a context with timeout for integration tests
func NewTestContext(t *testing.T, timeout time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}
