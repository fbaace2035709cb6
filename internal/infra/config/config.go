package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"
	"gopkg.in/yaml.v3"

	"fcfilter/internal/domain"
)

// ContextPlaceholder is substituted with the tool result in Valves.Template.
const ContextPlaceholder = "{{CONTEXT}}"

// DefaultTemplate is the grounding template installed as system prompt.
const DefaultTemplate = `Use the following context as your learned knowledge, inside <context></context> XML tags.
<context>
    {{CONTEXT}}
</context>

When answer to user:
- If you don't know, just say that you don't know.
- If you don't know when you are not sure, ask for clarification.
Avoid mentioning that you obtained the information from the context.
And answer according to the language of the user's question.`

// Config is the top-level filter configuration.
type Config struct {
	Pipeline PipelineConfig `yaml:"pipeline"`
	Valves   Valves         `yaml:"valves"`
	Aux      AuxConfig      `yaml:"aux"`
	Filter   FilterConfig   `yaml:"filter"`
	Tools    ToolsConfig    `yaml:"tools"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Logger   LoggerConfig   `yaml:"logger"`
	Tracer   TracerConfig   `yaml:"tracer"`
}

// PipelineConfig identifies the filter to the host.
type PipelineConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// Valves is the host-visible configuration of the filter. Field names on the
// wire match the names the host UI already knows.
type Valves struct {
	// Target pipeline ids (models) this filter is connected to; "*" means all.
	Pipelines []string `yaml:"pipelines" json:"pipelines"`
	// Lower runs earlier.
	Priority int `yaml:"priority" json:"priority"`

	OllamaAPIBaseURL string `yaml:"OLLAMA_API_BASE_URL" json:"OLLAMA_API_BASE_URL"`
	OllamaAPIKey     string `yaml:"OLLAMA_API_KEY" json:"OLLAMA_API_KEY"`
	TaskModel        string `yaml:"TASK_MODEL" json:"TASK_MODEL"`
	Template         string `yaml:"TEMPLATE" json:"TEMPLATE"`

	OpenWeatherMapAPIKey string `yaml:"OPENWEATHERMAP_API_KEY" json:"OPENWEATHERMAP_API_KEY"`
	BraveAPIKey          string `yaml:"BRAVE_API_KEY" json:"BRAVE_API_KEY"`
}

const redacted = "********"

// Redacted returns a copy with secrets masked, for display.
func (v Valves) Redacted() Valves {
	out := v
	out.Pipelines = append([]string(nil), v.Pipelines...)
	for _, s := range []*string{&out.OllamaAPIKey, &out.OpenWeatherMapAPIKey, &out.BraveAPIKey} {
		if *s != "" {
			*s = redacted
		}
	}
	return out
}

// AuxConfig configures the auxiliary (task) model client.
type AuxConfig struct {
	ConnTimeout    time.Duration        `yaml:"conn_timeout"`
	Timeout        time.Duration        `yaml:"timeout"`
	ResponseShape  string               `yaml:"response_shape"` // "auto", "ollama" or "openai"
	KeepWarm       string               `yaml:"keep_warm"`      // cron expression or duration; empty disables
	KeepAlive      string               `yaml:"keep_alive"`
	WarmupOnStart  bool                 `yaml:"warmup_on_start"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	Pool           PoolConfig           `yaml:"pool"`
}

// CircuitBreakerConfig holds circuit breaker settings for the auxiliary client.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// PoolConfig holds HTTP connection pool settings.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// FilterConfig tunes the inlet stage.
type FilterConfig struct {
	HistoryTurns    int `yaml:"history_turns"`
	MaxContextBytes int `yaml:"max_context_bytes"` // 0 = unlimited
}

// ToolsConfig holds tool registry settings.
type ToolsConfig struct {
	Timeout time.Duration `yaml:"timeout"`
	Clock   ClockConfig   `yaml:"clock"`
	Weather WeatherConfig `yaml:"weather"`
	Brave   BraveConfig   `yaml:"brave"`
	MCP     []MCPServer   `yaml:"mcp,omitempty"`
}

// ClockConfig enables the time/date tools.
type ClockConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Location string `yaml:"location"` // IANA zone; empty = local
}

// WeatherConfig configures the OpenWeatherMap tool.
type WeatherConfig struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url"`
}

// BraveConfig configures the Brave search tool.
type BraveConfig struct {
	Enabled           bool          `yaml:"enabled"`
	BaseURL           string        `yaml:"base_url"`
	ReaderURL         string        `yaml:"reader_url"`
	MaxRetries        int           `yaml:"max_retries"`
	MaxAge            time.Duration `yaml:"max_age"`
	MaxPages          int           `yaml:"max_pages"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
}

// MCPServer describes an MCP server whose tools are bridged into the registry.
type MCPServer struct {
	Name      string            `yaml:"name"`
	Transport string            `yaml:"transport"` // "stdio" or "http"
	Command   string            `yaml:"command,omitempty"`
	Args      []string          `yaml:"args,omitempty"`
	URL       string            `yaml:"url,omitempty"`
	Env       map[string]string `yaml:"env,omitempty"`
}

// GatewayConfig holds the host-facing HTTP server settings.
type GatewayConfig struct {
	Addr           string   `yaml:"addr"`
	APIKey         string   `yaml:"api_key"`
	RequestsPerMin int      `yaml:"requests_per_min"`
	BurstSize      int      `yaml:"burst_size"`
	TrustedProxies []string `yaml:"trusted_proxies,omitempty"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

// Defaults returns a Config populated with the documented defaults.
func Defaults() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			ID:   "function_calling_filter",
			Name: "Function Calling Filter",
		},
		Valves: Valves{
			Pipelines:        []string{"*"},
			Priority:         0,
			OllamaAPIBaseURL: "http://localhost:11434",
			OllamaAPIKey:     "YOUR_OLLAMA_API_KEY",
			TaskModel:        "llama3",
			Template:         DefaultTemplate,
		},
		Aux: AuxConfig{
			ConnTimeout:   5 * time.Second,
			Timeout:       30 * time.Second,
			ResponseShape: "auto",
			KeepAlive:     "5m",
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:     true,
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
		},
		Filter: FilterConfig{
			HistoryTurns: 4,
		},
		Tools: ToolsConfig{
			Timeout: 30 * time.Second,
			Clock:   ClockConfig{Enabled: true},
			Weather: WeatherConfig{
				Enabled: true,
				BaseURL: "http://api.openweathermap.org/data/2.5/weather",
			},
			Brave: BraveConfig{
				Enabled:           true,
				BaseURL:           "https://api.search.brave.com/res/v1/web/search",
				ReaderURL:         "https://r.jina.ai/",
				MaxRetries:        3,
				MaxAge:            60 * 24 * time.Hour,
				MaxPages:          3,
				RequestsPerSecond: 1,
			},
		},
		Gateway: GatewayConfig{
			Addr:           ":9099",
			RequestsPerMin: 600,
			BurstSize:      50,
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
	}
}

// Load reads a YAML config file, applies env var overrides, and decrypts secrets.
// A missing file is not an error: defaults plus environment are used.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("%w: resolve config path: %w", domain.ErrConfigLoad, err)
		}
		if err := validatePermissions(absPath); err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrConfigLoad, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: parse config: %w", domain.ErrConfigLoad, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("%w: read config: %w", domain.ErrConfigLoad, err)
	}

	ApplyEnvOverrides(cfg)

	if passphrase := os.Getenv("FCFILTER_CONFIG_KEY"); passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides maps environment variables to config fields. The valve
// names are read unprefixed; ambient settings use FCFILTER_*.
func ApplyEnvOverrides(cfg *Config) {
	envString("OLLAMA_API_BASE_URL", &cfg.Valves.OllamaAPIBaseURL)
	envString("OLLAMA_API_KEY", &cfg.Valves.OllamaAPIKey)
	envString("TASK_MODEL", &cfg.Valves.TaskModel)
	envString("TEMPLATE", &cfg.Valves.Template)
	envString("OPENWEATHERMAP_API_KEY", &cfg.Valves.OpenWeatherMapAPIKey)
	envString("BRAVE_API_KEY", &cfg.Valves.BraveAPIKey)
	if v := os.Getenv("FCFILTER_PIPELINES"); v != "" {
		cfg.Valves.Pipelines = splitList(v)
	}
	if v := os.Getenv("FCFILTER_PRIORITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Valves.Priority = n
		}
	}

	envString("FCFILTER_PIPELINE_ID", &cfg.Pipeline.ID)
	envString("FCFILTER_AUX_RESPONSE_SHAPE", &cfg.Aux.ResponseShape)
	envString("FCFILTER_AUX_KEEP_WARM", &cfg.Aux.KeepWarm)
	envDuration("FCFILTER_AUX_TIMEOUT", &cfg.Aux.Timeout)
	if v := os.Getenv("FCFILTER_AUX_CIRCUIT_BREAKER"); v != "" {
		cfg.Aux.CircuitBreaker.Enabled = v == "true"
	}
	envDuration("FCFILTER_TOOLS_TIMEOUT", &cfg.Tools.Timeout)
	if v := os.Getenv("FCFILTER_FILTER_HISTORY_TURNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Filter.HistoryTurns = n
		}
	}
	envString("FCFILTER_GATEWAY_ADDR", &cfg.Gateway.Addr)
	envString("FCFILTER_GATEWAY_API_KEY", &cfg.Gateway.APIKey)
	envString("FCFILTER_LOGGER_LEVEL", &cfg.Logger.Level)
	envString("FCFILTER_LOGGER_FORMAT", &cfg.Logger.Format)
	if v := os.Getenv("FCFILTER_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	envString("FCFILTER_TRACER_EXPORTER", &cfg.Tracer.Exporter)
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// decryptSecrets replaces every "enc:"-prefixed secret with its plaintext.
func decryptSecrets(cfg *Config, passphrase string) error {
	fields := map[string]*string{
		"valves.OLLAMA_API_KEY":         &cfg.Valves.OllamaAPIKey,
		"valves.OPENWEATHERMAP_API_KEY": &cfg.Valves.OpenWeatherMapAPIKey,
		"valves.BRAVE_API_KEY":          &cfg.Valves.BraveAPIKey,
		"gateway.api_key":               &cfg.Gateway.APIKey,
	}
	for name, field := range fields {
		if !strings.HasPrefix(*field, "enc:") {
			continue
		}
		decrypted, err := DecryptValue(strings.TrimPrefix(*field, "enc:"), passphrase)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*field = decrypted
	}
	return nil
}

// EncryptValue encrypts a plaintext value with AES-256-GCM using a passphrase.
func EncryptValue(plaintext, passphrase string) (string, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	// Format: hex(salt) + ":" + hex(nonce+ciphertext)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(ciphertext), nil
}

// DecryptValue decrypts a value produced by EncryptValue. Every failure
// wraps domain.ErrDecryption.
func DecryptValue(encrypted, passphrase string) (string, error) {
	plaintext, err := decryptValue(encrypted, passphrase)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrDecryption, err)
	}
	return plaintext, nil
}

func decryptValue(encrypted, passphrase string) (string, error) {
	saltHex, dataHex, ok := strings.Cut(encrypted, ":")
	if !ok {
		return "", fmt.Errorf("invalid encrypted format")
	}

	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return "", fmt.Errorf("decode salt: %w", err)
	}
	data, err := hex.DecodeString(dataHex)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}

func newGCM(passphrase string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(deriveKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

// deriveKey uses Argon2id to derive a 32-byte key from passphrase + salt.
func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)
}

// validatePermissions checks the config file has restrictive permissions.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	// Group and others may read, nothing more.
	if mode&0o033 != 0 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
