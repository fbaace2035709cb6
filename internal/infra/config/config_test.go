package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fcfilter/internal/domain"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, "http://localhost:11434", cfg.Valves.OllamaAPIBaseURL)
	assert.Equal(t, "YOUR_OLLAMA_API_KEY", cfg.Valves.OllamaAPIKey)
	assert.Equal(t, "llama3", cfg.Valves.TaskModel)
	assert.Equal(t, []string{"*"}, cfg.Valves.Pipelines)
	assert.Contains(t, cfg.Valves.Template, ContextPlaceholder)
	assert.Equal(t, 4, cfg.Filter.HistoryTurns)
	assert.Equal(t, 30*time.Second, cfg.Aux.Timeout)
	assert.Equal(t, "auto", cfg.Aux.ResponseShape)
	assert.Equal(t, 3, cfg.Tools.Brave.MaxRetries)
	require.NoError(t, Validate(cfg))
}

func TestLoadNonExistentReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "llama3", cfg.Valves.TaskModel)
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fcfilter.yaml")
	content := `
pipeline:
  id: "tools"
valves:
  pipelines: ["llama3:latest", "mistral"]
  priority: 2
  OLLAMA_API_BASE_URL: "http://ollama:11434"
  TASK_MODEL: "qwen2"
aux:
  response_shape: "openai"
  keep_warm: "4m"
filter:
  history_turns: 6
tools:
  brave:
    enabled: false
logger:
  level: "debug"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "tools", cfg.Pipeline.ID)
	assert.Equal(t, []string{"llama3:latest", "mistral"}, cfg.Valves.Pipelines)
	assert.Equal(t, 2, cfg.Valves.Priority)
	assert.Equal(t, "http://ollama:11434", cfg.Valves.OllamaAPIBaseURL)
	assert.Equal(t, "qwen2", cfg.Valves.TaskModel)
	assert.Equal(t, "openai", cfg.Aux.ResponseShape)
	assert.Equal(t, "4m", cfg.Aux.KeepWarm)
	assert.Equal(t, 6, cfg.Filter.HistoryTurns)
	assert.False(t, cfg.Tools.Brave.Enabled)
	assert.True(t, cfg.Tools.Weather.Enabled, "untouched sections keep defaults")
	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Contains(t, cfg.Valves.Template, ContextPlaceholder)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("valves: [unclosed"), 0o600))
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
	assert.ErrorIs(t, err, domain.ErrConfigLoad)
}

func TestLoadUnreadablePathIsConfigLoadError(t *testing.T) {
	_, err := Load(t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfigLoad)
}

func TestLoadRejectsInsecurePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "open.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logger:\n  level: info\n"), 0o600))
	require.NoError(t, os.Chmod(path, 0o666))
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insecure permissions")
}

func TestValidatePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "perm.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0o600))

	for _, mode := range []os.FileMode{0o600, 0o640, 0o644, 0o400} {
		require.NoError(t, os.Chmod(path, mode))
		assert.NoError(t, validatePermissions(path), "mode %o", mode)
	}
	for _, mode := range []os.FileMode{0o606, 0o620, 0o602, 0o660, 0o601, 0o610, 0o666} {
		require.NoError(t, os.Chmod(path, mode))
		assert.Error(t, validatePermissions(path), "mode %o", mode)
	}
}

func TestLoadReturnsValidationError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "invalid.yaml")
	content := `
valves:
  TEMPLATE: "no placeholder here"
aux:
  response_shape: "anthropic"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	_, err := Load(path)

	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Len(t, ve.Errors, 2)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("OLLAMA_API_BASE_URL", "http://gpu-box:11434")
	t.Setenv("OLLAMA_API_KEY", "sk-env")
	t.Setenv("TASK_MODEL", "phi3")
	t.Setenv("BRAVE_API_KEY", "brave-env")
	t.Setenv("FCFILTER_PIPELINES", "llama3, mistral ,")
	t.Setenv("FCFILTER_PRIORITY", "5")
	t.Setenv("FCFILTER_AUX_TIMEOUT", "12s")
	t.Setenv("FCFILTER_AUX_CIRCUIT_BREAKER", "false")
	t.Setenv("FCFILTER_FILTER_HISTORY_TURNS", "2")
	t.Setenv("FCFILTER_GATEWAY_API_KEY", "gw")
	t.Setenv("FCFILTER_TRACER_ENABLED", "true")

	cfg := Defaults()
	ApplyEnvOverrides(cfg)

	assert.Equal(t, "http://gpu-box:11434", cfg.Valves.OllamaAPIBaseURL)
	assert.Equal(t, "sk-env", cfg.Valves.OllamaAPIKey)
	assert.Equal(t, "phi3", cfg.Valves.TaskModel)
	assert.Equal(t, "brave-env", cfg.Valves.BraveAPIKey)
	assert.Equal(t, []string{"llama3", "mistral"}, cfg.Valves.Pipelines)
	assert.Equal(t, 5, cfg.Valves.Priority)
	assert.Equal(t, 12*time.Second, cfg.Aux.Timeout)
	assert.False(t, cfg.Aux.CircuitBreaker.Enabled)
	assert.Equal(t, 2, cfg.Filter.HistoryTurns)
	assert.Equal(t, "gw", cfg.Gateway.APIKey)
	assert.True(t, cfg.Tracer.Enabled)
}

func TestEnvOverridesIgnoreMalformedNumbers(t *testing.T) {
	t.Setenv("FCFILTER_PRIORITY", "high")
	t.Setenv("FCFILTER_AUX_TIMEOUT", "soon")

	cfg := Defaults()
	ApplyEnvOverrides(cfg)
	assert.Equal(t, 0, cfg.Valves.Priority)
	assert.Equal(t, 30*time.Second, cfg.Aux.Timeout)
}

func TestEncryptDecryptValue(t *testing.T) {
	enc, err := EncryptValue("my-secret", "passphrase")
	require.NoError(t, err)
	assert.NotContains(t, enc, "my-secret")

	dec, err := DecryptValue(enc, "passphrase")
	require.NoError(t, err)
	assert.Equal(t, "my-secret", dec)

	_, err = DecryptValue(enc, "wrong")
	assert.ErrorIs(t, err, domain.ErrDecryption)
	_, err = DecryptValue("no-separator", "passphrase")
	assert.ErrorIs(t, err, domain.ErrDecryption)
	_, err = DecryptValue("zz:00", "passphrase")
	assert.ErrorIs(t, err, domain.ErrDecryption)
}

func TestLoadDecryptsSecrets(t *testing.T) {
	enc, err := EncryptValue("sk-real", "k3y")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "enc.yaml")
	content := "valves:\n  OLLAMA_API_KEY: \"enc:" + enc + "\"\n  BRAVE_API_KEY: \"plain\"\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("FCFILTER_CONFIG_KEY", "k3y")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-real", cfg.Valves.OllamaAPIKey)
	assert.Equal(t, "plain", cfg.Valves.BraveAPIKey)
}

func TestLoadDecryptWrongKey(t *testing.T) {
	enc, err := EncryptValue("sk-real", "right")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "enc.yaml")
	require.NoError(t, os.WriteFile(path, []byte("valves:\n  OLLAMA_API_KEY: \"enc:"+enc+"\"\n"), 0o600))
	t.Setenv("FCFILTER_CONFIG_KEY", "wrong")

	_, err = Load(path)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "valves.OLLAMA_API_KEY"))
	assert.ErrorIs(t, err, domain.ErrDecryption)
	assert.Equal(t, domain.CodeDecryption, domain.ErrorCodeOf(err))
}

func TestValvesRedacted(t *testing.T) {
	v := Defaults().Valves
	v.BraveAPIKey = "brave"
	r := v.Redacted()

	assert.Equal(t, redacted, r.OllamaAPIKey)
	assert.Equal(t, redacted, r.BraveAPIKey)
	assert.Empty(t, r.OpenWeatherMapAPIKey, "empty secrets stay empty")
	assert.Equal(t, v.TaskModel, r.TaskModel)
	assert.Equal(t, "brave", v.BraveAPIKey, "original untouched")
}
