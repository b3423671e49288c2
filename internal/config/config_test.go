package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "gemini", cfg.Analysis.Provider)
	assert.Equal(t, "gemini-2.5-flash", cfg.Analysis.Model)
	assert.Equal(t, "veriAkisiChatHistory", cfg.Storage.HistoryKey)
	assert.Equal(t, 1.0, cfg.Speech.Rate)
	assert.Equal(t, "tr-TR", cfg.Speech.Language)
	assert.Equal(t, time.Second, cfg.Avatar.ConfirmationDuration)
	assert.Equal(t, 4*time.Second, cfg.Avatar.AnalysisCompleteDelay)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
analysis:
  provider: offline-demo
  model: gemini-test
speech:
  rate: 1.5
  listening_mode: continuous
avatar:
  fps: 30
  confirmation_duration: 500ms
storage:
  data_dir: ` + dir + `
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ProviderOfflineDemo, cfg.Analysis.Provider)
	assert.Equal(t, "gemini-test", cfg.Analysis.Model)
	assert.Equal(t, 1.5, cfg.Speech.Rate)
	assert.Equal(t, "continuous", cfg.Speech.ListeningMode)
	assert.Equal(t, 30, cfg.Avatar.FPS)
	assert.Equal(t, 500*time.Millisecond, cfg.Avatar.ConfirmationDuration)
	assert.Equal(t, 4*time.Second, cfg.Avatar.AnalysisCompleteDelay, "unset keys keep defaults")
	assert.Equal(t, dir, cfg.Storage.DataDir)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("VERIFLOW_ANALYSIS_PROVIDER", "offline-demo")
	t.Setenv("VERIFLOW_SERVER_ADDR", ":9999")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ProviderOfflineDemo, cfg.Analysis.Provider)
	assert.Equal(t, ":9999", cfg.Server.Addr)
}

func TestLoadGeminiKeyFallback(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "from-env")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Analysis.APIKey)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown provider", func(c *Config) { c.Analysis.Provider = "openai" }},
		{"retired mock provider", func(c *Config) { c.Analysis.Provider = "mock" }},
		{"rate too low", func(c *Config) { c.Speech.Rate = 0.2 }},
		{"rate too high", func(c *Config) { c.Speech.Rate = 2.5 }},
		{"bad listening mode", func(c *Config) { c.Speech.ListeningMode = "always" }},
		{"zero fps", func(c *Config) { c.Avatar.FPS = 0 }},
		{"zero confirmation", func(c *Config) { c.Avatar.ConfirmationDuration = 0 }},
		{"empty history key", func(c *Config) { c.Storage.HistoryKey = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
