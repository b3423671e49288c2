// Package config provides configuration management for VeriFlow
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Analysis AnalysisConfig `mapstructure:"analysis"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Speech   SpeechConfig   `mapstructure:"speech"`
	Avatar   AvatarConfig   `mapstructure:"avatar"`
	Dataset  DatasetConfig  `mapstructure:"dataset"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig configures the HTTP/WebSocket API
type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	AllowOrigins []string      `mapstructure:"allow_origins"`
}

// Analysis providers
const (
	ProviderGemini      = "gemini"
	ProviderOfflineDemo = "offline-demo"
)

// AnalysisConfig configures the hosted model that answers data questions
type AnalysisConfig struct {
	Provider string        `mapstructure:"provider"` // gemini or offline-demo
	APIKey   string        `mapstructure:"api_key"`
	Endpoint string        `mapstructure:"endpoint"`
	Model    string        `mapstructure:"model"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// StorageConfig configures where chat history lives
type StorageConfig struct {
	DataDir    string `mapstructure:"data_dir"`
	HistoryKey string `mapstructure:"history_key"`
}

// SpeechConfig configures voice input/output
type SpeechConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	Rate          float64 `mapstructure:"rate"` // 0.5 to 2.0
	VoiceID       string  `mapstructure:"voice_id"`
	Language      string  `mapstructure:"language"`
	ListeningMode string  `mapstructure:"listening_mode"` // push-to-talk or continuous
}

// AvatarConfig configures the animation loop and overlay timings
type AvatarConfig struct {
	FPS                   int           `mapstructure:"fps"`
	ConfirmationDuration  time.Duration `mapstructure:"confirmation_duration"`
	AnalysisCompleteDelay time.Duration `mapstructure:"analysis_complete_duration"`
}

// DatasetConfig configures the active product dataset
type DatasetConfig struct {
	Path  string `mapstructure:"path"` // empty uses the built-in sample
	Watch bool   `mapstructure:"watch"`
}

// LoggingConfig configures logging
type LoggingConfig struct {
	Dir     string `mapstructure:"dir"`
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	base := filepath.Join(home, ".veriflow")

	return &Config{
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
			AllowOrigins: []string{"http://localhost:5173", "http://127.0.0.1:5173"},
		},
		Analysis: AnalysisConfig{
			Provider: ProviderGemini,
			Endpoint: "https://generativelanguage.googleapis.com/v1beta",
			Model:    "gemini-2.5-flash",
			Timeout:  60 * time.Second,
		},
		Storage: StorageConfig{
			DataDir:    base,
			HistoryKey: "veriAkisiChatHistory",
		},
		Speech: SpeechConfig{
			Enabled:       true,
			Rate:          1.0,
			Language:      "tr-TR",
			ListeningMode: "push-to-talk",
		},
		Avatar: AvatarConfig{
			FPS:                   60,
			ConfirmationDuration:  1000 * time.Millisecond,
			AnalysisCompleteDelay: 4000 * time.Millisecond,
		},
		Dataset: DatasetConfig{},
		Logging: LoggingConfig{
			Dir:     filepath.Join(base, "logs"),
			Level:   "info",
			Console: true,
		},
	}
}

// Load reads configuration from path (or ~/.veriflow/config.yaml and ./config.yaml when
// path is empty) and applies VERIFLOW_* environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	setDefaults(v, cfg)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if dir, err := GetConfigDir(); err == nil {
			v.AddConfigPath(dir)
		}
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("VERIFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !(path != "" && os.IsNotExist(err)) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}

	// GEMINI_API_KEY is what the rest of the Gemini tooling reads; honor it as a fallback.
	if cfg.Analysis.APIKey == "" {
		cfg.Analysis.APIKey = os.Getenv("GEMINI_API_KEY")
	}

	return cfg, cfg.Validate()
}

// setDefaults registers every key so AutomaticEnv can override keys absent from the file.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("server.addr", cfg.Server.Addr)
	v.SetDefault("server.read_timeout", cfg.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", cfg.Server.WriteTimeout)
	v.SetDefault("server.allow_origins", cfg.Server.AllowOrigins)

	v.SetDefault("analysis.provider", cfg.Analysis.Provider)
	v.SetDefault("analysis.api_key", cfg.Analysis.APIKey)
	v.SetDefault("analysis.endpoint", cfg.Analysis.Endpoint)
	v.SetDefault("analysis.model", cfg.Analysis.Model)
	v.SetDefault("analysis.timeout", cfg.Analysis.Timeout)

	v.SetDefault("storage.data_dir", cfg.Storage.DataDir)
	v.SetDefault("storage.history_key", cfg.Storage.HistoryKey)

	v.SetDefault("speech.enabled", cfg.Speech.Enabled)
	v.SetDefault("speech.rate", cfg.Speech.Rate)
	v.SetDefault("speech.voice_id", cfg.Speech.VoiceID)
	v.SetDefault("speech.language", cfg.Speech.Language)
	v.SetDefault("speech.listening_mode", cfg.Speech.ListeningMode)

	v.SetDefault("avatar.fps", cfg.Avatar.FPS)
	v.SetDefault("avatar.confirmation_duration", cfg.Avatar.ConfirmationDuration)
	v.SetDefault("avatar.analysis_complete_duration", cfg.Avatar.AnalysisCompleteDelay)

	v.SetDefault("dataset.path", cfg.Dataset.Path)
	v.SetDefault("dataset.watch", cfg.Dataset.Watch)

	v.SetDefault("logging.dir", cfg.Logging.Dir)
	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.console", cfg.Logging.Console)
}

// Validate checks value ranges that would otherwise fail later at runtime.
func (c *Config) Validate() error {
	switch c.Analysis.Provider {
	case ProviderGemini, ProviderOfflineDemo:
	default:
		return fmt.Errorf("analysis.provider must be gemini or offline-demo, got %q", c.Analysis.Provider)
	}
	if c.Speech.Rate < 0.5 || c.Speech.Rate > 2.0 {
		return fmt.Errorf("speech.rate must be within 0.5-2.0, got %v", c.Speech.Rate)
	}
	switch c.Speech.ListeningMode {
	case "push-to-talk", "continuous":
	default:
		return fmt.Errorf("speech.listening_mode must be push-to-talk or continuous, got %q", c.Speech.ListeningMode)
	}
	if c.Avatar.FPS <= 0 || c.Avatar.FPS > 240 {
		return fmt.Errorf("avatar.fps must be within 1-240, got %d", c.Avatar.FPS)
	}
	if c.Avatar.ConfirmationDuration <= 0 || c.Avatar.AnalysisCompleteDelay <= 0 {
		return errors.New("avatar overlay durations must be positive")
	}
	if c.Storage.HistoryKey == "" {
		return errors.New("storage.history_key must not be empty")
	}
	return nil
}

// GetConfigDir returns the configuration directory path
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".veriflow"), nil
}
