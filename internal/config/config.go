// Package config loads nlsh settings from the config file, NLSH_* environment
// variables and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"

	ModeAuto = "auto"
	ModeSafe = "safe"
)

// Config holds the complete application configuration
type Config struct {
	LogLevel string      `mapstructure:"log_level"`
	Model    ModelConfig `mapstructure:"model"`
	Agent    AgentConfig `mapstructure:"agent"`
	Tools    ToolsConfig `mapstructure:"tools"`
}

// ModelConfig selects the language model backend.
type ModelConfig struct {
	Provider  string `mapstructure:"provider"`
	Name      string `mapstructure:"name"`
	APIKey    string `mapstructure:"api_key"`
	BaseURL   string `mapstructure:"base_url"`
	MaxTokens int    `mapstructure:"max_tokens"`
}

// AgentConfig holds the agent loop settings.
type AgentConfig struct {
	Mode               string        `mapstructure:"mode"`
	MaxSteps           int           `mapstructure:"max_steps"`
	HistorySteps       int           `mapstructure:"history_steps"`
	HistoryOutputLines int           `mapstructure:"history_output_lines"`
	DisplayLines       int           `mapstructure:"display_lines"`
	CommandTimeout     time.Duration `mapstructure:"command_timeout"`
	SessionDir         string        `mapstructure:"session_dir"`
}

// ToolsConfig toggles optional tool capabilities.
type ToolsConfig struct {
	WebFetch        bool          `mapstructure:"web_fetch"`
	WebFetchTimeout time.Duration `mapstructure:"web_fetch_timeout"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Model: ModelConfig{
			Provider:  ProviderOpenAI,
			MaxTokens: 1024,
		},
		Agent: AgentConfig{
			Mode:               ModeSafe,
			MaxSteps:           20,
			HistorySteps:       8,
			HistoryOutputLines: 3,
			DisplayLines:       20,
			CommandTimeout:     5 * time.Minute,
		},
		Tools: ToolsConfig{
			WebFetch:        true,
			WebFetchTimeout: 30 * time.Second,
		},
	}
}

func setDefaults(v *viper.Viper) {
	defaults := DefaultConfig()
	v.SetDefault("log_level", defaults.LogLevel)
	v.SetDefault("model.provider", defaults.Model.Provider)
	v.SetDefault("model.name", defaults.Model.Name)
	v.SetDefault("model.api_key", defaults.Model.APIKey)
	v.SetDefault("model.base_url", defaults.Model.BaseURL)
	v.SetDefault("model.max_tokens", defaults.Model.MaxTokens)
	v.SetDefault("agent.mode", defaults.Agent.Mode)
	v.SetDefault("agent.max_steps", defaults.Agent.MaxSteps)
	v.SetDefault("agent.history_steps", defaults.Agent.HistorySteps)
	v.SetDefault("agent.history_output_lines", defaults.Agent.HistoryOutputLines)
	v.SetDefault("agent.display_lines", defaults.Agent.DisplayLines)
	v.SetDefault("agent.command_timeout", defaults.Agent.CommandTimeout)
	v.SetDefault("agent.session_dir", defaults.Agent.SessionDir)
	v.SetDefault("tools.web_fetch", defaults.Tools.WebFetch)
	v.SetDefault("tools.web_fetch_timeout", defaults.Tools.WebFetchTimeout)
}

// Load reads configPath (if it exists) and applies NLSH_* environment
// overrides on top of the defaults. A missing file is not an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("NLSH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.applyKeyFallback()
	cfg.Agent.SessionDir = expandHome(cfg.Agent.SessionDir)

	return &cfg, nil
}

// applyKeyFallback honours the provider's conventional API key variable.
func (c *Config) applyKeyFallback() {
	if c.Model.APIKey != "" {
		return
	}
	switch c.Model.Provider {
	case ProviderOpenAI:
		c.Model.APIKey = os.Getenv("OPENAI_API_KEY")
	case ProviderAnthropic:
		c.Model.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Model.Provider != ProviderOpenAI && c.Model.Provider != ProviderAnthropic {
		return fmt.Errorf("invalid model provider: %s (must be %s or %s)", c.Model.Provider, ProviderOpenAI, ProviderAnthropic)
	}
	if err := ValidateMode(c.Agent.Mode); err != nil {
		return err
	}
	if c.Agent.MaxSteps < 1 {
		return fmt.Errorf("agent.max_steps must be at least 1, got %d", c.Agent.MaxSteps)
	}
	if c.Agent.HistorySteps < 1 {
		return fmt.Errorf("agent.history_steps must be at least 1, got %d", c.Agent.HistorySteps)
	}
	if c.Agent.HistoryOutputLines < 0 {
		return fmt.Errorf("agent.history_output_lines must not be negative, got %d", c.Agent.HistoryOutputLines)
	}
	if c.Agent.CommandTimeout < 0 {
		return fmt.Errorf("agent.command_timeout must not be negative, got %s", c.Agent.CommandTimeout)
	}
	return nil
}

// ValidateMode checks an agent mode string.
func ValidateMode(mode string) error {
	if mode != ModeAuto && mode != ModeSafe {
		return fmt.Errorf("invalid agent mode: %s (must be %s or %s)", mode, ModeAuto, ModeSafe)
	}
	return nil
}

// WriteDefault writes the default configuration to path. Existing files are
// left alone unless overwrite is set.
func WriteDefault(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists: %s", path)
		}
	}

	data, err := yaml.Marshal(DefaultConfig().document())
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// document is the on-disk shape of the config, with durations as strings.
func (c *Config) document() map[string]any {
	return map[string]any{
		"log_level": c.LogLevel,
		"model": map[string]any{
			"provider":   c.Model.Provider,
			"name":       c.Model.Name,
			"api_key":    c.Model.APIKey,
			"base_url":   c.Model.BaseURL,
			"max_tokens": c.Model.MaxTokens,
		},
		"agent": map[string]any{
			"mode":                 c.Agent.Mode,
			"max_steps":            c.Agent.MaxSteps,
			"history_steps":        c.Agent.HistorySteps,
			"history_output_lines": c.Agent.HistoryOutputLines,
			"display_lines":        c.Agent.DisplayLines,
			"command_timeout":      c.Agent.CommandTimeout.String(),
			"session_dir":          c.Agent.SessionDir,
		},
		"tools": map[string]any{
			"web_fetch":         c.Tools.WebFetch,
			"web_fetch_timeout": c.Tools.WebFetchTimeout.String(),
		},
	}
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
