package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	appDir         = ".local-vlm"
	configName     = "config"
	configType     = "yaml"
	envPrefix      = "VLM"
	defaultHWLabel = "RTX 3050 (Local)"
)

// Config represents the application configuration
type Config struct {
	OllamaURL       string        `mapstructure:"ollama_url"`
	ModelName       string        `mapstructure:"model_name"`
	Temperature     float64       `mapstructure:"temperature"`
	MaxTokens       int           `mapstructure:"max_tokens"`
	NumCtx          int           `mapstructure:"num_ctx"`
	MaxContextChars int           `mapstructure:"max_context_chars"`
	StrictHistory   bool          `mapstructure:"strict_history"`
	MaxImageSize    int           `mapstructure:"max_image_size"`
	JPEGQuality     int           `mapstructure:"jpeg_quality"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	PullTimeout     time.Duration `mapstructure:"pull_timeout"`
	Listen          string        `mapstructure:"listen"`
	Hardware        string        `mapstructure:"hardware"`
	HistoryMaxTurns int           `mapstructure:"history_max_turns"`
	ExamplesDir     string        `mapstructure:"examples_dir"`
	Theme           string        `mapstructure:"theme"`
	LogFile         string        `mapstructure:"log_file"`
	Debug           bool          `mapstructure:"debug"`
}

// Validate rejects values no component can work with
func (c *Config) Validate() error {
	var errs []error
	if c.OllamaURL == "" {
		errs = append(errs, errors.New("ollama_url must not be empty"))
	}
	if c.Temperature < 0 {
		errs = append(errs, fmt.Errorf("temperature must not be negative, got %v", c.Temperature))
	}
	if c.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("max_tokens must be positive, got %d", c.MaxTokens))
	}
	if c.MaxImageSize <= 0 {
		errs = append(errs, fmt.Errorf("max_image_size must be positive, got %d", c.MaxImageSize))
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("jpeg_quality must be within 1..100, got %d", c.JPEGQuality))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("request_timeout must be positive, got %s", c.RequestTimeout))
	}
	return errors.Join(errs...)
}

// Manager handles configuration loading and persistence
type Manager struct {
	v          *viper.Viper
	configPath string
}

// NewManager creates a config manager. configFile may be empty, in which
// case ~/.local-vlm/config.yaml is used if it exists.
func NewManager(configFile string) (*Manager, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	// OLLAMA_URL is the variable users already export for the ollama CLI
	if err := v.BindEnv("ollama_url", envPrefix+"_OLLAMA_URL", "OLLAMA_URL"); err != nil {
		return nil, fmt.Errorf("failed to bind environment: %w", err)
	}

	configPath := configFile
	if configPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(homeDir, appDir, configName+"."+configType)
	}

	m := &Manager{
		v:          v,
		configPath: configPath,
	}

	if err := m.Load(); err != nil {
		// A missing default file is fine; an explicit one must exist
		if configFile != "" || !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	return m, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ollama_url", "http://localhost:11434")
	v.SetDefault("model_name", "")
	v.SetDefault("temperature", 0.7)
	v.SetDefault("max_tokens", 200)
	v.SetDefault("num_ctx", 4096)
	v.SetDefault("max_context_chars", 8000)
	v.SetDefault("strict_history", false)
	v.SetDefault("max_image_size", 512)
	v.SetDefault("jpeg_quality", 90)
	v.SetDefault("request_timeout", 300*time.Second)
	v.SetDefault("connect_timeout", 5*time.Second)
	v.SetDefault("pull_timeout", 300*time.Second)
	v.SetDefault("listen", "127.0.0.1:7862")
	v.SetDefault("hardware", defaultHWLabel)
	v.SetDefault("history_max_turns", 50)
	v.SetDefault("examples_dir", "examples")
	v.SetDefault("theme", "default")
	v.SetDefault("log_file", "")
	v.SetDefault("debug", false)
}

// Load reads the configuration file from disk
func (m *Manager) Load() error {
	if _, err := os.Stat(m.configPath); err != nil {
		return err
	}

	m.v.SetConfigFile(m.configPath)
	if err := m.v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	return nil
}

// BindFlags lets command line flags override file and environment values.
// Flags are matched by name with dashes mapped to underscores.
func (m *Manager) BindFlags(flags *pflag.FlagSet) error {
	var bindErr error
	flags.VisitAll(func(f *pflag.Flag) {
		key := strings.ReplaceAll(f.Name, "-", "_")
		if !isKnownKey(key) {
			return
		}
		if err := m.v.BindPFlag(key, f); err != nil && bindErr == nil {
			bindErr = fmt.Errorf("failed to bind flag %s: %w", f.Name, err)
		}
	})
	return bindErr
}

func isKnownKey(key string) bool {
	switch key {
	case "ollama_url", "model_name", "temperature", "max_tokens", "num_ctx",
		"max_context_chars", "strict_history", "max_image_size", "jpeg_quality",
		"request_timeout", "connect_timeout", "pull_timeout", "listen", "hardware",
		"history_max_turns", "examples_dir", "theme", "log_file", "debug":
		return true
	}
	return false
}

// Config decodes the merged configuration
func (m *Manager) Config() (*Config, error) {
	var cfg Config
	if err := m.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Path returns the config file location
func (m *Manager) Path() string {
	return m.configPath
}

// GetDefaultModel returns the configured model
func (m *Manager) GetDefaultModel() string {
	return m.v.GetString("model_name")
}

// SetDefaultModel persists model as the default for later runs
func (m *Manager) SetDefaultModel(model string) error {
	m.v.Set("model_name", model)
	return m.Save()
}

// Save writes the configuration to disk
func (m *Manager) Save() error {
	if err := os.MkdirAll(filepath.Dir(m.configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := m.v.WriteConfigAs(m.configPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}
