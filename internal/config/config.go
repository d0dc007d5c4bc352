// Package config loads brigade configuration from brigade.yaml and BRIGADE_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for brigade.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Orchestration OrchestrationConfig `mapstructure:"orchestration"`
	Quality       QualityConfig       `mapstructure:"quality"`
	Analytics     AnalyticsConfig     `mapstructure:"analytics"`
	Log           LogConfig           `mapstructure:"log"`
	RosterFile    string              `mapstructure:"roster_file"`
}

type ServerConfig struct {
	Port        int           `mapstructure:"port"`
	MetricsPort int           `mapstructure:"metrics_port"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
}

type DatabaseConfig struct {
	Driver  string `mapstructure:"driver"`
	DSN     string `mapstructure:"dsn"`
	LogMode bool   `mapstructure:"log_mode"`
}

// LLMConfig selects the model provider. Provider is one of openai,
// github_models, azure_openai, anthropic, bedrock.
type LLMConfig struct {
	Provider string `mapstructure:"provider"`
	Model    string `mapstructure:"model"`
	APIKey   string `mapstructure:"api_key"`
	BaseURL  string `mapstructure:"base_url"`
	Region   string `mapstructure:"region"`
}

type OrchestrationConfig struct {
	DefaultMaxRetries int           `mapstructure:"default_max_retries"`
	DefaultThreshold  float64       `mapstructure:"default_threshold"`
	AttemptTimeout    time.Duration `mapstructure:"attempt_timeout"`
	MasterAgentID     string        `mapstructure:"master_agent_id"`
	Router            string        `mapstructure:"router"`
}

type QualityConfig struct {
	ProfilesFile string `mapstructure:"profiles_file"`
	Watch        bool   `mapstructure:"watch"`
}

type AnalyticsConfig struct {
	MaxRecords int `mapstructure:"max_records"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Router names.
const (
	RouterKeyword = "keyword"
	RouterModel   = "model"
)

var ErrInvalidConfig = errors.New("invalid configuration")

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.metrics_port", 9090)
	v.SetDefault("server.read_timeout", "30s")

	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.dsn", "brigade.db")
	v.SetDefault("database.log_mode", false)

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.region", "")

	v.SetDefault("orchestration.default_max_retries", 3)
	v.SetDefault("orchestration.default_threshold", 60)
	v.SetDefault("orchestration.attempt_timeout", "2m")
	v.SetDefault("orchestration.master_agent_id", "master")
	v.SetDefault("orchestration.router", RouterKeyword)

	v.SetDefault("quality.profiles_file", "")
	v.SetDefault("quality.watch", false)

	v.SetDefault("analytics.max_records", 10000)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("roster_file", "")
}

// Load reads brigade.yaml from the first of ., $HOME/.config/brigade and
// /etc/brigade that has one, then applies BRIGADE_* overrides. A missing
// file is not an error.
func Load() (*Config, error) {
	v := newViper()
	v.SetConfigName("brigade")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "brigade"))
	}
	v.AddConfigPath("/etc/brigade")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}
	return decode(v)
}

// LoadFromPath loads configuration from a specific file.
func LoadFromPath(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("BRIGADE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.LLM.APIKey = os.ExpandEnv(cfg.LLM.APIKey)
	cfg.Database.DSN = os.ExpandEnv(cfg.Database.DSN)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	var problems []string
	switch c.Database.Driver {
	case "sqlite3", "postgres":
	default:
		problems = append(problems, fmt.Sprintf("database.driver %q must be sqlite3 or postgres", c.Database.Driver))
	}
	switch c.LLM.Provider {
	case "openai", "github_models", "azure_openai", "anthropic", "bedrock":
	default:
		problems = append(problems, fmt.Sprintf("llm.provider %q is not supported", c.LLM.Provider))
	}
	switch c.Orchestration.Router {
	case RouterKeyword, RouterModel:
	default:
		problems = append(problems, fmt.Sprintf("orchestration.router %q must be keyword or model", c.Orchestration.Router))
	}
	if c.Orchestration.DefaultMaxRetries < 0 {
		problems = append(problems, "orchestration.default_max_retries must not be negative")
	}
	if t := c.Orchestration.DefaultThreshold; t < 0 || t > 100 {
		problems = append(problems, "orchestration.default_threshold must be within 0-100")
	}
	if c.Orchestration.AttemptTimeout <= 0 {
		problems = append(problems, "orchestration.attempt_timeout must be positive")
	}
	if n := c.Analytics.MaxRecords; n <= 0 || n > 10000 {
		problems = append(problems, "analytics.max_records must be within 1-10000")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// SlogLevel maps log.level to a slog level, defaulting to info.
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// NewLogger builds the process logger. format "text" selects the text
// handler; anything else is JSON.
func (l LogConfig) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: l.SlogLevel()}
	if strings.EqualFold(l.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
