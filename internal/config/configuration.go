package config

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	// WebServer Configuration
	WebServerPort int `mapstructure:"WEBSERVER_PORT"`

	// Database Configuration
	DatabaseDSN     string `mapstructure:"DATABASE_DSN" validate:"required"`
	DatabaseRetries int    `mapstructure:"DATABASE_RETRIES"`

	// Media locations
	MediaRootPaths string `mapstructure:"MEDIA_ROOT_PATHS"` // comma-separated allow-list; empty allows any path
	ProxyDir       string `mapstructure:"PROXY_DIR" validate:"required"`
	DatasetsRoot   string `mapstructure:"DATASETS_ROOT"`

	// Ingest pipeline
	ProxyHeight   int `mapstructure:"PROXY_HEIGHT" validate:"gt=0"`
	IngestWorkers int `mapstructure:"INGEST_WORKERS" validate:"gt=0"`

	// Assisted classification (optional; empty key disables the strategy)
	OpenAIAPIKey  string `mapstructure:"OPENAI_API_KEY"`
	OpenAIBaseURL string `mapstructure:"OPENAI_BASE_URL"`
	OpenAIModel   string `mapstructure:"OPENAI_MODEL"`

	// Logging
	LogFile  string `mapstructure:"LOG_FILE"`
	LogLevel string `mapstructure:"LOG_LEVEL"`
}

// MediaRoots returns the parsed media root allow-list.
func (c *Config) MediaRoots() []string {
	var roots []string
	for _, part := range strings.Split(c.MediaRootPaths, ",") {
		if p := strings.TrimSpace(part); p != "" {
			roots = append(roots, p)
		}
	}
	return roots
}

// AssistEnabled reports whether the LLM-assisted classification strategy is configured.
func (c *Config) AssistEnabled() bool {
	return strings.TrimSpace(c.OpenAIAPIKey) != ""
}

// use reflect to bind environment variables based on mapstructure tags
func bindEnv(c Config) {
	val := reflect.ValueOf(c)
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		tag := typ.Field(i).Tag.Get("mapstructure")
		if tag != "" {
			viper.BindEnv(tag)
		}
	}
}

func LoadConfig(ctx context.Context) (*Config, error) {
	bindEnv(Config{})
	viper.AutomaticEnv()

	// Defaults
	viper.SetDefault("WEBSERVER_PORT", 8000)
	viper.SetDefault("DATABASE_RETRIES", 10)
	viper.SetDefault("PROXY_DIR", ".ingesthub_proxies")
	viper.SetDefault("PROXY_HEIGHT", 720)
	viper.SetDefault("INGEST_WORKERS", 4)
	viper.SetDefault("OPENAI_MODEL", "gpt-4.1-mini")
	viper.SetDefault("LOG_LEVEL", "info")

	cfg := Config{}
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	slog.Info("Loaded configuration",
		"port", cfg.WebServerPort,
		"proxy_dir", cfg.ProxyDir,
		"datasets_root", cfg.DatasetsRoot,
		"media_roots", cfg.MediaRoots(),
		"workers", cfg.IngestWorkers,
		"assist_enabled", cfg.AssistEnabled(),
	)

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}
