package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v9"
)

// Config contains all runtime settings for the offer-matching service.
type Config struct {
	BindAddr         string        `env:"APP_BIND_ADDR" envDefault:":8080"`
	ShutdownTimeout  time.Duration `env:"APP_SHUTDOWN_TIMEOUT" envDefault:"15s"`
	MetricsNamespace string        `env:"APP_METRICS_NAMESPACE" envDefault:"finchat"`
	AllowAnyOrigin   bool          `env:"APP_ALLOW_ANY_ORIGIN" envDefault:"false"`
	LogLevel         string        `env:"APP_LOG_LEVEL" envDefault:"info"`
	LogFile          string        `env:"APP_LOG_FILE"`

	// Empty DatabaseURL selects the in-memory chat store.
	DatabaseURL string `env:"DATABASE_URL"`

	CatalogBaseURL  string        `env:"CATALOG_BASE_URL" envDefault:"https://api.cashium.pro/api/offers"`
	CatalogPageSize int           `env:"CATALOG_PAGE_SIZE" envDefault:"500"`
	CatalogTimeout  time.Duration `env:"CATALOG_TIMEOUT" envDefault:"10s"`

	DeepSeekAPIKey  string `env:"DEEPSEEK_API_KEY"`
	DeepSeekBaseURL string `env:"DEEPSEEK_BASE_URL" envDefault:"https://api.deepseek.com/v1"`
	DeepSeekModel   string `env:"DEEPSEEK_MODEL" envDefault:"deepseek-chat"`

	DeepInfraAPIKey  string `env:"DEEPINFRA_API_KEY"`
	DeepInfraBaseURL string `env:"DEEPINFRA_BASE_URL" envDefault:"https://api.deepinfra.com/v1/openai"`
	DeepInfraModel   string `env:"DEEPINFRA_MODEL" envDefault:"meta-llama/Llama-4-Maverick-17B-128E-Instruct-FP8"`

	CompletionTimeout time.Duration `env:"COMPLETION_TIMEOUT" envDefault:"30s"`
	CompletionRetries int           `env:"COMPLETION_RETRIES" envDefault:"3"`
	RankConcurrency   int           `env:"RANK_CONCURRENCY" envDefault:"8"`
	StageWindowSize   int           `env:"PERF_WINDOW_SIZE" envDefault:"256"`
}

// Load reads environment variables, applies defaults and validates.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.BindAddr) == "" {
		return fmt.Errorf("APP_BIND_ADDR must not be empty")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("APP_LOG_LEVEL %q is not one of debug, info, warn, error", c.LogLevel)
	}
	if c.CatalogPageSize <= 0 {
		return fmt.Errorf("CATALOG_PAGE_SIZE must be positive, got %d", c.CatalogPageSize)
	}
	if c.CompletionRetries <= 0 {
		return fmt.Errorf("COMPLETION_RETRIES must be positive, got %d", c.CompletionRetries)
	}
	if c.CompletionTimeout <= 0 {
		return fmt.Errorf("COMPLETION_TIMEOUT must be positive, got %s", c.CompletionTimeout)
	}
	if c.RankConcurrency <= 0 {
		return fmt.Errorf("RANK_CONCURRENCY must be positive, got %d", c.RankConcurrency)
	}
	if c.StageWindowSize <= 0 {
		return fmt.Errorf("PERF_WINDOW_SIZE must be positive, got %d", c.StageWindowSize)
	}
	return nil
}
