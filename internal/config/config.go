// Package config содержит логику чтения конфигурации сервиса продажи курсов.
package config

import (
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	defaultRunAddress        = "localhost:8080"
	defaultCurrency          = "usd"
	defaultStalePendingAfter = time.Hour
)

// Config содержит параметры конфигурации сервиса.
type Config struct {
	RunAddress          string        `env:"RUN_ADDRESS"`
	DatabaseURI         string        `env:"DATABASE_URI"`
	StripeSecretKey     string        `env:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string        `env:"STRIPE_WEBHOOK_SECRET"`
	StripeAPIURL        string        `env:"STRIPE_API_URL"`
	Currency            string        `env:"CURRENCY"`
	AuthSecret          string        `env:"AUTH_SECRET"`
	RedisAddress        string        `env:"REDIS_ADDRESS"`
	AllowedOrigins      []string      `env:"ALLOWED_ORIGINS" envSeparator:","`
	StalePendingAfter   time.Duration `env:"STALE_PENDING_AFTER"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	envCfg := Config{}
	if err := env.Parse(&envCfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg := &Config{}
	var origins string

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.StripeSecretKey, "s", "", "stripe secret key")
	flag.StringVar(&cfg.StripeWebhookSecret, "w", "", "stripe webhook signing secret")
	flag.StringVar(&cfg.StripeAPIURL, "stripe-url", "", "stripe API base URL override")
	flag.StringVar(&cfg.Currency, "c", defaultCurrency, "checkout currency")
	flag.StringVar(&cfg.AuthSecret, "k", "", "auth token signing secret")
	flag.StringVar(&cfg.RedisAddress, "r", "", "redis address for webhook event journal")
	flag.StringVar(&origins, "origins", "", "comma separated list of allowed checkout origins")
	flag.DurationVar(&cfg.StalePendingAfter, "stale", defaultStalePendingAfter, "age after which a pending purchase is reported as stale")

	flag.Parse()

	if origins != "" {
		cfg.AllowedOrigins = splitList(origins)
	}

	if envCfg.RunAddress != "" {
		cfg.RunAddress = envCfg.RunAddress
	}
	if envCfg.DatabaseURI != "" {
		cfg.DatabaseURI = envCfg.DatabaseURI
	}
	if envCfg.StripeSecretKey != "" {
		cfg.StripeSecretKey = envCfg.StripeSecretKey
	}
	if envCfg.StripeWebhookSecret != "" {
		cfg.StripeWebhookSecret = envCfg.StripeWebhookSecret
	}
	if envCfg.StripeAPIURL != "" {
		cfg.StripeAPIURL = envCfg.StripeAPIURL
	}
	if envCfg.Currency != "" {
		cfg.Currency = envCfg.Currency
	}
	if envCfg.AuthSecret != "" {
		cfg.AuthSecret = envCfg.AuthSecret
	}
	if envCfg.RedisAddress != "" {
		cfg.RedisAddress = envCfg.RedisAddress
	}
	if len(envCfg.AllowedOrigins) > 0 {
		cfg.AllowedOrigins = splitList(strings.Join(envCfg.AllowedOrigins, ","))
	}
	if envCfg.StalePendingAfter > 0 {
		cfg.StalePendingAfter = envCfg.StalePendingAfter
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}
	cfg.Currency = strings.ToLower(cfg.Currency)
	if cfg.Currency == "" {
		cfg.Currency = defaultCurrency
	}
	if cfg.StalePendingAfter <= 0 {
		cfg.StalePendingAfter = defaultStalePendingAfter
	}

	return cfg, nil
}

// Validate проверяет наличие параметров, без которых сервис не может принимать платежи.
func (c *Config) Validate() error {
	var missing []string
	if c.DatabaseURI == "" {
		missing = append(missing, "DATABASE_URI")
	}
	if c.StripeSecretKey == "" {
		missing = append(missing, "STRIPE_SECRET_KEY")
	}
	if c.StripeWebhookSecret == "" {
		missing = append(missing, "STRIPE_WEBHOOK_SECRET")
	}
	if c.AuthSecret == "" {
		missing = append(missing, "AUTH_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

func splitList(s string) []string {
	var res []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			res = append(res, part)
		}
	}
	return res
}
