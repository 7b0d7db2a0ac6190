/**
 * @description
 * This package handles the configuration management for the service. It uses
 * the Viper library to read configuration from environment variables,
 * providing a centralized and straightforward way to manage application
 * settings.
 *
 * Provider credential validation is deliberately strict: an enabled provider
 * with no webhook secret is a fatal startup error in production. Outside
 * production it degrades to an explicit insecure mode that the signature
 * verifier logs on every request.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// ProviderConfig holds the per-provider settings for webhook intake.
type ProviderConfig struct {
	Enabled       bool
	WebhookSecret string
	APIBaseURL    string
	Currencies    []string
}

// Config holds all the configuration variables for the service.
// These values are loaded from environment variables.
type Config struct {
	AppEnv                     string `mapstructure:"APP_ENV"`
	ServerPort                 string `mapstructure:"SERVER_PORT"`
	DatabaseURL                string `mapstructure:"DATABASE_URL"`
	RedisURL                   string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix       string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL                string `mapstructure:"RABBITMQ_URL"`
	DepositEventExchange       string `mapstructure:"DEPOSIT_EVENT_EXCHANGE"`
	DepositEventRoutingKey     string `mapstructure:"DEPOSIT_EVENT_ROUTING_KEY"`
	WebhookRateLimitPerMinute  int    `mapstructure:"WEBHOOK_RATE_LIMIT_PER_MINUTE"`
	WebhookWorkerCount         int    `mapstructure:"WEBHOOK_WORKER_COUNT"`
	WebhookQueueSize           int    `mapstructure:"WEBHOOK_QUEUE_SIZE"`
	WebhookRetryAttempts       int    `mapstructure:"WEBHOOK_RETRY_ATTEMPTS"`
	WebhookRetryBackoffSeconds int    `mapstructure:"WEBHOOK_RETRY_BACKOFF_SECONDS"`
	ReconcileSchedule          string `mapstructure:"RECONCILE_SCHEDULE"`
	StalePendingThresholdHours int    `mapstructure:"STALE_PENDING_THRESHOLD_HOURS"`
	HealthRefreshSchedule      string `mapstructure:"HEALTH_REFRESH_SCHEDULE"`

	AnchorEnabled       bool   `mapstructure:"ANCHOR_ENABLED"`
	AnchorWebhookSecret string `mapstructure:"ANCHOR_WEBHOOK_SECRET"`
	AnchorAPIBaseURL    string `mapstructure:"ANCHOR_API_BASE_URL"`
	AnchorCurrencies    string `mapstructure:"ANCHOR_CURRENCIES"`

	PaystackEnabled       bool   `mapstructure:"PAYSTACK_ENABLED"`
	PaystackWebhookSecret string `mapstructure:"PAYSTACK_WEBHOOK_SECRET"`
	PaystackAPIBaseURL    string `mapstructure:"PAYSTACK_API_BASE_URL"`
	PaystackCurrencies    string `mapstructure:"PAYSTACK_CURRENCIES"`
}

// LoadConfig reads configuration from environment variables from the given
// path. It uses Viper to automatically bind environment variables to the
// Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "payzephyr:rate_limit")
	viper.SetDefault("DEPOSIT_EVENT_EXCHANGE", "deposit_events")
	viper.SetDefault("DEPOSIT_EVENT_ROUTING_KEY", "deposit.confirmed")
	viper.SetDefault("WEBHOOK_RATE_LIMIT_PER_MINUTE", 120)
	viper.SetDefault("WEBHOOK_WORKER_COUNT", 4)
	viper.SetDefault("WEBHOOK_QUEUE_SIZE", 256)
	viper.SetDefault("WEBHOOK_RETRY_ATTEMPTS", 3)
	viper.SetDefault("WEBHOOK_RETRY_BACKOFF_SECONDS", 60)
	viper.SetDefault("RECONCILE_SCHEDULE", "@hourly")
	viper.SetDefault("STALE_PENDING_THRESHOLD_HOURS", 24)
	viper.SetDefault("HEALTH_REFRESH_SCHEDULE", "@every 5m")
	viper.SetDefault("ANCHOR_CURRENCIES", "NGN")
	viper.SetDefault("PAYSTACK_CURRENCIES", "NGN")

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("APP_ENV")
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("DEPOSIT_EVENT_EXCHANGE")
	_ = viper.BindEnv("DEPOSIT_EVENT_ROUTING_KEY")
	_ = viper.BindEnv("WEBHOOK_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("WEBHOOK_WORKER_COUNT")
	_ = viper.BindEnv("WEBHOOK_QUEUE_SIZE")
	_ = viper.BindEnv("WEBHOOK_RETRY_ATTEMPTS")
	_ = viper.BindEnv("WEBHOOK_RETRY_BACKOFF_SECONDS")
	_ = viper.BindEnv("RECONCILE_SCHEDULE")
	_ = viper.BindEnv("STALE_PENDING_THRESHOLD_HOURS")
	_ = viper.BindEnv("HEALTH_REFRESH_SCHEDULE")
	_ = viper.BindEnv("ANCHOR_ENABLED")
	_ = viper.BindEnv("ANCHOR_WEBHOOK_SECRET")
	_ = viper.BindEnv("ANCHOR_API_BASE_URL")
	_ = viper.BindEnv("ANCHOR_CURRENCIES")
	_ = viper.BindEnv("PAYSTACK_ENABLED")
	_ = viper.BindEnv("PAYSTACK_WEBHOOK_SECRET")
	_ = viper.BindEnv("PAYSTACK_API_BASE_URL")
	_ = viper.BindEnv("PAYSTACK_CURRENCIES")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "payzephyr:rate_limit"
	}
	if config.WebhookRateLimitPerMinute <= 0 {
		config.WebhookRateLimitPerMinute = 120
	}
	if config.WebhookWorkerCount <= 0 {
		config.WebhookWorkerCount = 4
	}
	if config.WebhookQueueSize <= 0 {
		config.WebhookQueueSize = 256
	}
	if config.WebhookRetryAttempts <= 0 {
		config.WebhookRetryAttempts = 3
	}
	if config.WebhookRetryBackoffSeconds <= 0 {
		config.WebhookRetryBackoffSeconds = 60
	}
	if config.StalePendingThresholdHours <= 0 {
		config.StalePendingThresholdHours = 24
	}

	if err = validateProviders(config); err != nil {
		return Config{}, err
	}
	if err = validateSchedules(config); err != nil {
		return Config{}, err
	}

	return
}

// IsProduction reports whether the service runs with production guarantees.
func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.AppEnv), "production")
}

// Providers assembles the per-provider configuration map consumed by the
// driver registry.
func (c Config) Providers() map[string]ProviderConfig {
	return map[string]ProviderConfig{
		"anchor": {
			Enabled:       c.AnchorEnabled,
			WebhookSecret: strings.TrimSpace(c.AnchorWebhookSecret),
			APIBaseURL:    strings.TrimSpace(c.AnchorAPIBaseURL),
			Currencies:    splitCurrencies(c.AnchorCurrencies),
		},
		"paystack": {
			Enabled:       c.PaystackEnabled,
			WebhookSecret: strings.TrimSpace(c.PaystackWebhookSecret),
			APIBaseURL:    strings.TrimSpace(c.PaystackAPIBaseURL),
			Currencies:    splitCurrencies(c.PaystackCurrencies),
		},
	}
}

// validateProviders enforces fail-fast credential checks. A provider missing
// its webhook secret must not silently degrade in production.
func validateProviders(c Config) error {
	for name, provider := range c.Providers() {
		if !provider.Enabled {
			continue
		}
		if provider.WebhookSecret == "" {
			if c.IsProduction() {
				return fmt.Errorf("configuration invalid: provider %q is enabled without a webhook secret", name)
			}
			log.Printf("level=warn component=config msg=\"provider enabled without webhook secret; signature verification runs in insecure mode\" provider=%s", name)
		}
	}
	return nil
}

// validateSchedules rejects unparseable cron expressions at startup. A bad
// schedule must not silently disable reconciliation for the life of the
// process.
func validateSchedules(c Config) error {
	if _, err := cron.ParseStandard(c.ReconcileSchedule); err != nil {
		return fmt.Errorf("configuration invalid: RECONCILE_SCHEDULE %q: %w", c.ReconcileSchedule, err)
	}
	if _, err := cron.ParseStandard(c.HealthRefreshSchedule); err != nil {
		return fmt.Errorf("configuration invalid: HEALTH_REFRESH_SCHEDULE %q: %w", c.HealthRefreshSchedule, err)
	}
	return nil
}

func splitCurrencies(raw string) []string {
	parts := strings.Split(raw, ",")
	currencies := make([]string, 0, len(parts))
	for _, part := range parts {
		if cleaned := strings.ToUpper(strings.TrimSpace(part)); cleaned != "" {
			currencies = append(currencies, cleaned)
		}
	}
	return currencies
}
