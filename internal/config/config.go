/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the payment-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort                string `mapstructure:"SERVER_PORT"`
	DatabaseURL               string `mapstructure:"DATABASE_URL"`
	RedisURL                  string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix      string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL               string `mapstructure:"RABBITMQ_URL"`
	EventsExchange            string `mapstructure:"EVENTS_EXCHANGE"`
	SagaEventQueue            string `mapstructure:"SAGA_EVENT_QUEUE"`
	JWKSURL                   string `mapstructure:"JWKS_URL"`
	AccountServiceURL         string `mapstructure:"ACCOUNT_SERVICE_URL"`
	AccountServiceAPIKey      string `mapstructure:"ACCOUNT_SERVICE_INTERNAL_API_KEY"`
	LegacyAdapterURL          string `mapstructure:"LEGACY_ADAPTER_URL"`
	LegacyAdapterAPIKey       string `mapstructure:"LEGACY_ADAPTER_INTERNAL_API_KEY"`
	InternalAPIKey            string `mapstructure:"INTERNAL_API_KEY"`
	OutboxSweepSchedule       string `mapstructure:"OUTBOX_SWEEP_SCHEDULE"`
	OutboxBatchSize           int    `mapstructure:"OUTBOX_BATCH_SIZE"`
	OutboxMaxRetries          int    `mapstructure:"OUTBOX_MAX_RETRIES"`
	PaymentRateLimitPerMinute int    `mapstructure:"PAYMENT_RATE_LIMIT_PER_MINUTE"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("EVENTS_EXCHANGE", "payment.events")
	viper.SetDefault("SAGA_EVENT_QUEUE", "payment_service.saga_events")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "payments:rate_limit")
	viper.SetDefault("OUTBOX_SWEEP_SCHEDULE", "@every 5s")
	viper.SetDefault("OUTBOX_BATCH_SIZE", 100)
	viper.SetDefault("OUTBOX_MAX_RETRIES", 3)
	viper.SetDefault("PAYMENT_RATE_LIMIT_PER_MINUTE", 30)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "PAYMENT_REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("EVENTS_EXCHANGE")
	_ = viper.BindEnv("SAGA_EVENT_QUEUE")
	_ = viper.BindEnv("JWKS_URL")
	_ = viper.BindEnv("ACCOUNT_SERVICE_URL")
	_ = viper.BindEnv("ACCOUNT_SERVICE_INTERNAL_API_KEY")
	_ = viper.BindEnv("LEGACY_ADAPTER_URL")
	_ = viper.BindEnv("LEGACY_ADAPTER_INTERNAL_API_KEY")
	_ = viper.BindEnv("INTERNAL_API_KEY", "INTERNAL_API_KEY", "PAYMENT_SERVICE_INTERNAL_API_KEY")
	_ = viper.BindEnv("OUTBOX_SWEEP_SCHEDULE")
	_ = viper.BindEnv("OUTBOX_BATCH_SIZE")
	_ = viper.BindEnv("OUTBOX_MAX_RETRIES")
	_ = viper.BindEnv("PAYMENT_RATE_LIMIT_PER_MINUTE")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
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
	config.AccountServiceAPIKey = strings.TrimSpace(config.AccountServiceAPIKey)
	if config.AccountServiceAPIKey == "" {
		config.AccountServiceAPIKey = strings.TrimSpace(config.InternalAPIKey)
	}
	config.LegacyAdapterAPIKey = strings.TrimSpace(config.LegacyAdapterAPIKey)
	if config.LegacyAdapterAPIKey == "" {
		config.LegacyAdapterAPIKey = strings.TrimSpace(config.InternalAPIKey)
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "payments:rate_limit"
	}

	if strings.TrimSpace(config.OutboxSweepSchedule) == "" {
		config.OutboxSweepSchedule = "@every 5s"
	}
	if config.OutboxBatchSize <= 0 {
		log.Printf("level=warn component=config msg=\"invalid outbox batch size; coercing to default\" batch_size=%d", config.OutboxBatchSize)
		config.OutboxBatchSize = 100
	}
	if config.OutboxMaxRetries <= 0 {
		log.Printf("level=warn component=config msg=\"invalid outbox retry ceiling; coercing to default\" max_retries=%d", config.OutboxMaxRetries)
		config.OutboxMaxRetries = 3
	}
	if config.PaymentRateLimitPerMinute <= 0 {
		config.PaymentRateLimitPerMinute = 30
	}

	return
}
