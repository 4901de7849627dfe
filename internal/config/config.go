package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
// Values are read by viper from a config file or environment variables.
type Config struct {
	TelegramBotToken string `mapstructure:"TELEGRAM_BOT_TOKEN"`
	BadgerDBPath     string `mapstructure:"BADGERDB_PATH"`
	LogLevel         string `mapstructure:"LOG_LEVEL"`

	// PollInterval is how often the background loop runs a full cycle.
	PollInterval time.Duration `mapstructure:"POLL_INTERVAL"`

	// FetchPacing is the minimum gap between any two requests to the origin
	// site, enforced across retries and across subscriptions.
	FetchPacing time.Duration `mapstructure:"FETCH_PACING"`

	// PageTimeout bounds a single page load inside the browser.
	PageTimeout time.Duration `mapstructure:"PAGE_TIMEOUT"`

	RetryAttempts  int           `mapstructure:"RETRY_ATTEMPTS"`
	RetryBaseDelay time.Duration `mapstructure:"RETRY_BASE_DELAY"`

	// BatchMaxItems and BatchMaxChars bound one outbound message.
	BatchMaxItems int `mapstructure:"BATCH_MAX_ITEMS"`
	BatchMaxChars int `mapstructure:"BATCH_MAX_CHARS"`

	// InterBatchDelay preserves ordering between a recipient's batches.
	InterBatchDelay time.Duration `mapstructure:"INTER_BATCH_DELAY"`

	// SeenRetention is how long dedup markers are kept before cleanup.
	SeenRetention time.Duration `mapstructure:"SEEN_RETENTION"`

	// SubscriptionInactivity deactivates subscriptions unchecked this long.
	SubscriptionInactivity time.Duration `mapstructure:"SUBSCRIPTION_INACTIVITY"`

	// OnDemandTimeout hard-bounds an interactive /check run.
	OnDemandTimeout time.Duration `mapstructure:"ON_DEMAND_TIMEOUT"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	err = viper.ReadInConfig()
	if err != nil {
		// A missing config file is fine when env vars are set; any other
		// read error is not.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		return Config{}, fmt.Errorf("unable to decode into struct: %w", err)
	}

	if config.TelegramBotToken == "" {
		return Config{}, fmt.Errorf("TELEGRAM_BOT_TOKEN is not set")
	}
	config.applyDefaults()

	return config, nil
}

func (c *Config) applyDefaults() {
	if c.BadgerDBPath == "" {
		c.BadgerDBPath = "./badger_data"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 10 * time.Minute
	}
	if c.FetchPacing <= 0 {
		c.FetchPacing = 3 * time.Second
	}
	if c.PageTimeout <= 0 {
		c.PageTimeout = 30 * time.Second
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = 3
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 5 * time.Second
	}
	if c.BatchMaxItems <= 0 {
		c.BatchMaxItems = 10
	}
	if c.BatchMaxChars <= 0 {
		c.BatchMaxChars = 4096
	}
	if c.InterBatchDelay <= 0 {
		c.InterBatchDelay = time.Second
	}
	if c.SeenRetention <= 0 {
		c.SeenRetention = 30 * 24 * time.Hour
	}
	if c.SubscriptionInactivity <= 0 {
		c.SubscriptionInactivity = 90 * 24 * time.Hour
	}
	if c.OnDemandTimeout <= 0 {
		c.OnDemandTimeout = 2 * time.Minute
	}
}
