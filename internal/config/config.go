// Package config loads application configuration from file and environment.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/parkpulse/parkpulse/internal/model"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	DataGov DataGovConfig `yaml:"datagov" mapstructure:"datagov"`
	Pricing PricingConfig `yaml:"pricing" mapstructure:"pricing"`
	Session SessionConfig `yaml:"session" mapstructure:"session"`
	Budget  BudgetConfig  `yaml:"budget" mapstructure:"budget"`
	Notify  NotifyConfig  `yaml:"notify" mapstructure:"notify"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// DataGovConfig configures the data.gov.sg client.
type DataGovConfig struct {
	BaseURL      string  `yaml:"base_url" mapstructure:"base_url"`
	RatePerSec   float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	TimeoutSecs  int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	SyncInterval int     `yaml:"sync_interval_secs" mapstructure:"sync_interval_secs"`
}

// PricingConfig configures the parking tariff.
type PricingConfig struct {
	PerHour   float64 `yaml:"per_hour" mapstructure:"per_hour"`
	RatesFile string  `yaml:"rates_file" mapstructure:"rates_file"`
}

// SessionConfig configures live session tracking.
type SessionConfig struct {
	TickSecs int `yaml:"tick_secs" mapstructure:"tick_secs"`
}

// BudgetConfig configures threshold fractions for new budgets.
type BudgetConfig struct {
	WarningFraction  float64 `yaml:"warning_fraction" mapstructure:"warning_fraction"`
	CriticalFraction float64 `yaml:"critical_fraction" mapstructure:"critical_fraction"`
}

// NotifyConfig configures alert delivery.
type NotifyConfig struct {
	WebhookURL string `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PARKPULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "parkpulse.db")
	v.SetDefault("datagov.base_url", "https://api.data.gov.sg/v1")
	v.SetDefault("datagov.rate_per_sec", 1.0)
	v.SetDefault("datagov.timeout_secs", 30)
	v.SetDefault("datagov.sync_interval_secs", 60)
	v.SetDefault("pricing.per_hour", 2.00)
	v.SetDefault("session.tick_secs", 1)
	v.SetDefault("budget.warning_fraction", model.DefaultWarningFraction)
	v.SetDefault("budget.critical_fraction", model.DefaultCriticalFraction)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
