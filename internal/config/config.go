package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	ierr "github.com/meterline/meterline/internal/errors"
	"github.com/meterline/meterline/internal/types"
	"github.com/spf13/viper"
)

// Configuration is the full runtime configuration, loaded from config files
// and environment variables via viper.
type Configuration struct {
	Deployment     DeploymentConfig     `mapstructure:"deployment"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	Postgres       PostgresConfig       `mapstructure:"postgres"`
	Cache          CacheConfig          `mapstructure:"cache"`
	Redis          RedisConfig          `mapstructure:"redis"`
	Kafka          KafkaConfig          `mapstructure:"kafka"`
	UsageReporting UsageReportingConfig `mapstructure:"usage_reporting"`
	Stripe         StripeConfig         `mapstructure:"stripe"`
}

type DeploymentConfig struct {
	Mode types.RunMode `mapstructure:"mode" validate:"required"`
}

type LoggingConfig struct {
	Level types.LogLevel `mapstructure:"level" validate:"required"`
}

type PostgresConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	DBName       string `mapstructure:"dbname"`
	SSLMode      string `mapstructure:"sslmode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

// DSN renders the lib/pq connection string.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

type CacheConfig struct {
	Type    string `mapstructure:"type"`
	Enabled bool   `mapstructure:"enabled"`
}

type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	UseTLS   bool          `mapstructure:"use_tls"`
	PoolSize int           `mapstructure:"pool_size"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type KafkaConfig struct {
	Brokers       []string `mapstructure:"brokers"`
	ClientID      string   `mapstructure:"client_id"`
	TLS           bool     `mapstructure:"tls"`
	UseSASL       bool     `mapstructure:"use_sasl"`
	SASLMechanism string   `mapstructure:"sasl_mechanism"`
	SASLUser      string   `mapstructure:"sasl_user"`
	SASLPassword  string   `mapstructure:"sasl_password"`
}

type UsageReportingConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Topic         string        `mapstructure:"topic" validate:"required"`
	ConsumerGroup string        `mapstructure:"consumer_group"`
	RateLimit     int64         `mapstructure:"rate_limit"`
	MaxWorkers    int           `mapstructure:"max_workers"`
	PublishDelay  time.Duration `mapstructure:"publish_delay"`
}

type StripeConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// NewConfig loads configuration from ./config/config.yaml plus environment
// variables prefixed with METERLINE_. A missing config file is not an error;
// defaults and environment variables still apply.
func NewConfig() (*Configuration, error) {
	// Load .env in local development; ignore if absent.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")
	v.SetEnvPrefix("meterline")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, ierr.WithError(err).
				WithHint("Failed to read configuration file").
				Mark(ierr.ErrSystem)
		}
	}

	var cfg Configuration
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to unmarshal configuration").
			Mark(ierr.ErrSystem)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("deployment.mode", string(types.RunModeLocal))
	v.SetDefault("logging.level", string(types.LogLevelInfo))
	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "postgres")
	v.SetDefault("postgres.dbname", "meterline")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.max_open_conns", 10)
	v.SetDefault("postgres.max_idle_conns", 5)
	v.SetDefault("cache.type", "inmemory")
	v.SetDefault("cache.enabled", true)
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.timeout", 5*time.Second)
	v.SetDefault("kafka.client_id", "meterline")
	v.SetDefault("usage_reporting.enabled", true)
	v.SetDefault("usage_reporting.topic", "usage_events")
	v.SetDefault("usage_reporting.consumer_group", "meterline-usage")
	v.SetDefault("usage_reporting.rate_limit", 100)
	v.SetDefault("usage_reporting.max_workers", 8)
}

// Validate checks the configuration against struct tags.
func (c *Configuration) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return ierr.WithError(err).
			WithHint("Invalid configuration").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// GetDefaultConfig returns an in-memory configuration suitable for tests
// and scripts; no external systems are required.
func GetDefaultConfig() *Configuration {
	return &Configuration{
		Deployment: DeploymentConfig{Mode: types.RunModeLocal},
		Logging:    LoggingConfig{Level: types.LogLevelDebug},
		Cache:      CacheConfig{Type: "inmemory", Enabled: true},
		UsageReporting: UsageReportingConfig{
			Enabled:       true,
			Topic:         "usage_events",
			ConsumerGroup: "meterline-usage",
			RateLimit:     100,
			MaxWorkers:    4,
		},
	}
}
