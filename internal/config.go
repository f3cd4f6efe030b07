package internal

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Env      string         `mapstructure:"env" envconfig:"APP_ENV" default:"development"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Events   EventsConfig   `mapstructure:"events"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver" envconfig:"DB_DRIVER" default:"postgres" validate:"required,oneof=postgres sqlite"`
	Source          string        `mapstructure:"source" envconfig:"DB_SOURCE" validate:"required"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" envconfig:"DB_MAX_OPEN_CONNS" default:"25" validate:"required,min=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" envconfig:"DB_MAX_IDLE_CONNS" default:"5" validate:"required,min=1"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" envconfig:"DB_CONN_MAX_LIFETIME" default:"30m" validate:"required,min=1m"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" envconfig:"DB_CONN_MAX_IDLE_TIME" default:"5m" validate:"required,min=1m"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" envconfig:"LOG_LEVEL" default:"info" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" envconfig:"LOG_FORMAT" default:"json" validate:"required,oneof=json text"`
}

// EventsConfig controls forwarding of assignment events to Redis.
type EventsConfig struct {
	Enabled   bool   `mapstructure:"enabled" envconfig:"EVENTS_ENABLED" default:"false"`
	RedisAddr string `mapstructure:"redis_addr" envconfig:"REDIS_ADDR" default:"127.0.0.1:6379" validate:"required_if=Enabled true"`
	Channel   string `mapstructure:"channel" envconfig:"EVENTS_CHANNEL" default:"membership-portal.authz"`
}

type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled" envconfig:"METRICS_ENABLED" default:"false"`
	Namespace string `mapstructure:"namespace" envconfig:"METRICS_NAMESPACE" default:"membership_portal" validate:"required_if=Enabled true"`
}

// LoadConfigFromEnv reads the configuration from environment variables. Used
// for container deployments where no config file is mounted.
func LoadConfigFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}
	return &cfg, nil
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				errs = append(errs, fmt.Sprintf("%s failed on %s", fe.Namespace(), fe.Tag()))
			}
		} else {
			errs = append(errs, err.Error())
		}
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

func (c *Config) IsProduction() bool {
	return c != nil && c.Env == "production"
}
