package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-multierror"
	"github.com/kelseyhightower/envconfig"
)

const (
	DriverMemory = "memory"
	DriverFile   = "file"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

type Config struct {
	Port        string `envconfig:"PORT" default:"3000" validate:"required,numeric"`
	AdminKey    string `envconfig:"ADMIN_KEY" validate:"required"`
	ServiceName string `envconfig:"SERVICE_NAME" default:"VEO3 License API" validate:"required"`

	StoreDriver  string `envconfig:"STORE_DRIVER" default:"memory" validate:"oneof=memory file sqlite redis"`
	DatabasePath string `envconfig:"DATABASE_PATH"`
	RedisURL     string `envconfig:"REDIS_URL"`
	SeedFile     string `envconfig:"SEED_FILE"`

	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" default:"*"`
	LogLevel       string   `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error DEBUG INFO WARN ERROR"`
	SentryDSN      string   `envconfig:"SENTRY_DSN"`

	StripeWebhookSecret string `envconfig:"STRIPE_WEBHOOK_SECRET"`

	SMTPHost     string `envconfig:"SMTP_HOST"`
	SMTPPort     string `envconfig:"SMTP_PORT"`
	SMTPUsername string `envconfig:"SMTP_USERNAME"`
	SMTPPassword string `envconfig:"SMTP_PASSWORD"`
	EmailFrom    string `envconfig:"EMAIL_FROM" default:"licenses@veo3.app" validate:"omitempty,email"`

	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s" validate:"gt=0"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// New reads the configuration from the environment. Call godotenv.Load
// first if a .env file should be honoured.
func New() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate reports every problem with the configuration at once.
func (c *Config) Validate() error {
	var result *multierror.Error

	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("failed to validate config: %w", err)
		}
		for _, fe := range fieldErrs {
			result = multierror.Append(result, fmt.Errorf("%s failed '%s' validation", fe.Field(), fe.Tag()))
		}
	}

	switch c.StoreDriver {
	case DriverFile, DriverSQLite:
		if c.DatabasePath == "" {
			result = multierror.Append(result, fmt.Errorf("DATABASE_PATH environment variable is required when using the %s store", c.StoreDriver))
		}
	case DriverRedis:
		if c.RedisURL == "" {
			result = multierror.Append(result, errors.New("REDIS_URL environment variable is required when using the redis store"))
		}
	}

	if c.smtpPartiallyConfigured() {
		result = multierror.Append(result, errors.New("SMTP_HOST, SMTP_PORT, SMTP_USERNAME, and SMTP_PASSWORD environment variables must be set together"))
	}

	return result.ErrorOrNil()
}

func (c *Config) StripeEnabled() bool {
	return c.StripeWebhookSecret != ""
}

func (c *Config) EmailEnabled() bool {
	return c.SMTPHost != "" && c.SMTPPort != "" && c.SMTPUsername != "" && c.SMTPPassword != ""
}

func (c *Config) Addr() string {
	return ":" + c.Port
}

func (c *Config) smtpPartiallyConfigured() bool {
	set := 0
	for _, v := range []string{c.SMTPHost, c.SMTPPort, c.SMTPUsername, c.SMTPPassword} {
		if v != "" {
			set++
		}
	}
	return set > 0 && set < 4
}
