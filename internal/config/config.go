package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/subplane/subplane/internal/types"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Configuration struct {
	Deployment DeploymentConfig `validate:"required"`
	Server     ServerConfig     `validate:"required"`
	Logging    LoggingConfig    `validate:"required"`
	Postgres   PostgresConfig   `validate:"required"`
	Billing    BillingConfig    `validate:"required"`
	Plans      PlansConfig      `validate:"required"`
	Webhook    WebhookConfig
	Auth       AuthConfig
}

type DeploymentConfig struct {
	Mode types.RunMode `validate:"required"`
}

type ServerConfig struct {
	Address string `validate:"required"`
}

type LoggingConfig struct {
	Level types.LogLevel `validate:"required"`
}

type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// BillingConfig carries the credentials and timing knobs for the billing
// provider integration
type BillingConfig struct {
	SecretKey     string `mapstructure:"secret_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	// EventTolerance is how old a webhook delivery may be before it is
	// rejected as stale
	EventTolerance time.Duration `mapstructure:"event_tolerance"`
	// RequestTimeout bounds every outbound call to the provider
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// PlansConfig points at the static plan catalog definition
type PlansConfig struct {
	CatalogPath string `mapstructure:"catalog_path" validate:"required"`
}

// AuthConfig carries the request identity settings. The service sits
// behind an authenticating proxy, so the caller identity arrives as a
// trusted header rather than a token.
type AuthConfig struct {
	// UserIDHeader names the header carrying the authenticated user id
	UserIDHeader string `mapstructure:"user_id_header"`
	// AdminKey authorizes privileged operations such as immediate
	// cancellation. Empty disables the admin surface entirely.
	AdminKey string `mapstructure:"admin_key"`
}

// WebhookConfig tunes the inbound webhook endpoint
type WebhookConfig struct {
	// RateLimit is sustained deliveries per second allowed before 429s
	RateLimit float64 `mapstructure:"rate_limit"`
	// RateBurst is the burst bucket size for the rate limiter
	RateBurst int `mapstructure:"rate_burst"`
}

func NewConfig() (*Configuration, error) {
	v := viper.New()

	// Modify config paths to ensure config.yaml is found
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/subplane")

	// Set up environment variables support
	v.SetEnvPrefix("SUBPLANE")
	v.SetEnvKeyReplacer(strings.NewReplacer(
		".", "_",
		"-", "_",
	))
	v.AutomaticEnv()

	// Read config file if exists
	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("Error reading config file: %v\n", err)
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, err
		}
	} else {
		fmt.Printf("Using config file: %s\n", v.ConfigFileUsed())
	}

	var config Configuration
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	config.ApplyDefaults()

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c Configuration) Validate() error {
	validate := validator.New()
	return validate.Struct(c)
}

// ApplyDefaults fills the timing and rate knobs that are safe to default
func (c *Configuration) ApplyDefaults() {
	if c.Billing.EventTolerance == 0 {
		c.Billing.EventTolerance = 5 * time.Minute
	}
	if c.Billing.RequestTimeout == 0 {
		c.Billing.RequestTimeout = 15 * time.Second
	}
	if c.Webhook.RateLimit == 0 {
		c.Webhook.RateLimit = 25
	}
	if c.Webhook.RateBurst == 0 {
		c.Webhook.RateBurst = 50
	}
	if c.Auth.UserIDHeader == "" {
		c.Auth.UserIDHeader = "X-User-ID"
	}
}

// GetDefaultConfig returns a default configuration for local development
// This is useful for running scripts or other non-web applications
func GetDefaultConfig() *Configuration {
	cfg := &Configuration{
		Deployment: DeploymentConfig{Mode: types.ModeLocal},
		Logging:    LoggingConfig{Level: types.LogLevelDebug},
		Plans:      PlansConfig{CatalogPath: "./config/plans.yaml"},
	}
	cfg.ApplyDefaults()
	return cfg
}

func (c PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"user=%s password=%s dbname=%s host=%s port=%d sslmode=%s",
		c.User,
		c.Password,
		c.DBName,
		c.Host,
		c.Port,
		c.SSLMode,
	)
}
