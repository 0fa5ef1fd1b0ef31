package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite"

	UnknownCourseDeny  = "deny"
	UnknownCourseAllow = "allow"
)

type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	Environment string `envconfig:"ENV" default:"production"`
	LogLevel    string `envconfig:"LOG_LEVEL"`

	DBDriver           string `envconfig:"DB_DRIVER" default:"pgx"`
	DBConnectionString string `envconfig:"DB_CONNECTION_STRING" required:"true"`

	// Billing service settings
	BillingServiceURL     string `envconfig:"BILLING_SERVICE_URL" required:"true"`
	BillingTimeoutSec     int    `envconfig:"BILLING_TIMEOUT_SEC" default:"10"`
	BillingDNSCacheTTLSec int    `envconfig:"BILLING_DNS_CACHE_TTL_SEC" default:"300"`

	// Service account used by the catalog sync orchestrator
	BillingServiceUsername       string `envconfig:"BILLING_SERVICE_USERNAME"`
	BillingServicePassword       string `envconfig:"BILLING_SERVICE_PASSWORD"`
	BillingServicePasswordSecret string `envconfig:"BILLING_SERVICE_PASSWORD_SECRET"`

	// Session cookie settings
	SessionKey       string `envconfig:"SESSION_KEY"`
	SessionKeySecret string `envconfig:"SESSION_KEY_SECRET"`
	SessionMaxAgeSec int    `envconfig:"SESSION_MAX_AGE_SEC" default:"604800"`
	CookieSecure     bool   `envconfig:"COOKIE_SECURE" default:"true"`

	// Access policy
	AdminRole           string `envconfig:"ADMIN_ROLE" default:"ROLE_SUPER_ADMIN"`
	UnknownCourseAccess string `envconfig:"UNKNOWN_COURSE_ACCESS" default:"deny"`
	RentalExpiryCheck   bool   `envconfig:"RENTAL_EXPIRY_CHECK" default:"true"`

	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`

	// GCP settings; Pub/Sub and Secret Manager stay disabled without a project
	GCPProjectID       string `envconfig:"GCP_PROJECT_ID"`
	PaymentEventsTopic string `envconfig:"PUBSUB_PAYMENT_TOPIC" default:"course-payments"`

	// Catalog sync orchestrator settings
	CatalogSyncQueueName           string `envconfig:"CATALOG_SYNC_QUEUE_NAME" default:"catalog_sync_queue"`
	CatalogSyncPollTimeoutSec      int    `envconfig:"CATALOG_SYNC_POLL_TIMEOUT_SEC" default:"30"`
	CatalogSyncPollMaxMsg          int    `envconfig:"CATALOG_SYNC_POLL_MAX_MSG" default:"1"`
	CatalogSyncMaxRetries          int    `envconfig:"CATALOG_SYNC_MAX_RETRIES" default:"5"`
	CatalogSyncBackoffInitialSec   int    `envconfig:"CATALOG_SYNC_BACKOFF_INITIAL_SEC" default:"1"`
	CatalogSyncBackoffMaxSec       int    `envconfig:"CATALOG_SYNC_BACKOFF_MAX_SEC" default:"60"`
	CatalogSyncDeadLetterQueueName string `envconfig:"CATALOG_SYNC_DEAD_LETTER_QUEUE_NAME" default:"catalog_sync_queue_dlq"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values envconfig cannot express with tags.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	switch c.UnknownCourseAccess {
	case UnknownCourseDeny, UnknownCourseAllow:
	default:
		return fmt.Errorf("unsupported UNKNOWN_COURSE_ACCESS %q", c.UnknownCourseAccess)
	}
	if strings.TrimSpace(c.BillingServiceURL) == "" {
		return fmt.Errorf("BILLING_SERVICE_URL must not be empty")
	}
	if c.SessionKey == "" && c.SessionKeySecret == "" {
		return fmt.Errorf("one of SESSION_KEY or SESSION_KEY_SECRET is required")
	}
	if c.BillingTimeoutSec <= 0 {
		return fmt.Errorf("BILLING_TIMEOUT_SEC must be positive, got %d", c.BillingTimeoutSec)
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) BillingTimeout() time.Duration {
	return time.Duration(c.BillingTimeoutSec) * time.Second
}

func (c *Config) BillingDNSCacheTTL() time.Duration {
	return time.Duration(c.BillingDNSCacheTTLSec) * time.Second
}

// BillingBaseURL returns the billing service URL without a trailing slash.
func (c *Config) BillingBaseURL() string {
	return strings.TrimRight(c.BillingServiceURL, "/")
}

func (c *Config) AllowUnknownCourses() bool {
	return c.UnknownCourseAccess == UnknownCourseAllow
}

// SecretSource resolves secret names to their values.
type SecretSource interface {
	Resolve(ctx context.Context, name string) (string, error)
}

// NeedsSecrets reports whether a value is configured through a secret name.
func (c *Config) NeedsSecrets() bool {
	return c.SessionKeySecret != "" || c.BillingServicePasswordSecret != ""
}

// ResolveSecrets replaces values configured through *_SECRET names with the
// secret contents. Plain values set alongside a secret name are overwritten.
func (c *Config) ResolveSecrets(ctx context.Context, src SecretSource) error {
	if c.SessionKeySecret != "" {
		v, err := src.Resolve(ctx, c.SessionKeySecret)
		if err != nil {
			return fmt.Errorf("resolving SESSION_KEY_SECRET: %w", err)
		}
		c.SessionKey = v
	}
	if c.BillingServicePasswordSecret != "" {
		v, err := src.Resolve(ctx, c.BillingServicePasswordSecret)
		if err != nil {
			return fmt.Errorf("resolving BILLING_SERVICE_PASSWORD_SECRET: %w", err)
		}
		c.BillingServicePassword = v
	}
	if c.SessionKey == "" {
		return fmt.Errorf("session key is empty")
	}
	return nil
}
