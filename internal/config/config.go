package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App struct {
		Name string `envconfig:"APP_NAME" default:"Tally"`
		Port int    `envconfig:"PORT" default:"8080"`
	}

	DB struct {
		Host     string `envconfig:"DB_HOST" default:"localhost"`
		Port     int    `envconfig:"DB_PORT" default:"5432"`
		User     string `envconfig:"DB_USER" default:"postgres"`
		Password string `envconfig:"DB_PASSWORD" default:""`
		Name     string `envconfig:"DB_NAME" default:"tally"`
	}

	Server struct {
		Timeout time.Duration `envconfig:"SERVER_TIMEOUT" default:"30s"`
	}

	Auth struct {
		JWTSecret string `envconfig:"JWT_SECRET"`
	}

	// Webhook signing secrets, one per provider tag.
	Webhook struct {
		BankSecret     string `envconfig:"WEBHOOK_BANK_SECRET"`
		PaymentsSecret string `envconfig:"WEBHOOK_PAYMENTS_SECRET"`
	}

	Queue struct {
		Workers      int           `envconfig:"QUEUE_WORKERS" default:"4"`
		BatchSize    int           `envconfig:"QUEUE_BATCH_SIZE" default:"32"`
		PollInterval time.Duration `envconfig:"QUEUE_POLL_INTERVAL" default:"1s"`
		BackoffBase  time.Duration `envconfig:"QUEUE_BACKOFF_BASE" default:"5s"`
		BackoffMax   time.Duration `envconfig:"QUEUE_BACKOFF_MAX" default:"10m"`
		MaxAttempts  int           `envconfig:"QUEUE_MAX_ATTEMPTS" default:"8"`
		StaleAfter   time.Duration `envconfig:"QUEUE_STALE_AFTER" default:"5m"`
	}

	Reconcile struct {
		FetchTimeout time.Duration `envconfig:"RECONCILE_FETCH_TIMEOUT" default:"30s"`
	}

	Transfer struct {
		ProviderTag    string        `envconfig:"TRANSFER_PROVIDER_TAG" default:"payments"`
		VerifyInterval time.Duration `envconfig:"TRANSFER_VERIFY_INTERVAL" default:"5m"`
		VerifyGrace    time.Duration `envconfig:"TRANSFER_VERIFY_GRACE" default:"10m"`
	}

	Sync struct {
		Overlap time.Duration `envconfig:"SYNC_OVERLAP" default:"24h"`
	}

	Providers struct {
		BankBaseURL     string        `envconfig:"BANK_API_BASE_URL" default:"https://api.bank.example.com"`
		BankToken       string        `envconfig:"BANK_API_TOKEN"`
		PaymentsBaseURL string        `envconfig:"PAYMENTS_API_BASE_URL" default:"https://api.payments.example.com"`
		PaymentsKey     string        `envconfig:"PAYMENTS_API_KEY"`
		Timeout         time.Duration `envconfig:"PROVIDER_TIMEOUT" default:"30s"`
	}
}

// WebhookSecrets returns the provider-tag -> secret map consumed by the
// webhook verifier. Providers without a configured secret are absent, so
// their callbacks are rejected.
func (c *Config) WebhookSecrets() map[string]string {
	secrets := make(map[string]string)

	if c.Webhook.BankSecret != "" {
		secrets["bank"] = c.Webhook.BankSecret
	}

	if c.Webhook.PaymentsSecret != "" {
		secrets["payments"] = c.Webhook.PaymentsSecret
	}

	return secrets
}

func (c *Config) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.DB.User, c.DB.Password, c.DB.Host, c.DB.Port, c.DB.Name)
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	return &cfg, nil
}
