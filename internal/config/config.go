package config

import (
	"errors"
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// ----------------------------
	// SMTP
	// ----------------------------
	SMTPHost     string `envconfig:"SMTP_HOST" default:"localhost"`
	SMTPPort     int    `envconfig:"SMTP_PORT" default:"1025"`
	SMTPUser     string `envconfig:"SMTP_USER" default:""`
	SMTPPassword string `envconfig:"SMTP_PASSWORD" default:""`

	// ----------------------------
	// Sender identity
	// ----------------------------
	FromName  string `envconfig:"EMAIL_FROM_NAME" default:"SheetSend"`
	FromEmail string `envconfig:"EMAIL_FROM_EMAIL" required:"true"`

	// ----------------------------
	// HTTP API
	// ----------------------------
	APIPort string `envconfig:"API_PORT" default:"8080"`

	// ----------------------------
	// Metrics
	// ----------------------------
	MetricsPort string `envconfig:"METRICS_PORT" default:"9090"`

	// ----------------------------
	// Uploads
	// ----------------------------
	UploadsDir string `envconfig:"UPLOADS_DIR" default:"uploads"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate enforces the sender identity rules: the from address is mandatory,
// and when an SMTP user is configured it must match the from address, since
// providers reject mail whose envelope sender differs from the authenticated
// account.
func (c *Config) validate() error {
	if c.FromEmail == "" {
		return errors.New("EMAIL_FROM_EMAIL must be configured")
	}
	if c.SMTPUser != "" && c.SMTPUser != c.FromEmail {
		return fmt.Errorf("SMTP_USER (%q) and EMAIL_FROM_EMAIL (%q) must match", c.SMTPUser, c.FromEmail)
	}
	return nil
}
