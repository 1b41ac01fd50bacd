package provider

import (
	"errors"
	"time"
)

// Config holds configuration for the MailerSend client.
type Config struct {
	// APIKey is the MailerSend API token.
	APIKey string

	// Endpoint overrides the default API URL (useful for testing).
	Endpoint string

	// Timeout is the maximum duration for API calls.
	Timeout time.Duration
}

const defaultTimeout = 30 * time.Second

// Validate checks that required fields are set and fills defaults.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return errors.New("mailersend: api_key is required")
	}
	if c.Endpoint == "" {
		c.Endpoint = defaultEndpoint
	}
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}
	return nil
}
