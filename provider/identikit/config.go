package identikit

import (
	"net/http"
	"time"
)

const defaultBaseURL = "https://identity.oshub.dev"

// Config holds the hosted identity service settings
type Config struct {
	// BaseURL is the service root, without a trailing slash
	BaseURL string
	// APIKey is sent as a query parameter on every call
	APIKey string
	// JWKSURL, when set, enables local ID token validation
	JWKSURL string

	Issuer   string
	Audience []string

	HTTPClient *http.Client
}

func (c Config) baseURL() string {
	if c.BaseURL == "" {
		return defaultBaseURL
	}
	return c.BaseURL
}

func (c Config) httpClient() *http.Client {
	if c.HTTPClient == nil {
		return &http.Client{Timeout: 10 * time.Second}
	}
	return c.HTTPClient
}
