package truto

import "time"

// Config contains configuration for the Truto unified API client.
type Config struct {
	// BaseURL is the API root. Defaults to https://api.truto.one
	BaseURL string

	// Token is the API token sent as a bearer credential.
	Token string

	// IntegratedAccountID is used when a request names none.
	IntegratedAccountID string

	// UnifiedModel is used when a request names none.
	UnifiedModel string

	// Timeout bounds a single HTTP request.
	Timeout time.Duration

	// RequestsPerSecond throttles outgoing requests. Zero disables throttling.
	RequestsPerSecond float64

	// Burst is the limiter bucket size.
	Burst int

	// MaxErrorBody caps how much of an error response body is kept.
	MaxErrorBody int64
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:           "https://api.truto.one",
		UnifiedModel:      "conversational-intelligence",
		Timeout:           30 * time.Second,
		RequestsPerSecond: 5,
		Burst:             1,
		MaxErrorBody:      4096,
	}
}
