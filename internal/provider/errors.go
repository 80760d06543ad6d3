package provider

import "fmt"

// ExchangeError is a non-2xx response from the provider's token
// endpoint, preserving the provider's own status and body so the
// developer can diagnose against the provider's error semantics.
type ExchangeError struct {
	StatusCode int
	Body       string
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("token exchange failed: %d - %s", e.StatusCode, e.Body)
}

// APIError is a non-2xx response from the LaunchDarkly REST API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("launchdarkly api error: %d - %s", e.StatusCode, e.Body)
}
