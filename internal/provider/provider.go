package provider

import (
	"context"
)

// Token is the provider's token-endpoint response. ExpiresIn is the
// provider-reported remaining lifetime in seconds, not re-validated.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Interface is the provider surface the HTTP layer depends on.
type Interface interface {
	// AuthCodeURL builds the provider's authorize URL for a client.
	AuthCodeURL(clientID, redirectURI string) string

	// ExchangeCode trades an authorization code for a token. A single
	// attempt, fail-fast: codes are single-use and a retry with the same
	// code is guaranteed to fail at the provider.
	ExchangeCode(ctx context.Context, code, clientID, clientSecret, redirectURI string) (*Token, error)

	// CallerIdentity validates an access token against the provider's
	// identity endpoint and returns the raw identity document.
	CallerIdentity(ctx context.Context, accessToken string) (map[string]any, error)

	// OAuth client management, authenticated by a developer API token.
	CreateOAuthClient(ctx context.Context, apiToken string, req CreateOAuthClientRequest) (*OAuthClient, error)
	ListOAuthClients(ctx context.Context, apiToken string) ([]OAuthClient, error)
	DeleteOAuthClient(ctx context.Context, apiToken, clientID string) error
	PatchOAuthClientRedirectURI(ctx context.Context, apiToken, clientID, redirectURI string) (*OAuthClient, error)

	// AccountData fetches the caller identity plus best-effort project and
	// flag listings for a token.
	AccountData(ctx context.Context, accessToken string) (*AccountData, error)
}
