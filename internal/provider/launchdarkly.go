package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/ld-oauth-framework/relay/internal/config"
)

// Client talks to LaunchDarkly: the trust/oauth endpoints for the
// authorization-code flow and the REST API for everything else.
type Client struct {
	authorizeURL      string
	tokenURL          string
	callerIdentityURL string
	apiBaseURL        string
	scope             string
	httpClient        *http.Client
}

func NewClient(conf *config.ProviderConfig) *Client {
	return &Client{
		authorizeURL:      conf.AuthorizeURL,
		tokenURL:          conf.TokenURL,
		callerIdentityURL: conf.CallerIdentityURL,
		apiBaseURL:        conf.APIBaseURL,
		scope:             conf.Scope,
		httpClient:        &http.Client{},
	}
}

func (c *Client) AuthCodeURL(clientID, redirectURI string) string {
	conf := &oauth2.Config{
		ClientID:    clientID,
		RedirectURL: redirectURI,
		Scopes:      []string{c.scope},
		Endpoint: oauth2.Endpoint{
			AuthURL: c.authorizeURL,
		},
	}
	return conf.AuthCodeURL("")
}

func (c *Client) ExchangeCode(ctx context.Context, code, clientID, clientSecret, redirectURI string) (*Token, error) {
	conf := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Endpoint: oauth2.Endpoint{
			TokenURL:  c.tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return nil, &ExchangeError{
				StatusCode: retrieveErr.Response.StatusCode,
				Body:       string(retrieveErr.Body),
			}
		}
		return nil, fmt.Errorf("token exchange request failed: %w", err)
	}

	return &Token{
		AccessToken: tok.AccessToken,
		TokenType:   tok.TokenType,
		ExpiresIn:   tok.ExpiresIn,
	}, nil
}

func (c *Client) CallerIdentity(ctx context.Context, accessToken string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.callerIdentityURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	var identity map[string]any
	if err := c.doRequest(req, &identity); err != nil {
		return nil, err
	}
	return identity, nil
}

// doRequest executes req, translating non-2xx responses into *APIError
// and decoding 2xx JSON bodies into out when given.
func (c *Client) doRequest(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("launchdarkly request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read launchdarkly response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("failed to parse launchdarkly response: %w", err)
		}
	}
	return nil
}
