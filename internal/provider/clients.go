package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// OAuthClient mirrors the LaunchDarkly OAuth client resource wire
// shape, underscore-prefixed fields included.
type OAuthClient struct {
	Links        map[string]any `json:"_links,omitempty"`
	Name         string         `json:"name"`
	AccountID    string         `json:"_accountId,omitempty"`
	ClientID     string         `json:"_clientId,omitempty"`
	RedirectURI  string         `json:"redirectUri"`
	CreationDate int64          `json:"_creationDate,omitempty"`
	Description  *string        `json:"description,omitempty"`
	ClientSecret *string        `json:"_clientSecret,omitempty"`
}

type CreateOAuthClientRequest struct {
	Name        string `json:"name"`
	RedirectURI string `json:"redirectUri"`
	Description string `json:"description,omitempty"`
}

type patchOperation struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value string `json:"value"`
}

func (c *Client) CreateOAuthClient(ctx context.Context, apiToken string, req CreateOAuthClientRequest) (*OAuthClient, error) {
	var client OAuthClient
	if err := c.doAPI(ctx, http.MethodPost, c.apiBaseURL+"/oauth/clients", apiToken, req, &client); err != nil {
		return nil, err
	}
	return &client, nil
}

func (c *Client) ListOAuthClients(ctx context.Context, apiToken string) ([]OAuthClient, error) {
	var payload struct {
		Items []OAuthClient `json:"items"`
	}
	if err := c.doAPI(ctx, http.MethodGet, c.apiBaseURL+"/oauth/clients", apiToken, nil, &payload); err != nil {
		return nil, err
	}
	if payload.Items == nil {
		return []OAuthClient{}, nil
	}
	return payload.Items, nil
}

func (c *Client) DeleteOAuthClient(ctx context.Context, apiToken, clientID string) error {
	u := c.apiBaseURL + "/oauth/clients/" + url.PathEscape(clientID)
	return c.doAPI(ctx, http.MethodDelete, u, apiToken, nil, nil)
}

func (c *Client) PatchOAuthClientRedirectURI(ctx context.Context, apiToken, clientID, redirectURI string) (*OAuthClient, error) {
	patch := []patchOperation{{
		Op:    "replace",
		Path:  "/redirectUri",
		Value: redirectURI,
	}}
	u := c.apiBaseURL + "/oauth/clients/" + url.PathEscape(clientID)
	var client OAuthClient
	if err := c.doAPI(ctx, http.MethodPatch, u, apiToken, patch, &client); err != nil {
		return nil, err
	}
	return &client, nil
}

// ValidateRedirectURL enforces LaunchDarkly's redirect URI rule: HTTPS
// required everywhere except localhost.
func ValidateRedirectURL(redirectURL string) error {
	u, err := url.Parse(redirectURL)
	if err != nil {
		return fmt.Errorf("invalid redirect URL format")
	}
	if u.Hostname() == "" {
		return fmt.Errorf("invalid redirect URL format")
	}
	if u.Scheme != "https" && u.Hostname() != "localhost" {
		return fmt.Errorf("redirect URL must use HTTPS (except for localhost)")
	}
	return nil
}

func (c *Client) doAPI(ctx context.Context, method, u, apiToken string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", apiToken)
	req.Header.Set("Content-Type", "application/json")

	return c.doRequest(req, out)
}
