package provider

import (
	"context"
	"net/http"

	"github.com/ld-oauth-framework/relay/internal/logging"
)

// AccountData is the caller identity plus best-effort project and flag
// listings for an access token. The optional reads degrade to empty
// lists when the token lacks access.
type AccountData struct {
	Identity map[string]any   `json:"identity"`
	Projects []map[string]any `json:"projects"`
	Flags    []map[string]any `json:"flags"`
}

func (c *Client) AccountData(ctx context.Context, accessToken string) (*AccountData, error) {
	identity, err := c.CallerIdentity(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	data := &AccountData{
		Identity: identity,
		Projects: []map[string]any{},
		Flags:    []map[string]any{},
	}

	l := logging.FromContext(ctx)

	if projects, err := c.listItems(ctx, accessToken, c.apiBaseURL+"/projects"); err != nil {
		l.WithError(err).Info("could not fetch projects")
	} else {
		data.Projects = projects
	}

	if projectID, ok := identity["projectId"].(string); ok && projectID != "" {
		if flags, err := c.listItems(ctx, accessToken, c.apiBaseURL+"/flags/"+projectID); err != nil {
			l.WithError(err).Info("could not fetch feature flags")
		} else {
			data.Flags = flags
		}
	}

	return data, nil
}

func (c *Client) listItems(ctx context.Context, accessToken, u string) ([]map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	var payload struct {
		Items []map[string]any `json:"items"`
	}
	if err := c.doRequest(req, &payload); err != nil {
		return nil, err
	}
	if payload.Items == nil {
		return []map[string]any{}, nil
	}
	return payload.Items, nil
}
