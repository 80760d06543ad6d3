package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ld-oauth-framework/relay/internal/logging"
)

const (
	queryParamCode      = "code"
	queryParamError     = "error"
	queryParamMessage   = "message"
	queryParamSessionID = "sessionId"

	// Path on the developer's endpoint that receives forwarded tokens.
	forwardCallbackPath = "/oauth/callback"

	// Client-facing error messages are capped before being encoded into
	// redirect query parameters; the full detail is logged server-side.
	maxRedirectMessageLen = 200
)

func respondJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromRequest(r).WithError(err).Error("failed to write response")
	}
}

func respondError(w http.ResponseWriter, r *http.Request, status int, message string) {
	respondJSON(w, r, status, map[string]any{"error": message})
}

// redirectWithError sends the browser back to the framework's landing
// page with a machine-parseable error code plus optional extra params.
func redirectWithError(w http.ResponseWriter, r *http.Request, base, errCode string, extra url.Values) {
	params := url.Values{}
	params.Set(queryParamError, errCode)
	for k, vs := range extra {
		for _, v := range vs {
			params.Add(k, v)
		}
	}
	http.Redirect(w, r, fmt.Sprintf("%s/?%s", strings.TrimSuffix(base, "/"), params.Encode()), http.StatusSeeOther)
}

func truncateMessage(msg string) string {
	if len(msg) > maxRedirectMessageLen {
		return msg[:maxRedirectMessageLen]
	}
	return msg
}

// hostOnly strips a URL down to scheme://host, the base the relay
// forwards tokens to.
func hostOnly(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("url has no scheme or host: %q", raw)
	}
	return fmt.Sprintf("%s://%s", u.Scheme, u.Host), nil
}
