package store

import (
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// SessionTTL is the fixed lifetime of a session. Expired sessions are
// indistinguishable from sessions that never existed.
const SessionTTL = 24 * time.Hour

// Strategy selects how the relay completes the provider callback for a
// session. It is decided once, at session creation time.
type Strategy string

const (
	// StrategyProxy redirects the browser to the custom callback URL with
	// the raw authorization code. No exchange happens in this process; the
	// developer's own endpoint holds the client secret and performs it.
	StrategyProxy Strategy = "proxy"

	// StrategyExchangeAndForward exchanges the code in-process and POSTs
	// the resulting token to the developer's endpoint: the custom callback
	// host if set, else the configured tunnel URL, else localhost.
	StrategyExchangeAndForward Strategy = "exchange-and-forward"

	// StrategyExchangeAndStore exchanges the code in-process and keeps the
	// token in the token store for later retrieval.
	StrategyExchangeAndStore Strategy = "exchange-and-store"
)

// ResolveStrategy validates an explicitly requested strategy, or picks
// the default for the session: proxy when a custom callback URL was
// supplied, exchange-and-store otherwise.
func ResolveStrategy(explicit string, customCallbackURL string) (Strategy, error) {
	switch Strategy(explicit) {
	case StrategyProxy, StrategyExchangeAndForward, StrategyExchangeAndStore:
		return Strategy(explicit), nil
	case "":
	default:
		return "", fmt.Errorf("unknown strategy: %q", explicit)
	}
	if customCallbackURL != "" {
		return StrategyProxy, nil
	}
	return StrategyExchangeAndStore, nil
}

// Session is one in-progress or completed OAuth attempt.
type Session struct {
	SessionID         string   `json:"sessionId"`
	ClientID          string   `json:"clientId"`
	ClientSecret      string   `json:"clientSecret"`
	LocalhostPort     string   `json:"localhostPort"`
	CustomCallbackURL string   `json:"customCallbackUrl,omitempty"`
	Strategy          Strategy `json:"strategy"`

	// Millisecond timestamps, stamped by the store on Put.
	CreatedAt int64 `json:"createdAt"`
	ExpiresAt int64 `json:"expiresAt"`
}

// SessionInfo is the redacted view of a session exposed for debugging.
// It reports presence of the credentials, never their values.
type SessionInfo struct {
	Exists               bool     `json:"exists"`
	HasClientID          bool     `json:"hasClientId,omitempty"`
	HasClientSecret      bool     `json:"hasClientSecret,omitempty"`
	LocalhostPort        string   `json:"localhostPort,omitempty"`
	Strategy             Strategy `json:"strategy,omitempty"`
	CreatedAt            int64    `json:"createdAt,omitempty"`
	ExpiresAt            int64    `json:"expiresAt,omitempty"`
	TimeRemainingMinutes int64    `json:"timeRemainingMinutes,omitempty"`
}

// SessionSummary is one entry of the active-session listing.
type SessionSummary struct {
	SessionID            string   `json:"sessionId"`
	LocalhostPort        string   `json:"localhostPort"`
	Strategy             Strategy `json:"strategy"`
	CreatedAt            int64    `json:"createdAt"`
	ExpiresAt            int64    `json:"expiresAt"`
	TimeRemainingMinutes int64    `json:"timeRemainingMinutes"`
}

var sessionIDRegex = regexp.MustCompile(`(?i)^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

// ValidateSessionID reports whether id has the UUIDv4 shape required
// everywhere a session id is accepted from an external source.
func ValidateSessionID(id string) bool {
	return sessionIDRegex.MatchString(id)
}

// NewSessionID generates a fresh session id.
func NewSessionID() string {
	return uuid.NewString()
}
