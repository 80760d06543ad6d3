package store

// SessionStore holds the in-flight OAuth sessions. The in-memory
// implementation is the only one shipped; the interface matches what a
// TTL-native key-value store would offer so one can back it later.
type SessionStore interface {
	// Put overwrites any existing entry unconditionally and stamps
	// CreatedAt/ExpiresAt.
	Put(s *Session)
	// Get returns false for absent or expired sessions. Expired entries
	// are evicted as a side effect of the read.
	Get(id string) (*Session, bool)
	// Delete is an idempotent removal.
	Delete(id string)
	// SweepExpired evicts every expired session and returns the count.
	SweepExpired() int
	// Info returns the redacted view of one session.
	Info(id string) *SessionInfo
	// List returns redacted summaries of the currently-unexpired sessions.
	List() []*SessionSummary
}

// TokenStore holds exchange results keyed by session id. Reads perform
// no expiry check.
type TokenStore interface {
	Put(sessionID string, token *TokenRecord)
	Get(sessionID string) (*TokenRecord, bool)
}
