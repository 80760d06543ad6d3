package store

// TokenRecord is the completed exchange result for a session. At most
// one record exists per session id; a later store overwrites it. Token
// records carry no TTL: a captured token stays retrievable even after
// its session expires.
type TokenRecord struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	SessionID   string `json:"sessionId"`
	ReceivedAt  int64  `json:"receivedAt"`
}
