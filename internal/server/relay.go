package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ld-oauth-framework/relay/internal/logging"
	"github.com/ld-oauth-framework/relay/internal/provider"
	"github.com/ld-oauth-framework/relay/internal/store"
)

// handleCallback is the provider's redirect target. The steps run
// strictly in order and every failure terminates in an error redirect
// back to the landing page; nothing escapes to the transport layer.
func (a *api) handleCallback(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionId")
	l := logging.FromRequest(r).WithField("sessionId", sessionID)
	base := a.conf.Relay.BaseURL
	q := r.URL.Query()

	if !store.ValidateSessionID(sessionID) {
		l.Error("invalid session id")
		redirectWithError(w, r, base, "invalid_session", nil)
		return
	}

	if oauthErr := q.Get(queryParamError); oauthErr != "" {
		l.WithField("oauthError", oauthErr).Error("provider returned an error")
		redirectWithError(w, r, base, "oauth_error", url.Values{queryParamMessage: {oauthErr}})
		return
	}

	sess, ok := a.sessions.Get(sessionID)
	if !ok {
		l.Error("session not found or expired")
		redirectWithError(w, r, base, "session_not_found", nil)
		return
	}

	code := q.Get(queryParamCode)
	if code == "" {
		l.Error("callback without authorization code")
		redirectWithError(w, r, base, "no_code", nil)
		return
	}

	// Exactly one strategy runs per callback; a failed attempt ends in an
	// error redirect, never a fallback to another strategy.
	switch sess.Strategy {
	case store.StrategyProxy:
		a.proxyCode(w, r, sess, code)
	case store.StrategyExchangeAndForward:
		a.exchangeAndForward(w, r, sess, code)
	default:
		a.exchangeAndStore(w, r, sess, code)
	}
}

// proxyCode redirects the browser to the custom callback with the raw
// authorization code; the developer's endpoint does the exchange.
func (a *api) proxyCode(w http.ResponseWriter, r *http.Request, sess *store.Session, code string) {
	l := logging.FromRequest(r).WithField("sessionId", sess.SessionID)

	target, err := url.Parse(sess.CustomCallbackURL)
	if err != nil {
		l.WithError(err).Error("invalid custom callback url")
		redirectWithError(w, r, a.conf.Relay.BaseURL, "invalid_callback_url", nil)
		return
	}
	q := target.Query()
	q.Set(queryParamCode, code)
	q.Set(queryParamSessionID, sess.SessionID)
	target.RawQuery = q.Encode()

	l.WithField("target", target.Host).Info("forwarding authorization code to custom callback")
	http.Redirect(w, r, target.String(), http.StatusSeeOther)
}

func (a *api) exchangeAndForward(w http.ResponseWriter, r *http.Request, sess *store.Session, code string) {
	l := logging.FromRequest(r).WithField("sessionId", sess.SessionID)
	base := a.conf.Relay.BaseURL

	token, err := a.exchange(r.Context(), sess, code)
	if err != nil {
		l.WithError(err).Error("token exchange failed")
		redirectWithError(w, r, base, "token_exchange_failed", url.Values{queryParamMessage: {truncateMessage(err.Error())}})
		return
	}

	target, err := a.forwardTarget(sess)
	if err != nil {
		l.WithError(err).Error("could not resolve forward target")
		redirectWithError(w, r, base, "invalid_callback_url", nil)
		return
	}

	payload, err := json.Marshal(map[string]any{
		"access_token": token.AccessToken,
		"token_type":   token.TokenType,
		"expires_in":   token.ExpiresIn,
		"sessionId":    sess.SessionID,
	})
	if err != nil {
		l.WithError(err).Error("failed to encode forward payload")
		redirectWithError(w, r, base, "connection_failed", nil)
		return
	}

	forwardURL := target + forwardCallbackPath
	l.WithField("target", forwardURL).Info("forwarding token")

	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, forwardURL, bytes.NewReader(payload))
	if err != nil {
		l.WithError(err).Error("failed to build forward request")
		redirectWithError(w, r, base, "connection_failed", nil)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.forwardClient.Do(req)
	if err != nil {
		l.WithError(err).Error("failed to forward token")
		redirectWithError(w, r, base, "connection_failed", nil)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		l.WithField("status", resp.StatusCode).Error("forward target responded with an error")
		redirectWithError(w, r, base, "localhost_error", url.Values{"status": {strconv.Itoa(resp.StatusCode)}})
		return
	}

	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (a *api) exchangeAndStore(w http.ResponseWriter, r *http.Request, sess *store.Session, code string) {
	l := logging.FromRequest(r).WithField("sessionId", sess.SessionID)
	base := a.conf.Relay.BaseURL

	token, err := a.exchange(r.Context(), sess, code)
	if err != nil {
		l.WithError(err).Error("token exchange failed")
		redirectWithError(w, r, base, "token_exchange_failed", url.Values{queryParamMessage: {truncateMessage(err.Error())}})
		return
	}

	a.tokens.Put(sess.SessionID, &store.TokenRecord{
		AccessToken: token.AccessToken,
		TokenType:   token.TokenType,
		ExpiresIn:   token.ExpiresIn,
	})
	l.Info("token stored")

	params := url.Values{}
	params.Set("success", "oauth_completed")
	params.Set(queryParamSessionID, sess.SessionID)
	http.Redirect(w, r, fmt.Sprintf("%s/?%s", strings.TrimSuffix(base, "/"), params.Encode()), http.StatusSeeOther)
}

func (a *api) exchange(ctx context.Context, sess *store.Session, code string) (*provider.Token, error) {
	redirectURI := a.callbackURL(sess.SessionID)
	return a.provider.ExchangeCode(ctx, code, sess.ClientID, sess.ClientSecret, redirectURI)
}

func (a *api) callbackURL(sessionID string) string {
	return fmt.Sprintf("%s/callback/%s", a.conf.Relay.BaseURL, sessionID)
}

// forwardTarget resolves where a forwarded token goes: the custom
// callback host if set, else the operator's tunnel URL, else localhost
// on the session's port.
func (a *api) forwardTarget(sess *store.Session) (string, error) {
	if sess.CustomCallbackURL != "" {
		return hostOnly(sess.CustomCallbackURL)
	}
	if tunnel := a.conf.Relay.TunnelURL; tunnel != "" {
		return hostOnly(tunnel)
	}
	port := sess.LocalhostPort
	if port == "" {
		port = a.conf.Relay.DefaultLocalhostPort
	}
	return "http://localhost:" + port, nil
}
