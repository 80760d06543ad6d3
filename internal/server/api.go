package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/ld-oauth-framework/relay/internal/config"
	"github.com/ld-oauth-framework/relay/internal/logging"
	"github.com/ld-oauth-framework/relay/internal/provider"
	"github.com/ld-oauth-framework/relay/internal/store"
)

const manualSetupGuidance = "OAuth client creation via API is not available in LaunchDarkly. " +
	"Please create the OAuth client manually in the LaunchDarkly web interface and use the manual setup option."

type api struct {
	provider provider.Interface
	conf     *config.Config
	sessions store.SessionStore
	tokens   store.TokenStore

	// Client for the forward-token POST. No timeout: a hung developer
	// endpoint blocks only that request's completion.
	forwardClient *http.Client
}

func newAPI(p provider.Interface, conf *config.Config, sessions store.SessionStore, tokens store.TokenStore) http.Handler {
	a := &api{
		provider:      p,
		conf:          conf,
		sessions:      sessions,
		tokens:        tokens,
		forwardClient: &http.Client{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /callback/{sessionId}", a.handleCallback)
	mux.HandleFunc("POST /session", a.handleCreateSession)
	mux.HandleFunc("GET /session/debug", a.handleSessionDebug)
	mux.HandleFunc("GET /session/{sessionId}", a.handleGetSession)
	mux.HandleFunc("DELETE /session/{sessionId}", a.handleDeleteSession)
	mux.HandleFunc("GET /tokens/{sessionId}", a.handleGetToken)
	mux.HandleFunc("POST /test-connection", a.handleTestConnection)
	mux.HandleFunc("POST /oauth-clients", a.handleCreateOAuthClient)
	mux.HandleFunc("GET /oauth-clients", a.handleListOAuthClients)
	mux.HandleFunc("DELETE /oauth-clients/{clientId}", a.handleDeleteOAuthClient)
	mux.HandleFunc("PATCH /oauth-clients/{clientId}", a.handlePatchOAuthClient)
	mux.HandleFunc("POST /ld-data", a.handleAccountData)
	return mux
}

func (a *api) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	l := logging.FromRequest(r)

	var req struct {
		SessionID         string `json:"sessionId"`
		ClientID          string `json:"clientId"`
		ClientSecret      string `json:"clientSecret"`
		LocalhostPort     string `json:"localhostPort"`
		CustomCallbackURL string `json:"customCallbackUrl"`
		RedirectURL       string `json:"redirectUrl"`
		Strategy          string `json:"strategy"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		l.WithError(err).Error("failed to parse request body as JSON")
		respondError(w, r, http.StatusBadRequest, "Failed to parse request body as JSON")
		return
	}

	if req.ClientID == "" || req.ClientSecret == "" {
		respondError(w, r, http.StatusBadRequest, "Missing required fields: clientId, clientSecret")
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = store.NewSessionID()
	} else if !store.ValidateSessionID(sessionID) {
		respondError(w, r, http.StatusBadRequest, "Invalid session ID format")
		return
	}

	customCallbackURL := req.CustomCallbackURL
	if customCallbackURL == "" {
		customCallbackURL = req.RedirectURL
	}

	strategy, err := store.ResolveStrategy(req.Strategy, customCallbackURL)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strategy == store.StrategyProxy && customCallbackURL == "" {
		respondError(w, r, http.StatusBadRequest, "Strategy proxy requires a custom callback URL")
		return
	}

	localhostPort := req.LocalhostPort
	if localhostPort == "" {
		localhostPort = a.conf.Relay.DefaultLocalhostPort
	}

	a.sessions.Put(&store.Session{
		SessionID:         sessionID,
		ClientID:          req.ClientID,
		ClientSecret:      req.ClientSecret,
		LocalhostPort:     localhostPort,
		CustomCallbackURL: customCallbackURL,
		Strategy:          strategy,
	})

	l.WithField("sessionId", sessionID).WithField("strategy", strategy).Info("session stored")

	respondJSON(w, r, http.StatusOK, map[string]any{
		"success":          true,
		"sessionId":        sessionID,
		"authorizationUrl": a.provider.AuthCodeURL(req.ClientID, a.callbackURL(sessionID)),
	})
}

func (a *api) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionId")
	if !store.ValidateSessionID(sessionID) {
		respondError(w, r, http.StatusBadRequest, "Invalid session ID format")
		return
	}

	sess, ok := a.sessions.Get(sessionID)
	if !ok {
		respondError(w, r, http.StatusNotFound, "Session not found or expired")
		return
	}

	respondJSON(w, r, http.StatusOK, map[string]any{"session": sess})
}

func (a *api) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionId")
	if !store.ValidateSessionID(sessionID) {
		respondError(w, r, http.StatusBadRequest, "Invalid session ID format")
		return
	}

	a.sessions.Delete(sessionID)
	logging.FromRequest(r).WithField("sessionId", sessionID).Info("session cleared")
	respondJSON(w, r, http.StatusOK, map[string]any{"success": true})
}

func (a *api) handleSessionDebug(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if q.Get("action") == "clear-expired" {
		cleared := a.sessions.SweepExpired()
		logging.FromRequest(r).WithField("cleared", cleared).Info("expired sessions cleared")
		respondJSON(w, r, http.StatusOK, map[string]any{
			"message":      fmt.Sprintf("Cleared %d expired sessions", cleared),
			"clearedCount": cleared,
		})
		return
	}

	if sessionID := q.Get(queryParamSessionID); sessionID != "" {
		if !store.ValidateSessionID(sessionID) {
			respondError(w, r, http.StatusBadRequest, "Invalid session ID format")
			return
		}
		respondJSON(w, r, http.StatusOK, a.sessions.Info(sessionID))
		return
	}

	sessions := a.sessions.List()
	respondJSON(w, r, http.StatusOK, map[string]any{
		"message":     "Active sessions",
		"sessions":    sessions,
		"totalActive": len(sessions),
	})
}

func (a *api) handleGetToken(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionId")
	if !store.ValidateSessionID(sessionID) {
		respondError(w, r, http.StatusBadRequest, "Invalid session ID format")
		return
	}

	token, ok := a.tokens.Get(sessionID)
	if !ok {
		respondError(w, r, http.StatusNotFound, "Token not found")
		return
	}

	respondJSON(w, r, http.StatusOK, token)
}

func (a *api) handleTestConnection(w http.ResponseWriter, r *http.Request) {
	l := logging.FromRequest(r)

	var req struct {
		AccessToken string `json:"accessToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		l.WithError(err).Error("failed to parse request body as JSON")
		respondError(w, r, http.StatusBadRequest, "Failed to parse request body as JSON")
		return
	}
	if req.AccessToken == "" {
		respondError(w, r, http.StatusBadRequest, "Access token is required")
		return
	}

	identity, err := a.provider.CallerIdentity(r.Context(), req.AccessToken)
	if err != nil {
		l.WithError(err).Error("connection test failed")
		respondError(w, r, http.StatusInternalServerError, fmt.Sprintf("Connection test failed: %s", err))
		return
	}

	respondJSON(w, r, http.StatusOK, map[string]any{
		"success": true,
		"data":    identity,
	})
}

func (a *api) handleCreateOAuthClient(w http.ResponseWriter, r *http.Request) {
	l := logging.FromRequest(r)

	var req struct {
		APIToken    string `json:"apiToken"`
		Name        string `json:"name"`
		RedirectURI string `json:"redirectUri"`
		SessionID   string `json:"sessionId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		l.WithError(err).Error("failed to parse request body as JSON")
		respondError(w, r, http.StatusBadRequest, "Failed to parse request body as JSON")
		return
	}
	if req.APIToken == "" || req.Name == "" || req.RedirectURI == "" {
		respondError(w, r, http.StatusBadRequest, "Missing required fields: apiToken, name, redirectUri")
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = "unknown"
	}
	client, err := a.provider.CreateOAuthClient(r.Context(), req.APIToken, provider.CreateOAuthClientRequest{
		Name:        req.Name,
		RedirectURI: req.RedirectURI,
		Description: fmt.Sprintf("OAuth client created via framework for session %s", sessionID),
	})
	if err != nil {
		l.WithError(err).Error("failed to create oauth client")
		var apiErr *provider.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			respondError(w, r, http.StatusNotImplemented, manualSetupGuidance)
			return
		}
		respondError(w, r, http.StatusInternalServerError, err.Error())
		return
	}

	l.WithField("clientId", client.ClientID).Info("oauth client created")
	respondJSON(w, r, http.StatusOK, map[string]any{
		"success": true,
		"client":  client,
	})
}

func (a *api) handleListOAuthClients(w http.ResponseWriter, r *http.Request) {
	apiToken := r.URL.Query().Get("apiToken")
	if apiToken == "" {
		respondError(w, r, http.StatusBadRequest, "API token is required")
		return
	}

	clients, err := a.provider.ListOAuthClients(r.Context(), apiToken)
	if err != nil {
		logging.FromRequest(r).WithError(err).Error("failed to list oauth clients")
		respondError(w, r, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, r, http.StatusOK, map[string]any{
		"success": true,
		"clients": clients,
	})
}

func (a *api) handleDeleteOAuthClient(w http.ResponseWriter, r *http.Request) {
	apiToken := r.URL.Query().Get("apiToken")
	if apiToken == "" {
		respondError(w, r, http.StatusBadRequest, "API token is required")
		return
	}

	clientID := r.PathValue("clientId")
	if err := a.provider.DeleteOAuthClient(r.Context(), apiToken, clientID); err != nil {
		logging.FromRequest(r).WithError(err).Error("failed to delete oauth client")
		respondError(w, r, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, r, http.StatusOK, map[string]any{"success": true})
}

func (a *api) handlePatchOAuthClient(w http.ResponseWriter, r *http.Request) {
	l := logging.FromRequest(r)

	var req struct {
		APIToken       string `json:"apiToken"`
		NewRedirectURL string `json:"newRedirectUrl"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		l.WithError(err).Error("failed to parse request body as JSON")
		respondError(w, r, http.StatusBadRequest, "Failed to parse request body as JSON")
		return
	}
	if req.APIToken == "" || req.NewRedirectURL == "" {
		respondError(w, r, http.StatusBadRequest, "Missing required parameters: apiToken, newRedirectUrl")
		return
	}
	if err := provider.ValidateRedirectURL(req.NewRedirectURL); err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	clientID := r.PathValue("clientId")
	client, err := a.provider.PatchOAuthClientRedirectURI(r.Context(), req.APIToken, clientID, req.NewRedirectURL)
	if err != nil {
		l.WithError(err).Error("failed to patch oauth client")
		respondError(w, r, http.StatusInternalServerError, fmt.Sprintf("Failed to patch OAuth client: %s", err))
		return
	}

	respondJSON(w, r, http.StatusOK, map[string]any{
		"success": true,
		"message": "OAuth client redirect URL updated successfully",
		"client":  client,
	})
}

func (a *api) handleAccountData(w http.ResponseWriter, r *http.Request) {
	l := logging.FromRequest(r)

	var req struct {
		AccessToken string `json:"accessToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		l.WithError(err).Error("failed to parse request body as JSON")
		respondError(w, r, http.StatusBadRequest, "Failed to parse request body as JSON")
		return
	}
	if req.AccessToken == "" {
		respondError(w, r, http.StatusBadRequest, "Access token is required")
		return
	}

	data, err := a.provider.AccountData(r.Context(), req.AccessToken)
	if err != nil {
		l.WithError(err).Error("failed to fetch account data")
		respondError(w, r, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, r, http.StatusOK, map[string]any{
		"success": true,
		"data":    data,
	})
}
