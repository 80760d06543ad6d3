package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	. "github.com/onsi/gomega"

	"github.com/ld-oauth-framework/relay/internal/config"
	"github.com/ld-oauth-framework/relay/internal/provider"
	"github.com/ld-oauth-framework/relay/internal/store"
)

const testSessionID = "550e8400-e29b-41d4-a716-446655440000"

type exchangeCall struct {
	code         string
	clientID     string
	clientSecret string
	redirectURI  string
}

// mockProvider implements provider.Interface with canned responses and
// call counting.
type mockProvider struct {
	exchangeCalls []exchangeCall
	exchangeToken *provider.Token
	exchangeErr   error

	identity    map[string]any
	identityErr error

	createdClient *provider.OAuthClient
	createErr     error
	clients       []provider.OAuthClient
	listErr       error
	deleteErr     error
	patchedClient *provider.OAuthClient
	patchErr      error
	accountData   *provider.AccountData
	accountErr    error
}

func (m *mockProvider) AuthCodeURL(clientID, redirectURI string) string {
	return fmt.Sprintf("https://auth.example.com/authorize?client_id=%s&redirect_uri=%s",
		url.QueryEscape(clientID), url.QueryEscape(redirectURI))
}

func (m *mockProvider) ExchangeCode(ctx context.Context, code, clientID, clientSecret, redirectURI string) (*provider.Token, error) {
	m.exchangeCalls = append(m.exchangeCalls, exchangeCall{code, clientID, clientSecret, redirectURI})
	if m.exchangeErr != nil {
		return nil, m.exchangeErr
	}
	return m.exchangeToken, nil
}

func (m *mockProvider) CallerIdentity(ctx context.Context, accessToken string) (map[string]any, error) {
	return m.identity, m.identityErr
}

func (m *mockProvider) CreateOAuthClient(ctx context.Context, apiToken string, req provider.CreateOAuthClientRequest) (*provider.OAuthClient, error) {
	return m.createdClient, m.createErr
}

func (m *mockProvider) ListOAuthClients(ctx context.Context, apiToken string) ([]provider.OAuthClient, error) {
	return m.clients, m.listErr
}

func (m *mockProvider) DeleteOAuthClient(ctx context.Context, apiToken, clientID string) error {
	return m.deleteErr
}

func (m *mockProvider) PatchOAuthClientRedirectURI(ctx context.Context, apiToken, clientID, redirectURI string) (*provider.OAuthClient, error) {
	return m.patchedClient, m.patchErr
}

func (m *mockProvider) AccountData(ctx context.Context, accessToken string) (*provider.AccountData, error) {
	return m.accountData, m.accountErr
}

func newTestConfig() *config.Config {
	conf := &config.Config{
		Relay: config.RelayConfig{
			BaseURL: "https://relay.example.com",
		},
	}
	if err := conf.ValidateAndInitialize(); err != nil {
		panic(err)
	}
	return conf
}

func newTestAPI(p provider.Interface, conf *config.Config) (http.Handler, store.SessionStore, store.TokenStore) {
	sessions := store.NewMemorySessionStore()
	tokens := store.NewMemoryTokenStore()
	return newAPI(p, conf, sessions, tokens), sessions, tokens
}

func doCallback(api http.Handler, sessionID, rawQuery string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/callback/"+sessionID+"?"+rawQuery, nil)
	w := httptest.NewRecorder()
	api.ServeHTTP(w, req)
	return w
}

func TestCallback_InvalidSessionID(t *testing.T) {
	tests := []struct {
		name      string
		sessionID string
	}{
		{name: "not a uuid", sessionID: "not-a-uuid"},
		{name: "wrong version", sessionID: "550e8400-e29b-11d4-a716-446655440000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewWithT(t)

			mockProv := &mockProvider{}
			api, _, _ := newTestAPI(mockProv, newTestConfig())

			w := doCallback(api, tt.sessionID, "code=abc123")

			g.Expect(w.Code).To(Equal(http.StatusSeeOther))
			g.Expect(w.Header().Get("Location")).To(Equal("https://relay.example.com/?error=invalid_session"))
			g.Expect(mockProv.exchangeCalls).To(BeEmpty())
		})
	}
}

func TestCallback_ProviderError(t *testing.T) {
	g := NewWithT(t)

	mockProv := &mockProvider{}
	api, sessions, _ := newTestAPI(mockProv, newTestConfig())
	sessions.Put(&store.Session{
		SessionID:    testSessionID,
		ClientID:     "cid",
		ClientSecret: "secret",
		Strategy:     store.StrategyExchangeAndStore,
	})

	w := doCallback(api, testSessionID, "error=access_denied")

	g.Expect(w.Code).To(Equal(http.StatusSeeOther))
	g.Expect(w.Header().Get("Location")).To(Equal("https://relay.example.com/?error=oauth_error&message=access_denied"))
	// The exchange is never attempted when the provider reports an error.
	g.Expect(mockProv.exchangeCalls).To(BeEmpty())
}

func TestCallback_SessionNotFound(t *testing.T) {
	g := NewWithT(t)

	mockProv := &mockProvider{}
	api, _, _ := newTestAPI(mockProv, newTestConfig())

	w := doCallback(api, testSessionID, "code=abc123")

	g.Expect(w.Header().Get("Location")).To(Equal("https://relay.example.com/?error=session_not_found"))
	g.Expect(mockProv.exchangeCalls).To(BeEmpty())
}

func TestCallback_NoCode(t *testing.T) {
	g := NewWithT(t)

	mockProv := &mockProvider{}
	api, sessions, _ := newTestAPI(mockProv, newTestConfig())
	sessions.Put(&store.Session{
		SessionID:    testSessionID,
		ClientID:     "cid",
		ClientSecret: "secret",
		Strategy:     store.StrategyExchangeAndStore,
	})

	w := doCallback(api, testSessionID, "")

	g.Expect(w.Header().Get("Location")).To(Equal("https://relay.example.com/?error=no_code"))
	g.Expect(mockProv.exchangeCalls).To(BeEmpty())
}

func TestCallback_ProxyStrategy(t *testing.T) {
	g := NewWithT(t)

	mockProv := &mockProvider{}
	api, sessions, _ := newTestAPI(mockProv, newTestConfig())
	sessions.Put(&store.Session{
		SessionID:         testSessionID,
		ClientID:          "cid",
		ClientSecret:      "secret",
		CustomCallbackURL: "https://example.com/cb",
		Strategy:          store.StrategyProxy,
	})

	w := doCallback(api, testSessionID, "code=abc123")

	g.Expect(w.Code).To(Equal(http.StatusSeeOther))
	g.Expect(w.Header().Get("Location")).To(Equal(
		"https://example.com/cb?code=abc123&sessionId=" + testSessionID))
	// The raw code is handed off; no exchange happens in this process.
	g.Expect(mockProv.exchangeCalls).To(BeEmpty())
}

func TestCallback_ExchangeAndStore(t *testing.T) {
	g := NewWithT(t)

	mockProv := &mockProvider{
		exchangeToken: &provider.Token{AccessToken: "tok", TokenType: "Bearer", ExpiresIn: 3600},
	}
	api, sessions, tokens := newTestAPI(mockProv, newTestConfig())
	sessions.Put(&store.Session{
		SessionID:    testSessionID,
		ClientID:     "cid",
		ClientSecret: "secret",
		Strategy:     store.StrategyExchangeAndStore,
	})

	w := doCallback(api, testSessionID, "code=abc123")

	g.Expect(w.Header().Get("Location")).To(Equal(
		"https://relay.example.com/?sessionId=" + testSessionID + "&success=oauth_completed"))

	g.Expect(mockProv.exchangeCalls).To(HaveLen(1))
	g.Expect(mockProv.exchangeCalls[0]).To(Equal(exchangeCall{
		code:         "abc123",
		clientID:     "cid",
		clientSecret: "secret",
		redirectURI:  "https://relay.example.com/callback/" + testSessionID,
	}))

	rec, ok := tokens.Get(testSessionID)
	g.Expect(ok).To(BeTrue())
	g.Expect(rec.AccessToken).To(Equal("tok"))
	g.Expect(rec.TokenType).To(Equal("Bearer"))
	g.Expect(rec.ExpiresIn).To(Equal(int64(3600)))
	g.Expect(rec.SessionID).To(Equal(testSessionID))
	g.Expect(rec.ReceivedAt).To(BeNumerically(">", 0))
}

func TestCallback_ExchangeFailure(t *testing.T) {
	g := NewWithT(t)

	mockProv := &mockProvider{
		exchangeErr: &provider.ExchangeError{StatusCode: http.StatusBadRequest, Body: `{"error":"invalid_grant"}`},
	}
	api, sessions, tokens := newTestAPI(mockProv, newTestConfig())
	sessions.Put(&store.Session{
		SessionID:    testSessionID,
		ClientID:     "cid",
		ClientSecret: "secret",
		Strategy:     store.StrategyExchangeAndStore,
	})

	w := doCallback(api, testSessionID, "code=used-code")

	location := w.Header().Get("Location")
	g.Expect(location).To(ContainSubstring("error=token_exchange_failed"))
	g.Expect(location).To(ContainSubstring("400"))
	g.Expect(location).To(ContainSubstring("invalid_grant"))

	_, ok := tokens.Get(testSessionID)
	g.Expect(ok).To(BeFalse())
}

func TestCallback_ExchangeAndForward(t *testing.T) {
	t.Run("forwards token to custom callback host", func(t *testing.T) {
		g := NewWithT(t)

		var gotPath string
		var gotPayload map[string]any
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			body, _ := io.ReadAll(r.Body)
			json.Unmarshal(body, &gotPayload)
		}))
		defer srv.Close()

		mockProv := &mockProvider{
			exchangeToken: &provider.Token{AccessToken: "tok", TokenType: "Bearer", ExpiresIn: 3600},
		}
		api, sessions, tokens := newTestAPI(mockProv, newTestConfig())
		sessions.Put(&store.Session{
			SessionID:         testSessionID,
			ClientID:          "cid",
			ClientSecret:      "secret",
			CustomCallbackURL: srv.URL + "/some/deep/path",
			Strategy:          store.StrategyExchangeAndForward,
		})

		w := doCallback(api, testSessionID, "code=abc123")

		g.Expect(mockProv.exchangeCalls).To(HaveLen(1))
		g.Expect(gotPath).To(Equal("/oauth/callback"))
		g.Expect(gotPayload).To(Equal(map[string]any{
			"access_token": "tok",
			"token_type":   "Bearer",
			"expires_in":   float64(3600),
			"sessionId":    testSessionID,
		}))
		// The browser lands on the target's root, not the deep path.
		g.Expect(w.Header().Get("Location")).To(Equal(srv.URL))

		// Forwarded tokens are not kept in this process.
		_, ok := tokens.Get(testSessionID)
		g.Expect(ok).To(BeFalse())
	})

	t.Run("falls back to tunnel url", func(t *testing.T) {
		g := NewWithT(t)

		var called bool
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
		}))
		defer srv.Close()

		conf := newTestConfig()
		conf.Relay.TunnelURL = srv.URL

		mockProv := &mockProvider{
			exchangeToken: &provider.Token{AccessToken: "tok", TokenType: "Bearer", ExpiresIn: 3600},
		}
		api, sessions, _ := newTestAPI(mockProv, conf)
		sessions.Put(&store.Session{
			SessionID:    testSessionID,
			ClientID:     "cid",
			ClientSecret: "secret",
			Strategy:     store.StrategyExchangeAndForward,
		})

		w := doCallback(api, testSessionID, "code=abc123")

		g.Expect(called).To(BeTrue())
		g.Expect(w.Header().Get("Location")).To(Equal(srv.URL))
	})

	t.Run("falls back to localhost port", func(t *testing.T) {
		g := NewWithT(t)

		var gotPath string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
		}))
		defer srv.Close()

		srvURL, err := url.Parse(srv.URL)
		g.Expect(err).NotTo(HaveOccurred())

		mockProv := &mockProvider{
			exchangeToken: &provider.Token{AccessToken: "tok", TokenType: "Bearer", ExpiresIn: 3600},
		}
		api, sessions, _ := newTestAPI(mockProv, newTestConfig())
		sessions.Put(&store.Session{
			SessionID:     testSessionID,
			ClientID:      "cid",
			ClientSecret:  "secret",
			LocalhostPort: srvURL.Port(),
			Strategy:      store.StrategyExchangeAndForward,
		})

		w := doCallback(api, testSessionID, "code=abc123")

		g.Expect(gotPath).To(Equal("/oauth/callback"))
		g.Expect(w.Header().Get("Location")).To(Equal("http://localhost:" + srvURL.Port()))
	})

	t.Run("target error status is relayed", func(t *testing.T) {
		g := NewWithT(t)

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		defer srv.Close()

		mockProv := &mockProvider{
			exchangeToken: &provider.Token{AccessToken: "tok", TokenType: "Bearer", ExpiresIn: 3600},
		}
		api, sessions, _ := newTestAPI(mockProv, newTestConfig())
		sessions.Put(&store.Session{
			SessionID:         testSessionID,
			ClientID:          "cid",
			ClientSecret:      "secret",
			CustomCallbackURL: srv.URL,
			Strategy:          store.StrategyExchangeAndForward,
		})

		w := doCallback(api, testSessionID, "code=abc123")

		g.Expect(w.Header().Get("Location")).To(Equal(
			"https://relay.example.com/?error=localhost_error&status=500"))
	})

	t.Run("unreachable target", func(t *testing.T) {
		g := NewWithT(t)

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		srv.Close()

		mockProv := &mockProvider{
			exchangeToken: &provider.Token{AccessToken: "tok", TokenType: "Bearer", ExpiresIn: 3600},
		}
		api, sessions, _ := newTestAPI(mockProv, newTestConfig())
		sessions.Put(&store.Session{
			SessionID:         testSessionID,
			ClientID:          "cid",
			ClientSecret:      "secret",
			CustomCallbackURL: srv.URL,
			Strategy:          store.StrategyExchangeAndForward,
		})

		w := doCallback(api, testSessionID, "code=abc123")

		g.Expect(w.Header().Get("Location")).To(Equal(
			"https://relay.example.com/?error=connection_failed"))
	})
}
