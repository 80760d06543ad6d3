package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ld-oauth-framework/relay/internal/config"
	"github.com/ld-oauth-framework/relay/internal/provider"
	"github.com/ld-oauth-framework/relay/internal/store"
)

func New(conf *config.Config, p provider.Interface) *http.Server {
	sessions := store.NewMemorySessionStore()
	tokens := store.NewMemoryTokenStore()
	api := newAPI(p, conf, sessions, tokens)
	return newServer(conf, api, prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}
