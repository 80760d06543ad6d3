package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/ld-oauth-framework/relay/internal/config"
	"github.com/ld-oauth-framework/relay/internal/logging"
	"github.com/ld-oauth-framework/relay/internal/provider"
	"github.com/ld-oauth-framework/relay/internal/server"
)

func main() {
	if err := logging.LoadLevel(); err != nil {
		logrus.WithError(err).Warn("failed to load log level")
	}

	conf, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}

	p := provider.NewClient(&conf.Provider)
	srv := server.New(conf, p)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		if err := srv.Shutdown(context.Background()); err != nil {
			logrus.WithError(err).Error("failed to shut down server")
		}
	}()

	logrus.WithField("addr", conf.Server.Addr).Info("starting oauth relay")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logrus.WithError(err).Fatal("server error")
	}
}
