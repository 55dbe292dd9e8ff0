package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dropDatabas3/tcpoidc/internal/observability/logger"
)

const shutdownTimeout = 15 * time.Second

// Run sirve a.Handler hasta que ctx se cancele y luego hace shutdown ordenado.
func Run(ctx context.Context, a *App) error {
	log := logger.From(ctx).With(logger.Layer("server"))
	cfg := a.Config

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           a.Handler,
		ReadTimeout:       cfg.ReadTimeout(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.WriteTimeout(),
		IdleTimeout:       60 * time.Second,
	}

	a.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", logger.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return err
	}
	return nil
}
