package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsHandler serves the application registry in the Prometheus text
// format.
func (a *App) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{})
}

// serveMetrics exposes /metrics on addr until the returned stop func is
// called. It returns the bound address, which differs from addr when the port
// is 0.
func (a *App) serveMetrics(addr string) (func(), string, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, "", fmt.Errorf("listen metrics %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", a.MetricsHandler())
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Error().Err(err).Msg("metrics server stopped")
		}
	}()
	bound := listener.Addr().String()
	a.Logger.Info().Str("addr", bound).Msg("serving metrics")

	stop := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			a.Logger.Warn().Err(err).Msg("metrics server shutdown")
		}
	}
	return stop, bound, nil
}
