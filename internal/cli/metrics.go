package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/mrz1836/finora/internal/config"
	"github.com/mrz1836/finora/internal/metrics"
)

const (
	metricsReadHeaderTimeout = 5 * time.Second
	metricsShutdownTimeout   = 2 * time.Second
)

// metricsHandler routes /metrics to a Prometheus view of m.
func metricsHandler(m *metrics.Metrics) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.NewPrometheusCollector(m).Handler())
	return mux
}

// serveMetrics exposes m on addr at /metrics until the returned stop
// function is called.
func serveMetrics(addr string, m *metrics.Metrics, log *config.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening for metrics on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           metricsHandler(m),
		ReadHeaderTimeout: metricsReadHeaderTimeout,
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if serveErr := srv.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			log.Error("metrics server: %v", serveErr)
		}
	}()
	log.Debug("metrics listening on %s", ln.Addr())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		if shutdownErr := srv.Shutdown(ctx); shutdownErr != nil {
			log.Error("stopping metrics server: %v", shutdownErr)
		}
		<-done
	}, nil
}
