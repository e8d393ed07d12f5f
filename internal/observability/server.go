package observability

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// ServeMetrics exposes the default registry on addr until ctx ends, then
// shuts the listener down within grace. It is meant for worker binaries that
// have no API server to mount /metrics on.
func ServeMetrics(ctx context.Context, addr string, grace time.Duration, logger logrus.FieldLogger) {
	srv := &http.Server{Addr: addr, Handler: promhttp.Handler(), ReadHeaderTimeout: 2 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("metrics server shutdown failed")
		}
	}()

	logger.WithField("address", addr).Info("metrics listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Error("metrics server failed")
	}
}
