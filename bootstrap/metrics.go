package bootstrap

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// MetricsServer exposes the Prometheus registry while a command runs
type MetricsServer struct {
	server   *http.Server
	listener net.Listener
	sugar    *zap.SugaredLogger
}

// StartMetricsServer listens on addr and serves /metrics in the background
func StartMetricsServer(addr string, sugar *zap.SugaredLogger) (*MetricsServer, error) {
	if sugar == nil {
		sugar = zap.NewNop().Sugar()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	m := &MetricsServer{
		server:   &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		listener: ln,
		sugar:    sugar,
	}
	go func() {
		if err := m.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Warnw("Metrics server stopped", "error", err)
		}
	}()
	sugar.Infow("Serving metrics", "addr", ln.Addr().String())
	return m, nil
}

// Addr is the bound listen address
func (m *MetricsServer) Addr() string {
	return m.listener.Addr().String()
}

// Shutdown stops the server
func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.server.Shutdown(ctx)
}
