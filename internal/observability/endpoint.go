package observability

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/tphakala/audiohal/internal/conf"
	"github.com/tphakala/audiohal/internal/logger"
	metricspkg "github.com/tphakala/audiohal/internal/observability/metrics"
)

// Endpoint serves the Prometheus /metrics endpoint over HTTP.
type Endpoint struct {
	server        *http.Server
	listenAddress string
	addr          net.Addr
	metrics       *Metrics
	log           logger.Logger
}

// NewEndpoint creates an Endpoint for the metrics settings. It returns an
// error when metrics are disabled.
func NewEndpoint(settings *conf.MetricsSettings, metrics *Metrics, log logger.Logger) (*Endpoint, error) {
	if settings == nil || !settings.Enabled {
		return nil, fmt.Errorf("metrics not enabled in settings")
	}

	return &Endpoint{
		listenAddress: settings.Listen,
		metrics:       metrics,
		log:           logger.OrNop(log).Module("telemetry"),
	}, nil
}

// Start binds the listen address and serves until quitChan is closed. The
// serving goroutine is tracked by wg. Bind errors are returned directly.
func (e *Endpoint) Start(wg *sync.WaitGroup, quitChan <-chan struct{}) error {
	mux := http.NewServeMux()
	e.metrics.RegisterHandlers(mux)

	ln, err := net.Listen("tcp", e.listenAddress)
	if err != nil {
		return fmt.Errorf("metrics endpoint listen on %s: %w", e.listenAddress, err)
	}

	e.addr = ln.Addr()
	e.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	wg.Go(func() {
		e.log.Info("Metrics endpoint starting", logger.String("address", e.addr.String()))
		if err := e.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.log.Error("Metrics HTTP server error", logger.Error(err))
		}
	})

	wg.Go(func() { e.gracefulShutdown(quitChan) })
	return nil
}

// gracefulShutdown waits for the quit signal and shuts down the server gracefully.
func (e *Endpoint) gracefulShutdown(quitChan <-chan struct{}) {
	<-quitChan
	e.log.Info("Stopping metrics server")
	ctx, cancel := context.WithTimeout(context.Background(), metricspkg.ShutdownTimeout)
	defer cancel()
	if err := e.server.Shutdown(ctx); err != nil {
		e.log.Error("Metrics server shutdown error", logger.Error(err))
	}
}

// Addr returns the bound address once Start has succeeded.
func (e *Endpoint) Addr() string {
	if e.addr == nil {
		return ""
	}
	return e.addr.String()
}

// GetMetrics returns the Metrics instance associated with this Endpoint.
func (e *Endpoint) GetMetrics() *Metrics {
	return e.metrics
}
