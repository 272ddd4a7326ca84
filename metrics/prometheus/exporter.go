package prometheus

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const defaultReadHeaderTimeout = 10 * time.Second

// Exporter serves /metrics and /health over HTTP.
type Exporter struct {
	addr     string
	registry *prometheus.Registry

	mu     sync.Mutex
	server *http.Server
}

// NewExporter creates an exporter with every livecoach collector plus the Go
// runtime and process collectors registered.
func NewExporter(addr string) *Exporter {
	reg := prometheus.NewRegistry()
	reg.MustRegister(allMetrics...)
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return &Exporter{addr: addr, registry: reg}
}

// Registry returns the underlying registry.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// Handler returns the HTTP handler serving /metrics and /health.
func (e *Exporter) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return otelhttp.NewHandler(mux, "metrics")
}

// Serve listens on the configured address and blocks until ctx is done.
// A clean shutdown returns nil.
func (e *Exporter) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", e.addr)
	if err != nil {
		return err
	}
	return e.serve(ctx, ln)
}

func (e *Exporter) serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           e.Handler(),
		ReadHeaderTimeout: defaultReadHeaderTimeout,
	}
	e.mu.Lock()
	e.server = srv
	e.mu.Unlock()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
