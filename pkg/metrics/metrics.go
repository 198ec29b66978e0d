// Package metrics counts intercepted traffic and optionally exposes the
// counters over a prometheus endpoint.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hmgle/mocktel/pkg/logger"
)

const namespace = "mocktel"

// Recorder holds the counters on a private registry
type Recorder struct {
	registry       *prometheus.Registry
	requests       *prometheus.CounterVec
	receivedBytes  *prometheus.CounterVec
	parseErrors    *prometheus.CounterVec
	logWriteErrors prometheus.Counter
}

// NewRecorder creates and registers all counters
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Requests handled, by listener and method.",
		}, []string{"listener", "method"}),
		receivedBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "received_bytes_total",
			Help:      "Request body bytes received, by listener.",
		}, []string{"listener"}),
		parseErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_errors_total",
			Help:      "Bodies that could not be interpreted, by listener and failure kind.",
		}, []string{"listener", "kind"}),
		logWriteErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "log_write_errors_total",
			Help:      "Failed appends to the intercept log.",
		}),
	}
	r.registry.MustRegister(r.requests, r.receivedBytes, r.parseErrors, r.logWriteErrors)
	return r
}

// Request counts one handled request and its body size
func (r *Recorder) Request(listener, method string, bodySize int) {
	r.requests.WithLabelValues(listener, method).Inc()
	if bodySize > 0 {
		r.receivedBytes.WithLabelValues(listener).Add(float64(bodySize))
	}
}

// ParseError counts a body that failed interpretation
func (r *Recorder) ParseError(listener, kind string) {
	r.parseErrors.WithLabelValues(listener, kind).Inc()
}

// LogWriteError counts a failed log append
func (r *Recorder) LogWriteError() {
	r.logWriteErrors.Inc()
}

// Handler serves the registry in the prometheus exposition format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Server exposes a Recorder on its own address
type Server struct {
	addr        string
	metricsPath string
	recorder    *Recorder
	log         logger.Logger
}

// NewServer creates a metrics server listening on addr
func NewServer(addr string, recorder *Recorder, log logger.Logger) *Server {
	return &Server{
		addr:        addr,
		metricsPath: "/metrics",
		recorder:    recorder,
		log:         log,
	}
}

// Run serves metrics until ctx is canceled
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("metrics server: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle(s.metricsPath, s.recorder.Handler())
	server := &http.Server{Addr: s.addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.log.Error("Failed to shut down metrics server: %v", err)
		}
	}()

	s.log.Info("Metrics available on http://%s%s", ln.Addr(), s.metricsPath)
	if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
