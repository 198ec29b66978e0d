package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hmgle/mocktel/pkg/logger"
	"github.com/hmgle/mocktel/pkg/metrics"
	"github.com/hmgle/mocktel/pkg/telemetry"
)

const serviceName = "mock-telemetry-server"

// EntryWriter persists one intercepted request
type EntryWriter interface {
	Append(req *logger.InterceptedRequest, data []byte) error
}

type ackResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

type healthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Timestamp string `json:"timestamp"`
}

// Handler answers every POST with an acknowledgment and every GET with a
// health document, whatever the path. It never reports an error to the
// client.
type Handler struct {
	listener string
	log      logger.Logger
	entries  EntryWriter
	metrics  *metrics.Recorder
	now      func() time.Time
	router   chi.Router
}

// NewHandler creates the handler used by the listener called label
func NewHandler(label string, log logger.Logger, entries EntryWriter, recorder *metrics.Recorder) *Handler {
	h := &Handler{
		listener: label,
		log:      log,
		entries:  entries,
		metrics:  recorder,
		now:      time.Now,
	}

	// No access-log middleware: the handlers print their own lines.
	r := chi.NewRouter()
	r.Post("/*", h.handlePost)
	r.Get("/*", h.handleGet)
	r.MethodNotAllowed(h.handleUnsupported)
	h.router = r

	return h
}

// ServeHTTP implements http.Handler
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) handlePost(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.log.Warn("Failed to read request body from %s: %v", r.RemoteAddr, err)
	}

	req := logger.NewInterceptedRequest(r, h.listener, body, h.now())
	h.metrics.Request(h.listener, r.Method, req.BodySize)

	data, result := h.interpret(req, r.Header.Get("Content-Encoding"))
	if result.Kind.Failed() {
		h.metrics.ParseError(h.listener, result.Kind.String())
	}

	lines := []string{
		fmt.Sprintf("[%s] INTERCEPTED telemetry from %s", req.Stamp(), req.ClientIP),
		fmt.Sprintf("  Size: %d bytes", req.BodySize),
		fmt.Sprintf("  Headers: %s", req.FormattedHeaders()),
	}
	lines = append(lines, result.Lines...)
	h.log.Print("%s", strings.Join(lines, "\n"))

	// A failed append must not change the response.
	if err := h.entries.Append(req, data); err != nil {
		h.metrics.LogWriteError()
		h.log.Error("Failed to write intercept log entry: %v", err)
	}

	writeJSON(w, ackResponse{
		Status:    "ok",
		Message:   "telemetry received",
		Timestamp: req.Stamp(),
	})
}

// interpret returns the body as it should be logged along with the console
// description of it.
func (h *Handler) interpret(req *logger.InterceptedRequest, contentEncoding string) ([]byte, telemetry.Result) {
	decoded, err := telemetry.DecodeBody(req.Body, contentEncoding)
	if err != nil {
		return req.Body, telemetry.DecodeFailure(err)
	}
	return decoded, telemetry.Inspect(req.ContentType, decoded)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	stamp := h.now().Format(logger.TimestampLayout)
	h.metrics.Request(h.listener, r.Method, 0)
	h.log.Print("[%s] GET request from %s: %s", stamp, logger.ClientIP(r), r.URL.RequestURI())

	writeJSON(w, healthResponse{
		Status:    "healthy",
		Service:   serviceName,
		Timestamp: stamp,
	})
}

func (h *Handler) handleUnsupported(w http.ResponseWriter, r *http.Request) {
	h.log.Debug("Unsupported method %s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)
	http.Error(w, http.StatusText(http.StatusNotImplemented), http.StatusNotImplemented)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(v)
}
