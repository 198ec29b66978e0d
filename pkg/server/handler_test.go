package server

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hmgle/mocktel/pkg/logger"
	"github.com/hmgle/mocktel/pkg/metrics"
)

var fixedTime = time.Date(2025, 9, 6, 10, 4, 59, 0, time.Local)

// lockedBuffer is a console sink safe for concurrent handlers
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type recordingWriter struct {
	mu      sync.Mutex
	entries []string
	err     error
}

func (w *recordingWriter) Append(req *logger.InterceptedRequest, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.entries = append(w.entries, logger.FormatEntry(req, data))
	return nil
}

type handlerFixture struct {
	handler *Handler
	console *lockedBuffer
	entries *recordingWriter
}

func newHandlerFixture() *handlerFixture {
	f := &handlerFixture{
		console: &lockedBuffer{},
		entries: &recordingWriter{},
	}
	f.handler = NewHandler("OpenTelemetry HTTP", logger.NewWithWriter(f.console, false), f.entries, metrics.NewRecorder())
	f.handler.now = func() time.Time { return fixedTime }
	return f
}

func (f *handlerFixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var got map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	return got
}

func TestPostAcknowledges(t *testing.T) {
	paths := []string{"/", "/v1/traces", "/v1/metrics?x=1", "/api/traces/deep/path"}
	for _, path := range paths {
		t.Run(path, func(t *testing.T) {
			f := newHandlerFixture()
			req := httptest.NewRequest(http.MethodPost, path, strings.NewReader("payload"))

			rec := f.do(req)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.Equal(t, map[string]string{
				"status":    "ok",
				"message":   "telemetry received",
				"timestamp": "2025-09-06 10:04:59",
			}, decodeBody(t, rec))
			assert.Len(t, f.entries.entries, 1)
		})
	}
}

func TestPostTimestampIsWellFormed(t *testing.T) {
	f := newHandlerFixture()
	f.handler.now = time.Now

	rec := f.do(httptest.NewRequest(http.MethodPost, "/", nil))

	_, err := time.ParseInLocation(logger.TimestampLayout, decodeBody(t, rec)["timestamp"], time.Local)
	assert.NoError(t, err)
}

func TestPostJSON(t *testing.T) {
	f := newHandlerFixture()
	req := httptest.NewRequest(http.MethodPost, "/v1/traces", strings.NewReader(`{"a":1}`))
	req.Header.Set("Content-Type", "application/json")

	rec := f.do(req)
	require.Equal(t, http.StatusOK, rec.Code)

	console := f.console.String()
	assert.Contains(t, console, "[2025-09-06 10:04:59] INTERCEPTED telemetry from 192.0.2.1\n")
	assert.Contains(t, console, "  Size: 7 bytes\n")
	assert.Contains(t, console, `  Headers: {"Content-Type":"application/json","Host":"example.com"}`)
	assert.Contains(t, console, `  JSON Data: {"a":1}`)

	require.Len(t, f.entries.entries, 1)
	entry := f.entries.entries[0]
	assert.Contains(t, entry, "2025-09-06 10:04:59 - 7 bytes from 192.0.2.1\n")
	assert.Contains(t, entry, `Data: {"a":1}`+"\n")
	assert.True(t, strings.HasSuffix(entry, "---\n"))
}

func TestPostLogsHostAndTransferEncoding(t *testing.T) {
	f := newHandlerFixture()
	req := httptest.NewRequest(http.MethodPost, "/v1/metrics", strings.NewReader("x"))
	req.Host = "localhost:4318"
	req.TransferEncoding = []string{"chunked"}

	rec := f.do(req)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, f.entries.entries, 1)
	assert.Contains(t, f.entries.entries[0], `"Host":"localhost:4318"`)
	assert.Contains(t, f.entries.entries[0], `"Transfer-Encoding":"chunked"`)
	assert.Contains(t, f.console.String(), `"Host":"localhost:4318"`)
}

func TestPostMalformedJSONStillSucceeds(t *testing.T) {
	f := newHandlerFixture()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":`))
	req.Header.Set("Content-Type", "application/json")

	rec := f.do(req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
	assert.Contains(t, f.console.String(), "  Data parsing error: ")
	require.Len(t, f.entries.entries, 1)
	assert.Contains(t, f.entries.entries[0], `Data: {"a":`)
}

func TestPostBinaryProtobuf(t *testing.T) {
	f := newHandlerFixture()
	body := []byte{0x0a, 0xff, 0xfe, 0x00, 0x80, 0x12}
	req := httptest.NewRequest(http.MethodPost, "/v1/traces", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/x-protobuf")

	rec := f.do(req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, f.console.String(), "  Protocol Buffers data (binary): 6 bytes")
	assert.Contains(t, f.console.String(), "  Sample: ")
	require.Len(t, f.entries.entries, 1)
	assert.Contains(t, f.entries.entries[0], " - 6 bytes from ")
	assert.Contains(t, f.entries.entries[0], "Binary data: 6 bytes\n")
}

func TestPostWithoutBody(t *testing.T) {
	f := newHandlerFixture()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	require.Empty(t, req.Header.Get("Content-Length"))

	rec := f.do(req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, f.console.String(), "  Size: 0 bytes")
	require.Len(t, f.entries.entries, 1)
	assert.Contains(t, f.entries.entries[0], " - 0 bytes from 192.0.2.1\n")
}

func TestPostGzipEncoded(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(`{"resourceSpans":[]}`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	compressedSize := buf.Len()

	f := newHandlerFixture()
	req := httptest.NewRequest(http.MethodPost, "/v1/traces", &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Encoding", "gzip")

	rec := f.do(req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, f.console.String(), `  JSON Data: {"resourceSpans":[]}`)
	require.Len(t, f.entries.entries, 1)
	assert.Contains(t, f.entries.entries[0], `Data: {"resourceSpans":[]}`)
	assert.Contains(t, f.entries.entries[0], " - "+strconv.Itoa(compressedSize)+" bytes from ")
}

func TestPostBadEncodingLogsRawBody(t *testing.T) {
	f := newHandlerFixture()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("plain"))
	req.Header.Set("Content-Encoding", "gzip")

	rec := f.do(req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, f.console.String(), "  Data parsing error: ")
	require.Len(t, f.entries.entries, 1)
	assert.Contains(t, f.entries.entries[0], "Data: plain\n")
}

func TestPostLogWriteFailureStillSucceeds(t *testing.T) {
	f := newHandlerFixture()
	f.entries.err = errors.New("disk full")

	rec := f.do(httptest.NewRequest(http.MethodPost, "/", strings.NewReader("x")))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
	assert.Contains(t, f.console.String(), "ERROR: Failed to write intercept log entry: disk full")
}

func TestGetHealth(t *testing.T) {
	for _, path := range []string{"/", "/health", "/api/services?limit=1"} {
		t.Run(path, func(t *testing.T) {
			f := newHandlerFixture()

			rec := f.do(httptest.NewRequest(http.MethodGet, path, nil))

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.Equal(t, map[string]string{
				"status":    "healthy",
				"service":   "mock-telemetry-server",
				"timestamp": "2025-09-06 10:04:59",
			}, decodeBody(t, rec))
			assert.Equal(t, "[2025-09-06 10:04:59] GET request from 192.0.2.1: "+path+"\n", f.console.String())
			assert.Empty(t, f.entries.entries)
		})
	}
}

func TestUnsupportedMethod(t *testing.T) {
	for _, method := range []string{http.MethodPut, http.MethodDelete, http.MethodPatch} {
		t.Run(method, func(t *testing.T) {
			f := newHandlerFixture()

			rec := f.do(httptest.NewRequest(method, "/v1/traces", strings.NewReader("x")))

			assert.Equal(t, http.StatusNotImplemented, rec.Code)
			assert.Empty(t, f.entries.entries)
			assert.Empty(t, f.console.String())
		})
	}
}
