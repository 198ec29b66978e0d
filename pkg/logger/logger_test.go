package logger

import (
	"bytes"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStandardLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, false)

	l.Debug("hidden %d", 1)
	l.Info("started on %d", 4317)
	l.Warn("port busy")
	l.Error("boom: %v", "bad")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Regexp(t, `^\[\d{2}:\d{2}:\d{2}\] INFO: started on 4317\n`, out)
	assert.Contains(t, out, "WARN: port busy\n")
	assert.Contains(t, out, "ERROR: boom: bad\n")
}

func TestStandardLoggerVerboseAndPrint(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, true)

	l.Debug("shown")
	l.Print("[%s] GET request", "now")

	assert.Contains(t, buf.String(), "DEBUG: shown\n")
	assert.Contains(t, buf.String(), "\n[now] GET request\n")
}

func TestQuietLoggerDiscards(t *testing.T) {
	l := NewWithWriter(nil, true)

	assert.NotPanics(t, func() {
		l.Info("x")
		l.Debug("x")
		l.Print("x")
		fmt.Fprintln(DebugWriter(l), "x")
	})
}

func TestDebugWriter(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, true)

	n, err := DebugWriter(l).Write([]byte("http: TLS handshake error\n"))

	assert.NoError(t, err)
	assert.Equal(t, 26, n)
	assert.Contains(t, buf.String(), "DEBUG: http: TLS handshake error\n")
	assert.NotContains(t, buf.String(), "error\n\n")
}

func TestHeadersToMap(t *testing.T) {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Add("Accept", "text/plain")
	h.Add("Accept", "*/*")
	h["Empty"] = nil

	m := HeadersToMap(h)

	assert.Equal(t, map[string]string{
		"Content-Type": "application/json",
		"Accept":       "text/plain, */*",
	}, m)
}

func TestRequestHeaders(t *testing.T) {
	r := &http.Request{
		Host:             "localhost:4318",
		Header:           http.Header{"Content-Type": {"application/x-protobuf"}},
		TransferEncoding: []string{"chunked"},
	}

	assert.Equal(t, map[string]string{
		"Content-Type":      "application/x-protobuf",
		"Host":              "localhost:4318",
		"Transfer-Encoding": "chunked",
	}, RequestHeaders(r))

	r.Host = ""
	r.TransferEncoding = nil
	assert.Equal(t, map[string]string{"Content-Type": "application/x-protobuf"}, RequestHeaders(r))
}

func TestFormatHeaders(t *testing.T) {
	got := FormatHeaders(map[string]string{
		"User-Agent": "cli/1.0 <test>",
		"Accept":     "*/*",
	})
	assert.Equal(t, `{"Accept":"*/*","User-Agent":"cli/1.0 <test>"}`, got)
	assert.Equal(t, `{}`, FormatHeaders(nil))
}

func TestClientIP(t *testing.T) {
	r := &http.Request{RemoteAddr: "127.0.0.1:52344"}
	assert.Equal(t, "127.0.0.1", ClientIP(r))

	r.RemoteAddr = "[::1]:52344"
	assert.Equal(t, "::1", ClientIP(r))

	r.RemoteAddr = "pipe"
	assert.Equal(t, "pipe", ClientIP(r))
}
