package logger

import (
	"bytes"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"
)

// TimestampLayout is the second-resolution wall clock format used in console
// lines, log entries and response bodies.
const TimestampLayout = "2006-01-02 15:04:05"

// InterceptedRequest represents a single telemetry request accepted by a listener
type InterceptedRequest struct {
	Timestamp   time.Time         `json:"timestamp"`
	Listener    string            `json:"listener"`
	ClientIP    string            `json:"client_ip"`
	Method      string            `json:"method"`
	Path        string            `json:"path"`
	Headers     map[string]string `json:"headers"`
	ContentType string            `json:"content_type"`
	Body        []byte            `json:"-"`
	BodySize    int               `json:"body_size"`
}

// NewInterceptedRequest captures the metadata of r together with the body
// already read from it.
func NewInterceptedRequest(r *http.Request, listener string, body []byte, now time.Time) *InterceptedRequest {
	return &InterceptedRequest{
		Timestamp:   now,
		Listener:    listener,
		ClientIP:    ClientIP(r),
		Method:      r.Method,
		Path:        r.URL.RequestURI(),
		Headers:     RequestHeaders(r),
		ContentType: r.Header.Get("Content-Type"),
		Body:        body,
		BodySize:    len(body),
	}
}

// Stamp returns the formatted request timestamp
func (r *InterceptedRequest) Stamp() string {
	return r.Timestamp.Format(TimestampLayout)
}

// FormattedHeaders returns the header map serialized as a JSON object
func (r *InterceptedRequest) FormattedHeaders() string {
	return FormatHeaders(r.Headers)
}

// ClientIP returns the IP part of the request's remote address
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// HeadersToMap converts http.Header to map[string]string. Repeated headers
// are joined with ", ".
func HeadersToMap(headers http.Header) map[string]string {
	result := make(map[string]string, len(headers))
	for name, values := range headers {
		if len(values) > 0 {
			result[name] = strings.Join(values, ", ")
		}
	}
	return result
}

// RequestHeaders returns the header map of r including the Host and
// Transfer-Encoding headers that net/http lifts out of r.Header.
func RequestHeaders(r *http.Request) map[string]string {
	headers := HeadersToMap(r.Header)
	if r.Host != "" {
		headers["Host"] = r.Host
	}
	if len(r.TransferEncoding) > 0 {
		headers["Transfer-Encoding"] = strings.Join(r.TransferEncoding, ", ")
	}
	return headers
}

// FormatHeaders serializes a header map with sorted keys
func FormatHeaders(headers map[string]string) string {
	if headers == nil {
		headers = map[string]string{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(headers); err != nil {
		return "{}"
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
