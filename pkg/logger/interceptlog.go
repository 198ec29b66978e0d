package logger

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

const entrySeparator = "---"

// InterceptLog owns the shared log file. It is truncated once when created
// and only appended to afterwards. Each entry is written with a single call
// under the mutex, so concurrent handlers never interleave records.
type InterceptLog struct {
	mu   sync.Mutex
	path string
	file *os.File
}

// CreateInterceptLog truncates path and writes the header block stamped
// with now.
func CreateInterceptLog(path string, now time.Time) (*InterceptLog, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create intercept log %s: %w", path, err)
	}

	header := fmt.Sprintf("Mock Telemetry Server Log Started: %s\n%s\n",
		now.Format(TimestampLayout), strings.Repeat("=", 50))
	if _, err := file.WriteString(header); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to write intercept log header: %w", err)
	}

	return &InterceptLog{path: path, file: file}, nil
}

// Path returns the location of the log file
func (l *InterceptLog) Path() string {
	return l.path
}

// Append writes one entry for req. data is the body as it should be shown,
// which differs from req.Body when the request was compressed.
func (l *InterceptLog) Append(req *InterceptedRequest, data []byte) error {
	entry := FormatEntry(req, data)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return fmt.Errorf("intercept log %s is closed", l.path)
	}
	if _, err := l.file.WriteString(entry); err != nil {
		return fmt.Errorf("failed to append to intercept log: %w", err)
	}
	return nil
}

// Close closes the log file
func (l *InterceptLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// FormatEntry renders the text block written for one request
func FormatEntry(req *InterceptedRequest, data []byte) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s - %d bytes from %s\n", req.Stamp(), req.BodySize, req.ClientIP)
	fmt.Fprintf(&b, "Headers: %s\n", req.FormattedHeaders())
	if utf8.Valid(data) {
		fmt.Fprintf(&b, "Data: %s\n", data)
	} else {
		fmt.Fprintf(&b, "Binary data: %d bytes\n", req.BodySize)
	}
	b.WriteString(entrySeparator + "\n")
	return b.String()
}
