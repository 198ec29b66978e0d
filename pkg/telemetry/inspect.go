// Package telemetry interprets intercepted request bodies for console output.
package telemetry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

const (
	protobufSampleBytes = 100
	textPreviewRunes    = 200
)

// Kind tags the outcome of interpreting a body
type Kind int

const (
	KindText Kind = iota
	KindJSON
	KindProtobuf
	KindInvalidUTF8
	KindMalformedJSON
	KindDecodeError
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindJSON:
		return "json"
	case KindProtobuf:
		return "protobuf"
	case KindInvalidUTF8:
		return "invalid_utf8"
	case KindMalformedJSON:
		return "malformed_json"
	case KindDecodeError:
		return "decode_error"
	default:
		return "unknown"
	}
}

// Failed reports whether the kind is a parse error
func (k Kind) Failed() bool {
	return k >= KindInvalidUTF8
}

// ErrInvalidUTF8 is returned for JSON bodies that are not UTF-8 text
var ErrInvalidUTF8 = errors.New("body is not valid UTF-8")

var (
	errEmptyJSON    = errors.New("unexpected end of JSON input")
	errTrailingJSON = errors.New("invalid data after top-level JSON value")
)

// Result is the tagged outcome of Inspect
type Result struct {
	Kind Kind
	// Lines are the console lines describing the body
	Lines []string
	Err   error
}

// Inspect interprets body according to the declared content type:
// application/json is parsed, application/x-protobuf is sampled and
// anything else is previewed as text.
func Inspect(contentType string, body []byte) Result {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	switch {
	case strings.HasPrefix(ct, "application/json"):
		return inspectJSON(body)
	case strings.HasPrefix(ct, "application/x-protobuf"):
		return inspectProtobuf(body)
	default:
		return inspectText(body)
	}
}

// DecodeFailure wraps a DecodeBody error as a Result
func DecodeFailure(err error) Result {
	return failure(KindDecodeError, err)
}

func inspectJSON(body []byte) Result {
	if !utf8.Valid(body) {
		return failure(KindInvalidUTF8, ErrInvalidUTF8)
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var value interface{}
	if err := dec.Decode(&value); err != nil {
		if errors.Is(err, io.EOF) {
			err = errEmptyJSON
		}
		return failure(KindMalformedJSON, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return failure(KindMalformedJSON, errTrailingJSON)
	}

	var compact bytes.Buffer
	enc := json.NewEncoder(&compact)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(value); err != nil {
		return failure(KindMalformedJSON, err)
	}
	return Result{
		Kind:  KindJSON,
		Lines: []string{"  JSON Data: " + strings.TrimSuffix(compact.String(), "\n")},
	}
}

func inspectProtobuf(body []byte) Result {
	sample := body
	if len(sample) > protobufSampleBytes {
		sample = sample[:protobufSampleBytes]
	}
	return Result{
		Kind: KindProtobuf,
		Lines: []string{
			fmt.Sprintf("  Protocol Buffers data (binary): %d bytes", len(body)),
			fmt.Sprintf("  Sample: %q...", sample),
		},
	}
}

func inspectText(body []byte) Result {
	return Result{
		Kind:  KindText,
		Lines: []string{"  Raw data: " + Preview(body, textPreviewRunes) + "..."},
	}
}

func failure(kind Kind, err error) Result {
	return Result{
		Kind:  kind,
		Lines: []string{"  Data parsing error: " + err.Error()},
		Err:   err,
	}
}

// Preview decodes body as UTF-8, dropping invalid bytes, and returns at
// most n characters.
func Preview(body []byte, n int) string {
	text := strings.ToValidUTF8(string(body), "")
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	runes := []rune(text)
	return string(runes[:n])
}
