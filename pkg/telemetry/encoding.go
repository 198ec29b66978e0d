package telemetry

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"strings"
)

// CompressionType represents the type of compression used
type CompressionType int

const (
	CompressionNone CompressionType = iota
	CompressionGzip
	CompressionDeflate
	CompressionUnknown
)

// String returns the string representation of compression type
func (c CompressionType) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionGzip:
		return "gzip"
	case CompressionDeflate:
		return "deflate"
	default:
		return "unknown"
	}
}

// DetectCompressionType detects compression type from Content-Encoding header
func DetectCompressionType(contentEncoding string) CompressionType {
	encoding := strings.ToLower(strings.TrimSpace(contentEncoding))
	if encoding == "" || encoding == "identity" {
		return CompressionNone
	}

	// Handle multiple encodings (e.g., "gzip, identity")
	for _, enc := range strings.Split(encoding, ",") {
		switch strings.TrimSpace(enc) {
		case "gzip", "x-gzip":
			return CompressionGzip
		case "deflate":
			return CompressionDeflate
		}
	}

	return CompressionUnknown
}

// DecodeBody undoes the request's Content-Encoding. Exporters commonly gzip
// OTLP/HTTP payloads.
func DecodeBody(body []byte, contentEncoding string) ([]byte, error) {
	switch DetectCompressionType(contentEncoding) {
	case CompressionNone:
		return body, nil
	case CompressionGzip:
		return decompressGzip(body)
	case CompressionDeflate:
		return decompressDeflate(body)
	default:
		return nil, fmt.Errorf("unsupported content encoding: %s", contentEncoding)
	}
}

// maxDecodedBodySize bounds the output of a single body decompression
var maxDecodedBodySize int64 = 64 << 20

// ErrDecodedBodyTooLarge is returned when a compressed body expands past
// maxDecodedBodySize.
var ErrDecodedBodyTooLarge = errors.New("decompressed body too large")

func decompressGzip(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}

	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("invalid gzip body: %w", err)
	}
	defer zr.Close()
	return readDecoded(zr, "gzip")
}

func decompressDeflate(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}

	fr := flate.NewReader(bytes.NewReader(data))
	defer fr.Close()
	return readDecoded(fr, "deflate")
}

// readDecoded drains r, failing once more than maxDecodedBodySize bytes come out
func readDecoded(r io.Reader, encoding string) ([]byte, error) {
	out, err := io.ReadAll(io.LimitReader(r, maxDecodedBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to decompress %s body: %w", encoding, err)
	}
	if int64(len(out)) > maxDecodedBodySize {
		return nil, fmt.Errorf("%s body: %w (limit %d bytes)", encoding, ErrDecodedBodyTooLarge, maxDecodedBodySize)
	}
	return out, nil
}
