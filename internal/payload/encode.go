// Package payload defines the diagnose wire format and the file content encoding.
// This file turns raw file bytes into gzip+base64 text and back.
package payload

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"fmt"
	"io"
)

// Encode compresses data with gzip and encodes the result with standard base64.
// The output contains only base64 alphabet characters, so it can be embedded
// in a JSON string without escaping. Empty input yields a valid (non-empty)
// encoding of an empty gzip stream.
func Encode(data []byte) (string, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return "", fmt.Errorf("gzip write: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("gzip close: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Decode reverses Encode and returns the original bytes.
func Decode(content string) ([]byte, error) {
	compressed, err := base64.StdEncoding.DecodeString(content)
	if err != nil {
		return nil, fmt.Errorf("base64 decode: %w", err)
	}
	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("gzip reader: %w", err)
	}
	defer zr.Close()

	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("gzip read: %w", err)
	}
	if raw == nil {
		raw = []byte{}
	}
	return raw, nil
}
