package store

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// MarshalBody encodes a document body as compact JSON.
// HTML escaping is disabled so stored names round-trip byte for byte.
func MarshalBody(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("marshal body: %w", err)
	}
	// Encoder adds a trailing newline, remove it
	return bytes.TrimSpace(buf.Bytes()), nil
}

// UnmarshalBody decodes a document body into v.
func UnmarshalBody(data []byte, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("unmarshal body: empty document")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal body: %w", err)
	}
	return nil
}
