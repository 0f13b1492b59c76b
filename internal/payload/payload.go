// Package payload normalizes context values so they can be checksummed,
// compared and deep-copied independently of the Go types callers used to
// build them.
//
// Every value is held as canonical JSON: object keys sorted, numbers kept
// verbatim, no HTML escaping, no trailing newline. Two values are the same
// value exactly when their canonical bytes are equal.
package payload

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Canonicalize converts v into canonical JSON. json.RawMessage and []byte
// inputs are parsed as JSON text rather than encoded as strings.
func Canonicalize(v any) (json.RawMessage, error) {
	var raw []byte
	switch t := v.(type) {
	case json.RawMessage:
		raw = t
	case []byte:
		raw = t
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode value: %w", err)
		}
		raw = b
	}
	if len(raw) == 0 {
		raw = []byte("null")
	}

	decoded, err := decode(raw)
	if err != nil {
		return nil, err
	}
	return encode(decoded)
}

// MustCanonicalize is Canonicalize for values known to be encodable.
func MustCanonicalize(v any) json.RawMessage {
	raw, err := Canonicalize(v)
	if err != nil {
		panic(err)
	}
	return raw
}

func decode(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("decode value: trailing data")
	}
	return out, nil
}

func encode(v any) (json.RawMessage, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	return json.RawMessage(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// Checksum returns the hex SHA-256 digest of a canonical value. It detects
// accidental corruption; it is not an authentication mechanism.
func Checksum(raw json.RawMessage) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// Equal reports whether two canonical values are the same value.
func Equal(a, b json.RawMessage) bool {
	return bytes.Equal(a, b)
}

// Clone returns an independent copy of raw.
func Clone(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	out := make(json.RawMessage, len(raw))
	copy(out, raw)
	return out
}

// Decode unmarshals a canonical value into plain Go values. Numbers are
// returned as json.Number.
func Decode(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	return decode(raw)
}
