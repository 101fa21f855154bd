// Package keyutil resolves the key formats veil accepts for audit signing
// and detail sealing. Keys arrive as strings from env or config and are
// either raw bytes or hex-encoded; both forms are accepted everywhere a
// key is configured.
package keyutil

import (
	"encoding/hex"
	"errors"
	"fmt"
)

var (
	// ErrInvalidSigningKey is returned when a signing key is shorter than
	// 32 bytes (HMAC-SHA256 needs at least that much entropy).
	ErrInvalidSigningKey = errors.New("invalid signing key")
	// ErrInvalidSealKey is returned when a seal key does not resolve to
	// exactly 32 bytes (the secretbox key size).
	ErrInvalidSealKey = errors.New("invalid seal key")
)

// IsHex reports whether s consists entirely of hexadecimal characters
// (0-9, a-f, A-F). It returns true for an empty string; callers check
// length separately when a minimum size is required.
func IsHex(s string) bool {
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}

// SigningKeyBytes interprets key as either 64+ hex characters (decoded,
// must yield >=32 bytes) or >=32 raw bytes. Hex is checked first so that
// hex-looking keys are validated as hex rather than silently used raw.
func SigningKeyBytes(key string) ([]byte, error) {
	n := len(key)
	if n >= 64 && n%2 == 0 && IsHex(key) {
		decoded, err := hex.DecodeString(key)
		if err != nil || len(decoded) < 32 {
			return nil, fmt.Errorf("signing key hex must decode to at least 32 bytes: %w", ErrInvalidSigningKey)
		}
		return decoded, nil
	}
	if n >= 32 {
		return []byte(key), nil
	}
	return nil, fmt.Errorf("signing key must be at least 32 bytes or 64+ hex characters (got %d): %w", n, ErrInvalidSigningKey)
}

// SealKeyBytes interprets key as either exactly 64 hex characters or
// exactly 32 raw bytes and returns the fixed-size secretbox key.
func SealKeyBytes(key string) (*[32]byte, error) {
	var out [32]byte
	if len(key) == 64 && IsHex(key) {
		decoded, err := hex.DecodeString(key)
		if err != nil || len(decoded) != 32 {
			return nil, fmt.Errorf("seal key hex must decode to 32 bytes: %w", ErrInvalidSealKey)
		}
		copy(out[:], decoded)
		return &out, nil
	}
	if len(key) == 32 {
		copy(out[:], key)
		return &out, nil
	}
	return nil, fmt.Errorf("seal key must be exactly 32 bytes or 64 hex characters (got %d): %w", len(key), ErrInvalidSealKey)
}
