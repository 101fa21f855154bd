package audit

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"

	"github.com/veildata/veil/internal/keyutil"
)

// ErrSealOpen is returned when a sealed payload cannot be decrypted,
// either because the key is wrong or the ciphertext was altered.
var ErrSealOpen = errors.New("sealed detail failed to open")

const nonceSize = 24

// Sealer encrypts detail payloads at rest. Detail rows hold the original
// PII snippets, so they never touch disk in the clear.
type Sealer struct {
	key *[32]byte
}

// NewSealer creates a sealer. The key must be exactly 32 raw bytes or
// 64 hex characters.
func NewSealer(key string) (*Sealer, error) {
	k, err := keyutil.SealKeyBytes(key)
	if err != nil {
		return nil, fmt.Errorf("audit sealer: %w", err)
	}
	return &Sealer{key: k}, nil
}

// Seal encrypts plaintext and returns base64(nonce || box).
func (s *Sealer) Seal(plaintext []byte) (string, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], plaintext, &nonce, s.key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a payload produced by Seal.
func (s *Sealer) Open(sealed string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return nil, fmt.Errorf("decoding sealed detail: %w", err)
	}
	if len(raw) < nonceSize {
		return nil, fmt.Errorf("%w: payload shorter than nonce", ErrSealOpen)
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	plaintext, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, s.key)
	if !ok {
		return nil, ErrSealOpen
	}
	return plaintext, nil
}
