package audit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/veildata/veil/internal/keyutil"
)

// Signer creates and verifies HMAC-SHA256 signatures over audit rows.
type Signer struct {
	key []byte
}

// NewSigner creates a signer. The key must be at least 32 raw bytes or
// 64+ hex characters decoding to at least 32 bytes.
func NewSigner(key string) (*Signer, error) {
	keyBytes, err := keyutil.SigningKeyBytes(key)
	if err != nil {
		return nil, fmt.Errorf("audit signer: %w", err)
	}
	return &Signer{key: keyBytes}, nil
}

// Sign returns the hmac-sha256:<hex> signature for data.
func (s *Signer) Sign(data []byte) string {
	h := hmac.New(sha256.New, s.key)
	h.Write(data)
	return "hmac-sha256:" + hex.EncodeToString(h.Sum(nil))
}

// Verify reports whether signature matches data.
func (s *Signer) Verify(data []byte, signature string) bool {
	return hmac.Equal([]byte(s.Sign(data)), []byte(signature))
}
