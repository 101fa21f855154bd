package keyutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsHex(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want bool
	}{
		{"empty", "", true},
		{"lowercase hex", "deadbeef", true},
		{"uppercase hex", "DEADBEEF", true},
		{"mixed case", "DeAdBeEf", true},
		{"digits only", "0123456789", true},
		{"64 char key", "a1b2c3d4e5f60718293a4b5c6d7e8f90a1b2c3d4e5f60718293a4b5c6d7e8f90", true},
		{"contains g", "0123abcg", false},
		{"space", "ab cd", false},
		{"special char", "abcd!!", false},
		{"newline", "abcd\n", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsHex(tt.in))
		})
	}
}

func TestSigningKeyBytes(t *testing.T) {
	hexKey := strings.Repeat("ab", 32) // 64 hex chars -> 32 bytes

	tests := []struct {
		name    string
		key     string
		wantLen int
		wantErr bool
	}{
		{"raw 32 bytes", strings.Repeat("k", 32), 32, false},
		{"raw 40 bytes", strings.Repeat("k", 40), 40, false},
		{"64 hex chars", hexKey, 32, false},
		{"128 hex chars", strings.Repeat("ab", 64), 64, false},
		{"too short raw", "short", 0, true},
		{"31 raw bytes", strings.Repeat("k", 31), 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SigningKeyBytes(tt.key)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidSigningKey)
				return
			}
			require.NoError(t, err)
			assert.Len(t, got, tt.wantLen)
		})
	}
}

func TestSigningKeyBytes_HexDecodedNotRaw(t *testing.T) {
	// A 64-char hex string must be decoded (32 bytes), not used as 64 raw bytes.
	key := strings.Repeat("0f", 32)
	got, err := SigningKeyBytes(key)
	require.NoError(t, err)
	assert.Len(t, got, 32)
	assert.Equal(t, byte(0x0f), got[0])
}

func TestSealKeyBytes(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"raw 32 bytes", strings.Repeat("s", 32), false},
		{"64 hex chars", strings.Repeat("a1", 32), false},
		{"too short", "tiny", true},
		{"33 raw bytes", strings.Repeat("s", 33), true},
		{"64 non-hex chars", strings.Repeat("zz", 32), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SealKeyBytes(tt.key)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidSealKey)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, got)
		})
	}
}
