package config

import (
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetViper(t *testing.T) {
	t.Helper()
	t.Setenv("VEIL_SIGNING_KEY", "")
	t.Setenv("VEIL_AUDIT_KEY", "")
	t.Setenv("VEIL_DATA_DIR", "")
	t.Setenv("VEIL_STRATEGY", "")
	t.Setenv("VEIL_PATTERNS_FILE", "")
	t.Setenv("VEIL_SERVER_ADDR", "")
	viper.Reset()
	viper.SetEnvPrefix("VEIL")
	viper.AutomaticEnv()
	viper.SetDefault(KeyStrategy, DefaultStrategy)
	viper.SetDefault(KeyFields, DefaultFields())
	viper.SetDefault(KeyVerifyOutput, true)
	viper.SetDefault(KeyLLMModel, DefaultLLMModel)
	viper.SetDefault(KeyServerAddr, DefaultServerAddr)
	viper.SetDefault(KeyRateLimitRPS, DefaultRateLimitRPS)
	viper.SetDefault(KeyRateLimitBurst, DefaultRateBurst)
	viper.SetDefault(KeyWatchSchedule, DefaultWatchSchedule)
}

func TestLoad_Defaults(t *testing.T) {
	resetViper(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultStrategy, cfg.Strategy)
	assert.Equal(t, DefaultFields(), cfg.Fields)
	assert.Equal(t, DefaultServerAddr, cfg.ServerAddr)
	assert.Equal(t, DefaultWatchSchedule, cfg.WatchSchedule)
	assert.True(t, cfg.VerifyOutput)
	assert.True(t, cfg.UsingDefaultSigningKey(), "should report default key when none is set")
	assert.False(t, cfg.SealingEnabled(), "no audit key means no detail sealing")
	assert.True(t, len(cfg.SigningKey) >= 32)
}

func TestLoad_ExplicitKeys(t *testing.T) {
	resetViper(t)
	t.Setenv("VEIL_SIGNING_KEY", "my-signing-key-at-least-32-chars!")
	t.Setenv("VEIL_AUDIT_KEY", "abcdefghijklmnopqrstuvwxyz012345")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "my-signing-key-at-least-32-chars!", cfg.SigningKey)
	assert.Equal(t, "abcdefghijklmnopqrstuvwxyz012345", cfg.AuditKey)
	assert.False(t, cfg.UsingDefaultSigningKey())
	assert.True(t, cfg.SealingEnabled())
}

func TestLoad_InvalidSigningKeyLength(t *testing.T) {
	resetViper(t)
	t.Setenv("VEIL_SIGNING_KEY", "short")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signing key must be at least 32 bytes")
}

func TestLoad_InvalidAuditKeyLength(t *testing.T) {
	resetViper(t)
	t.Setenv("VEIL_AUDIT_KEY", "too-short")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "seal key must be exactly 32 bytes")
}

func TestLoad_CustomDataDir(t *testing.T) {
	resetViper(t)
	dir := t.TempDir()
	t.Setenv("VEIL_DATA_DIR", dir)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.DataDir)
}

func TestLoad_CustomStrategy(t *testing.T) {
	resetViper(t)
	t.Setenv("VEIL_STRATEGY", "hash")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "hash", cfg.Strategy)
}

func TestLoad_DetectorToggles(t *testing.T) {
	resetViper(t)
	t.Setenv("VEIL_COMPREHEND_ENABLED", "true")
	t.Setenv("VEIL_AWS_REGION", "eu-west-1")
	t.Setenv("VEIL_LLM_ENABLED", "true")
	t.Setenv("VEIL_LLM_BASE_URL", "http://gpu-box:11434/v1")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.ComprehendEnabled)
	assert.Equal(t, "eu-west-1", cfg.AWSRegion)
	assert.True(t, cfg.LLMEnabled)
	assert.Equal(t, "http://gpu-box:11434/v1", cfg.LLMBaseURL)
	assert.Equal(t, DefaultLLMModel, cfg.LLMModel)
}

func TestConfig_AuditDBPath(t *testing.T) {
	cfg := &Config{DataDir: "/data/veil"}
	assert.Equal(t, "/data/veil/audit.db", cfg.AuditDBPath())
}

func TestConfig_EnsureDataDir(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{DataDir: dir + "/nested/deep"}
	require.NoError(t, cfg.EnsureDataDir())
}

func TestDeriveDefaultKey_Deterministic(t *testing.T) {
	k1 := deriveDefaultKey("/home/user/.veil", "test-salt")
	k2 := deriveDefaultKey("/home/user/.veil", "test-salt")
	assert.Equal(t, k1, k2)
	assert.Len(t, k1, 64, "hex-encoded SHA-256")
}

func TestDeriveDefaultKey_DifferentPaths(t *testing.T) {
	k1 := deriveDefaultKey("/home/alice/.veil", "salt")
	k2 := deriveDefaultKey("/home/bob/.veil", "salt")
	assert.NotEqual(t, k1, k2)
}

func TestLoad_DerivedSigningKeyIsValidHex(t *testing.T) {
	resetViper(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Len(t, cfg.SigningKey, 64)
	assert.Equal(t, strings.ToLower(cfg.SigningKey), cfg.SigningKey)
}
