// Package config holds OPERATOR-LEVEL configuration for a veil installation.
//
// This is infrastructure config set by whoever deploys veil, NOT per-job
// options. The boundary is:
//
//   - Operator config (this package): data directory, audit signing key,
//     audit seal key, default field list and strategy, detector toggles,
//     server and watch settings. Set via env vars (VEIL_*) or config file
//     (veil.config.yaml).
//
//   - Job options: input/output paths, per-run strategy or field overrides.
//     Passed as CLI flags or API request fields and never persisted here.
//
// Credentials for external detectors (AWS, OpenAI-compatible endpoints)
// are read from their SDKs' standard env vars and are never stored in
// this config or written to disk.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/veildata/veil/internal/keyutil"
	"github.com/veildata/veil/internal/record"
)

// Viper keys. Each maps to an env var with the VEIL_ prefix
// (e.g. "signing_key" → VEIL_SIGNING_KEY) and to a YAML field
// in veil.config.yaml (e.g. signing_key: "...").
const (
	KeyDataDir        = "data_dir"
	KeySigningKey     = "signing_key"
	KeyAuditKey       = "audit_key"
	KeyStrategy       = "strategy"
	KeyFields         = "fields"
	KeyPatternsFile   = "patterns_file"
	KeyStripHTML      = "strip_html"
	KeyVerifyOutput   = "verify_output"
	KeyComprehend     = "comprehend_enabled"
	KeyAWSRegion      = "aws_region"
	KeyCEREndpointARN = "cer_endpoint_arn"
	KeyLLMEnabled     = "llm_enabled"
	KeyLLMModel       = "llm_model"
	KeyLLMBaseURL     = "llm_base_url"
	KeyServerAddr     = "server_addr"
	KeyServerAPIKeys  = "server_api_keys"
	KeyRateLimitRPS   = "rate_limit_rps"
	KeyRateLimitBurst = "rate_limit_burst"
	KeyWatchInbox     = "watch_inbox"
	KeyWatchSchedule  = "watch_schedule"
)

// Defaults that do NOT involve crypto material. The signing key
// intentionally has no baked-in default: when unset we generate a
// deterministic per-machine fallback and warn loudly. The audit seal key
// has no fallback at all; without it, job detail payloads are not stored.
const (
	DefaultStrategy      = "placeholder"
	DefaultLLMModel      = "gpt-4o-mini"
	DefaultServerAddr    = ":8385"
	DefaultRateLimitRPS  = 10
	DefaultRateBurst     = 20
	DefaultWatchSchedule = "@every 5m"
)

// DefaultFields is the record field list scanned when none is configured.
func DefaultFields() []string {
	return record.DefaultFields()
}

// Config holds resolved operator-level configuration for a veil process.
type Config struct {
	DataDir      string   // Base directory for all state (~/.veil)
	SigningKey   string   // HMAC-SHA256 key for audit row signing (≥32 bytes)
	AuditKey     string   // secretbox key sealing audit detail at rest (32 bytes; empty disables detail storage)
	Strategy     string   // Default redaction strategy name
	Fields       []string // Record fields scanned for PII
	PatternsFile string   // Optional user pattern file layered over the built-ins
	StripHTML    bool     // Sanitize field HTML before detection
	VerifyOutput bool     // Re-scan redacted output and warn on residual PII

	ComprehendEnabled bool   // Use AWS Comprehend as an external detector
	AWSRegion         string // Region for the Comprehend client
	CEREndpointARN    string // Custom entity recognizer endpoint (optional)

	LLMEnabled bool   // Use an OpenAI-compatible model as an external detector
	LLMModel   string // Model name for the LLM detector
	LLMBaseURL string // Override endpoint (self-hosted gateways); empty = api.openai.com

	ServerAddr     string            // veil serve listen address
	ServerAPIKeys  map[string]string // API key → caller name; empty map disables auth
	RateLimitRPS   int               // Per-caller sustained requests/second
	RateLimitBurst int               // Per-caller burst size

	WatchInbox    string // veil watch inbox directory
	WatchSchedule string // cron spec for the periodic resweep

	usingDefaultSigningKey bool
}

// UsingDefaultSigningKey returns true if the audit signing key was derived
// (not set explicitly). Commands should warn when this is the case.
func (c *Config) UsingDefaultSigningKey() bool {
	return c.usingDefaultSigningKey
}

// AuditDBPath returns the full path to the audit SQLite database.
func (c *Config) AuditDBPath() string {
	return filepath.Join(c.DataDir, "audit.db")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0o700)
}

// SealingEnabled reports whether an audit seal key is configured, i.e.
// whether job detail payloads (which contain original snippets) may be
// persisted.
func (c *Config) SealingEnabled() bool {
	return c.AuditKey != ""
}

// WarnIfDefaultKeys logs a warning when the signing key is not explicitly set.
// Suppressed when VEIL_QUICKSTART=1 or true (first-time exploration, demos).
func (c *Config) WarnIfDefaultKeys() {
	if isQuickstart() {
		return
	}
	if c.usingDefaultSigningKey {
		log.Warn().Msg("Using generated default VEIL_SIGNING_KEY — set via env var or config file for production")
	}
	if c.AuditKey == "" {
		log.Warn().Msg("VEIL_AUDIT_KEY not set — job detail payloads will not be persisted, only summaries")
	}
}

func isQuickstart() bool {
	v := os.Getenv("VEIL_QUICKSTART")
	return v == "1" || v == "true" || v == "TRUE"
}

func init() {
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

// Load reads configuration from Viper (which merges env vars, config
// file, and defaults) and returns a validated Config.
func Load() (*Config, error) {
	cfg := &Config{
		DataDir:           resolveDataDir(),
		SigningKey:        viper.GetString(KeySigningKey),
		AuditKey:          viper.GetString(KeyAuditKey),
		Strategy:          viper.GetString(KeyStrategy),
		Fields:            viper.GetStringSlice(KeyFields),
		PatternsFile:      viper.GetString(KeyPatternsFile),
		StripHTML:         viper.GetBool(KeyStripHTML),
		VerifyOutput:      viper.GetBool(KeyVerifyOutput),
		ComprehendEnabled: viper.GetBool(KeyComprehend),
		AWSRegion:         viper.GetString(KeyAWSRegion),
		CEREndpointARN:    viper.GetString(KeyCEREndpointARN),
		LLMEnabled:        viper.GetBool(KeyLLMEnabled),
		LLMModel:          viper.GetString(KeyLLMModel),
		LLMBaseURL:        viper.GetString(KeyLLMBaseURL),
		ServerAddr:        viper.GetString(KeyServerAddr),
		ServerAPIKeys:     viper.GetStringMapString(KeyServerAPIKeys),
		RateLimitRPS:      viper.GetInt(KeyRateLimitRPS),
		RateLimitBurst:    viper.GetInt(KeyRateLimitBurst),
		WatchInbox:        viper.GetString(KeyWatchInbox),
		WatchSchedule:     viper.GetString(KeyWatchSchedule),
	}

	if cfg.SigningKey == "" {
		cfg.SigningKey = deriveDefaultKey(cfg.DataDir, "audit-row-signing")
		cfg.usingDefaultSigningKey = true
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func resolveDataDir() string {
	if dir := viper.GetString(KeyDataDir); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".veil"
	}
	return filepath.Join(home, ".veil")
}

// deriveDefaultKey produces a deterministic 32-byte fallback key from the
// data directory path and a salt. Uses SHA-256 so the full salt always
// contributes to the output regardless of path length. This is NOT
// cryptographically strong; it exists solely so `veil redact` works out
// of the box while still signing audit rows with a per-machine-unique key.
func deriveDefaultKey(dataDir, salt string) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("veil:%s:%s", dataDir, salt)))
	return hex.EncodeToString(h[:])
}

func (c *Config) validate() error {
	if _, err := keyutil.SigningKeyBytes(c.SigningKey); err != nil {
		return fmt.Errorf("signing_key: %w", err)
	}
	if c.AuditKey != "" {
		if _, err := keyutil.SealKeyBytes(c.AuditKey); err != nil {
			return fmt.Errorf("audit_key: %w", err)
		}
	}
	if len(c.Fields) == 0 {
		return fmt.Errorf("fields must list at least one record field")
	}
	if c.RateLimitRPS <= 0 {
		return fmt.Errorf("rate_limit_rps must be positive")
	}
	if c.RateLimitBurst <= 0 {
		return fmt.Errorf("rate_limit_burst must be positive")
	}
	return nil
}
