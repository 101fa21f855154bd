package redact

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
)

// placeholderTokens maps entity types to their fixed redaction tokens.
// Types without an entry fall back to the bare [REDACTED] token.
var placeholderTokens = map[string]string{
	"EMAIL":            "[REDACTED_EMAIL]",
	"PHONE":            "[REDACTED_PHONE]",
	"PERSON":           "[REDACTED_PERSON]",
	"SSN":              "[REDACTED_SSN]",
	"ADDRESS":          "[REDACTED_ADDRESS]",
	"ZIP_CODE":         "[REDACTED_ZIP]",
	"CREDIT_CARD":      "[REDACTED_CREDIT_CARD]",
	"CUSTOMER_ACCOUNT": "[REDACTED_ACCOUNT]",
	"NAME":             "[REDACTED_NAME]",
	"OTHER":            "[REDACTED]",
}

type placeholderStrategy struct{}

func (placeholderStrategy) Name() string { return StrategyPlaceholder }

func (placeholderStrategy) Redact(_, entityType string) string {
	if token, ok := placeholderTokens[entityType]; ok {
		return token
	}
	return "[REDACTED]"
}

type maskStrategy struct{}

func (maskStrategy) Name() string { return StrategyMask }

func (maskStrategy) Redact(snippet, _ string) string {
	return maskTiers(strings.TrimSpace(snippet))
}

// maskTiers masks an already-trimmed snippet, keeping just enough of the
// edges to stay recognizable. Lengths are runes so multi-byte characters
// mask cleanly. Output rune length always equals input rune length.
func maskTiers(text string) string {
	runes := []rune(text)
	n := len(runes)
	switch {
	case n <= 2:
		return strings.Repeat("*", n)
	case n <= 4:
		return string(runes[0]) + strings.Repeat("*", n-2) + string(runes[n-1])
	default:
		return string(runes[:2]) + strings.Repeat("*", n-3) + string(runes[n-1])
	}
}

type removeStrategy struct{}

func (removeStrategy) Name() string { return StrategyRemove }

func (removeStrategy) Redact(_, _ string) string { return "" }

// hashStrategy replaces snippets with stable short tokens so redacted
// records stay joinable. The cache pins one token per exact snippet for
// the lifetime of the instance, including the entity type embedded in it:
// whichever type a snippet is first seen under wins. Not safe for
// concurrent use; give each job its own instance via ForName.
type hashStrategy struct {
	cache map[string]string
}

func (h *hashStrategy) Name() string { return StrategyHash }

func (h *hashStrategy) Redact(snippet, entityType string) string {
	if token, ok := h.cache[snippet]; ok {
		return token
	}
	sum := md5.Sum([]byte(snippet))
	token := fmt.Sprintf("[%s_%s]", entityType, hex.EncodeToString(sum[:])[:8])
	h.cache[snippet] = token
	return token
}

type partialStrategy struct{}

func (partialStrategy) Name() string { return StrategyPartial }

// Redact keeps the part of a snippet that is useful for support workflows
// (mail domain, last four digits) and masks the rest. Types without a
// partial form fall back to the tiered mask.
func (partialStrategy) Redact(snippet, entityType string) string {
	text := strings.TrimSpace(snippet)

	switch entityType {
	case "EMAIL":
		at := strings.Index(text, "@")
		if at < 0 {
			return maskTiers(text)
		}
		username := []rune(text[:at])
		domain := text[at+1:]
		if len(username) == 0 {
			return "*@" + domain
		}
		return string(username[0]) + strings.Repeat("*", len(username)-1) + "@" + domain
	case "PHONE":
		if digits := stripNonDigits(text); len(digits) >= 4 {
			return "***-***-" + digits[len(digits)-4:]
		}
		return maskTiers(text)
	case "CREDIT_CARD":
		if digits := stripNonDigits(text); len(digits) >= 4 {
			return "****-****-****-" + digits[len(digits)-4:]
		}
		return maskTiers(text)
	default:
		return maskTiers(text)
	}
}

// stripNonDigits keeps only ASCII digits.
func stripNonDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, ch := range s {
		if ch >= '0' && ch <= '9' {
			b.WriteRune(ch)
		}
	}
	return b.String()
}
