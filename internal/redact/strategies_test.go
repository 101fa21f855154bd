package redact

import (
	"regexp"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestPlaceholderTokens(t *testing.T) {
	tests := []struct {
		entityType string
		want       string
	}{
		{"EMAIL", "[REDACTED_EMAIL]"},
		{"PHONE", "[REDACTED_PHONE]"},
		{"PERSON", "[REDACTED_PERSON]"},
		{"SSN", "[REDACTED_SSN]"},
		{"ADDRESS", "[REDACTED_ADDRESS]"},
		{"ZIP_CODE", "[REDACTED_ZIP]"},
		{"CREDIT_CARD", "[REDACTED_CREDIT_CARD]"},
		{"CUSTOMER_ACCOUNT", "[REDACTED_ACCOUNT]"},
		{"NAME", "[REDACTED_NAME]"},
		{"OTHER", "[REDACTED]"},
		{"WIDGET_SERIAL", "[REDACTED]"},
	}

	s := MustForName(StrategyPlaceholder)
	for _, tt := range tests {
		t.Run(tt.entityType, func(t *testing.T) {
			assert.Equal(t, tt.want, s.Redact("whatever", tt.entityType))
		})
	}
}

func TestMaskTiers(t *testing.T) {
	tests := []struct {
		name    string
		snippet string
		want    string
	}{
		{"empty", "", ""},
		{"one char", "A", "*"},
		{"two chars all masked", "AB", "**"},
		{"three chars keep edges", "ABC", "A*C"},
		{"four chars keep edges", "ABCD", "A**D"},
		{"five chars keep two plus one", "ABCDE", "AB**E"},
		{"email", "john@example.com", "jo*************m"},
		{"phone", "555-123-4567", "55*********7"},
		{"surrounding whitespace trimmed", " ABCD ", "A**D"},
		{"multibyte runes", "Jörg", "J**g"},
	}

	s := MustForName(StrategyMask)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.Redact(tt.snippet, "OTHER"))
		})
	}
}

func TestMaskTiersPreservesRuneLength(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := rapid.StringMatching(`[A-Za-z0-9@.-]{1,64}`).Draw(t, "snippet")
		masked := maskTiers(s)
		require.Equal(t, utf8.RuneCountInString(s), utf8.RuneCountInString(masked))
		if utf8.RuneCountInString(s) >= 3 {
			require.Equal(t, []rune(s)[0], []rune(masked)[0])
			require.Equal(t, []rune(s)[utf8.RuneCountInString(s)-1], []rune(masked)[utf8.RuneCountInString(masked)-1])
		}
	})
}

func TestRemove(t *testing.T) {
	s := MustForName(StrategyRemove)
	assert.Equal(t, "", s.Redact("john@example.com", "EMAIL"))
	assert.Equal(t, "", s.Redact("", "OTHER"))
}

func TestHashKnownTokens(t *testing.T) {
	tests := []struct {
		snippet    string
		entityType string
		want       string
	}{
		{"john@example.com", "EMAIL", "[EMAIL_d4c74594]"},
		{"555-123-4567", "PHONE", "[PHONE_ca71de05]"},
		{"John Smith", "NAME", "[NAME_6117323d]"},
	}

	s := MustForName(StrategyHash)
	for _, tt := range tests {
		t.Run(tt.entityType, func(t *testing.T) {
			assert.Equal(t, tt.want, s.Redact(tt.snippet, tt.entityType))
		})
	}
}

func TestHashDeterministicWithinInstance(t *testing.T) {
	s := MustForName(StrategyHash)
	first := s.Redact("a@bc.co", "EMAIL")
	assert.Equal(t, first, s.Redact("a@bc.co", "EMAIL"))
	assert.NotEqual(t, first, s.Redact("x@yz.co", "EMAIL"))
}

func TestHashTokenShape(t *testing.T) {
	tokenRe := regexp.MustCompile(`^\[[A-Z][A-Z0-9_]*_[0-9a-f]{8}\]$`)
	rapid.Check(t, func(t *rapid.T) {
		snippet := rapid.StringMatching(`[ -~]{2,40}`).Draw(t, "snippet")
		entityType := rapid.SampledFrom([]string{"EMAIL", "PHONE", "SSN", "CREDIT_CARD", "OTHER"}).Draw(t, "type")
		s := MustForName(StrategyHash)
		token := s.Redact(snippet, entityType)
		require.Truef(t, tokenRe.MatchString(token), "token %q", token)
		require.Equal(t, token, s.Redact(snippet, entityType))
	})
}

func TestPartial(t *testing.T) {
	tests := []struct {
		name       string
		snippet    string
		entityType string
		want       string
	}{
		{"email keeps domain", "john@example.com", "EMAIL", "j***@example.com"},
		{"email single char username", "j@x.co", "EMAIL", "j@x.co"},
		{"email empty username", "@example.com", "EMAIL", "*@example.com"},
		{"email without at sign masks", "not-an-email", "EMAIL", "no*********l"},
		{"phone keeps last four", "555-123-4567", "PHONE", "***-***-4567"},
		{"phone parenthesized", "(555) 987-6543", "PHONE", "***-***-6543"},
		{"phone too short masks", "911", "PHONE", "9*1"},
		{"credit card keeps last four", "4111-1111-1111-1234", "CREDIT_CARD", "****-****-****-1234"},
		{"ssn falls back to mask", "123-45-6789", "SSN", "12********9"},
		{"zip falls back to mask", "12345", "ZIP_CODE", "12**5"},
		{"whitespace trimmed first", " 555-123-4567 ", "PHONE", "***-***-4567"},
	}

	s := MustForName(StrategyPartial)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.Redact(tt.snippet, tt.entityType))
		})
	}
}
