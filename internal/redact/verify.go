package redact

import (
	"fmt"
	"strings"
)

// lengthGrowthFactor flags redacted output disproportionately longer than
// its input, which usually means a splice bug rather than a long token.
const lengthGrowthFactor = 1.5

// Validation is the outcome of post-hoc output checking. Findings flag,
// they never block: callers log and carry on.
type Validation struct {
	Valid    bool     `json:"is_valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// Validate re-checks a finished rewrite against the original text. Every
// applied snippet must be gone from the output (checked case-insensitively,
// matching how detection runs), and the output must not balloon past
// lengthGrowthFactor times the input.
func Validate(original string, rw Rewrite) Validation {
	v := Validation{Valid: true, Errors: []string{}, Warnings: []string{}}

	lower := strings.ToLower(rw.Text)
	for _, entry := range rw.Entries {
		if entry.OriginalText == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(entry.OriginalText)) {
			v.Valid = false
			v.Errors = append(v.Errors, fmt.Sprintf("PII text %q still present in redacted text", entry.OriginalText))
		}
	}

	if float64(len(rw.Text)) > float64(len(original))*lengthGrowthFactor {
		v.Warnings = append(v.Warnings, fmt.Sprintf(
			"redacted text significantly longer than original (%d vs %d chars)", len(rw.Text), len(original)))
	}

	return v
}
