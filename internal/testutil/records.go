// Package testutil provides shared test helpers, mocks, and fixtures for
// Veil tests.
package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// SampleRecords returns call-center style records carrying known PII: an
// email, a dashed and a parenthesized phone number, a street address, and
// one clean record for no-op coverage.
func SampleRecords() []map[string]any {
	return []map[string]any{
		{
			"id":       1,
			"sentence": "Reach Jane at jane.doe@example.com with the results",
			"channel":  "email",
		},
		{
			"id":       2,
			"sentence": "Callback numbers are 555-123-4567 and (555) 987-6543",
			"channel":  "phone",
		},
		{
			"id":       3,
			"sentence": "Ship it to 123 Main Street Springfield IL 62701",
			"channel":  "chat",
		},
		{
			"id":       4,
			"sentence": "Nothing to report on this one",
			"channel":  "chat",
		},
	}
}

// WriteRecordsFile writes records as a JSON array to dir/name and returns
// the path.
func WriteRecordsFile(t *testing.T, dir, name string, records []map[string]any) string {
	t.Helper()
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

// WriteRecordsLines writes records as JSON Lines, one object per line, to
// dir/name and returns the path.
func WriteRecordsLines(t *testing.T, dir, name string, records []map[string]any) string {
	t.Helper()
	var buf []byte
	for _, rec := range records {
		line, err := json.Marshal(rec)
		if err != nil {
			t.Fatal(err)
		}
		buf = append(buf, line...)
		buf = append(buf, '\n')
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, buf, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

// WritePatternFile creates a valid custom pattern file in dir defining an
// EMPLOYEE_ID type that matches badge numbers like EMP-123456, and returns
// its path.
func WritePatternFile(t *testing.T, dir string) string {
	t.Helper()
	patternContent := `version: 1
types:
  - type: EMPLOYEE_ID
    patterns:
      - name: badge_number
        regex: 'EMP-\d{6}'
        confidence: 0.95
`
	path := filepath.Join(dir, "patterns.yaml")
	if err := os.WriteFile(path, []byte(patternContent), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}
