package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatternsCmd_HasSubcommands(t *testing.T) {
	expected := []string{"list", "validate"}
	registered := make(map[string]bool)
	for _, cmd := range patternsCmd.Commands() {
		registered[cmd.Name()] = true
	}
	for _, name := range expected {
		assert.True(t, registered[name], "patterns subcommand %q should be registered", name)
	}
}

func TestPatternsListCmd_ShowsBuiltins(t *testing.T) {
	buf := new(bytes.Buffer)
	patternsListCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"patterns", "list"})
	require.NoError(t, rootCmd.Execute())

	out := buf.String()
	assert.Contains(t, out, "EMAIL")
	assert.Contains(t, out, "PHONE")
	assert.Contains(t, out, "email_standard")
	assert.Contains(t, out, "7 types, 12 patterns")
}

func TestPatternsValidateCmd_ValidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	yaml := `version: 1
types:
  - type: EMPLOYEE_ID
    patterns:
      - name: badge_number
        regex: 'EMP-\d{6}'
        confidence: 0.9
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	buf := new(bytes.Buffer)
	patternsValidateCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"patterns", "validate", path})
	require.NoError(t, rootCmd.Execute())

	out := buf.String()
	assert.Contains(t, out, "✓")
	assert.Contains(t, out, "1 types, 1 patterns, schema valid")
}

func TestPatternsValidateCmd_SchemaViolation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	// Lowercase type name violates the schema.
	yaml := `version: 1
types:
  - type: employee_id
    patterns:
      - name: badge_number
        regex: 'EMP-\d{6}'
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	rootCmd.SetArgs([]string{"patterns", "validate", path})
	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema")
}

func TestPatternsValidateCmd_BadRegex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "badregex.yaml")
	yaml := `version: 1
types:
  - type: EMPLOYEE_ID
    patterns:
      - name: badge_number
        regex: 'EMP-['
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	rootCmd.SetArgs([]string{"patterns", "validate", path})
	err := rootCmd.Execute()
	require.Error(t, err)
}

func TestPatternsValidateCmd_MissingFile(t *testing.T) {
	rootCmd.SetArgs([]string{"patterns", "validate", filepath.Join(t.TempDir(), "absent.yaml")})
	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading")
}
