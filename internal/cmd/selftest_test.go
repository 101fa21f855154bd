package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelftestCmd_EndToEnd(t *testing.T) {
	buf := new(bytes.Buffer)
	testCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"test"})
	require.NoError(t, rootCmd.Execute())

	out := buf.String()
	assert.Contains(t, out, "Running self-check")
	assert.Contains(t, out, "[REDACTED_EMAIL]")
	assert.Contains(t, out, "[REDACTED_PHONE]")
	assert.Contains(t, out, "Self-check passed.")
	// Originals shown next to their redacted form.
	assert.Contains(t, out, "john.smith@email.com")
}

func TestSelftestRecords_Shape(t *testing.T) {
	recs := selftestRecords()
	require.Len(t, recs, 4)
	for _, rec := range recs {
		assert.Contains(t, rec, "sentence")
		assert.Contains(t, rec, "verbatim_id")
		assert.Equal(t, 12345, rec["call_id"])
	}
}
