package audit

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exportRows() []Summary {
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return []Summary{
		{
			ID:         "job-2",
			CreatedAt:  created.Add(time.Hour),
			InputPath:  "/data/b.json",
			OutputPath: "/data/b_redacted.json",
			Strategy:   "mask",
			Detectors:  []string{"regex", "llm"},
			Status:     "partial",
			Records:    10,
			Redactions: 4,
			DurationMS: 120,
		},
		{
			ID:         "job-1",
			CreatedAt:  created,
			InputPath:  "/data/a.json",
			Strategy:   "placeholder",
			Detectors:  []string{"regex"},
			Status:     "success",
			Records:    3,
			Redactions: 7,
			DurationMS: 58,
		},
	}
}

func TestExportCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, ExportCSV(&buf, exportRows()))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, csvHeader, records[0])
	assert.Equal(t, "job-2", records[1][0])
	assert.Equal(t, "2026-03-01T11:00:00Z", records[1][1])
	assert.Equal(t, "regex,llm", records[1][5])
	assert.Equal(t, "partial", records[1][6])
	assert.Equal(t, "4", records[1][8])
	assert.Equal(t, "", records[2][3], "empty output path stays empty")
	assert.Equal(t, "58", records[2][9])
}

func TestExportJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, ExportJSON(&buf, exportRows()))

	var rows []Summary
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "job-2", rows[0].ID)
	assert.Equal(t, []string{"regex"}, rows[1].Detectors)
}

func TestExportJSONEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, ExportJSON(&buf, nil))
	assert.Equal(t, "[]\n", buf.String())
}
