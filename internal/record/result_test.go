package record

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJobResult(t *testing.T) {
	r := NewJobResult("in.json")

	_, err := uuid.Parse(r.JobID)
	require.NoError(t, err)
	assert.Equal(t, "in.json", r.InputPath)
	assert.Equal(t, StatusSuccess, r.Status)
	assert.False(t, r.StartedAt.IsZero())
}

func TestJobResultFail(t *testing.T) {
	r := NewJobResult("in.json").Fail(errors.New("file not found"))

	assert.Equal(t, StatusFailed, r.Status)
	require.Len(t, r.Errors, 1)
	assert.Equal(t, "file not found", r.Errors[0])
	assert.GreaterOrEqual(t, r.DurationMS, int64(0))
}

func TestJobResultFromStats(t *testing.T) {
	tests := []struct {
		name       string
		stats      FileStats
		wantStatus string
	}{
		{"clean run stays success", FileStats{Records: 3, RecordsChanged: 2, Redactions: 5}, StatusSuccess},
		{"failed field downgrades", FileStats{Records: 3, FieldsFailed: 1}, StatusPartial},
		{"failed record downgrades", FileStats{Records: 3, RecordsFailed: 1}, StatusPartial},
		{"warning downgrades", FileStats{Records: 1, Warnings: []string{"residual"}}, StatusPartial},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewJobResult("in.json").FromStats(&tt.stats).Finish()
			assert.Equal(t, tt.wantStatus, r.Status)
			assert.Equal(t, tt.stats.Records, r.Records)
			assert.Equal(t, tt.stats.Redactions, r.Redactions)
		})
	}
}

func TestJobResultFromStatsKeepsFailed(t *testing.T) {
	r := NewJobResult("in.json").Fail(errors.New("boom"))
	r.FromStats(&FileStats{Records: 1})
	assert.Equal(t, StatusFailed, r.Status)
}

func TestJobResultSummary(t *testing.T) {
	r := NewJobResult("in.json").FromStats(&FileStats{Records: 2, RecordsChanged: 1, Redactions: 3}).Finish()
	s := r.Summary()
	assert.Contains(t, s, "success")
	assert.Contains(t, s, "2 records")
	assert.Contains(t, s, "3 redactions")
}
