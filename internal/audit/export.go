package audit

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"strings"
	"time"
)

// csvHeader matches the summary column order of the jobs table.
var csvHeader = []string{
	"id", "created_at", "input_path", "output_path", "strategy",
	"detectors", "status", "record_count", "redaction_count", "duration_ms",
}

// ExportCSV writes summary rows with a header line. Only summary columns
// are exported; sealed detail never leaves the store this way.
func ExportCSV(w io.Writer, rows []Summary) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for i := range rows {
		r := &rows[i]
		if err := cw.Write([]string{
			r.ID, r.CreatedAt.Format(time.RFC3339), r.InputPath, r.OutputPath, r.Strategy,
			strings.Join(r.Detectors, ","), r.Status,
			strconv.Itoa(r.Records), strconv.Itoa(r.Redactions), strconv.FormatInt(r.DurationMS, 10),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportJSON writes summary rows as an indented JSON array.
func ExportJSON(w io.Writer, rows []Summary) error {
	if rows == nil {
		rows = []Summary{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}
