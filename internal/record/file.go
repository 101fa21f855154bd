package record

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// maxLineBytes caps a single JSONL line.
const maxLineBytes = 10 * 1024 * 1024

// FileStats summarizes one processed file.
type FileStats struct {
	Records        int
	RecordsChanged int
	RecordsFailed  int
	Redactions     int
	FieldsFailed   int
	Warnings       []string
	Errors         []string
	Metadata       []*Metadata
}

// FileProcessor reads record files, runs every record through a
// Coordinator, and writes the sanitized result.
type FileProcessor struct {
	coord *Coordinator
}

// NewFileProcessor wraps a coordinator for file-level processing.
func NewFileProcessor(coord *Coordinator) *FileProcessor {
	return &FileProcessor{coord: coord}
}

// ProcessFile redacts inPath into outPath. JSON files hold one object or
// an array of objects; .jsonl files hold one object per line. An empty
// outPath processes without writing (dry run). The output is written
// atomically and parent directories are created as needed.
func (p *FileProcessor) ProcessFile(ctx context.Context, inPath, outPath string) (*FileStats, error) {
	ctx, span := tracer.Start(ctx, "record.file")
	defer span.End()

	data, err := os.ReadFile(inPath)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", inPath, err)
	}

	var out []byte
	var stats *FileStats
	if isJSONL(inPath) {
		out, stats, err = p.processJSONL(ctx, data)
	} else {
		out, stats, err = p.processJSON(ctx, data)
	}
	if err != nil {
		return nil, fmt.Errorf("processing %s: %w", inPath, err)
	}

	if outPath != "" {
		if dir := filepath.Dir(outPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating output directory: %w", err)
			}
		}
		if err := writeFileAtomic(outPath, out); err != nil {
			return nil, fmt.Errorf("writing %s: %w", outPath, err)
		}
	}
	return stats, nil
}

// ProcessInPlace redacts a file over itself. The original is copied to
// <path>.backup first and the backup is kept; it is the only remaining
// copy of the unredacted input. On failure the original is untouched and
// the backup is removed again.
func (p *FileProcessor) ProcessInPlace(ctx context.Context, path string) (*FileStats, error) {
	backup := path + ".backup"
	if err := copyFile(path, backup); err != nil {
		return nil, fmt.Errorf("creating backup: %w", err)
	}

	stats, err := p.ProcessFile(ctx, path, path)
	if err != nil {
		os.Remove(backup)
		return nil, err
	}
	return stats, nil
}

func (p *FileProcessor) processJSON(ctx context.Context, data []byte) ([]byte, *FileStats, error) {
	var top any
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, nil, fmt.Errorf("invalid JSON: %w", err)
	}

	stats := &FileStats{}
	switch v := top.(type) {
	case map[string]any:
		out, err := marshalIndented(p.processRecord(ctx, v, stats))
		return out, stats, err
	case []any:
		if len(v) == 0 {
			return nil, nil, fmt.Errorf("no records found in file")
		}
		processed := make([]any, len(v))
		for i, item := range v {
			rec, ok := item.(map[string]any)
			if !ok {
				stats.Records++
				stats.RecordsFailed++
				stats.Errors = append(stats.Errors, fmt.Sprintf("record %d: not a JSON object", i))
				processed[i] = item
				continue
			}
			processed[i] = p.processRecord(ctx, rec, stats)
		}
		out, err := marshalIndented(processed)
		return out, stats, err
	default:
		return nil, nil, fmt.Errorf("unsupported JSON structure: expected object or array")
	}
}

func (p *FileProcessor) processJSONL(ctx context.Context, data []byte) ([]byte, *FileStats, error) {
	stats := &FileStats{}
	var buf bytes.Buffer

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal(line, &rec); err != nil {
			// The line may hold unredacted PII, so it is dropped from the
			// output rather than passed through.
			stats.Records++
			stats.RecordsFailed++
			stats.Errors = append(stats.Errors, fmt.Sprintf("line %d: not a JSON object", lineNo))
			continue
		}
		enc, err := json.Marshal(p.processRecord(ctx, rec, stats))
		if err != nil {
			return nil, nil, fmt.Errorf("line %d: encoding output: %w", lineNo, err)
		}
		buf.Write(enc)
		buf.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("reading lines: %w", err)
	}
	if stats.Records == 0 {
		return nil, nil, fmt.Errorf("no records found in file")
	}
	return buf.Bytes(), stats, nil
}

func (p *FileProcessor) processRecord(ctx context.Context, rec map[string]any, stats *FileStats) map[string]any {
	stats.Records++
	out, outcome := p.coord.Process(ctx, rec)
	if outcome.Changed {
		stats.RecordsChanged++
		stats.Redactions += outcome.Redactions
		stats.Metadata = append(stats.Metadata, outcome.Metadata)
	}
	stats.FieldsFailed += len(outcome.Failures)
	for _, f := range outcome.Failures {
		stats.Errors = append(stats.Errors, fmt.Sprintf("field %s: %s", f.Field, f.Reason))
	}
	stats.Warnings = append(stats.Warnings, outcome.Warnings...)
	return out
}

// RedactedName derives the default output filename for an input:
// records.json becomes records_redacted.json.
func RedactedName(base string) string {
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext) + "_redacted" + ext
}

func isJSONL(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".jsonl")
}

func marshalIndented(v any) ([]byte, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding output: %w", err)
	}
	return append(out, '\n'), nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".veil-out-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	// Backups hold unredacted PII.
	return os.WriteFile(dst, data, 0o600)
}
