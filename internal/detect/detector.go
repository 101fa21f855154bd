package detect

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	veilotel "github.com/veildata/veil/internal/otel"
)

var tracer = veilotel.Tracer("github.com/veildata/veil/internal/detect")

// PatternDetector scans text against a compiled pattern library.
type PatternDetector struct {
	lib *Library
}

// NewPatternDetector creates a detector over the given library.
func NewPatternDetector(lib *Library) *PatternDetector {
	return &PatternDetector{lib: lib}
}

// Library returns the detector's compiled library.
func (d *PatternDetector) Library() *Library { return d.lib }

// Detect returns every pattern match in text as an entity, scanning all
// patterns of all types in library order. Overlaps within and across types
// are NOT suppressed here; Reconcile owns dedupe.
func (d *PatternDetector) Detect(ctx context.Context, text string) []Entity {
	_, span := tracer.Start(ctx, "detect.scan")
	defer span.End()

	if strings.TrimSpace(text) == "" {
		return nil
	}

	var entities []Entity
	for _, ct := range d.lib.types {
		for _, pat := range ct.Patterns {
			for _, m := range pat.Regex.FindAllStringSubmatchIndex(text, -1) {
				start, end := m[0], m[1]
				// A matched capture group narrows the entity to the group
				// span; the surrounding context stays out of the snippet.
				if len(m) >= 4 && m[2] >= 0 {
					start, end = m[2], m[3]
				}
				snippet := text[start:end]
				if len(strings.TrimSpace(snippet)) < 2 {
					continue
				}
				if ct.Denied(snippet) {
					continue
				}
				entities = append(entities, Entity{
					Type:       ct.Type,
					Text:       snippet,
					Start:      start,
					End:        end,
					Confidence: pat.Confidence,
					Source:     SourceRegex,
				})
			}
		}
	}

	span.SetAttributes(
		attribute.Int("veil.text_bytes", len(text)),
		attribute.Int("veil.entity_count", len(entities)),
	)

	return entities
}
