package redact

import (
	"context"
	"sort"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/veildata/veil/internal/detect"
	veilotel "github.com/veildata/veil/internal/otel"
)

var tracer = veilotel.Tracer("github.com/veildata/veil/internal/redact")

// Entry records one applied redaction for the audit trail.
type Entry struct {
	OriginalText string  `json:"original_text"`
	EntityType   string  `json:"entity_type"`
	Start        int     `json:"start_pos"`
	End          int     `json:"end_pos"`
	Replacement  string  `json:"replacement"`
	Confidence   float64 `json:"confidence"`
	Source       string  `json:"source"`
}

// Rewrite is the outcome of applying one strategy to one text. Changed
// reports whether any entity was applied, even when the replacement
// happens to equal the original snippet.
type Rewrite struct {
	Text    string  `json:"text"`
	Changed bool    `json:"changed"`
	Entries []Entry `json:"entries"`
}

// Rewriter splices strategy replacements over entity spans.
type Rewriter struct {
	strategy Strategy
}

// NewRewriter returns a rewriter bound to one strategy.
func NewRewriter(strategy Strategy) *Rewriter {
	return &Rewriter{strategy: strategy}
}

// Strategy returns the bound strategy.
func (r *Rewriter) Strategy() Strategy { return r.strategy }

// Rewrite replaces every entity span in text with the strategy's output.
// Entities are applied in descending start order so earlier offsets stay
// valid while the text length shifts underneath later ones. Entries come
// back in ascending start order. Entities whose span does not hold for
// text are skipped, not fatal.
func (r *Rewriter) Rewrite(ctx context.Context, text string, entities []detect.Entity) Rewrite {
	_, span := tracer.Start(ctx, "redact.rewrite")
	defer span.End()

	span.SetAttributes(attribute.String("veil.strategy", r.strategy.Name()))

	if len(entities) == 0 {
		span.SetAttributes(attribute.Int("veil.redaction_count", 0))
		return Rewrite{Text: text, Changed: false, Entries: []Entry{}}
	}

	sorted := make([]detect.Entity, len(entities))
	copy(sorted, entities)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start > sorted[j].Start })

	redacted := text
	entries := make([]Entry, 0, len(sorted))
	for _, e := range sorted {
		// Overlapping input plus a shrinking replacement can push a
		// pending span past the end of the working text.
		if !e.ValidFor(text) || e.End > len(redacted) {
			log.Warn().
				Str("entity_type", e.Type).
				Int("start", e.Start).
				Int("end", e.End).
				Msg("entity span invalid for text, skipping")
			continue
		}
		replacement := r.strategy.Redact(e.Text, e.Type)
		redacted = redacted[:e.Start] + replacement + redacted[e.End:]
		entries = append(entries, Entry{
			OriginalText: e.Text,
			EntityType:   e.Type,
			Start:        e.Start,
			End:          e.End,
			Replacement:  replacement,
			Confidence:   e.Confidence,
			Source:       e.Source,
		})
	}

	// Applied high-to-low; readers and the audit trail want low-to-high.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}

	span.SetAttributes(attribute.Int("veil.redaction_count", len(entries)))
	return Rewrite{Text: redacted, Changed: len(entries) > 0, Entries: entries}
}
