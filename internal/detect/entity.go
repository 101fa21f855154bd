// Package detect finds PII entities in text. A layered regex pattern library
// drives the built-in detector; external detectors (Comprehend, LLM) plug in
// behind the ExternalDetector interface; Reconcile merges overlapping
// findings by confidence.
package detect

import "fmt"

// Detection sources recorded on each entity.
const (
	SourceRegex      = "regex"
	SourceComprehend = "comprehend"
	SourceCER        = "cer"
	SourceLLM        = "llm"
)

// Entity is a single PII finding: the matched snippet and its half-open
// byte span [Start, End) in the scanned text.
type Entity struct {
	Type       string  `json:"type"`
	Text       string  `json:"text"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
}

// ValidFor reports whether the entity span is well-formed for text:
// 0 <= Start < End <= len(text) and Text equals the spanned bytes.
func (e Entity) ValidFor(text string) bool {
	if e.Start < 0 || e.Start >= e.End || e.End > len(text) {
		return false
	}
	return e.Text == text[e.Start:e.End]
}

// Overlaps reports whether the two entity spans intersect. Spans that only
// touch (one ends where the other starts) do not overlap.
func (e Entity) Overlaps(other Entity) bool {
	return e.Start < other.End && e.End > other.Start
}

func (e Entity) String() string {
	return fmt.Sprintf("%s: %q [%d:%d] (%.2f)", e.Type, e.Text, e.Start, e.End, e.Confidence)
}
