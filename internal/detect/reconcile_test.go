package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcileEmpty(t *testing.T) {
	assert.Empty(t, Reconcile(nil))
	assert.Empty(t, Reconcile([]Entity{}))
}

func TestReconcileNoOverlapSortsByStart(t *testing.T) {
	in := []Entity{
		{Type: "PHONE", Text: "555-123-4567", Start: 20, End: 32, Confidence: 0.8},
		{Type: "EMAIL", Text: "a@b.co", Start: 0, End: 6, Confidence: 0.8},
	}

	out := Reconcile(in)

	require.Len(t, out, 2)
	assert.Equal(t, "EMAIL", out[0].Type)
	assert.Equal(t, "PHONE", out[1].Type)
}

func TestReconcileHigherConfidenceWins(t *testing.T) {
	regex := Entity{Type: "PHONE", Text: "555-123-4567", Start: 5, End: 17, Confidence: 0.90, Source: SourceRegex}
	external := Entity{Type: "PHONE", Text: "123-4567", Start: 9, End: 17, Confidence: 0.95, Source: SourceComprehend}

	// The stronger finding survives regardless of concatenation order.
	for name, in := range map[string][]Entity{
		"regex first":    {regex, external},
		"external first": {external, regex},
	} {
		t.Run(name, func(t *testing.T) {
			out := Reconcile(in)
			require.Len(t, out, 1)
			assert.Equal(t, SourceComprehend, out[0].Source)
			assert.Equal(t, 0.95, out[0].Confidence)
		})
	}
}

func TestReconcileEqualConfidenceKeepsIncumbent(t *testing.T) {
	first := Entity{Type: "SSN", Text: "123-45-6789", Start: 0, End: 11, Confidence: 0.8, Source: SourceRegex}
	second := Entity{Type: "ZIP_CODE", Text: "12345", Start: 0, End: 5, Confidence: 0.8, Source: SourceRegex}

	out := Reconcile([]Entity{first, second})

	require.Len(t, out, 1)
	assert.Equal(t, "SSN", out[0].Type, "ties keep the entity that arrived first")
}

func TestReconcileFirstOverlapOnly(t *testing.T) {
	// The candidate is checked against the FIRST accepted entity it
	// overlaps and nothing else. It loses to a (0.7 <= 0.9) and stays
	// suppressed even though it would have beaten b (0.7 > 0.5).
	a := Entity{Type: "ADDRESS", Start: 0, End: 10, Confidence: 0.9}
	b := Entity{Type: "ZIP_CODE", Start: 12, End: 20, Confidence: 0.5}
	candidate := Entity{Type: "PHONE", Start: 8, End: 14, Confidence: 0.7}

	out := Reconcile([]Entity{a, b, candidate})

	require.Len(t, out, 2)
	assert.Equal(t, "ADDRESS", out[0].Type)
	assert.Equal(t, "ZIP_CODE", out[1].Type)
}

func TestReconcileReplacementCanSuppressLaterCandidates(t *testing.T) {
	// The candidate replaces a, widening the accepted span over b's start,
	// so b is then suppressed by the replacement.
	a := Entity{Type: "ADDRESS", Start: 0, End: 10, Confidence: 0.9}
	candidate := Entity{Type: "PHONE", Start: 8, End: 14, Confidence: 0.95}
	b := Entity{Type: "ZIP_CODE", Start: 12, End: 20, Confidence: 0.5}

	out := Reconcile([]Entity{a, b, candidate})

	require.Len(t, out, 1)
	assert.Equal(t, "PHONE", out[0].Type)
}

func TestReconcileIdenticalSpans(t *testing.T) {
	std := Entity{Type: "EMAIL", Text: "a@b.co", Start: 0, End: 6, Confidence: 0.8}
	partial := Entity{Type: "EMAIL", Text: "a@b.co", Start: 0, End: 6, Confidence: 0.8}

	out := Reconcile([]Entity{std, partial})

	assert.Len(t, out, 1, "duplicate findings collapse to one")
}

func TestReconcileInputNotMutated(t *testing.T) {
	in := []Entity{
		{Type: "PHONE", Start: 20, End: 32, Confidence: 0.8},
		{Type: "EMAIL", Start: 0, End: 6, Confidence: 0.8},
	}
	snapshot := make([]Entity, len(in))
	copy(snapshot, in)

	Reconcile(in)

	assert.Equal(t, snapshot, in)
}

func TestMerge(t *testing.T) {
	regexFindings := []Entity{
		{Type: "EMAIL", Text: "a@b.co", Start: 0, End: 6, Confidence: 0.8, Source: SourceRegex},
	}
	externalFindings := []Entity{
		{Type: "NAME", Text: "John", Start: 10, End: 14, Confidence: 0.95, Source: SourceComprehend},
		{Type: "EMAIL", Text: "a@b.co", Start: 0, End: 6, Confidence: 0.99, Source: SourceComprehend},
	}

	out := Merge(regexFindings, externalFindings)

	require.Len(t, out, 2)
	assert.Equal(t, SourceComprehend, out[0].Source, "higher confidence external replaces the regex finding")
	assert.Equal(t, "NAME", out[1].Type)
}

func TestMergeEmptyLists(t *testing.T) {
	assert.Empty(t, Merge())
	assert.Empty(t, Merge(nil, nil))
}
