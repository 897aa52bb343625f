package debate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parley-ai/parley/pkg/models"
)

func TestExtractJSONObjects(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "bare object",
			input: `{"a": 1}`,
			want:  []string{`{"a": 1}`},
		},
		{
			name:  "object surrounded by prose",
			input: `Here is my verdict: {"a": 1} hope that helps!`,
			want:  []string{`{"a": 1}`},
		},
		{
			name:  "braces inside string literals",
			input: `{"summary": "use {curly} braces and \"quotes\""}`,
			want:  []string{`{"summary": "use {curly} braces and \"quotes\""}`},
		},
		{
			name:  "nested objects stay one block",
			input: `{"dossier": {"entities": [{"name": "x"}]}}`,
			want:  []string{`{"dossier": {"entities": [{"name": "x"}]}}`},
		},
		{
			name:  "two separate objects",
			input: `{"a": 1} and {"b": 2}`,
			want:  []string{`{"a": 1}`, `{"b": 2}`},
		},
		{
			name:  "no object",
			input: "just prose, no json here",
			want:  nil,
		},
		{
			name:  "unbalanced open brace",
			input: `{"a": 1`,
			want:  nil,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, extractJSONObjects(tc.input))
		})
	}
}

func TestParseVerdictValid(t *testing.T) {
	v, err := parseVerdict("preamble " + validVerdictJSON + " postamble")
	require.NoError(t, err)
	assert.Equal(t, models.VerdictVerified, v.Verdict)
	assert.Equal(t, 85, v.ConfidencePct)
}

func TestParseVerdictRejections(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"no json", "the claim is true, trust me"},
		{"bad enum", `{"verdict": "MAYBE", "confidence_pct": 50, "summary": "s"}`},
		{"confidence out of range", `{"verdict": "VERIFIED", "confidence_pct": 120, "summary": "s"}`},
		{"empty summary", `{"verdict": "VERIFIED", "confidence_pct": 50, "summary": "  "}`},
		{"unknown field", `{"verdict": "VERIFIED", "confidence_pct": 50, "summary": "s", "extra_field": true}`},
		{"dossier entity without name", `{"verdict": "VERIFIED", "confidence_pct": 50, "summary": "s",
			"forensic_dossier": {"entities": [{"name": "", "reputation_score": 0.5, "red_flags": []}]}}`},
		{"dossier reputation out of range", `{"verdict": "VERIFIED", "confidence_pct": 50, "summary": "s",
			"forensic_dossier": {"entities": [{"name": "x", "reputation_score": 1.5, "red_flags": []}]}}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parseVerdict(tc.input)
			require.Error(t, err)
		})
	}
}

func TestParseVerdictSkipsInvalidCandidates(t *testing.T) {
	input := `{"not": "a verdict"} then {"verdict": "DEBUNKED", "confidence_pct": 90, "summary": "refuted"}`
	v, err := parseVerdict(input)
	require.NoError(t, err)
	assert.Equal(t, models.VerdictDebunked, v.Verdict)
}

func TestSyntheticVerdict(t *testing.T) {
	v := syntheticVerdict("the moderator said both sides have merit")
	assert.Equal(t, models.VerdictComplex, v.Verdict)
	assert.Equal(t, syntheticConfidence, v.ConfidencePct)
	assert.Contains(t, v.Summary, "both sides have merit")
	assert.False(t, v.Timestamp.IsZero())

	empty := syntheticVerdict("   ")
	assert.NotEmpty(t, empty.Summary)
}

func TestConvergenceStatsClamping(t *testing.T) {
	stats := convergenceStats(0.4, 0.7, 2)
	assert.InDelta(t, 0.4, stats.InitialDivergence, 1e-9)
	assert.InDelta(t, 0.4, stats.FinalDivergence, 1e-9)
	assert.InDelta(t, 0.0, stats.ConvergenceRate, 1e-9)
	assert.Equal(t, 2, stats.RoundsCompleted)

	stats = convergenceStats(0.8, 0.2, 1)
	assert.InDelta(t, 0.75, stats.ConvergenceRate, 1e-9)

	stats = convergenceStats(0, 0, 1)
	assert.Zero(t, stats.ConvergenceRate)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, 0, r.ActiveCount())
	assert.False(t, r.Cancel("absent"))

	ctx, cancel := context.WithCancel(context.Background())
	r.Register("d1", cancel)
	assert.Equal(t, 1, r.ActiveCount())

	require.True(t, r.Cancel("d1"))
	assert.ErrorIs(t, ctx.Err(), context.Canceled)

	r.Unregister("d1")
	assert.Equal(t, 0, r.ActiveCount())
	assert.False(t, r.Cancel("d1"))
}
