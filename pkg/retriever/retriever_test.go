package retriever

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parley-ai/parley/pkg/vectorstore"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		wantMode Mode
	}{
		{"role term", "what has the proponent said about solar?", ModePrecision},
		{"role argued", "the opponent argued costs were rising", ModePrecision},
		{"moderator", "summarize the moderator remarks", ModePrecision},
		{"temporal", "what did we discuss yesterday?", ModePrecision},
		{"last turn", "repeat the last turn", ModePrecision},
		{"citation", "expand on the claim in [2]", ModePrecision},
		{"doc type", "analyze the uploaded image please", ModePrecision},
		{"ocr marker", "what does the ocr text say", ModePrecision},
		{"named entity", "tell me about the New Delhi summit", ModePrecision},
		{"plain semantic", "is solar cheaper than nuclear?", ModeBaseline},
		{"lowercase generic", "how do solar panels work", ModeBaseline},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Classify(tt.query)
			assert.Equal(t, tt.wantMode, c.Mode, "reason: %s", c.Reason)
			assert.NotEmpty(t, c.Reason)
			assert.Greater(t, c.Confidence, 0.0)
			assert.LessOrEqual(t, c.Confidence, 1.0)
		})
	}
}

func TestClassifyRoleDerivesFilterRole(t *testing.T) {
	c := Classify("what the proponent said before")
	assert.Equal(t, ModePrecision, c.Mode)
	assert.Equal(t, "proponent", c.role)
}

func TestClassifyRoleTermPriorityIsStable(t *testing.T) {
	// Matches both a proponent term and "moderator"; the earlier term wins
	// every run.
	for i := 0; i < 20; i++ {
		c := Classify("summarize what the proponent said to the moderator")
		assert.Equal(t, "proponent", c.role)
		assert.Equal(t, "role term: proponent said", c.Reason)
	}
}

func seedStore(t *testing.T) vectorstore.Store {
	t.Helper()
	store := vectorstore.NewMemory(vectorstore.NewHashingEmbedder(64))
	ctx := context.Background()

	seeds := []struct {
		text string
		md   map[string]any
	}{
		{"solar panels dropped in price by eighty percent", map[string]any{
			vectorstore.MetaType: vectorstore.TypeWebMemory, vectorstore.MetaSessionID: "s1",
			vectorstore.MetaSource: "https://energy.gov/solar",
		}},
		{"proponent stated solar is cheaper than nuclear", map[string]any{
			vectorstore.MetaType: vectorstore.TypeRoleStatement, vectorstore.MetaRole: "proponent",
			vectorstore.MetaSessionID: "s1",
		}},
		{"opponent stated nuclear baseload is irreplaceable", map[string]any{
			vectorstore.MetaType: vectorstore.TypeRoleStatement, vectorstore.MetaRole: "opponent",
			vectorstore.MetaSessionID: "s1",
		}},
		{"other session content about solar", map[string]any{
			vectorstore.MetaType: vectorstore.TypeWebMemory, vectorstore.MetaSessionID: "s2",
		}},
	}
	for _, s := range seeds {
		_, err := store.Add(ctx, s.text, s.md, false)
		require.NoError(t, err)
	}
	return store
}

func TestRetrieveBaselineScopedToSession(t *testing.T) {
	r := New(seedStore(t), Options{TopK: 10})

	res, err := r.Retrieve(context.Background(), "how do solar panels work", "s1")
	require.NoError(t, err)
	assert.Equal(t, ModeBaseline, res.Classification.Mode)
	require.NotEmpty(t, res.Records)
	for _, rec := range res.Records {
		assert.Equal(t, "s1", rec.Metadata[vectorstore.MetaSessionID])
	}
	assert.Equal(t, int64(1), r.Counters().Baseline)
}

func TestRetrievePrecisionFiltersByRole(t *testing.T) {
	r := New(seedStore(t), Options{TopK: 5})

	res, err := r.Retrieve(context.Background(), "what has the proponent said about cost", "s1")
	require.NoError(t, err)
	assert.Equal(t, ModePrecision, res.Classification.Mode)
	assert.False(t, res.FellBack)
	require.NotEmpty(t, res.Records)
	for _, rec := range res.Records {
		assert.Equal(t, "proponent", rec.Metadata[vectorstore.MetaRole])
	}
	assert.Equal(t, int64(1), r.Counters().Precision)
}

func TestRetrievePrecisionFallsBackWhenEmpty(t *testing.T) {
	store := vectorstore.NewMemory(vectorstore.NewHashingEmbedder(64))
	_, err := store.Add(context.Background(), "general background fact", map[string]any{
		vectorstore.MetaType: vectorstore.TypeWebMemory, vectorstore.MetaSessionID: "s1",
	}, false)
	require.NoError(t, err)
	r := New(store, Options{TopK: 5})

	// Role trigger fires, but no role_statement records exist.
	res, err := r.Retrieve(context.Background(), "what did the moderator conclude", "s1")
	require.NoError(t, err)
	assert.Equal(t, ModePrecision, res.Classification.Mode)
	assert.True(t, res.FellBack)
	assert.NotEmpty(t, res.Records)
	assert.Equal(t, int64(1), r.Counters().Fallbacks)
}

func TestRetrieveTruncatesToTopK(t *testing.T) {
	store := vectorstore.NewMemory(vectorstore.NewHashingEmbedder(64))
	for i := 0; i < 8; i++ {
		_, err := store.Add(context.Background(), "proponent point about energy markets", map[string]any{
			vectorstore.MetaType: vectorstore.TypeRoleStatement, vectorstore.MetaRole: "proponent",
			vectorstore.MetaSessionID: "s1",
		}, false)
		require.NoError(t, err)
	}
	r := New(store, Options{TopK: 3})

	res, err := r.Retrieve(context.Background(), "proponent said what about markets", "s1")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(res.Records), 3)
}
