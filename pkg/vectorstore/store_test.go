package vectorstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore() *Memory {
	return NewMemory(NewHashingEmbedder(64))
}

func TestNormalizeHashCollapsesFormatting(t *testing.T) {
	a := NormalizeHash("Solar power is cheap.")
	b := NormalizeHash("  solar   POWER is\ncheap.  ")
	c := NormalizeHash("Solar power is expensive.")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestAddThenSearchSeesRecord(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	id, err := s.Add(ctx, "solar energy costs fell sharply", map[string]any{
		MetaType:   TypeWebMemory,
		MetaSource: "https://example.com/solar",
	}, false)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	records, err := s.Search(ctx, "solar energy costs", 5, nil)
	require.NoError(t, err)
	require.NotEmpty(t, records)
	assert.Equal(t, id, records[0].ID)
	assert.Equal(t, "solar energy costs fell sharply", records[0].Text)
	assert.Equal(t, TypeWebMemory, records[0].Metadata[MetaType])
}

func TestSearchMetadataFilter(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	_, err := s.Add(ctx, "proponent claims solar wins", map[string]any{
		MetaType: TypeRoleStatement, MetaRole: "proponent", MetaSessionID: "s1",
	}, false)
	require.NoError(t, err)
	_, err = s.Add(ctx, "opponent claims nuclear wins", map[string]any{
		MetaType: TypeRoleStatement, MetaRole: "opponent", MetaSessionID: "s1",
	}, false)
	require.NoError(t, err)

	records, err := s.Search(ctx, "claims about energy", 10, Filter{MetaRole: "proponent"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Contains(t, records[0].Text, "proponent")

	records, err = s.Search(ctx, "claims", 10, Filter{MetaSessionID: "other"})
	require.NoError(t, err)
	assert.Empty(t, records, "no cross-session leakage")
}

func TestDedupReturnsSameIDWithoutGrowth(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	md := map[string]any{MetaType: TypeWebMemory, MetaSource: "https://example.com/a"}

	first, err := s.Add(ctx, "The summit was held in New Delhi.", md, true)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		again, err := s.Add(ctx, "the summit  was held in new delhi.", md, true)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDedupDistinguishesSources(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	a, err := s.Add(ctx, "identical content", map[string]any{MetaSource: "https://a.example"}, true)
	require.NoError(t, err)
	b, err := s.Add(ctx, "identical content", map[string]any{MetaSource: "https://b.example"}, true)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestDeleteAndDeleteWhere(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	id, err := s.Add(ctx, "ephemeral", map[string]any{MetaType: TypeDebateTurn, MetaDebateID: "d1"}, false)
	require.NoError(t, err)
	_, err = s.Add(ctx, "also ephemeral", map[string]any{MetaType: TypeDebateTurn, MetaDebateID: "d1"}, false)
	require.NoError(t, err)
	_, err = s.Add(ctx, "survivor", map[string]any{MetaType: TypeDebateTurn, MetaDebateID: "d2"}, false)
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, id))
	assert.ErrorIs(t, s.Delete(ctx, id), ErrNotFound)

	require.NoError(t, s.DeleteWhere(ctx, Filter{MetaDebateID: "d1"}))
	n, _ := s.Count(ctx)
	assert.Equal(t, 1, n)

	require.Error(t, s.DeleteWhere(ctx, nil), "empty filter must be rejected")
}

func TestTimestampNeverInFuture(t *testing.T) {
	future := time.Now().Add(time.Hour)
	md := stampMetadata("text", map[string]any{MetaTimestamp: future}, time.Now())

	stamped, err := time.Parse(time.RFC3339, md[MetaTimestamp].(string))
	require.NoError(t, err)
	assert.False(t, stamped.After(time.Now()))
}

func TestTimestampPreservedWhenPast(t *testing.T) {
	past := time.Now().Add(-time.Hour).UTC().Truncate(time.Second)
	md := stampMetadata("text", map[string]any{MetaTimestamp: past}, time.Now())
	assert.Equal(t, past.Format(time.RFC3339), md[MetaTimestamp])
}

func TestHashingEmbedderDeterministic(t *testing.T) {
	e := NewHashingEmbedder(32)
	a, err := e.Embed(context.Background(), "solar power output")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "solar power output")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 32)

	c, _ := e.Embed(context.Background(), "nuclear reactor safety")
	assert.Greater(t, CosineSimilarity(a, b), CosineSimilarity(a, c))
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 0}, []float32{2, 0}), 1e-6)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-6)
	assert.Equal(t, float32(0), CosineSimilarity([]float32{1}, []float32{1, 2}))
}

func TestConcurrentSearchDuringAdd(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			_, _ = s.Add(ctx, "concurrent insert", map[string]any{MetaSessionID: "s"}, false)
		}
	}()
	for i := 0; i < 50; i++ {
		_, err := s.Search(ctx, "concurrent", 3, nil)
		require.NoError(t, err)
	}
	<-done
}
