package summarize

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parley-ai/parley/pkg/llm"
)

// mockClient implements llm.Client with a scripted response per call.
type mockClient struct {
	id      string
	text    string
	err     error
	lastMsg []llm.Message
}

func (m *mockClient) ID() string    { return m.id }
func (m *mockClient) Healthy() bool { return true }

func (m *mockClient) Call(_ context.Context, msgs []llm.Message, _ llm.Params) (*llm.CompletionResult, error) {
	m.lastMsg = msgs
	if m.err != nil {
		return nil, m.err
	}
	return &llm.CompletionResult{Text: m.text, TokensOut: 10, ProviderID: m.id}, nil
}

func (m *mockClient) Stream(context.Context, []llm.Message, llm.Params) (<-chan llm.Chunk, error) {
	ch := make(chan llm.Chunk)
	close(ch)
	return ch, nil
}

func newSummarizer(c llm.Client, opts Options) *Summarizer {
	return New(llm.NewGateway([]llm.Client{c}, llm.GatewayOptions{}), opts)
}

func TestSummarizeReturnsGatewayOutput(t *testing.T) {
	client := &mockClient{id: "p", text: "- NASA launched Artemis in 2022\n- Budget was $4.1B"}
	s := newSummarizer(client, Options{})

	sum, err := s.Summarize(context.Background(), "Some long article about Artemis.")
	require.NoError(t, err)
	assert.False(t, sum.Unavailable)
	assert.Contains(t, sum.Text, "Artemis")

	require.Len(t, client.lastMsg, 2)
	assert.Equal(t, llm.RoleSystem, client.lastMsg[0].Role)
	assert.Contains(t, client.lastMsg[0].Content, "named entities")
}

func TestSummarizeTruncatesInput(t *testing.T) {
	client := &mockClient{id: "p", text: "- short"}
	s := newSummarizer(client, Options{InputCap: 100})

	_, err := s.Summarize(context.Background(), strings.Repeat("a", 5000))
	require.NoError(t, err)
	assert.LessOrEqual(t, len(client.lastMsg[1].Content), 100)
}

func TestSummarizeFallbackOnGatewayFailure(t *testing.T) {
	client := &mockClient{id: "p", err: assertError()}
	s := newSummarizer(client, Options{TargetLen: 50})

	input := strings.Repeat("evidence ", 40)
	sum, err := s.Summarize(context.Background(), input)
	require.NoError(t, err)
	assert.True(t, sum.Unavailable)
	assert.LessOrEqual(t, len(sum.Text), 50)
	assert.Equal(t, input[:50], sum.Text)
}

func TestSummarizeFallbackOnEmptyOutput(t *testing.T) {
	client := &mockClient{id: "p", text: "   "}
	s := newSummarizer(client, Options{TargetLen: 30})

	sum, err := s.Summarize(context.Background(), "original text body")
	require.NoError(t, err)
	assert.True(t, sum.Unavailable)
	assert.Equal(t, "original text body", sum.Text)
}

func TestSummarizeCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := newSummarizer(&mockClient{id: "p", text: "x"}, Options{})

	_, err := s.Summarize(ctx, "text")
	require.ErrorIs(t, err, context.Canceled)
}

func TestSummarizeCapsOutputLength(t *testing.T) {
	client := &mockClient{id: "p", text: strings.Repeat("long output ", 100)}
	s := newSummarizer(client, Options{TargetLen: 64})

	sum, err := s.Summarize(context.Background(), "input")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(sum.Text), 64)
}

func assertError() error {
	return &llm.Error{Kind: llm.KindServer, Provider: "p", Message: "boom"}
}
