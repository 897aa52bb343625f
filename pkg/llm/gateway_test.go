package llm

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedClient implements Client with pre-programmed outcomes.
type scriptedClient struct {
	id          string
	callErr     error
	callResult  *CompletionResult
	streamErr   error
	chunks      []Chunk
	firstDelay  time.Duration
	chunkDelay  time.Duration
	callCount   atomic.Int32
	streamCount atomic.Int32
}

func (s *scriptedClient) ID() string    { return s.id }
func (s *scriptedClient) Healthy() bool { return true }

func (s *scriptedClient) Call(_ context.Context, _ []Message, _ Params) (*CompletionResult, error) {
	s.callCount.Add(1)
	if s.callErr != nil {
		return nil, s.callErr
	}
	return s.callResult, nil
}

func (s *scriptedClient) Stream(ctx context.Context, _ []Message, _ Params) (<-chan Chunk, error) {
	s.streamCount.Add(1)
	if s.streamErr != nil {
		return nil, s.streamErr
	}
	ch := make(chan Chunk)
	go func() {
		defer close(ch)
		if s.firstDelay > 0 {
			select {
			case <-time.After(s.firstDelay):
			case <-ctx.Done():
				return
			}
		}
		for _, c := range s.chunks {
			if s.chunkDelay > 0 {
				select {
				case <-time.After(s.chunkDelay):
				case <-ctx.Done():
					return
				}
			}
			select {
			case ch <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func okResult(provider string) *CompletionResult {
	return &CompletionResult{Text: "answer", TokensIn: 10, TokensOut: 5, ProviderID: provider}
}

func collectChunks(t *testing.T, h *StreamHandle) string {
	t.Helper()
	var text string
	for c := range h.Chunks {
		text += c.DeltaText
	}
	return text
}

func TestGatewayCallFallsBackOnRateLimit(t *testing.T) {
	primary := &scriptedClient{id: "primary", callErr: newError(KindRateLimit, "primary", "k", "429", nil)}
	secondary := &scriptedClient{id: "secondary", callResult: okResult("secondary")}
	gw := NewGateway([]Client{primary, secondary}, GatewayOptions{})

	res, err := gw.Call(context.Background(), []Message{{Role: RoleUser, Content: "q"}}, Params{})
	require.NoError(t, err)
	assert.Equal(t, "secondary", res.ProviderID)
	assert.Greater(t, res.TokensOut, 0)

	snap := gw.Metrics().Snapshot()
	assert.Equal(t, int64(1), snap["primary"].FailuresByKind[KindRateLimit])
	assert.Equal(t, int64(1), snap["secondary"].Successes)
}

func TestGatewayCallTerminalOnBadRequest(t *testing.T) {
	primary := &scriptedClient{id: "primary", callErr: newError(KindBadRequest, "primary", "k", "bad input", nil)}
	secondary := &scriptedClient{id: "secondary", callResult: okResult("secondary")}
	gw := NewGateway([]Client{primary, secondary}, GatewayOptions{})

	_, err := gw.Call(context.Background(), nil, Params{})
	require.Error(t, err)
	var le *Error
	require.ErrorAs(t, err, &le)
	assert.Equal(t, KindBadRequest, le.Kind)
	assert.Equal(t, int32(0), secondary.callCount.Load())
}

func TestGatewayCallAllProvidersFailed(t *testing.T) {
	primary := &scriptedClient{id: "primary", callErr: newError(KindServer, "primary", "k", "500", nil)}
	secondary := &scriptedClient{id: "secondary", callErr: newError(KindTimeout, "secondary", "k", "deadline", nil)}
	gw := NewGateway([]Client{primary, secondary}, GatewayOptions{})

	_, err := gw.Call(context.Background(), nil, Params{})
	require.ErrorIs(t, err, ErrAllProvidersFailed)
}

func TestGatewayStreamCommitsToFirstProducer(t *testing.T) {
	primary := &scriptedClient{id: "primary", chunks: []Chunk{
		{DeltaText: "hel"}, {DeltaText: "lo"}, {Done: true, FinishReason: "stop"},
	}}
	secondary := &scriptedClient{id: "secondary"}
	gw := NewGateway([]Client{primary, secondary}, GatewayOptions{FirstTokenBudget: time.Second})

	h, err := gw.Stream(context.Background(), nil, Params{})
	require.NoError(t, err)
	assert.Equal(t, "primary", h.ProviderID)
	assert.Equal(t, "hello", collectChunks(t, h))
	assert.NoError(t, h.Err())
	assert.Equal(t, int32(0), secondary.streamCount.Load())
}

func TestGatewayStreamAdvancesOnFirstTokenBudget(t *testing.T) {
	slow := &scriptedClient{id: "slow", firstDelay: 500 * time.Millisecond, chunks: []Chunk{{DeltaText: "late"}}}
	fast := &scriptedClient{id: "fast", chunks: []Chunk{
		{DeltaText: "quick"}, {Done: true, FinishReason: "stop"},
	}}
	gw := NewGateway([]Client{slow, fast}, GatewayOptions{FirstTokenBudget: 50 * time.Millisecond})

	h, err := gw.Stream(context.Background(), nil, Params{})
	require.NoError(t, err)
	assert.Equal(t, "fast", h.ProviderID)
	assert.Equal(t, "quick", collectChunks(t, h))

	snap := gw.Metrics().Snapshot()
	assert.Equal(t, int64(1), snap["slow"].FailuresByKind[KindTimeout])
}

func TestGatewayStreamMidStreamAbortDoesNotSwitch(t *testing.T) {
	flaky := &scriptedClient{id: "flaky", chunks: []Chunk{
		{DeltaText: "partial"},
		{Done: true, FinishReason: "error", Err: newError(KindServer, "flaky", "k", "connection reset", nil)},
	}}
	backup := &scriptedClient{id: "backup", chunks: []Chunk{{DeltaText: "full"}, {Done: true}}}
	gw := NewGateway([]Client{flaky, backup}, GatewayOptions{FirstTokenBudget: time.Second})

	h, err := gw.Stream(context.Background(), nil, Params{})
	require.NoError(t, err)
	assert.Equal(t, "flaky", h.ProviderID)
	assert.Equal(t, "partial", collectChunks(t, h))
	require.ErrorIs(t, h.Err(), ErrStreamAborted)
	assert.Equal(t, int32(0), backup.streamCount.Load())
}

func TestGatewayStreamOpenErrorAdvances(t *testing.T) {
	down := &scriptedClient{id: "down", streamErr: newError(KindServer, "down", "k", "503", nil)}
	up := &scriptedClient{id: "up", chunks: []Chunk{{DeltaText: "ok"}, {Done: true}}}
	gw := NewGateway([]Client{down, up}, GatewayOptions{FirstTokenBudget: time.Second})

	h, err := gw.Stream(context.Background(), nil, Params{})
	require.NoError(t, err)
	assert.Equal(t, "up", h.ProviderID)
	assert.Equal(t, "ok", collectChunks(t, h))
}

func TestGatewayStreamErrorChunkBeforeFirstTokenAdvances(t *testing.T) {
	limited := &scriptedClient{id: "limited", chunks: []Chunk{
		{Done: true, FinishReason: "error", Err: newError(KindRateLimit, "limited", "k", "429", nil)},
	}}
	healthy := &scriptedClient{id: "healthy", chunks: []Chunk{{DeltaText: "fine"}, {Done: true}}}
	gw := NewGateway([]Client{limited, healthy}, GatewayOptions{FirstTokenBudget: time.Second})

	h, err := gw.Stream(context.Background(), nil, Params{})
	require.NoError(t, err)
	assert.Equal(t, "healthy", h.ProviderID)
	assert.Equal(t, "fine", collectChunks(t, h))
}

func TestGatewayStreamContextCancelStopsRelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	endless := &scriptedClient{id: "endless", chunkDelay: 20 * time.Millisecond, chunks: []Chunk{
		{DeltaText: "a"}, {DeltaText: "b"}, {DeltaText: "c"}, {DeltaText: "d"},
		{DeltaText: "e"}, {DeltaText: "f"}, {Done: true},
	}}
	gw := NewGateway([]Client{endless}, GatewayOptions{FirstTokenBudget: time.Second})

	h, err := gw.Stream(ctx, nil, Params{})
	require.NoError(t, err)

	<-h.Chunks
	cancel()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-h.Chunks:
			if !ok {
				require.Error(t, h.Err())
				assert.True(t, errors.Is(h.Err(), context.Canceled) || errors.Is(h.Err(), ErrStreamAborted))
				return
			}
		case <-deadline:
			t.Fatal("relay did not stop after cancellation")
		}
	}
}

func TestGatewayNoProviders(t *testing.T) {
	gw := NewGateway(nil, GatewayOptions{})
	_, err := gw.Call(context.Background(), nil, Params{})
	require.ErrorIs(t, err, ErrAllProvidersFailed)
	_, err = gw.Stream(context.Background(), nil, Params{})
	require.ErrorIs(t, err, ErrAllProvidersFailed)
}
