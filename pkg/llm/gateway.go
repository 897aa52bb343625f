package llm

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const defaultFirstTokenBudget = 20 * time.Second

// GatewayOptions configure fallback behavior.
type GatewayOptions struct {
	FirstTokenBudget time.Duration
}

// Gateway presents a single provider-agnostic API over an ordered provider
// list. Recoverable failures advance to the next provider; bad requests and
// content filtering stop the walk.
type Gateway struct {
	clients          []Client
	firstTokenBudget time.Duration
	metrics          *Metrics
}

// NewGateway creates a gateway over clients in preference order.
func NewGateway(clients []Client, opts GatewayOptions) *Gateway {
	budget := opts.FirstTokenBudget
	if budget <= 0 {
		budget = defaultFirstTokenBudget
	}
	return &Gateway{
		clients:          clients,
		firstTokenBudget: budget,
		metrics:          NewMetrics(),
	}
}

// Metrics returns the read-only metrics accessor.
func (g *Gateway) Metrics() *Metrics { return g.metrics }

// Providers returns the configured provider ids in preference order.
func (g *Gateway) Providers() []string {
	ids := make([]string, 0, len(g.clients))
	for _, c := range g.clients {
		ids = append(ids, c.ID())
	}
	return ids
}

// Healthy reports whether any provider has usable credentials.
func (g *Gateway) Healthy() bool {
	for _, c := range g.clients {
		if c.Healthy() {
			return true
		}
	}
	return false
}

// Call walks providers in order until one returns a completion.
func (g *Gateway) Call(ctx context.Context, msgs []Message, p Params) (*CompletionResult, error) {
	if len(g.clients) == 0 {
		return nil, ErrAllProvidersFailed
	}
	var lastErr *Error
	for _, c := range g.clients {
		g.metrics.RecordCall(c.ID())
		res, err := c.Call(ctx, msgs, p)
		if err == nil {
			g.metrics.RecordSuccess(c.ID(), res.TokensIn, res.TokensOut)
			return res, nil
		}
		lastErr = AsError(err, c.ID())
		g.metrics.RecordFailure(c.ID(), lastErr.Kind)
		if !lastErr.Advanceable() {
			return nil, lastErr
		}
		slog.Warn("Provider failed, advancing",
			"provider", c.ID(), "kind", lastErr.Kind, "error", lastErr.Message)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("%w: %w", ErrAllProvidersFailed, lastErr)
}

// StreamHandle is a live stream bound to the provider that produced its
// first chunk. Err is valid once Chunks has closed.
type StreamHandle struct {
	ProviderID string
	Chunks     <-chan Chunk

	mu  sync.Mutex
	err error
}

// Err returns the terminal stream error, if any.
func (h *StreamHandle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

func (h *StreamHandle) setErr(err error) {
	h.mu.Lock()
	h.err = err
	h.mu.Unlock()
}

// Stream walks providers until one delivers a first chunk within the
// first-token budget, then commits to it: a later failure aborts the turn
// rather than switching providers mid-stream.
func (g *Gateway) Stream(ctx context.Context, msgs []Message, p Params) (*StreamHandle, error) {
	if len(g.clients) == 0 {
		return nil, ErrAllProvidersFailed
	}
	var lastErr *Error

	for _, c := range g.clients {
		g.metrics.RecordCall(c.ID())
		attemptStart := time.Now()
		attemptCtx, cancel := context.WithCancel(ctx)

		ch, err := c.Stream(attemptCtx, msgs, p)
		if err != nil {
			cancel()
			lastErr = AsError(err, c.ID())
			g.metrics.RecordFailure(c.ID(), lastErr.Kind)
			if !lastErr.Advanceable() {
				return nil, lastErr
			}
			slog.Warn("Provider stream failed to open, advancing",
				"provider", c.ID(), "kind", lastErr.Kind)
			continue
		}

		budget := time.NewTimer(g.firstTokenBudget)
		select {
		case first, ok := <-ch:
			budget.Stop()
			if !ok {
				cancel()
				lastErr = newError(KindServer, c.ID(), "", "stream closed before first chunk", nil)
				g.metrics.RecordFailure(c.ID(), lastErr.Kind)
				continue
			}
			if first.Err != nil {
				cancel()
				lastErr = first.Err
				g.metrics.RecordFailure(c.ID(), lastErr.Kind)
				if !lastErr.Advanceable() {
					return nil, lastErr
				}
				continue
			}
			g.metrics.RecordFirstToken(c.ID(), time.Since(attemptStart).Milliseconds())
			return g.commit(ctx, cancel, c.ID(), first, ch), nil

		case <-budget.C:
			cancel()
			lastErr = newError(KindTimeout, c.ID(), "", "no first token within budget", nil)
			g.metrics.RecordFailure(c.ID(), KindTimeout)
			slog.Warn("First-token budget exceeded, advancing", "provider", c.ID())
			continue

		case <-ctx.Done():
			budget.Stop()
			cancel()
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("%w: %w", ErrAllProvidersFailed, lastErr)
}

// commit relays the committed provider's chunks to the caller. A mid-stream
// error surfaces as ErrStreamAborted on the handle; the relay never falls
// through to another provider.
func (g *Gateway) commit(ctx context.Context, cancel context.CancelFunc, providerID string, first Chunk, ch <-chan Chunk) *StreamHandle {
	out := make(chan Chunk, 64)
	handle := &StreamHandle{ProviderID: providerID, Chunks: out}

	go func() {
		defer close(out)
		defer cancel()

		textLen := 0
		deliver := func(c Chunk) bool {
			if c.DeltaText != "" {
				textLen += len(c.DeltaText)
			}
			select {
			case <-ctx.Done():
				handle.setErr(ctx.Err())
				return false
			default:
			}
			select {
			case out <- c:
				return true
			case <-ctx.Done():
				handle.setErr(ctx.Err())
				return false
			}
		}

		if !deliver(first) {
			return
		}
		if first.Done {
			g.metrics.RecordSuccess(providerID, 0, EstimateTokens(first.DeltaText))
			return
		}

		for c := range ch {
			if c.Err != nil {
				handle.setErr(fmt.Errorf("%w: %w", ErrStreamAborted, c.Err))
				g.metrics.RecordFailure(providerID, c.Err.Kind)
				return
			}
			if !deliver(c) {
				return
			}
			if c.Done {
				g.metrics.RecordSuccess(providerID, 0, textLen/4)
				return
			}
		}
		// Channel closed without a Done marker: provider hung up.
		handle.setErr(fmt.Errorf("%w: stream closed unexpectedly", ErrStreamAborted))
		g.metrics.RecordFailure(providerID, KindServer)
	}()

	return handle
}
