package llm

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	defaultCallTimeout = 60 * time.Second
	transientRetries   = 2
	transientBackoff   = 250 * time.Millisecond
)

// OpenAIOptions configure an OpenAI-compatible adapter. BaseURL lets the
// same adapter speak to any backend exposing the OpenAI wire format.
type OpenAIOptions struct {
	BaseURL     string
	Model       string
	CallTimeout time.Duration
}

// OpenAIAdapter speaks to an OpenAI-compatible chat completion backend.
type OpenAIAdapter struct {
	id          string
	ring        *credentialRing
	baseURL     string
	model       string
	callTimeout time.Duration
}

// NewOpenAIAdapter creates an adapter with an ordered credential list.
func NewOpenAIAdapter(id string, keys []string, opts OpenAIOptions) (*OpenAIAdapter, error) {
	ring, err := newCredentialRing(keys)
	if err != nil {
		return nil, err
	}
	model := opts.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	timeout := opts.CallTimeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	return &OpenAIAdapter{
		id:          id,
		ring:        ring,
		baseURL:     opts.BaseURL,
		model:       model,
		callTimeout: timeout,
	}, nil
}

func (a *OpenAIAdapter) ID() string { return a.id }

func (a *OpenAIAdapter) Healthy() bool { return a.ring.available(time.Now()) }

func (a *OpenAIAdapter) client(key string) *openai.Client {
	cfg := openai.DefaultConfig(key)
	if a.baseURL != "" {
		cfg.BaseURL = a.baseURL
	}
	return openai.NewClientWithConfig(cfg)
}

func (a *OpenAIAdapter) request(msgs []Message, p Params, stream bool) openai.ChatCompletionRequest {
	model := p.Model
	if model == "" {
		model = a.model
	}
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	req := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    out,
		MaxTokens:   p.MaxTokens,
		Temperature: p.Temperature,
	}
	if stream {
		req.Stream = true
		req.StreamOptions = &openai.StreamOptions{IncludeUsage: true}
	}
	return req
}

// classify maps go-openai errors onto the shared taxonomy.
func (a *OpenAIAdapter) classify(err error, credential string) *Error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		kind := KindFromHTTPStatus(apiErr.HTTPStatusCode)
		if apiErr.Type == "content_policy_violation" || apiErr.Code == "content_filter" {
			kind = KindContentFilter
		}
		e := newError(kind, a.id, credential, apiErr.Message, err)
		e.HTTPStatus = apiErr.HTTPStatusCode
		return e
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		kind := KindFromHTTPStatus(reqErr.HTTPStatusCode)
		e := newError(kind, a.id, credential, reqErr.Error(), err)
		e.HTTPStatus = reqErr.HTTPStatusCode
		return e
	}
	return newError(ClassifyErr(err), a.id, credential, err.Error(), err)
}

// Call performs a blocking completion, rotating credentials on rate-limit
// and auth failures and retrying transient network errors in place.
func (a *OpenAIAdapter) Call(ctx context.Context, msgs []Message, p Params) (*CompletionResult, error) {
	ctx, cancel := context.WithTimeout(ctx, a.callTimeout)
	defer cancel()

	req := a.request(msgs, p, false)
	var lastErr *Error

	for attempt := 0; attempt < a.ring.size(); attempt++ {
		key := a.ring.next(time.Now())
		start := time.Now()

		resp, err := a.completeWithRetry(ctx, key, req)
		if err == nil {
			a.ring.reward(key)
			text := ""
			if len(resp.Choices) > 0 {
				text = resp.Choices[0].Message.Content
			}
			return &CompletionResult{
				Text:         text,
				TokensIn:     resp.Usage.PromptTokens,
				TokensOut:    resp.Usage.CompletionTokens,
				LatencyMS:    time.Since(start).Milliseconds(),
				ProviderID:   a.id,
				CredentialID: Redact(key),
			}, nil
		}

		lastErr = a.classify(err, key)
		if lastErr.Kind == KindRateLimit || lastErr.Kind == KindAuth {
			a.ring.penalize(key, time.Now())
			slog.Warn("Credential placed on cooldown",
				"provider", a.id, "credential", Redact(key), "kind", lastErr.Kind)
			continue
		}
		return nil, lastErr
	}
	return nil, lastErr
}

// completeWithRetry retries transient network failures with exponential
// backoff (250ms doubling, 2 retries max).
func (a *OpenAIAdapter) completeWithRetry(ctx context.Context, key string, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	client := a.client(key)
	backoff := transientBackoff
	var resp openai.ChatCompletionResponse
	var err error

	for attempt := 0; ; attempt++ {
		resp, err = client.CreateChatCompletion(ctx, req)
		if err == nil {
			return resp, nil
		}
		if attempt >= transientRetries || !a.classify(err, key).Retryable() {
			return resp, err
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return resp, ctx.Err()
		}
		backoff *= 2
	}
}

// Stream opens a streaming completion. Credential rotation mirrors Call;
// once chunks flow, failures are delivered in-channel.
func (a *OpenAIAdapter) Stream(ctx context.Context, msgs []Message, p Params) (<-chan Chunk, error) {
	req := a.request(msgs, p, true)
	var lastErr *Error
	var stream *openai.ChatCompletionStream
	var usedKey string

	for attempt := 0; attempt < a.ring.size(); attempt++ {
		key := a.ring.next(time.Now())
		s, err := a.openStreamWithRetry(ctx, key, req)
		if err == nil {
			stream, usedKey = s, key
			break
		}
		lastErr = a.classify(err, key)
		if lastErr.Kind == KindRateLimit || lastErr.Kind == KindAuth {
			a.ring.penalize(key, time.Now())
			slog.Warn("Credential placed on cooldown",
				"provider", a.id, "credential", Redact(key), "kind", lastErr.Kind)
			continue
		}
		return nil, lastErr
	}
	if stream == nil {
		return nil, lastErr
	}

	ch := make(chan Chunk, 64)
	go func() {
		defer close(ch)
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				a.ring.reward(usedKey)
				send(ctx, ch, Chunk{Done: true, FinishReason: "stop"})
				return
			}
			if err != nil {
				send(ctx, ch, Chunk{Done: true, FinishReason: "error", Err: a.classify(err, usedKey)})
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			choice := resp.Choices[0]
			if choice.Delta.Content != "" {
				if !send(ctx, ch, Chunk{DeltaText: choice.Delta.Content}) {
					return
				}
			}
			if choice.FinishReason == openai.FinishReasonContentFilter {
				send(ctx, ch, Chunk{Done: true, FinishReason: "content_filter",
					Err: newError(KindContentFilter, a.id, usedKey, "completion filtered", nil)})
				return
			}
		}
	}()
	return ch, nil
}

func (a *OpenAIAdapter) openStreamWithRetry(ctx context.Context, key string, req openai.ChatCompletionRequest) (*openai.ChatCompletionStream, error) {
	client := a.client(key)
	backoff := transientBackoff
	for attempt := 0; ; attempt++ {
		s, err := client.CreateChatCompletionStream(ctx, req)
		if err == nil {
			return s, nil
		}
		if attempt >= transientRetries || !a.classify(err, key).Retryable() {
			return nil, err
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff *= 2
	}
}

// send delivers a chunk unless the context is done. Reports delivery.
func send(ctx context.Context, ch chan<- Chunk, c Chunk) bool {
	select {
	case ch <- c:
		return true
	case <-ctx.Done():
		return false
	}
}
