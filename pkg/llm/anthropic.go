package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/parley-ai/parley/pkg/version"
)

const (
	anthropicBaseURL    = "https://api.anthropic.com/v1/messages"
	anthropicVersion    = "2023-06-01"
	anthropicMaxTokens  = 4096
	defaultAnthropicMdl = "claude-3-5-haiku-latest"
)

// AnthropicOptions configure the Anthropic adapter.
type AnthropicOptions struct {
	BaseURL     string
	Model       string
	CallTimeout time.Duration
}

// AnthropicAdapter speaks the Anthropic Messages API directly, including
// its SSE streaming framing.
type AnthropicAdapter struct {
	id          string
	ring        *credentialRing
	baseURL     string
	model       string
	callTimeout time.Duration
	httpClient  *http.Client
}

// NewAnthropicAdapter creates an adapter with an ordered credential list.
func NewAnthropicAdapter(id string, keys []string, opts AnthropicOptions) (*AnthropicAdapter, error) {
	ring, err := newCredentialRing(keys)
	if err != nil {
		return nil, err
	}
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = anthropicBaseURL
	}
	model := opts.Model
	if model == "" {
		model = defaultAnthropicMdl
	}
	timeout := opts.CallTimeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	return &AnthropicAdapter{
		id:          id,
		ring:        ring,
		baseURL:     baseURL,
		model:       model,
		callTimeout: timeout,
		httpClient:  &http.Client{},
	}, nil
}

func (a *AnthropicAdapter) ID() string { return a.id }

func (a *AnthropicAdapter) Healthy() bool { return a.ring.available(time.Now()) }

// anthropicRequest is the Messages API request body. The system prompt
// travels out-of-band, not in the messages array.
type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature *float32           `json:"temperature,omitempty"`
	Stream      bool               `json:"stream,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      anthropicUsage `json:"usage"`
}

type anthropicErrorBody struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (a *AnthropicAdapter) buildRequest(msgs []Message, p Params, stream bool) anthropicRequest {
	system, rest := SystemSplit(msgs)
	model := p.Model
	if model == "" {
		model = a.model
	}
	maxTokens := p.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicMaxTokens
	}
	req := anthropicRequest{
		Model:     model,
		MaxTokens: maxTokens,
		System:    system,
		Stream:    stream,
	}
	if p.Temperature > 0 {
		t := p.Temperature
		req.Temperature = &t
	}
	for _, m := range rest {
		req.Messages = append(req.Messages, anthropicMessage{Role: m.Role, Content: m.Content})
	}
	return req
}

func (a *AnthropicAdapter) post(ctx context.Context, key string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", key)
	req.Header.Set("anthropic-version", anthropicVersion)
	req.Header.Set("User-Agent", version.Full())
	return a.httpClient.Do(req)
}

// classifyStatus maps an Anthropic error response to the taxonomy.
func (a *AnthropicAdapter) classifyStatus(status int, body []byte, key string) *Error {
	var eb anthropicErrorBody
	msg := http.StatusText(status)
	if json.Unmarshal(body, &eb) == nil && eb.Error.Message != "" {
		msg = eb.Error.Message
	}
	kind := KindFromHTTPStatus(status)
	if status == 529 || eb.Error.Type == "overloaded_error" {
		kind = KindServer
	}
	e := newError(kind, a.id, key, msg, nil)
	e.HTTPStatus = status
	return e
}

// Call performs a blocking completion with credential rotation.
func (a *AnthropicAdapter) Call(ctx context.Context, msgs []Message, p Params) (*CompletionResult, error) {
	ctx, cancel := context.WithTimeout(ctx, a.callTimeout)
	defer cancel()

	payload, err := json.Marshal(a.buildRequest(msgs, p, false))
	if err != nil {
		return nil, newError(KindBadRequest, a.id, "", err.Error(), err)
	}

	var lastErr *Error
	for attempt := 0; attempt < a.ring.size(); attempt++ {
		key := a.ring.next(time.Now())
		start := time.Now()

		resp, err := a.postWithRetry(ctx, key, payload)
		if err != nil {
			lastErr = AsError(err, a.id)
			return nil, lastErr
		}
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, newError(ClassifyErr(readErr), a.id, key, readErr.Error(), readErr)
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = a.classifyStatus(resp.StatusCode, body, key)
			if lastErr.Kind == KindRateLimit || lastErr.Kind == KindAuth {
				a.ring.penalize(key, time.Now())
				slog.Warn("Credential placed on cooldown",
					"provider", a.id, "credential", Redact(key), "kind", lastErr.Kind)
				continue
			}
			return nil, lastErr
		}

		var parsed anthropicResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, newError(KindUnknown, a.id, key, fmt.Sprintf("decode response: %v", err), err)
		}
		a.ring.reward(key)

		var text strings.Builder
		for _, block := range parsed.Content {
			if block.Type == "text" {
				text.WriteString(block.Text)
			}
		}
		return &CompletionResult{
			Text:         text.String(),
			TokensIn:     parsed.Usage.InputTokens,
			TokensOut:    parsed.Usage.OutputTokens,
			LatencyMS:    time.Since(start).Milliseconds(),
			ProviderID:   a.id,
			CredentialID: Redact(key),
		}, nil
	}
	return nil, lastErr
}

// postWithRetry retries transient network failures like the OpenAI adapter.
func (a *AnthropicAdapter) postWithRetry(ctx context.Context, key string, payload []byte) (*http.Response, error) {
	backoff := transientBackoff
	for attempt := 0; ; attempt++ {
		resp, err := a.post(ctx, key, payload)
		if err == nil {
			return resp, nil
		}
		if attempt >= transientRetries || ClassifyErr(err) != KindTransientNetwork {
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

// Stream opens a streaming completion and parses the Messages API SSE
// lifecycle: message_start, content_block_delta (text_delta),
// message_delta, message_stop. Pings are ignored.
func (a *AnthropicAdapter) Stream(ctx context.Context, msgs []Message, p Params) (<-chan Chunk, error) {
	payload, err := json.Marshal(a.buildRequest(msgs, p, true))
	if err != nil {
		return nil, newError(KindBadRequest, a.id, "", err.Error(), err)
	}

	var resp *http.Response
	var usedKey string
	var lastErr *Error

	for attempt := 0; attempt < a.ring.size(); attempt++ {
		key := a.ring.next(time.Now())
		r, err := a.postWithRetry(ctx, key, payload)
		if err != nil {
			return nil, AsError(err, a.id)
		}
		if r.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(r.Body, 1<<16))
			_ = r.Body.Close()
			lastErr = a.classifyStatus(r.StatusCode, body, key)
			if lastErr.Kind == KindRateLimit || lastErr.Kind == KindAuth {
				a.ring.penalize(key, time.Now())
				slog.Warn("Credential placed on cooldown",
					"provider", a.id, "credential", Redact(key), "kind", lastErr.Kind)
				continue
			}
			return nil, lastErr
		}
		resp, usedKey = r, key
		break
	}
	if resp == nil {
		return nil, lastErr
	}

	ch := make(chan Chunk, 64)
	go func() {
		defer close(ch)
		defer func() { _ = resp.Body.Close() }()
		a.readStream(ctx, resp.Body, usedKey, ch)
	}()
	return ch, nil
}

// readStream scans SSE lines and forwards text deltas.
func (a *AnthropicAdapter) readStream(ctx context.Context, body io.Reader, key string, ch chan<- Chunk) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	event := ""
	stopReason := ""
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			switch event {
			case "content_block_delta":
				var d struct {
					Delta struct {
						Type string `json:"type"`
						Text string `json:"text"`
					} `json:"delta"`
				}
				if json.Unmarshal([]byte(data), &d) == nil && d.Delta.Type == "text_delta" && d.Delta.Text != "" {
					if !send(ctx, ch, Chunk{DeltaText: d.Delta.Text}) {
						return
					}
				}
			case "message_delta":
				var d struct {
					Delta struct {
						StopReason string `json:"stop_reason"`
					} `json:"delta"`
				}
				if json.Unmarshal([]byte(data), &d) == nil {
					stopReason = d.Delta.StopReason
				}
			case "message_stop":
				a.ring.reward(key)
				if stopReason == "" {
					stopReason = "stop"
				}
				send(ctx, ch, Chunk{Done: true, FinishReason: stopReason})
				return
			case "error":
				var eb anthropicErrorBody
				msg := "stream error"
				kind := KindServer
				if json.Unmarshal([]byte(data), &eb) == nil && eb.Error.Message != "" {
					msg = eb.Error.Message
					if eb.Error.Type == "rate_limit_error" {
						kind = KindRateLimit
					}
				}
				send(ctx, ch, Chunk{Done: true, FinishReason: "error",
					Err: newError(kind, a.id, key, msg, nil)})
				return
			}
		}
	}
	if err := scanner.Err(); err != nil {
		send(ctx, ch, Chunk{Done: true, FinishReason: "error",
			Err: newError(ClassifyErr(err), a.id, key, err.Error(), err)})
		return
	}
	// EOF without message_stop: treat as a clean close.
	send(ctx, ch, Chunk{Done: true, FinishReason: "stop"})
}
