// Package llm provides the provider-agnostic LLM client abstraction: one
// adapter per backend with credential rotation, and a Gateway that walks
// providers in preference order with typed-error fallback.
package llm

import "context"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of a conversation sent to a provider.
type Message struct {
	Role    string
	Content string
}

// Params are the per-call generation knobs.
type Params struct {
	Model       string
	MaxTokens   int
	Temperature float32
}

// CompletionResult is the outcome of a blocking call.
type CompletionResult struct {
	Text         string
	TokensIn     int
	TokensOut    int
	LatencyMS    int64
	ProviderID   string
	CredentialID string
}

// Chunk is one streaming delta. The channel is closed when the stream
// completes; a terminal failure is delivered as the final chunk with
// Err set and Done=true.
type Chunk struct {
	DeltaText    string
	Done         bool
	FinishReason string
	Err          *Error
}

// Client is the interface every provider adapter implements.
type Client interface {
	// ID returns the stable provider identifier (e.g. "openai").
	ID() string

	// Call sends the conversation and blocks for the full completion.
	Call(ctx context.Context, msgs []Message, p Params) (*CompletionResult, error)

	// Stream sends the conversation and returns a channel of chunks.
	// The channel is closed when the stream completes. Errors are
	// delivered as the final chunk's Err field.
	Stream(ctx context.Context, msgs []Message, p Params) (<-chan Chunk, error)

	// Healthy reports whether the adapter has at least one credential
	// not currently cooling down.
	Healthy() bool
}

// SystemSplit separates a leading system message from the rest of the
// conversation. Anthropic carries the system prompt out-of-band; OpenAI
// keeps it in the message list.
func SystemSplit(msgs []Message) (system string, rest []Message) {
	if len(msgs) > 0 && msgs[0].Role == RoleSystem {
		return msgs[0].Content, msgs[1:]
	}
	return "", msgs
}

// EstimateTokens approximates token count when the provider does not
// report usage. Four characters per token is the usual rough cut.
func EstimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	n := len(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}
