// Package summarize compresses long text into bounded bullet summaries via
// the LLM gateway, with a deterministic truncation fallback.
package summarize

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/parley-ai/parley/pkg/llm"
)

const (
	defaultInputCap  = 12 * 1024 // characters in
	defaultTargetLen = 2 * 1024  // characters out
	defaultTimeout   = 20 * time.Second
)

const systemPrompt = `You are a precise summarization engine. Produce a bullet summary of the provided text.
Rules:
- Preserve named entities, dates, locations, and numeric claims exactly as written.
- One fact per bullet, most important first.
- Never use first-person voice.
- Do not add information that is not in the text.
- Keep the summary under %TARGET% characters.`

// Summary is the outcome of one summarization. Unavailable marks the
// truncation fallback taken when every provider failed.
type Summary struct {
	Text        string
	Unavailable bool
}

// Options configure a Summarizer.
type Options struct {
	InputCap  int
	TargetLen int
	Timeout   time.Duration
	Params    llm.Params
}

// Summarizer reduces arbitrary text through a single gateway call.
type Summarizer struct {
	gw        *llm.Gateway
	inputCap  int
	targetLen int
	timeout   time.Duration
	params    llm.Params
}

// New creates a Summarizer over the gateway.
func New(gw *llm.Gateway, opts Options) *Summarizer {
	if opts.InputCap <= 0 {
		opts.InputCap = defaultInputCap
	}
	if opts.TargetLen <= 0 {
		opts.TargetLen = defaultTargetLen
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	return &Summarizer{
		gw:        gw,
		inputCap:  opts.InputCap,
		targetLen: opts.TargetLen,
		timeout:   opts.Timeout,
		params:    opts.Params,
	}
}

// Summarize compresses text to at most the target length. Gateway failure is
// soft: the head of the input is returned with Unavailable set, so callers
// always get usable text.
func (s *Summarizer) Summarize(ctx context.Context, text string) (Summary, error) {
	if ctx.Err() != nil {
		return Summary{}, ctx.Err()
	}
	text = truncateRunes(text, s.inputCap)

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	prompt := strings.ReplaceAll(systemPrompt, "%TARGET%", strconv.Itoa(s.targetLen))
	res, err := s.gw.Call(callCtx, []llm.Message{
		{Role: llm.RoleSystem, Content: prompt},
		{Role: llm.RoleUser, Content: text},
	}, s.params)
	if err != nil {
		slog.Warn("Summarization failed, falling back to truncation", "error", err)
		return Summary{Text: truncateRunes(text, s.targetLen), Unavailable: true}, nil
	}

	out := strings.TrimSpace(res.Text)
	if len(out) == 0 {
		return Summary{Text: truncateRunes(text, s.targetLen), Unavailable: true}, nil
	}
	return Summary{Text: truncateRunes(out, s.targetLen)}, nil
}

// truncateRunes cuts s to at most n characters on a rune boundary.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
