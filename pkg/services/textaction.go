package services

import (
	"context"
	"fmt"

	"github.com/parley-ai/parley/pkg/config"
	"github.com/parley-ai/parley/pkg/llm"
)

// Text actions.
const (
	ActionSummarize = "summarize"
	ActionExplain   = "explain"
)

const maxFragmentLen = 32 * 1024

// TextActionService applies a single action to a text fragment.
type TextActionService struct {
	gateway *llm.Gateway
	prompts *config.Prompts
	params  llm.Params
}

// NewTextActionService creates a TextActionService.
func NewTextActionService(gw *llm.Gateway, prompts *config.Prompts, params llm.Params) *TextActionService {
	return &TextActionService{gateway: gw, prompts: prompts, params: params}
}

// TextActionResult echoes the producing provider alongside the output.
type TextActionResult struct {
	Result   string `json:"result"`
	Provider string `json:"provider"`
}

// Apply runs the action over the fragment.
func (s *TextActionService) Apply(ctx context.Context, action, fragment string) (*TextActionResult, error) {
	if action != ActionSummarize && action != ActionExplain {
		return nil, NewValidationError("action", "must be summarize or explain")
	}
	if fragment == "" {
		return nil, NewValidationError("text", "must not be empty")
	}
	if len(fragment) > maxFragmentLen {
		fragment = fragment[:maxFragmentLen]
	}

	res, err := s.gateway.Call(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: s.prompts.Named("text_action_" + action)},
		{Role: llm.RoleUser, Content: fragment},
	}, s.params)
	if err != nil {
		return nil, err
	}
	if res.Text == "" {
		return nil, fmt.Errorf("%s action: %w", action, ErrMalformedUpstream)
	}
	return &TextActionResult{Result: res.Text, Provider: res.ProviderID}, nil
}
