package services

import (
	"context"
	"fmt"
	"time"

	"github.com/parley-ai/parley/pkg/config"
	"github.com/parley-ai/parley/pkg/evidence"
	"github.com/parley-ai/parley/pkg/llm"
	"github.com/parley-ai/parley/pkg/memory"
	"github.com/parley-ai/parley/pkg/models"
)

const lowAuthorityThreshold = 0.4

// V2Service builds the enhanced-analysis dashboard from a non-streaming
// internal mini-debate.
type V2Service struct {
	gateway  *llm.Gateway
	gatherer *evidence.Gatherer
	prompts  *config.Prompts
	params   llm.Params
	budget   time.Duration
}

// NewV2Service creates a V2Service. gatherer may be nil.
func NewV2Service(gw *llm.Gateway, gatherer *evidence.Gatherer, prompts *config.Prompts, params llm.Params, budget time.Duration) *V2Service {
	if budget <= 0 {
		budget = 5 * time.Minute
	}
	return &V2Service{gateway: gw, gatherer: gatherer, prompts: prompts, params: params, budget: budget}
}

// V2Request is one enhanced analysis call.
type V2Request struct {
	Topic          string
	SessionID      string
	EnableReversal bool
}

// Credibility grades the claim.
type Credibility struct {
	Score float64 `json:"score"`
	Level string  `json:"level"`
}

// BiasAudit lists detected bias signals.
type BiasAudit struct {
	Signals []string `json:"signals"`
}

// RoleReversal carries the convergence figures of the internal reversal.
type RoleReversal struct {
	InitialDivergence float64 `json:"initial_divergence"`
	FinalDivergence   float64 `json:"final_divergence"`
	ConvergenceRate   float64 `json:"convergence_rate"`
}

// V2Result is the dashboard payload.
type V2Result struct {
	Credibility  Credibility           `json:"credibility"`
	Evidence     []models.EvidenceItem `json:"evidence"`
	BiasAudit    BiasAudit             `json:"bias_audit"`
	RoleReversal *RoleReversal         `json:"role_reversal,omitempty"`
	Synthesis    string                `json:"synthesis"`
	SessionID    string                `json:"session_id"`
}

// AnalyzeV2 runs the internal mini-debate: single proponent and opponent
// turns, an optional reversal round, and a moderator synthesis.
func (s *V2Service) AnalyzeV2(ctx context.Context, req V2Request) (*V2Result, error) {
	if req.Topic == "" {
		return nil, NewValidationError("topic", "must not be empty")
	}
	ctx, cancel := context.WithTimeout(ctx, s.budget)
	defer cancel()

	bundle := &models.EvidenceBundle{}
	if s.gatherer != nil {
		gathered, err := s.gatherer.Gather(ctx, req.Topic, 0)
		if err == nil && gathered != nil {
			bundle = gathered
		}
	}
	evidenceText := formatEvidence(bundle)

	pro, err := s.roleTurn(ctx, models.RoleProponent, req.Topic, evidenceText, "")
	if err != nil {
		return nil, err
	}
	con, err := s.roleTurn(ctx, models.RoleOpponent, req.Topic, evidenceText, "")
	if err != nil {
		return nil, err
	}

	initial := memory.Divergence(pro, con)
	final := initial
	var reversal *RoleReversal
	if req.EnableReversal {
		revPro, err := s.roleTurn(ctx, models.RoleReversedProponent, req.Topic, evidenceText,
			fmt.Sprintf("You previously argued against the claim:\n%s", con))
		if err != nil {
			return nil, err
		}
		revCon, err := s.roleTurn(ctx, models.RoleReversedOpponent, req.Topic, evidenceText,
			fmt.Sprintf("You previously argued for the claim:\n%s", pro))
		if err != nil {
			return nil, err
		}
		final = memory.Divergence(revPro, revCon)
		if final > initial {
			final = initial
		}
		rate := 0.0
		if initial > 1e-9 {
			rate = (initial - final) / initial
		}
		reversal = &RoleReversal{InitialDivergence: initial, FinalDivergence: final, ConvergenceRate: rate}
	}

	synthesis, err := s.roleTurn(ctx, models.RoleModerator, req.Topic, evidenceText,
		fmt.Sprintf("Proponent argued:\n%s\n\nOpponent argued:\n%s\n\nSynthesize both positions for a general reader.", pro, con))
	if err != nil {
		return nil, err
	}

	score := credibilityScore(bundle, final)
	return &V2Result{
		Credibility:  Credibility{Score: score, Level: credibilityLevel(score)},
		Evidence:     bundle.Items,
		BiasAudit:    BiasAudit{Signals: biasSignals(bundle, initial, final)},
		RoleReversal: reversal,
		Synthesis:    synthesis,
		SessionID:    req.SessionID,
	}, nil
}

func (s *V2Service) roleTurn(ctx context.Context, role models.Role, topic, evidenceText, extra string) (string, error) {
	system := s.prompts.Role(role)
	if extra != "" {
		system += "\n\n" + extra
	}
	user := "Debate this claim: " + topic
	if evidenceText != "" {
		user = evidenceText + "\n" + user
	}
	res, err := s.gateway.Call(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: user},
	}, s.params)
	if err != nil {
		return "", fmt.Errorf("%s turn: %w", role, err)
	}
	return res.Text, nil
}

// credibilityScore blends mean evidence authority with how far the two
// sides converged. No evidence pins the authority component at neutral.
func credibilityScore(bundle *models.EvidenceBundle, finalDivergence float64) float64 {
	authority := 0.5
	if bundle.Len() > 0 {
		sum := 0.0
		for _, item := range bundle.Items {
			sum += item.Authority
		}
		authority = sum / float64(bundle.Len())
	}
	return authority*0.6 + (1-finalDivergence)*0.4
}

func credibilityLevel(score float64) string {
	switch {
	case score >= 0.7:
		return "high"
	case score >= 0.4:
		return "medium"
	default:
		return "low"
	}
}

func biasSignals(bundle *models.EvidenceBundle, initial, final float64) []string {
	signals := []string{}
	for _, item := range bundle.Items {
		if item.Authority < lowAuthorityThreshold {
			signals = append(signals, fmt.Sprintf("low-authority source: %s (%.2f)", item.Domain, item.Authority))
		}
	}
	if final > 0.5 {
		signals = append(signals, "positions did not converge; the claim is contested")
	} else if initial > 0.5 && final <= 0.5 {
		signals = append(signals, "initially polarized positions converged under reversal")
	}
	return signals
}

func formatEvidence(bundle *models.EvidenceBundle) string {
	if bundle.Len() == 0 {
		return ""
	}
	out := "=== EVIDENCE ===\n"
	for _, item := range bundle.Items {
		out += fmt.Sprintf("[%d] %s (%s, authority %.2f)\n%s\n",
			item.CitationIdx, item.Title, item.Domain, item.Authority, item.Snippet)
	}
	return out
}
