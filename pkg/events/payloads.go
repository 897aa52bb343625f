package events

import (
	"github.com/parley-ai/parley/pkg/models"
)

// MetadataPayload opens every debate stream. Exactly one per debate.
type MetadataPayload struct {
	DebateID          string           `json:"debate_id"`
	Topic             string           `json:"topic"`
	ModelUsed         string           `json:"model_used"`
	MemoryEnabled     bool             `json:"memory_enabled"`
	V2FeaturesEnabled bool             `json:"v2_features_enabled"`
	RAGStatus         models.RAGStatus `json:"rag_status"`
	EvidenceCount     int              `json:"evidence_count"`
	Timestamp         string           `json:"timestamp"` // RFC3339Nano
}

// StartRolePayload marks the beginning of one role's turn.
type StartRolePayload struct {
	Role      models.Role `json:"role"`
	TurnIndex int         `json:"turn_index"`
}

// TokenPayload is one streamed delta within a role turn. High frequency.
type TokenPayload struct {
	Role models.Role `json:"role"`
	Text string      `json:"text"`
}

// EndRolePayload closes a successful role turn with its full content length
// and the provider that produced it.
type EndRolePayload struct {
	Role       models.Role `json:"role"`
	TurnIndex  int         `json:"turn_index"`
	Length     int         `json:"length"`
	ProviderID string      `json:"provider_id,omitempty"`
}

// TurnErrorPayload reports a failed role turn. The debate continues unless
// failures are consecutive.
type TurnErrorPayload struct {
	Role      models.Role `json:"role"`
	TurnIndex int         `json:"turn_index"`
	Message   string      `json:"message"`
}

// RoleReversalStartPayload marks the transition into reversed rounds.
type RoleReversalStartPayload struct {
	Rounds int `json:"rounds"`
}

// ReversalStats quantify convergence across reversed rounds. Divergence
// values satisfy 0 ≤ final ≤ initial ≤ 1.
type ReversalStats struct {
	InitialDivergence float64 `json:"initial_divergence"`
	FinalDivergence   float64 `json:"final_divergence"`
	ConvergenceRate   float64 `json:"convergence_rate"`
	RoundsCompleted   int     `json:"rounds_completed"`
}

// RoleReversalCompletePayload closes the reversed rounds.
type RoleReversalCompletePayload struct {
	Stats ReversalStats `json:"stats"`
}

// AnalyticsPayload summarizes the debate after all turns, before the
// verdict.
type AnalyticsPayload struct {
	Turns         int              `json:"turns"`
	FailedTurns   int              `json:"failed_turns"`
	EvidenceCount int              `json:"evidence_count"`
	RAGStatus     models.RAGStatus `json:"rag_status"`
	ProvidersUsed []string         `json:"providers_used"`
	DurationMS    int64            `json:"duration_ms"`
	ReversalStats *ReversalStats   `json:"reversal_stats,omitempty"`
}

// FinalVerdictPayload carries the structured verdict. Exactly one per
// non-cancelled debate.
type FinalVerdictPayload struct {
	Verdict models.VerdictReport `json:"verdict"`
}

// ErrorPayload is a fatal debate error. It is followed only by end.
type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// EndPayload terminates every stream.
type EndPayload struct{}
