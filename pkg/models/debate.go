// Package models contains request/response models and business domain types.
package models

import "time"

// DebateStatus is the lifecycle state of a debate.
type DebateStatus string

const (
	DebateStatusPending   DebateStatus = "pending"
	DebateStatusRunning   DebateStatus = "running"
	DebateStatusCompleted DebateStatus = "completed"
	DebateStatusFailed    DebateStatus = "failed"
	DebateStatusCancelled DebateStatus = "cancelled"
)

// Mode selects the analysis surface a debate runs under.
type Mode string

const (
	ModeDebate     Mode = "debate"
	ModeAnalytical Mode = "analytical"
	ModeSimplified Mode = "simplified"
	ModeV2Enhanced Mode = "v2_enhanced"
)

// Role identifies the speaker of a debate turn.
type Role string

const (
	RoleProponent         Role = "proponent"
	RoleOpponent          Role = "opponent"
	RoleModerator         Role = "moderator"
	RoleReversedProponent Role = "reversed_proponent"
	RoleReversedOpponent  Role = "reversed_opponent"
	RoleVerdict           Role = "verdict"
)

// RAGStatus describes how the evidence-gather block was served.
type RAGStatus string

const (
	RAGCacheHit          RAGStatus = "CACHE_HIT"
	RAGLiveFetch         RAGStatus = "LIVE_FETCH"
	RAGInternalKnowledge RAGStatus = "INTERNAL_KNOWLEDGE"
)

// TurnStatus is the terminal state of a single turn.
type TurnStatus string

const (
	TurnStatusCompleted TurnStatus = "completed"
	TurnStatusSkipped   TurnStatus = "skipped"
)

// Debate is the aggregate record for one orchestrated debate.
// It is mutated only by its owning orchestrator goroutine.
type Debate struct {
	ID           string         `json:"debate_id"`
	Topic        string         `json:"topic"`
	SessionID    string         `json:"session_id"`
	Mode         Mode           `json:"mode"`
	CreatedAt    time.Time      `json:"created_at"`
	Status       DebateStatus   `json:"status"`
	TurnCount    int            `json:"turn_count"`
	RAGStatus    RAGStatus      `json:"rag_status,omitempty"`
	FinalVerdict *VerdictReport `json:"final_verdict,omitempty"`
	Turns        []Turn         `json:"turns,omitempty"`
}

// Turn is one role's contribution to a debate. Append-only; Content grows
// during streaming and freezes at completion.
type Turn struct {
	DebateID     string     `json:"debate_id"`
	TurnIndex    int        `json:"turn_index"`
	Role         Role       `json:"role"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	Content      string     `json:"content"`
	EvidenceIDs  []int      `json:"evidence_ids,omitempty"`
	ProviderUsed string     `json:"provider_used,omitempty"`
	Status       TurnStatus `json:"status"`
	Error        string     `json:"error,omitempty"`
}
