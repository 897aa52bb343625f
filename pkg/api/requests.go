package api

import "github.com/parley-ai/parley/pkg/models"

// AnalyzeTopicRequest is the /analyze_topic body.
type AnalyzeTopicRequest struct {
	Topic        string            `json:"topic" binding:"required"`
	SessionID    string            `json:"session_id"`
	EnableWebRAG *bool             `json:"enable_web_rag"`
	History      []models.ChatTurn `json:"history"`
}

// DebateRequest is the /rag/debate body. Clients post the statement under
// either "topic" or "claim"; Stream defaults to true.
type DebateRequest struct {
	Topic          string `json:"topic"`
	Claim          string `json:"claim"`
	SessionID      string `json:"session_id"`
	Stream         *bool  `json:"stream"`
	MemoryEnabled  bool   `json:"memory_enabled"`
	EnableReversal bool   `json:"enable_reversal"`
	ReversalRounds int    `json:"reversal_rounds"`
}

// Statement returns the debated statement, preferring "topic" over "claim".
func (r *DebateRequest) Statement() string {
	if r.Topic != "" {
		return r.Topic
	}
	return r.Claim
}

// V2AnalyzeRequest is the /v2/analyze body.
type V2AnalyzeRequest struct {
	Topic          string `json:"topic" binding:"required"`
	SessionID      string `json:"session_id"`
	EnableReversal bool   `json:"enable_reversal"`
}

// TextActionRequest is the /text_action body.
type TextActionRequest struct {
	Action string `json:"action" binding:"required"`
	Text   string `json:"text" binding:"required"`
}

// RoleReversalRequest is the /memory/role/reversal body.
type RoleReversalRequest struct {
	PreviousRole string `json:"previous_role" binding:"required"`
	CurrentRole  string `json:"current_role" binding:"required"`
	CurrentTask  string `json:"current_task"`
	SessionID    string `json:"session_id"`
}

// RoleHistoryRequest is the /memory/role/history body.
type RoleHistoryRequest struct {
	Role      string `json:"role" binding:"required"`
	SessionID string `json:"session_id"`
	Topic     string `json:"topic"`
	K         int    `json:"k"`
}

// ConsistencyCheckRequest is the /memory/consistency/check body. The checked
// statement arrives as either "statement" or "new_statement".
type ConsistencyCheckRequest struct {
	Role         string `json:"role" binding:"required"`
	Statement    string `json:"statement"`
	NewStatement string `json:"new_statement"`
	SessionID    string `json:"session_id"`
}

// Checked returns the statement under test, preferring "statement".
func (r *ConsistencyCheckRequest) Checked() string {
	if r.Statement != "" {
		return r.Statement
	}
	return r.NewStatement
}

// ClearChatsRequest is the /api/chats/clear body.
type ClearChatsRequest struct {
	SessionID string `json:"session_id" binding:"required"`
}
