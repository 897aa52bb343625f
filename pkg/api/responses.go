package api

import (
	"github.com/parley-ai/parley/pkg/events"
	"github.com/parley-ai/parley/pkg/memory"
	"github.com/parley-ai/parley/pkg/models"
	"github.com/parley-ai/parley/pkg/services"
)

// AnalyzeTopicResponse is the /analyze_topic body.
type AnalyzeTopicResponse struct {
	Success   bool                  `json:"success"`
	Analysis  string                `json:"analysis"`
	Sources   []models.EvidenceItem `json:"sources"`
	Meta      services.AnalyzeMeta  `json:"meta"`
	SessionID string                `json:"session_id"`
}

// DebateTraceResponse is the non-streaming /rag/debate body: the full event
// trace plus the final verdict.
type DebateTraceResponse struct {
	DebateID  string                `json:"debate_id"`
	Status    models.DebateStatus   `json:"status"`
	RAGStatus models.RAGStatus      `json:"rag_status"`
	Turns     []models.Turn         `json:"turns"`
	Verdict   *models.VerdictReport `json:"verdict,omitempty"`
	Events    []events.Event        `json:"events"`
}

// TextActionResponse is the /text_action body.
type TextActionResponse struct {
	Success  bool   `json:"success"`
	Result   string `json:"result"`
	Provider string `json:"provider"`
}

// OCRResponse is the /ocr_upload body.
type OCRResponse struct {
	Success bool   `json:"success"`
	Text    string `json:"text"`
}

// TranscribeResponse is the /transcribe body.
type TranscribeResponse struct {
	Success    bool   `json:"success"`
	Transcript string `json:"transcript"`
}

// RoleHistoryResponse is the /memory/role/history body.
type RoleHistoryResponse struct {
	Count    int                    `json:"count"`
	Memories []memory.RoleStatement `json:"memories"`
}

// HealthResponse is the /health body.
type HealthResponse struct {
	Status        string `json:"status"`
	VectorStore   string `json:"vector_store"`
	ChatStore     string `json:"chat_store"`
	Providers     bool   `json:"providers"`
	ActiveDebates int    `json:"active_debates"`
}
