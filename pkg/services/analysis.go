// Package services implements the non-streaming analysis surfaces: the v1
// analytical turn, the v2.5 dashboard, text actions, the headlines game, and
// the background retention sweep.
package services

import (
	"context"
	"time"

	"github.com/parley-ai/parley/pkg/config"
	"github.com/parley-ai/parley/pkg/llm"
	"github.com/parley-ai/parley/pkg/memory"
	"github.com/parley-ai/parley/pkg/models"
)

const cacheHitThreshold = 1500 * time.Millisecond

// AnalysisService runs single analytical turns through the memory manager
// and the gateway.
type AnalysisService struct {
	gateway *llm.Gateway
	memory  *memory.Manager
	prompts *config.Prompts
	params  llm.Params
}

// NewAnalysisService creates an AnalysisService. memory may be nil; analysis
// then runs without retrieval or web content.
func NewAnalysisService(gw *llm.Gateway, mem *memory.Manager, prompts *config.Prompts, params llm.Params) *AnalysisService {
	return &AnalysisService{gateway: gw, memory: mem, prompts: prompts, params: params}
}

// AnalyzeRequest is one v1 analysis call.
type AnalyzeRequest struct {
	Topic        string
	SessionID    string
	EnableWebRAG bool
	ShortTerm    []models.ChatTurn
}

// AnalyzeMeta describes how an analysis was produced.
type AnalyzeMeta struct {
	Provider       string           `json:"provider"`
	RAGStatus      models.RAGStatus `json:"rag_status"`
	LatencySeconds float64          `json:"latency_seconds"`
}

// AnalyzeResult is the v1 analysis outcome.
type AnalyzeResult struct {
	Analysis  string                `json:"analysis"`
	Sources   []models.EvidenceItem `json:"sources"`
	Meta      AnalyzeMeta           `json:"meta"`
	SessionID string                `json:"session_id"`
}

// AnalyzeTopic runs one analytical turn. The evidence-block wall clock
// determines rag_status; web RAG failures degrade to internal knowledge.
func (s *AnalysisService) AnalyzeTopic(ctx context.Context, req AnalyzeRequest) (*AnalyzeResult, error) {
	if req.Topic == "" {
		return nil, NewValidationError("topic", "must not be empty")
	}
	started := time.Now()

	userContent := req.Topic
	var sources []models.EvidenceItem
	ragStatus := models.RAGInternalKnowledge

	if s.memory != nil {
		evidenceStart := time.Now()
		payload, bundle, err := s.memory.BuildContext(ctx, memory.BuildInput{
			CurrentTask:  req.Topic,
			Query:        req.Topic,
			ShortTerm:    req.ShortTerm,
			UseShortTerm: len(req.ShortTerm) > 0,
			UseLongTerm:  true,
			EnableWebRAG: req.EnableWebRAG,
			FormatStyle:  memory.FormatConversational,
			SessionID:    req.SessionID,
		})
		if err != nil {
			return nil, err
		}
		userContent = payload
		sources = bundle.Items
		if bundle.Len() > 0 {
			if time.Since(evidenceStart) < cacheHitThreshold {
				ragStatus = models.RAGCacheHit
			} else {
				ragStatus = models.RAGLiveFetch
			}
		}
	}

	res, err := s.gateway.Call(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: s.prompts.Named("analysis")},
		{Role: llm.RoleUser, Content: userContent},
	}, s.params)
	if err != nil {
		return nil, err
	}

	if sources == nil {
		sources = []models.EvidenceItem{}
	}
	return &AnalyzeResult{
		Analysis: res.Text,
		Sources:  sources,
		Meta: AnalyzeMeta{
			Provider:       res.ProviderID,
			RAGStatus:      ragStatus,
			LatencySeconds: time.Since(started).Seconds(),
		},
		SessionID: req.SessionID,
	}, nil
}
