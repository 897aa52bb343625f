// Package api is the HTTP transport: routing, auth, SSE streaming, and the
// error→status mapping for every service the server exposes.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/parley-ai/parley/pkg/chatstore"
	"github.com/parley-ai/parley/pkg/debate"
	"github.com/parley-ai/parley/pkg/llm"
	"github.com/parley-ai/parley/pkg/memory"
	"github.com/parley-ai/parley/pkg/services"
	"github.com/parley-ai/parley/pkg/vectorstore"
)

const (
	defaultSSEWriteBudget = 5 * time.Second
	defaultKeepAlive      = 15 * time.Second
	shutdownGrace         = 10 * time.Second
)

// Options configure the HTTP layer.
type Options struct {
	Port           int
	APIKey         string
	SSEWriteBudget time.Duration
	KeepAlive      time.Duration
}

// Server wires every service behind one gin router.
type Server struct {
	opts Options

	gateway      *llm.Gateway
	orchestrator *debate.Orchestrator
	registry     *debate.Registry
	analysis     *services.AnalysisService
	v2           *services.V2Service
	textAction   *services.TextActionService
	headlines    *services.HeadlinesService
	chats        chatstore.Store
	memory       *memory.Manager
	vectors      vectorstore.Store
	ocr          services.OCREngine
	transcriber  services.TranscribeEngine

	httpServer *http.Server
}

// Deps are the server's collaborators. Chats is required. OCR and Transcriber
// may be nil; their endpoints then answer 503. The health report marks a nil
// Vectors store as disabled.
type Deps struct {
	Gateway      *llm.Gateway
	Orchestrator *debate.Orchestrator
	Registry     *debate.Registry
	Analysis     *services.AnalysisService
	V2           *services.V2Service
	TextAction   *services.TextActionService
	Headlines    *services.HeadlinesService
	Chats        chatstore.Store
	Memory       *memory.Manager
	Vectors      vectorstore.Store
	OCR          services.OCREngine
	Transcriber  services.TranscribeEngine
}

// NewServer creates the server and its router.
func NewServer(deps Deps, opts Options) *Server {
	if opts.SSEWriteBudget <= 0 {
		opts.SSEWriteBudget = defaultSSEWriteBudget
	}
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = defaultKeepAlive
	}
	return &Server{
		opts:         opts,
		gateway:      deps.Gateway,
		orchestrator: deps.Orchestrator,
		registry:     deps.Registry,
		analysis:     deps.Analysis,
		v2:           deps.V2,
		textAction:   deps.TextAction,
		headlines:    deps.Headlines,
		chats:        deps.Chats,
		memory:       deps.Memory,
		vectors:      deps.Vectors,
		ocr:          deps.OCR,
		transcriber:  deps.Transcriber,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), requestLogging(), securityHeaders())

	authed := r.Group("/", requireAPIKey(s.opts.APIKey))
	authed.POST("/analyze_topic", s.handleAnalyzeTopic)
	authed.POST("/rag/debate", s.handleDebate)
	authed.POST("/v2/analyze", s.handleAnalyzeV2)
	authed.POST("/ocr_upload", s.handleOCRUpload)
	authed.POST("/transcribe", s.handleTranscribe)
	authed.POST("/text_action", s.handleTextAction)
	authed.POST("/memory/role/reversal", s.handleRoleReversal)
	authed.POST("/memory/role/history", s.handleRoleHistory)
	authed.POST("/memory/consistency/check", s.handleConsistencyCheck)

	r.GET("/api/chats", s.handleListChats)
	r.POST("/api/chats", s.handleCreateChat)
	r.GET("/api/chats/:id", s.handleGetChat)
	r.DELETE("/api/chats/:id", s.handleDeleteChat)
	r.POST("/api/chats/:id/messages", s.handleAppendMessage)
	r.POST("/api/chats/clear", s.handleClearChats)

	r.GET("/api/game/headlines", s.handleHeadlines)

	r.GET("/health", s.handleHealth)
	return r
}

// Start runs the HTTP server until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.opts.Port),
		Handler: s.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", s.httpServer.Addr)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	slog.Info("HTTP server stopped")
	return nil
}
