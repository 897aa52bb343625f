package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/parley-ai/parley/pkg/debate"
	"github.com/parley-ai/parley/pkg/events"
	"github.com/parley-ai/parley/pkg/models"
)

// handleDebate runs a full debate: SSE by default, a JSON event trace with
// the final verdict when the body carries {"stream": false}.
func (s *Server) handleDebate(c *gin.Context) {
	var req DebateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, err)
		return
	}
	topic := req.Statement()
	if topic == "" {
		c.JSON(http.StatusBadRequest, errorBody{
			Error: "topic is required", Code: "client_error", RequestID: requestIDFrom(c),
		})
		return
	}

	debateReq := debate.Request{
		Topic:          topic,
		SessionID:      req.SessionID,
		MemoryEnabled:  req.MemoryEnabled,
		EnableReversal: req.EnableReversal,
		ReversalRounds: req.ReversalRounds,
	}
	stream := events.NewStream()

	if req.Stream != nil && !*req.Stream {
		s.debateTrace(c, debateReq, stream)
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.orchestrator.Run(ctx, debateReq, stream)
	}()

	s.writeSSE(c, stream, cancel)
	<-done
}

// debateTrace accumulates the whole event stream and replies with one JSON
// body.
func (s *Server) debateTrace(c *gin.Context, req debate.Request, stream *events.Stream) {
	resultCh := make(chan *models.Debate, 1)
	go func() {
		resultCh <- s.orchestrator.Run(c.Request.Context(), req, stream)
	}()

	trace := []events.Event{}
	for ev := range stream.Events() {
		trace = append(trace, ev)
	}
	d := <-resultCh

	c.JSON(http.StatusOK, DebateTraceResponse{
		DebateID:  d.ID,
		Status:    d.Status,
		RAGStatus: d.RAGStatus,
		Turns:     d.Turns,
		Verdict:   d.FinalVerdict,
		Events:    trace,
	})
}
