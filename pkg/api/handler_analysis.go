package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/parley-ai/parley/pkg/services"
)

// handleAnalyzeTopic runs one v1 analytical turn.
func (s *Server) handleAnalyzeTopic(c *gin.Context) {
	var req AnalyzeTopicRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, err)
		return
	}
	webRAG := true
	if req.EnableWebRAG != nil {
		webRAG = *req.EnableWebRAG
	}

	res, err := s.analysis.AnalyzeTopic(c.Request.Context(), services.AnalyzeRequest{
		Topic:        req.Topic,
		SessionID:    req.SessionID,
		EnableWebRAG: webRAG,
		ShortTerm:    req.History,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, AnalyzeTopicResponse{
		Success:   true,
		Analysis:  res.Analysis,
		Sources:   res.Sources,
		Meta:      res.Meta,
		SessionID: res.SessionID,
	})
}

// handleAnalyzeV2 builds the enhanced dashboard.
func (s *Server) handleAnalyzeV2(c *gin.Context) {
	var req V2AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, err)
		return
	}
	res, err := s.v2.AnalyzeV2(c.Request.Context(), services.V2Request{
		Topic:          req.Topic,
		SessionID:      req.SessionID,
		EnableReversal: req.EnableReversal,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// handleTextAction summarizes or explains a fragment.
func (s *Server) handleTextAction(c *gin.Context) {
	var req TextActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, err)
		return
	}
	res, err := s.textAction.Apply(c.Request.Context(), req.Action, req.Text)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, TextActionResponse{Success: true, Result: res.Result, Provider: res.Provider})
}
