package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// handleHeadlines deals one round of the spot-the-satire game.
func (s *Server) handleHeadlines(c *gin.Context) {
	c.JSON(http.StatusOK, s.headlines.Round())
}

// handleHealth reports liveness plus the health of the vector store, chat
// store, and provider pool.
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	res := HealthResponse{Status: "ok", VectorStore: "disabled", ChatStore: "ok"}
	if s.vectors != nil {
		res.VectorStore = "ok"
		if err := s.vectors.Health(ctx); err != nil {
			res.VectorStore = "unhealthy"
			res.Status = "degraded"
		}
	}
	if s.chats != nil && !s.chats.Healthy(ctx) {
		res.ChatStore = "unhealthy"
		res.Status = "degraded"
	}
	if s.gateway != nil {
		res.Providers = s.gateway.Healthy()
		if !res.Providers {
			res.Status = "degraded"
		}
	}
	if s.registry != nil {
		res.ActiveDebates = s.registry.ActiveCount()
	}

	status := http.StatusOK
	if res.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, res)
}
