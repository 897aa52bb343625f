package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// handleRoleReversal assembles a role's prior arguments for the reversed
// position.
func (s *Server) handleRoleReversal(c *gin.Context) {
	var req RoleReversalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, err)
		return
	}
	bundle, err := s.memory.ReversalBundle(c.Request.Context(), req.PreviousRole, req.CurrentRole, req.CurrentTask, req.SessionID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, bundle)
}

// handleRoleHistory returns a role's stored statements.
func (s *Server) handleRoleHistory(c *gin.Context) {
	var req RoleHistoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, err)
		return
	}
	statements, err := s.memory.RoleHistory(c.Request.Context(), req.Role, req.SessionID, req.Topic, req.K)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, RoleHistoryResponse{Count: len(statements), Memories: statements})
}

// handleConsistencyCheck compares a new statement against the role's stored
// positions.
func (s *Server) handleConsistencyCheck(c *gin.Context) {
	var req ConsistencyCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, err)
		return
	}
	statement := req.Checked()
	if statement == "" {
		c.JSON(http.StatusBadRequest, errorBody{
			Error: "statement is required", Code: "client_error", RequestID: requestIDFrom(c),
		})
		return
	}
	result, err := s.memory.ConsistencyCheck(c.Request.Context(), req.Role, statement, req.SessionID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
