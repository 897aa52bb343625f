package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/parley-ai/parley/pkg/models"
)

// handleListChats returns the session's chats, most recent first.
func (s *Server) handleListChats(c *gin.Context) {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, errorBody{
			Error: "session_id query parameter is required", Code: "client_error", RequestID: requestIDFrom(c),
		})
		return
	}
	chats, err := s.chats.ListChats(c.Request.Context(), sessionID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

func (s *Server) handleCreateChat(c *gin.Context) {
	var req models.CreateChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, err)
		return
	}
	if req.SessionID == "" {
		c.JSON(http.StatusBadRequest, errorBody{
			Error: "session_id is required", Code: "client_error", RequestID: requestIDFrom(c),
		})
		return
	}
	chat, err := s.chats.CreateChat(c.Request.Context(), req.SessionID, req.Title)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, chat)
}

func (s *Server) handleGetChat(c *gin.Context) {
	chat, err := s.chats.GetChat(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, chat)
}

func (s *Server) handleDeleteChat(c *gin.Context) {
	if err := s.chats.DeleteChat(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// handleAppendMessage appends one message; is_html / is_v2_dashboard
// metadata round-trips untouched.
func (s *Server) handleAppendMessage(c *gin.Context) {
	var req models.AppendChatMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, err)
		return
	}
	msg, err := s.chats.AppendMessage(c.Request.Context(), c.Param("id"), req.Role, req.Text, req.Metadata)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (s *Server) handleClearChats(c *gin.Context) {
	var req ClearChatsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, err)
		return
	}
	n, err := s.chats.ClearSession(c.Request.Context(), req.SessionID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}
