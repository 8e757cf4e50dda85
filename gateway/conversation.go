package gateway

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"rag_gateway/conversation"
)

type clearHistoryRequest struct {
	SessionID string `json:"sessionId" binding:"required"`
}

func (s *Server) handleHistory(c *gin.Context) {
	session := c.Query("sessionId")
	if session == "" {
		errorJSON(c, http.StatusBadRequest, "sessionId is required")
		return
	}
	limit := s.cfg.HistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			errorJSON(c, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	msgs, err := s.conversations.History(c.Request.Context(), session, limit)
	if err != nil {
		s.logger.Error("fail to load history", zap.String("session", session), zap.Error(err))
		errorJSON(c, http.StatusInternalServerError, "Failed to retrieve conversation history")
		return
	}
	if msgs == nil {
		msgs = []conversation.Message{}
	}
	c.JSON(http.StatusOK, gin.H{
		"sessionId": session,
		"messages":  msgs,
		"count":     len(msgs),
	})
}

func (s *Server) handleClearHistory(c *gin.Context) {
	var req clearHistoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, "sessionId is required")
		return
	}
	if err := s.conversations.Clear(c.Request.Context(), req.SessionID); err != nil {
		s.logger.Error("fail to clear history", zap.String("session", req.SessionID), zap.Error(err))
		errorJSON(c, http.StatusInternalServerError, "Failed to clear conversation history")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": fmt.Sprintf("Conversation history cleared for session %s", req.SessionID),
	})
}

// handleClearCache drops cache entries with the given signature, or all of
// them when none is given.
func (s *Server) handleClearCache(c *gin.Context) {
	signature := c.Query("signature")
	n, err := s.cache.Clear(c.Request.Context(), signature)
	if err != nil {
		s.logger.Error("fail to clear cache", zap.String("signature", signature), zap.Error(err))
		errorJSON(c, http.StatusInternalServerError, "Failed to clear cache")
		return
	}
	c.JSON(http.StatusOK, gin.H{"signature": signature, "cleared": n})
}
