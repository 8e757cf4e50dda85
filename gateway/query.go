package gateway

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"rag_gateway/cache"
	"rag_gateway/completion"
	"rag_gateway/conversation"
	"rag_gateway/knowledge"
	"rag_gateway/logger"
)

type QueryRequest struct {
	Q         string `json:"q"`
	SessionID string `json:"sessionId"`
}

// handleQuery answers q as plain text through the cache. The prompt carries
// the session history and the retrieved passages. A session with history gets
// its own cache signature, so its answers are never served to another session.
func (s *Server) handleQuery(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Q) == "" {
		errorJSON(c, http.StatusBadRequest, "Query is required.")
		return
	}
	session := req.SessionID
	if session == "" {
		session = conversation.DefaultSessionID
	}
	ctx := c.Request.Context()

	var prior []conversation.Message
	if s.conversations != nil {
		var err error
		prior, err = s.conversations.History(ctx, session, s.cfg.HistoryLimit)
		if err != nil {
			s.logger.Error("fail to load history", zap.String("session", session), zap.Error(err))
			errorJSON(c, http.StatusInternalServerError, "An error occurred while processing your request.")
			return
		}
		if err := s.conversations.AddMessage(ctx, session, conversation.RoleUser, req.Q); err != nil {
			s.logger.Error("fail to store user message", zap.String("session", session), zap.Error(err))
			errorJSON(c, http.StatusInternalServerError, "An error occurred while processing your request.")
			return
		}
	}
	history := conversation.Format(prior)

	signature := cache.BuildSignature(s.cfg.Model, s.cfg.Temperature, s.cfg.MaxTokens, s.cfg.SystemPrompt)
	if len(prior) > 0 {
		signature = cache.ScopeSignature(signature, history)
	}

	started := false
	startText := func(source cache.Source) {
		if started {
			return
		}
		started = true
		c.Header("Content-Type", "text/plain; charset=utf-8")
		c.Header(headerCacheSource, string(source))
		c.Status(http.StatusOK)
	}
	write := func(text string) error {
		if _, err := c.Writer.WriteString(text); err != nil {
			return err
		}
		c.Writer.Flush()
		return nil
	}

	generate := func(ctx context.Context) (string, error) {
		var hits []knowledge.Hit
		if s.retriever != nil {
			var err error
			if hits, err = s.retriever.Retrieve(ctx, req.Q); err != nil {
				return "", fmt.Errorf("fail to retrieve documents: %w", err)
			}
		}
		chunks, err := s.completion.GetStream(ctx, &completion.CompletionRequest{
			Model:        s.cfg.Model,
			Question:     knowledge.BuildPrompt(req.Q, history, hits),
			SystemPrompt: s.cfg.SystemPrompt,
			Temperature:  s.cfg.Temperature,
			MaxTokens:    s.cfg.MaxTokens,
		})
		if err != nil {
			return "", err
		}
		startText(cache.SourceMiss)
		return completion.Accumulate(ctx, chunks, write)
	}

	res, err := s.cache.LookupOrGenerate(ctx, req.Q, signature, generate, s.cfg.CacheOptions)
	if err != nil {
		s.logger.Error("fail to answer query", zap.String("session", session), zap.Error(err))
		if !started {
			errorJSON(c, http.StatusInternalServerError, "An error occurred while processing your request.")
		}
		return
	}
	if res.Source == cache.SourceHit {
		startText(cache.SourceHit)
		if err := write(res.Response); err != nil {
			s.logger.Warn("fail to write answer", zap.Error(err))
		}
	}

	if s.conversations != nil {
		// the client may be gone; the exchange is still recorded
		if err := s.conversations.AddMessage(context.WithoutCancel(ctx), session, conversation.RoleAssistant, res.Response); err != nil {
			s.logger.Warn("fail to store assistant message", zap.String("session", session), zap.Error(err))
		}
	}
	logger.Dialog(s.logger, req.Q, res.Response)
}
