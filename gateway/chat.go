package gateway

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"rag_gateway/cache"
	"rag_gateway/completion"
	"rag_gateway/logger"
)

const (
	headerCacheSource = "X-Cache-Source"
	headerMock        = "X-Mock"
)

// ChatCompletionRequest is the subset of the OpenAI request body the gateway reads.
type ChatCompletionRequest struct {
	Model       string               `json:"model"`
	Messages    []completion.Message `json:"messages" binding:"required,min=1,dive"`
	Temperature *float64             `json:"temperature" binding:"omitempty,gte=0,lte=2"`
	MaxTokens   int                  `json:"max_tokens" binding:"gte=0"`
	Stream      *bool                `json:"stream"`
}

// chatTurn is a chat request resolved against the server defaults.
type chatTurn struct {
	prompt    string
	signature string
	request   *completion.CompletionRequest
	stream    bool
}

// resolve fills defaults and splits the messages into system prompt, history
// and question. The cache prompt is every non-system message joined, so the
// same question in a different conversation is a different prompt.
func (s *Server) resolve(req *ChatCompletionRequest) chatTurn {
	model := req.Model
	if model == "" {
		model = s.cfg.Model
	}
	temperature := s.cfg.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = s.cfg.MaxTokens
	}

	systemPrompt := s.cfg.SystemPrompt
	var turns []completion.Message
	for _, m := range req.Messages {
		if m.Role == completion.RoleSystem {
			systemPrompt = m.Content
			continue
		}
		turns = append(turns, m)
	}

	var question string
	var history []completion.Message
	if n := len(turns); n > 0 {
		question = turns[n-1].Content
		history = turns[:n-1]
	}
	parts := make([]string, len(turns))
	for i, m := range turns {
		parts[i] = m.Content
	}

	return chatTurn{
		prompt:    strings.Join(parts, " "),
		signature: cache.BuildSignature(model, temperature, maxTokens, systemPrompt),
		request: &completion.CompletionRequest{
			Model:        model,
			Question:     question,
			SystemPrompt: systemPrompt,
			History:      history,
			Temperature:  temperature,
			MaxTokens:    maxTokens,
		},
		stream: req.Stream == nil || *req.Stream,
	}
}

func (s *Server) handleChatCompletions(c *gin.Context) {
	if c.GetHeader(headerMock) == "true" {
		s.mockStream(c)
		return
	}

	var req ChatCompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.Warn("fail to parse user request", zap.Error(err))
		errorJSON(c, http.StatusBadRequest, "Failed to parse user request")
		return
	}
	turn := s.resolve(&req)
	if strings.TrimSpace(turn.request.Question) == "" {
		errorJSON(c, http.StatusBadRequest, "Failed to parse user request")
		return
	}
	s.logger.Debug("parsed request",
		zap.String("model", turn.request.Model),
		zap.Bool("stream", turn.stream),
		zap.Int("messages", len(req.Messages)))

	if !turn.stream {
		s.completeOnce(c, turn)
		return
	}

	w := newSSEWriter(c, turn.request.Model)
	generate := func(ctx context.Context) (string, error) {
		chunks, err := s.completion.GetStream(ctx, turn.request)
		if err != nil {
			return "", err
		}
		w.start(string(cache.SourceMiss))
		return completion.Accumulate(ctx, chunks, w.content)
	}

	res, err := s.cache.LookupOrGenerate(c.Request.Context(), turn.prompt, turn.signature, generate, s.cfg.CacheOptions)
	if err != nil {
		s.logger.Error("fail to generate answer", zap.Error(err))
		if !w.started {
			errorJSON(c, http.StatusBadGateway, "Failed to get stream")
		}
		return
	}

	if res.Source == cache.SourceHit {
		w.start(string(cache.SourceHit))
		err = w.replay(res.Response)
	} else {
		err = w.finish()
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("fail to write stream", zap.Error(err))
	}
	logger.Dialog(s.logger, turn.prompt, res.Response)
}

// completeOnce serves stream=false requests with a single JSON body.
func (s *Server) completeOnce(c *gin.Context, turn chatTurn) {
	generate := func(ctx context.Context) (string, error) {
		chunks, err := s.completion.GetStream(ctx, turn.request)
		if err != nil {
			return "", err
		}
		return completion.Accumulate(ctx, chunks, nil)
	}
	res, err := s.cache.LookupOrGenerate(c.Request.Context(), turn.prompt, turn.signature, generate, s.cfg.CacheOptions)
	if err != nil {
		s.logger.Error("fail to generate answer", zap.Error(err))
		errorJSON(c, http.StatusBadGateway, "Failed to get completion")
		return
	}
	c.Header(headerCacheSource, string(res.Source))
	c.JSON(http.StatusOK, completionBody(turn.request.Model, res.Response))
	logger.Dialog(s.logger, turn.prompt, res.Response)
}

// mockStream emits a fixed stream without touching the cache or upstream,
// for load testing the gateway itself.
func (s *Server) mockStream(c *gin.Context) {
	w := newSSEWriter(c, "mock")
	w.start("mock")
	for i := 0; i < 10; i++ {
		if err := w.content("mock"); err != nil {
			return
		}
	}
	_ = w.finish()
}
