package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"rag_gateway/completion"
)

var (
	sseDataPrefix = []byte("data:")
	sseDone       = []byte("[DONE]")
)

// Service implements completion.Service against an OpenAI-compatible
// chat completions endpoint.
type Service struct {
	client        *http.Client
	endpoint      string
	apiKeyEnvName string
	logger        *zap.Logger
}

func New(endpoint string, apiKeyEnvName string, timeout time.Duration, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		client:        &http.Client{Timeout: timeout},
		endpoint:      endpoint,
		apiKeyEnvName: apiKeyEnvName,
		logger:        logger,
	}
}

func (s *Service) GetStream(ctx context.Context, req *completion.CompletionRequest) (<-chan *completion.CompletionChunk, error) {
	upstreamReq, err := s.buildUpstreamRequest(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("fail to build upstream request: %w", err)
	}

	resp, err := s.client.Do(upstreamReq)
	if err != nil {
		return nil, fmt.Errorf("fail to call upstream api: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("upstream api returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	ch := make(chan *completion.CompletionChunk, 10)
	go s.readStream(ctx, resp.Body, ch)
	return ch, nil
}

// readStream parses SSE lines into chunks. Exactly one Done chunk is sent
// unless ctx is cancelled first.
func (s *Service) readStream(ctx context.Context, body io.ReadCloser, ch chan<- *completion.CompletionChunk) {
	defer close(ch)
	defer body.Close()

	send := func(c *completion.CompletionChunk) bool {
		select {
		case ch <- c:
			return true
		case <-ctx.Done():
			return false
		}
	}

	reader := bufio.NewReader(body)
	var totalTokens int
	for {
		line, err := reader.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			content, done, tokenUsage, perr := parseSSELine(line)
			if perr != nil {
				s.logger.Debug("skip sse line", zap.ByteString("line", line), zap.Error(perr))
			}
			if tokenUsage > 0 {
				totalTokens = tokenUsage
			}
			if content != "" && !send(&completion.CompletionChunk{Content: content}) {
				return
			}
			if done {
				send(&completion.CompletionChunk{Done: true, TokenUsage: totalTokens})
				return
			}
		}
		if err != nil {
			final := &completion.CompletionChunk{Done: true, TokenUsage: totalTokens}
			if !errors.Is(err, io.EOF) {
				final.Error = fmt.Errorf("failed to read from upstream: %w", err)
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				final.Error = ctxErr
			}
			send(final)
			return
		}
	}
}

func (s *Service) buildUpstreamRequest(ctx context.Context, original *completion.CompletionRequest) (*http.Request, error) {
	apiKey := os.Getenv(s.apiKeyEnvName)
	if apiKey == "" {
		return nil, fmt.Errorf("empty api key from env: %s", s.apiKeyEnvName)
	}

	reqBodyBytes, err := json.Marshal(ChatCompletionRequest{
		Model:         original.Model,
		Messages:      original.Messages(),
		Temperature:   original.Temperature,
		MaxTokens:     original.MaxTokens,
		Stream:        true,
		StreamOptions: &StreamOptions{IncludeUsage: true},
	})
	if err != nil {
		return nil, fmt.Errorf("fail to marshal openai request: %w", err)
	}
	s.logger.Debug("sending completion request", zap.String("model", original.Model), zap.Int("messages", len(original.History)+2))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(reqBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("fail to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+apiKey)
	return req, nil
}

// parseSSELine returns (content, isDone, tokenUsage, error).
func parseSSELine(line []byte) (string, bool, int, error) {
	line = bytes.TrimSpace(line)
	if bytes.HasPrefix(line, []byte(":")) {
		return "", false, 0, nil
	}
	if !bytes.HasPrefix(line, sseDataPrefix) {
		return "", false, 0, fmt.Errorf("invalid SSE line, missing 'data:' prefix")
	}
	jsonBytes := bytes.TrimSpace(bytes.TrimPrefix(line, sseDataPrefix))
	if bytes.Equal(jsonBytes, sseDone) {
		return "", true, 0, nil
	}

	var resp ChatStreamResponse
	if err := json.Unmarshal(jsonBytes, &resp); err != nil {
		return "", false, 0, fmt.Errorf("fail to unmarshal SSE json: %w", err)
	}

	usage := 0
	if resp.Usage != nil {
		usage = resp.Usage.TotalTokens
	}
	if len(resp.Choices) == 0 {
		return "", false, usage, nil
	}
	// finish_reason is followed by a usage block and [DONE]; keep reading.
	return resp.Choices[0].Delta.Content, false, usage, nil
}
