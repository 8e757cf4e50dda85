package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// Service implements embedding.Service using the OpenAI embeddings API.
type Service struct {
	endpoint   string
	model      string
	apiKeyEnv  string
	client     *http.Client
	dimensions int
}

// New creates an OpenAI embedding service. The API key is read from the
// apiKeyEnvName environment variable on every call.
func New(endpoint string, model string, apiKeyEnvName string, dimensions int, timeout time.Duration) *Service {
	return &Service{
		endpoint:   endpoint,
		model:      model,
		apiKeyEnv:  apiKeyEnvName,
		client:     &http.Client{Timeout: timeout},
		dimensions: dimensions,
	}
}

// Get implements embedding.Service
func (s *Service) Get(ctx context.Context, text string) ([]float32, error) {
	apiKey := os.Getenv(s.apiKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("empty api key from env: %s", s.apiKeyEnv)
	}

	requestBody, err := json.Marshal(EmbeddingRequest{
		Model:          s.model,
		Input:          text,
		EncodingFormat: "float",
		Dimensions:     int32(s.dimensions),
	})
	if err != nil {
		return nil, fmt.Errorf("fail to marshal embedding request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("fail to create embedding request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fail to do embedding request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode, Body: string(body)}
	}
	if err != nil {
		return nil, fmt.Errorf("fail to read embedding response body: %w", err)
	}
	var respBody EmbeddingResponse
	if err := json.Unmarshal(body, &respBody); err != nil {
		return nil, fmt.Errorf("fail to unmarshal embedding response: %w", err)
	}
	if len(respBody.Data) == 0 || len(respBody.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding response data")
	}
	vec := respBody.Data[0].Embedding
	if s.dimensions > 0 && len(vec) != s.dimensions {
		return nil, fmt.Errorf("embedding has %d dimensions, want %d", len(vec), s.dimensions)
	}
	return vec, nil
}
