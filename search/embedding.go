package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/pgvector/pgvector-go"
)

const openAIEmbeddingsURL = "https://api.openai.com/v1/embeddings"

type embeddingRequest struct {
	Input string `json:"input"`
	Model string `json:"model"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// EmbeddingService generates text embeddings through the OpenAI API.
type EmbeddingService struct {
	httpClient *http.Client
	apiKey     string
	model      string
	logger     *slog.Logger
}

func NewEmbeddingService(apiKey string, logger *slog.Logger) *EmbeddingService {
	return &EmbeddingService{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		apiKey:     apiKey,
		model:      "text-embedding-ada-002",
		logger:     logger,
	}
}

// Generate returns the embedding vector and the token count the call used.
func (s *EmbeddingService) Generate(ctx context.Context, text string) (pgvector.Vector, int, error) {
	var zero pgvector.Vector
	if s.apiKey == "" {
		return zero, 0, fmt.Errorf("OpenAI API key not configured")
	}

	jsonData, err := json.Marshal(embeddingRequest{Input: text, Model: s.model})
	if err != nil {
		return zero, 0, fmt.Errorf("failed to marshal embedding request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", openAIEmbeddingsURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return zero, 0, fmt.Errorf("failed to create HTTP request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return zero, 0, fmt.Errorf("failed to send HTTP request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return zero, 0, fmt.Errorf("embedding service returned status %d: %s", resp.StatusCode, string(body))
	}

	var embeddingResp embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&embeddingResp); err != nil {
		return zero, 0, fmt.Errorf("failed to decode embedding response: %v", err)
	}

	if len(embeddingResp.Data) == 0 {
		return zero, 0, fmt.Errorf("no embedding data received")
	}

	return pgvector.NewVector(embeddingResp.Data[0].Embedding), embeddingResp.Usage.TotalTokens, nil
}
