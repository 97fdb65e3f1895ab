package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrDimensionMismatch means the embedding model returned vectors of a
// different dimension than the index was configured for. This is a
// configuration defect, never retried.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// EmbeddingError marks a transient upstream embedding failure. Callers may
// retry with backoff.
type EmbeddingError struct {
	Err error
}

func (e *EmbeddingError) Error() string {
	return "embedding request failed: " + e.Err.Error()
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// EmbeddingConfig holds API settings for text embedding (OpenAI-compatible).
// Dimension is the expected output dimension; responses that disagree fail
// with ErrDimensionMismatch.
type EmbeddingConfig struct {
	BaseURL   string
	APIKey    string
	Model     string
	Dimension int
}

type EmbeddingClient struct {
	cfg        EmbeddingConfig
	httpClient *http.Client
}

func NewEmbeddingClient(cfg EmbeddingConfig) *EmbeddingClient {
	return &EmbeddingClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *EmbeddingClient) Dimension() int { return c.cfg.Dimension }

// Embed returns the embedding vector for a single text.
func (c *EmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch returns one vector per input text, order-preserving. Inputs must
// be non-blank; the API rejects empty strings and silently dropping them
// would break the text-to-vector correspondence.
func (c *EmbeddingClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, fmt.Errorf("embedding input %d is empty", i)
		}
	}

	reqBody := map[string]interface{}{
		"model": c.cfg.Model,
		"input": texts,
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request failed: %w", err)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/embeddings"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("build embedding request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &EmbeddingError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &EmbeddingError{Err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode >= 300 {
		return nil, &EmbeddingError{Err: fmt.Errorf("status %d: %s", resp.StatusCode, string(raw))}
	}

	var parsed struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, &EmbeddingError{Err: fmt.Errorf("parse json: %w", err)}
	}
	if len(parsed.Data) != len(texts) {
		return nil, &EmbeddingError{Err: fmt.Errorf("got %d embeddings for %d inputs", len(parsed.Data), len(texts))}
	}

	result := make([][]float32, len(texts))
	for _, item := range parsed.Data {
		if item.Index < 0 || item.Index >= len(texts) {
			return nil, &EmbeddingError{Err: fmt.Errorf("embedding index %d out of range", item.Index)}
		}
		if c.cfg.Dimension > 0 && len(item.Embedding) != c.cfg.Dimension {
			return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(item.Embedding), c.cfg.Dimension)
		}
		result[item.Index] = item.Embedding
	}
	for i := range result {
		if result[i] == nil {
			return nil, &EmbeddingError{Err: fmt.Errorf("missing embedding for input %d", i)}
		}
	}
	return result, nil
}
