// Package qdrant is a REST client for Qdrant implementing the
// vectorstore.Store contract. One Qdrant collection backs one index.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"hrassist/internal/vectorstore"
)

type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

type Store struct {
	url    string
	apiKey string
	client *http.Client
}

func New(cfg Config) *Store {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Store{
		url:    cfg.URL,
		apiKey: cfg.APIKey,
		client: &http.Client{Timeout: timeout},
	}
}

func (s *Store) CreateIndex(ctx context.Context, name string, dimension int, metric string) error {
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": qdrantDistance(metric),
		},
	}
	return s.do(ctx, http.MethodPut, fmt.Sprintf("/collections/%s", name), body, nil)
}

func (s *Store) DeleteIndex(ctx context.Context, name string) error {
	return s.do(ctx, http.MethodDelete, fmt.Sprintf("/collections/%s", name), nil, nil)
}

func (s *Store) ListIndexes(ctx context.Context) ([]string, error) {
	var resp struct {
		Result struct {
			Collections []struct {
				Name string `json:"name"`
			} `json:"collections"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodGet, "/collections", nil, &resp); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(resp.Result.Collections))
	for _, c := range resp.Result.Collections {
		names = append(names, c.Name)
	}
	return names, nil
}

func (s *Store) DescribeIndexStats(ctx context.Context, name string) (vectorstore.IndexStats, error) {
	var resp struct {
		Result struct {
			PointsCount int64 `json:"points_count"`
			Config      struct {
				Params struct {
					Vectors struct {
						Size     int    `json:"size"`
						Distance string `json:"distance"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	err := s.do(ctx, http.MethodGet, fmt.Sprintf("/collections/%s", name), nil, &resp)
	if err != nil {
		return vectorstore.IndexStats{}, err
	}
	return vectorstore.IndexStats{
		Dimension:   resp.Result.Config.Params.Vectors.Size,
		Metric:      metricName(resp.Result.Config.Params.Vectors.Distance),
		VectorCount: resp.Result.PointsCount,
	}, nil
}

func (s *Store) Upsert(ctx context.Context, name string, records []vectorstore.Record) error {
	if len(records) == 0 {
		return nil
	}
	points := make([]map[string]any, len(records))
	for i, r := range records {
		points[i] = map[string]any{
			"id":      r.ID,
			"vector":  r.Values,
			"payload": r.Metadata,
		}
	}
	body := map[string]any{"points": points}
	return s.do(ctx, http.MethodPut, fmt.Sprintf("/collections/%s/points?wait=true", name), body, nil)
}

func (s *Store) Query(ctx context.Context, name string, vector []float32, topK int, filter map[string]string) ([]vectorstore.Match, error) {
	if topK <= 0 {
		topK = 5
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	if len(filter) > 0 {
		must := make([]map[string]any, 0, len(filter))
		for key, value := range filter {
			must = append(must, map[string]any{
				"key":   key,
				"match": map[string]any{"value": value},
			})
		}
		req["filter"] = map[string]any{"must": must}
	}

	var resp struct {
		Result []struct {
			ID      string               `json:"id"`
			Score   float64              `json:"score"`
			Payload vectorstore.Metadata `json:"payload"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/search", name), req, &resp); err != nil {
		return nil, err
	}
	matches := make([]vectorstore.Match, 0, len(resp.Result))
	for _, r := range resp.Result {
		matches = append(matches, vectorstore.Match{
			ID:       r.ID,
			Score:    r.Score,
			Metadata: r.Payload,
		})
	}
	return matches, nil
}

func (s *Store) DeleteVectors(ctx context.Context, name string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	body := map[string]any{"points": ids}
	return s.do(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/delete?wait=true", name), body, nil)
}

func (s *Store) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal qdrant request failed: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.url+path, reader)
	if err != nil {
		return fmt.Errorf("build qdrant request failed: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("qdrant %s %s: %w", method, path, vectorstore.ErrIndexNotFound)
	}
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("qdrant %s %s status %d: %s", method, path, resp.StatusCode, string(raw))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode qdrant response failed: %w", err)
		}
	}
	return nil
}

func qdrantDistance(metric string) string {
	switch metric {
	case "dot":
		return "Dot"
	case "euclidean":
		return "Euclid"
	default:
		return "Cosine"
	}
}

func metricName(distance string) string {
	switch distance {
	case "Dot":
		return "dot"
	case "Euclid":
		return "euclidean"
	default:
		return "cosine"
	}
}
