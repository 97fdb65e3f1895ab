// Package retrieve answers "which passages are relevant to this question"
// against the vector index.
package retrieve

import (
	"context"
	"fmt"
	"sort"

	"hrassist/internal/access"
	"hrassist/internal/index"
)

// Passage is a ranked retrieval hit with its source attribution.
type Passage struct {
	VectorID   string  `json:"vector_id"`
	DocumentID uint    `json:"document_id"`
	Ordinal    int     `json:"ordinal"`
	Title      string  `json:"title"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
}

// Embedder is the slice of the embedding client the retriever needs.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Config struct {
	TopK           int
	ScoreThreshold float64
}

type Retriever struct {
	embedder Embedder
	manager  *index.Manager
	cfg      Config
}

func NewRetriever(embedder Embedder, manager *index.Manager, cfg Config) *Retriever {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	return &Retriever{embedder: embedder, manager: manager, cfg: cfg}
}

// Retrieve embeds the question and returns the top passages the requester is
// allowed to see, ordered by descending score with a stable ingestion-order
// tie-break. An empty index short-circuits to an empty result before any
// embedding or similarity call. Passages below the score threshold and
// passages whose visibility excludes the requester never appear, regardless
// of rank.
func (r *Retriever) Retrieve(ctx context.Context, namespace, question string, topK int, gate access.Gate) ([]Passage, error) {
	if topK <= 0 {
		topK = r.cfg.TopK
	}

	hasVectors, err := r.manager.HasVectors(ctx, namespace)
	if err != nil {
		return nil, fmt.Errorf("check index state failed: %w", err)
	}
	if !hasVectors {
		return nil, nil
	}

	vector, err := r.embedder.Embed(ctx, question)
	if err != nil {
		return nil, err
	}

	matches, err := r.manager.Query(ctx, namespace, vector, topK, nil)
	if err != nil {
		return nil, err
	}

	passages := make([]Passage, 0, len(matches))
	for _, m := range matches {
		if m.Score < r.cfg.ScoreThreshold {
			continue
		}
		if gate != nil && !gate.CanAccess(m.Metadata.Namespace, m.Metadata.Visibility) {
			continue
		}
		passages = append(passages, Passage{
			VectorID:   m.ID,
			DocumentID: m.Metadata.DocumentID,
			Ordinal:    m.Metadata.Ordinal,
			Title:      m.Metadata.Title,
			Text:       m.Metadata.Text,
			Score:      m.Score,
		})
	}

	// Stores return ranked matches already; the stable re-sort keeps their
	// ingestion-order tie-break intact.
	sort.SliceStable(passages, func(i, j int) bool {
		return passages[i].Score > passages[j].Score
	})
	return passages, nil
}
