// Package vectorstore defines the provider-agnostic contract the index
// manager drives. Any store exposing these operations can be swapped in
// behind the interface; the qdrant and memory subpackages are the two
// implementations shipped here.
package vectorstore

import (
	"context"
	"errors"
)

var ErrIndexNotFound = errors.New("index not found")

// Metadata travels with every vector and is returned verbatim on query hits.
type Metadata struct {
	DocumentID uint   `json:"document_id"`
	Ordinal    int    `json:"ordinal"`
	Title      string `json:"title"`
	Visibility string `json:"visibility"`
	Namespace  string `json:"namespace"`
	Text       string `json:"text"`
}

type Record struct {
	ID       string
	Values   []float32
	Metadata Metadata
}

type Match struct {
	ID       string
	Score    float64
	Metadata Metadata
}

type IndexStats struct {
	Dimension   int
	Metric      string
	VectorCount int64
}

// Store is the vector store contract: the control-plane operations plus the
// two data-plane writes. DeleteVectors is required so that re-ingesting a
// shrunken document can remove its stale trailing vectors.
type Store interface {
	CreateIndex(ctx context.Context, name string, dimension int, metric string) error
	DeleteIndex(ctx context.Context, name string) error
	ListIndexes(ctx context.Context) ([]string, error)
	DescribeIndexStats(ctx context.Context, name string) (IndexStats, error)
	Upsert(ctx context.Context, name string, records []Record) error
	Query(ctx context.Context, name string, vector []float32, topK int, filter map[string]string) ([]Match, error)
	DeleteVectors(ctx context.Context, name string, ids []string) error
}
