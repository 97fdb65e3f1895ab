// Package memory is an exact-search in-memory vectorstore.Store used by
// tests and local development.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"hrassist/internal/vectorstore"
)

type collection struct {
	dimension int
	metric    string
	records   map[string]vectorstore.Record
	order     map[string]int // insertion sequence, for stable tie-breaks
	seq       int
}

type Store struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

func New() *Store {
	return &Store{collections: make(map[string]*collection)}
}

func (s *Store) CreateIndex(_ context.Context, name string, dimension int, metric string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[name]; ok {
		return nil
	}
	s.collections[name] = &collection{
		dimension: dimension,
		metric:    metric,
		records:   make(map[string]vectorstore.Record),
		order:     make(map[string]int),
	}
	return nil
}

func (s *Store) DeleteIndex(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections, name)
	return nil
}

func (s *Store) ListIndexes(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) DescribeIndexStats(_ context.Context, name string) (vectorstore.IndexStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	col, ok := s.collections[name]
	if !ok {
		return vectorstore.IndexStats{}, vectorstore.ErrIndexNotFound
	}
	return vectorstore.IndexStats{
		Dimension:   col.dimension,
		Metric:      col.metric,
		VectorCount: int64(len(col.records)),
	}, nil
}

func (s *Store) Upsert(_ context.Context, name string, records []vectorstore.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	col, ok := s.collections[name]
	if !ok {
		return vectorstore.ErrIndexNotFound
	}
	for _, r := range records {
		if len(r.Values) != col.dimension {
			return fmt.Errorf("record %s has dimension %d, index %s has %d", r.ID, len(r.Values), name, col.dimension)
		}
		if _, exists := col.order[r.ID]; !exists {
			col.order[r.ID] = col.seq
			col.seq++
		}
		col.records[r.ID] = r
	}
	return nil
}

func (s *Store) Query(_ context.Context, name string, vector []float32, topK int, filter map[string]string) ([]vectorstore.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	col, ok := s.collections[name]
	if !ok {
		return nil, vectorstore.ErrIndexNotFound
	}
	if topK <= 0 {
		topK = 5
	}

	type scored struct {
		match vectorstore.Match
		seq   int
	}
	var hits []scored
	for id, r := range col.records {
		if !matchesFilter(r.Metadata, filter) {
			continue
		}
		hits = append(hits, scored{
			match: vectorstore.Match{
				ID:       id,
				Score:    cosineSimilarity(vector, r.Values),
				Metadata: r.Metadata,
			},
			seq: col.order[id],
		})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].match.Score != hits[j].match.Score {
			return hits[i].match.Score > hits[j].match.Score
		}
		return hits[i].seq < hits[j].seq
	})
	if topK < len(hits) {
		hits = hits[:topK]
	}
	matches := make([]vectorstore.Match, len(hits))
	for i, h := range hits {
		matches[i] = h.match
	}
	return matches, nil
}

func (s *Store) DeleteVectors(_ context.Context, name string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	col, ok := s.collections[name]
	if !ok {
		return vectorstore.ErrIndexNotFound
	}
	for _, id := range ids {
		delete(col.records, id)
		delete(col.order, id)
	}
	return nil
}

func matchesFilter(md vectorstore.Metadata, filter map[string]string) bool {
	for key, want := range filter {
		var got string
		switch key {
		case "namespace":
			got = md.Namespace
		case "visibility":
			got = md.Visibility
		case "title":
			got = md.Title
		default:
			return false
		}
		if got != want {
			return false
		}
	}
	return true
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA <= 0 || normB <= 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
