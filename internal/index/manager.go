// Package index owns the lifecycle of namespace-scoped vector indexes. It is
// the only component that talks to the vector store's control plane.
package index

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"hrassist/internal/vectorstore"
)

// ErrDimensionConflict means an index already exists with a different
// dimension than configured. The existing index is left untouched.
var ErrDimensionConflict = errors.New("index dimension conflict")

// UpsertBatchError reports which batch indices failed during a batched
// upsert. Batches submitted before and after a failed one remain committed;
// the caller retries only the listed indices.
type UpsertBatchError struct {
	FailedBatches []int
	Causes        []error
}

func (e *UpsertBatchError) Error() string {
	parts := make([]string, len(e.FailedBatches))
	for i, b := range e.FailedBatches {
		parts[i] = fmt.Sprintf("%d", b)
	}
	return fmt.Sprintf("upsert failed for batches [%s]: %v", strings.Join(parts, " "), errors.Join(e.Causes...))
}

func (e *UpsertBatchError) Unwrap() []error { return e.Causes }

type Config struct {
	Prefix    string
	Dimension int
	Metric    string
	BatchSize int
}

type Manager struct {
	store vectorstore.Store
	cfg   Config

	mu      sync.Mutex
	ensured map[string]bool
}

func NewManager(store vectorstore.Store, cfg Config) *Manager {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Metric == "" {
		cfg.Metric = "cosine"
	}
	return &Manager{
		store:   store,
		cfg:     cfg,
		ensured: make(map[string]bool),
	}
}

// IndexName maps a namespace to its physical index name.
func (m *Manager) IndexName(namespace string) string {
	return m.cfg.Prefix + "-" + namespace
}

func (m *Manager) BatchSize() int { return m.cfg.BatchSize }

// NumBatches returns how many upsert batches n records partition into.
func (m *Manager) NumBatches(n int) int {
	if n <= 0 {
		return 0
	}
	return (n + m.cfg.BatchSize - 1) / m.cfg.BatchSize
}

// EnsureIndex creates the namespace's index if absent. It is idempotent: a
// matching existing index is a no-op, and an existing index with a different
// dimension fails with ErrDimensionConflict without touching it.
func (m *Manager) EnsureIndex(ctx context.Context, namespace string) error {
	m.mu.Lock()
	if m.ensured[namespace] {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	name := m.IndexName(namespace)
	stats, err := m.store.DescribeIndexStats(ctx, name)
	switch {
	case err == nil:
		if stats.Dimension != m.cfg.Dimension {
			return fmt.Errorf("index %s has dimension %d, want %d: %w",
				name, stats.Dimension, m.cfg.Dimension, ErrDimensionConflict)
		}
	case errors.Is(err, vectorstore.ErrIndexNotFound):
		if createErr := m.store.CreateIndex(ctx, name, m.cfg.Dimension, m.cfg.Metric); createErr != nil {
			// A concurrent first ingest may have created the index between
			// the describe and the create. Re-describe: a matching index
			// means we lost the race, not that ensure failed.
			stats, describeErr := m.store.DescribeIndexStats(ctx, name)
			if describeErr != nil {
				return fmt.Errorf("create index %s failed: %w", name, createErr)
			}
			if stats.Dimension != m.cfg.Dimension {
				return fmt.Errorf("index %s has dimension %d, want %d: %w",
					name, stats.Dimension, m.cfg.Dimension, ErrDimensionConflict)
			}
		}
	default:
		return fmt.Errorf("describe index %s failed: %w", name, err)
	}

	m.mu.Lock()
	m.ensured[namespace] = true
	m.mu.Unlock()
	return nil
}

func (m *Manager) IndexExists(ctx context.Context, namespace string) (bool, error) {
	_, err := m.store.DescribeIndexStats(ctx, m.IndexName(namespace))
	if errors.Is(err, vectorstore.ErrIndexNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// HasVectors reports whether the namespace's index holds any records. An
// absent index counts as empty, so retrieval can short-circuit instead of
// issuing a similarity query that cannot match anything.
func (m *Manager) HasVectors(ctx context.Context, namespace string) (bool, error) {
	stats, err := m.store.DescribeIndexStats(ctx, m.IndexName(namespace))
	if errors.Is(err, vectorstore.ErrIndexNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return stats.VectorCount > 0, nil
}

// ResetIndex deletes and recreates the namespace's index. Not safe against
// concurrent writers: callers must serialize resets against ingestion for
// the namespace.
func (m *Manager) ResetIndex(ctx context.Context, namespace string) error {
	name := m.IndexName(namespace)

	m.mu.Lock()
	delete(m.ensured, namespace)
	m.mu.Unlock()

	if err := m.store.DeleteIndex(ctx, name); err != nil && !errors.Is(err, vectorstore.ErrIndexNotFound) {
		return fmt.Errorf("delete index %s failed: %w", name, err)
	}
	if err := m.store.CreateIndex(ctx, name, m.cfg.Dimension, m.cfg.Metric); err != nil {
		return fmt.Errorf("recreate index %s failed: %w", name, err)
	}

	m.mu.Lock()
	m.ensured[namespace] = true
	m.mu.Unlock()
	return nil
}

// Upsert writes all records in sequential batches of BatchSize. On partial
// failure the error is a *UpsertBatchError listing the failed batch indices;
// successfully submitted batches stay committed.
func (m *Manager) Upsert(ctx context.Context, namespace string, records []vectorstore.Record) error {
	return m.UpsertBatches(ctx, namespace, records, nil)
}

// UpsertBatches submits only the given batch indices of records, where
// batches partition the full record slice in BatchSize steps. A nil batches
// slice means all of them. Used by the ingestion pipeline to resubmit just
// the batches a previous run reported as failed.
func (m *Manager) UpsertBatches(ctx context.Context, namespace string, records []vectorstore.Record, batches []int) error {
	if len(records) == 0 {
		return nil
	}
	total := m.NumBatches(len(records))
	if batches == nil {
		batches = make([]int, total)
		for i := range batches {
			batches[i] = i
		}
	}
	sort.Ints(batches)

	name := m.IndexName(namespace)
	var failed []int
	var causes []error
	for _, b := range batches {
		if b < 0 || b >= total {
			continue
		}
		start := b * m.cfg.BatchSize
		end := start + m.cfg.BatchSize
		if end > len(records) {
			end = len(records)
		}
		if err := m.store.Upsert(ctx, name, records[start:end]); err != nil {
			failed = append(failed, b)
			causes = append(causes, fmt.Errorf("batch %d: %w", b, err))
		}
	}
	if len(failed) > 0 {
		return &UpsertBatchError{FailedBatches: failed, Causes: causes}
	}
	return nil
}

func (m *Manager) Query(ctx context.Context, namespace string, vector []float32, topK int, filter map[string]string) ([]vectorstore.Match, error) {
	matches, err := m.store.Query(ctx, m.IndexName(namespace), vector, topK, filter)
	if err != nil {
		return nil, fmt.Errorf("query index failed: %w", err)
	}
	return matches, nil
}

// DeleteVectors removes the given vector ids from the namespace's index.
func (m *Manager) DeleteVectors(ctx context.Context, namespace string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := m.store.DeleteVectors(ctx, m.IndexName(namespace), ids); err != nil {
		return fmt.Errorf("delete vectors failed: %w", err)
	}
	return nil
}

// Stats exposes the raw index stats for the admin surface.
func (m *Manager) Stats(ctx context.Context, namespace string) (vectorstore.IndexStats, error) {
	return m.store.DescribeIndexStats(ctx, m.IndexName(namespace))
}
