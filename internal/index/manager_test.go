package index

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hrassist/internal/vectorstore"
	"hrassist/internal/vectorstore/memory"
)

func newTestManager(batchSize int) (*Manager, *memory.Store) {
	store := memory.New()
	manager := NewManager(store, Config{
		Prefix:    "test-docs",
		Dimension: 3,
		Metric:    "cosine",
		BatchSize: batchSize,
	})
	return manager, store
}

func makeRecords(n int) []vectorstore.Record {
	records := make([]vectorstore.Record, n)
	for i := range records {
		records[i] = vectorstore.Record{
			ID:     fmt.Sprintf("vec-%d", i),
			Values: []float32{1, 0, float32(i)},
			Metadata: vectorstore.Metadata{
				DocumentID: 1,
				Ordinal:    i,
				Namespace:  "acme",
				Visibility: "internal",
			},
		}
	}
	return records
}

func TestIndexName(t *testing.T) {
	manager, _ := newTestManager(10)
	assert.Equal(t, "test-docs-acme", manager.IndexName("acme"))
}

func TestEnsureIndex_Idempotent(t *testing.T) {
	ctx := context.Background()
	manager, store := newTestManager(10)

	require.NoError(t, manager.EnsureIndex(ctx, "acme"))
	require.NoError(t, manager.EnsureIndex(ctx, "acme"))

	stats, err := store.DescribeIndexStats(ctx, "test-docs-acme")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Dimension)
	assert.Equal(t, "cosine", stats.Metric)
}

func TestEnsureIndex_DimensionConflictLeavesIndexUntouched(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.CreateIndex(ctx, "test-docs-acme", 8, "cosine"))
	require.NoError(t, store.Upsert(ctx, "test-docs-acme", []vectorstore.Record{
		{ID: "existing", Values: []float32{1, 2, 3, 4, 5, 6, 7, 8}},
	}))

	manager := NewManager(store, Config{Prefix: "test-docs", Dimension: 3, Metric: "cosine", BatchSize: 10})
	err := manager.EnsureIndex(ctx, "acme")
	require.ErrorIs(t, err, ErrDimensionConflict)

	stats, err := store.DescribeIndexStats(ctx, "test-docs-acme")
	require.NoError(t, err)
	assert.Equal(t, 8, stats.Dimension)
	assert.Equal(t, int64(1), stats.VectorCount)
}

// racedStore simulates a concurrent first ingest: the initial describe sees
// no index, and by the time create runs another writer has made one.
type racedStore struct {
	vectorstore.Store
	otherDimension int
	describes      int
}

func (s *racedStore) DescribeIndexStats(ctx context.Context, name string) (vectorstore.IndexStats, error) {
	s.describes++
	if s.describes == 1 {
		return vectorstore.IndexStats{}, vectorstore.ErrIndexNotFound
	}
	return s.Store.DescribeIndexStats(ctx, name)
}

func (s *racedStore) CreateIndex(ctx context.Context, name string, dimension int, metric string) error {
	_ = s.Store.CreateIndex(ctx, name, s.otherDimension, metric)
	return errors.New("collection already exists")
}

func TestEnsureIndex_LostCreateRaceWithMatchingIndex(t *testing.T) {
	ctx := context.Background()
	store := &racedStore{Store: memory.New(), otherDimension: 3}
	manager := NewManager(store, Config{Prefix: "test-docs", Dimension: 3, Metric: "cosine", BatchSize: 10})

	require.NoError(t, manager.EnsureIndex(ctx, "acme"))

	stats, err := manager.Stats(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Dimension)
}

func TestEnsureIndex_LostCreateRaceWithConflictingIndex(t *testing.T) {
	ctx := context.Background()
	store := &racedStore{Store: memory.New(), otherDimension: 8}
	manager := NewManager(store, Config{Prefix: "test-docs", Dimension: 3, Metric: "cosine", BatchSize: 10})

	err := manager.EnsureIndex(ctx, "acme")
	require.ErrorIs(t, err, ErrDimensionConflict)
}

func TestHasVectors(t *testing.T) {
	ctx := context.Background()
	manager, _ := newTestManager(10)

	has, err := manager.HasVectors(ctx, "acme")
	require.NoError(t, err)
	assert.False(t, has, "absent index counts as empty")

	require.NoError(t, manager.EnsureIndex(ctx, "acme"))
	has, err = manager.HasVectors(ctx, "acme")
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, manager.Upsert(ctx, "acme", makeRecords(2)))
	has, err = manager.HasVectors(ctx, "acme")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestResetIndex(t *testing.T) {
	ctx := context.Background()
	manager, _ := newTestManager(10)

	require.NoError(t, manager.EnsureIndex(ctx, "acme"))
	require.NoError(t, manager.Upsert(ctx, "acme", makeRecords(4)))

	require.NoError(t, manager.ResetIndex(ctx, "acme"))

	stats, err := manager.Stats(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.VectorCount)
	assert.Equal(t, 3, stats.Dimension)
}

func TestNumBatches(t *testing.T) {
	manager, _ := newTestManager(10)
	assert.Equal(t, 0, manager.NumBatches(0))
	assert.Equal(t, 1, manager.NumBatches(1))
	assert.Equal(t, 1, manager.NumBatches(10))
	assert.Equal(t, 2, manager.NumBatches(11))
	assert.Equal(t, 3, manager.NumBatches(25))
}

func TestUpsert_AllBatches(t *testing.T) {
	ctx := context.Background()
	manager, _ := newTestManager(5)

	require.NoError(t, manager.EnsureIndex(ctx, "acme"))
	require.NoError(t, manager.Upsert(ctx, "acme", makeRecords(12)))

	stats, err := manager.Stats(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, int64(12), stats.VectorCount)
}

func TestUpsertBatches_OnlyListedBatchesSubmitted(t *testing.T) {
	ctx := context.Background()
	manager, _ := newTestManager(5)

	require.NoError(t, manager.EnsureIndex(ctx, "acme"))
	require.NoError(t, manager.UpsertBatches(ctx, "acme", makeRecords(12), []int{1}))

	stats, err := manager.Stats(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, int64(5), stats.VectorCount)
}

// failingStore wraps the memory store and fails Upsert for chosen batches.
type failingStore struct {
	vectorstore.Store
	calls     int
	failCalls map[int]bool
}

func (f *failingStore) Upsert(ctx context.Context, name string, records []vectorstore.Record) error {
	call := f.calls
	f.calls++
	if f.failCalls[call] {
		return errors.New("upstream unavailable")
	}
	return f.Store.Upsert(ctx, name, records)
}

func TestUpsert_PartialFailureReportsBatches(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{Store: memory.New(), failCalls: map[int]bool{1: true}}
	manager := NewManager(store, Config{Prefix: "test-docs", Dimension: 3, Metric: "cosine", BatchSize: 5})

	require.NoError(t, manager.EnsureIndex(ctx, "acme"))

	err := manager.Upsert(ctx, "acme", makeRecords(12))
	var batchErr *UpsertBatchError
	require.ErrorAs(t, err, &batchErr)
	assert.Equal(t, []int{1}, batchErr.FailedBatches)

	// Batches before and after the failed one stay committed.
	stats, err := manager.Stats(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, int64(7), stats.VectorCount)
}

func TestDeleteVectors(t *testing.T) {
	ctx := context.Background()
	manager, _ := newTestManager(10)

	require.NoError(t, manager.EnsureIndex(ctx, "acme"))
	require.NoError(t, manager.Upsert(ctx, "acme", makeRecords(3)))
	require.NoError(t, manager.DeleteVectors(ctx, "acme", []string{"vec-1", "vec-2"}))

	stats, err := manager.Stats(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.VectorCount)
}
