package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hrassist/internal/chunk"
	"hrassist/internal/index"
	"hrassist/internal/model"
	"hrassist/internal/vectorstore"
	"hrassist/internal/vectorstore/memory"
)

// stubEmbedder returns fixed-dimension vectors and records every batch it is
// asked to embed.
type stubEmbedder struct {
	batches [][]string
}

func (e *stubEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	e.batches = append(e.batches, append([]string(nil), texts...))
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = []float32{float32(len(text)), 1, 0}
	}
	return out, nil
}

func (e *stubEmbedder) embeddedTexts() []string {
	var all []string
	for _, b := range e.batches {
		all = append(all, b...)
	}
	return all
}

type memStateRepo struct {
	states map[string]model.IngestState
}

func newMemStateRepo() *memStateRepo {
	return &memStateRepo{states: make(map[string]model.IngestState)}
}

func (r *memStateRepo) key(namespace string, documentID uint) string {
	return fmt.Sprintf("%s:%d", namespace, documentID)
}

func (r *memStateRepo) Get(namespace string, documentID uint) (*model.IngestState, error) {
	state, ok := r.states[r.key(namespace, documentID)]
	if !ok {
		return nil, nil
	}
	copied := state
	return &copied, nil
}

func (r *memStateRepo) Save(state *model.IngestState) error {
	r.states[r.key(state.Namespace, state.DocumentID)] = *state
	return nil
}

func (r *memStateRepo) Delete(namespace string, documentID uint) error {
	delete(r.states, r.key(namespace, documentID))
	return nil
}

// flakyStore fails Upsert for chosen call indices, otherwise delegates.
type flakyStore struct {
	vectorstore.Store
	calls     int
	failCalls map[int]bool
}

func (f *flakyStore) Upsert(ctx context.Context, name string, records []vectorstore.Record) error {
	call := f.calls
	f.calls++
	if f.failCalls[call] {
		return errors.New("upstream unavailable")
	}
	return f.Store.Upsert(ctx, name, records)
}

func newTestPipeline(t *testing.T, store vectorstore.Store) (*Pipeline, *stubEmbedder, *memStateRepo, *index.Manager) {
	t.Helper()
	splitter, err := chunk.NewSplitter(10, 0)
	require.NoError(t, err)
	manager := index.NewManager(store, index.Config{
		Prefix:    "test-docs",
		Dimension: 3,
		Metric:    "cosine",
		BatchSize: 2,
	})
	embedder := &stubEmbedder{}
	states := newMemStateRepo()
	return NewPipeline(splitter, embedder, manager, states, 2), embedder, states, manager
}

func testDoc(content string) model.Document {
	return model.Document{
		ID:         7,
		Namespace:  "acme",
		Title:      "Leave Policy",
		Content:    content,
		Visibility: model.VisibilityInternal,
	}
}

func TestVectorID_Deterministic(t *testing.T) {
	assert.Equal(t, VectorID(7, 0), VectorID(7, 0))
	assert.NotEqual(t, VectorID(7, 0), VectorID(7, 1))
	assert.NotEqual(t, VectorID(7, 0), VectorID(8, 0))
}

func TestIngest_EmptyDocument(t *testing.T) {
	pipeline, _, _, _ := newTestPipeline(t, memory.New())
	_, err := pipeline.Ingest(context.Background(), testDoc("   \n  "))
	require.ErrorIs(t, err, ErrEmptyDocument)
}

func TestIngest_WritesAllChunks(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	pipeline, _, states, manager := newTestPipeline(t, store)

	content := strings.Repeat("abcde", 12) // 60 chars, 6 chunks
	result, err := pipeline.Ingest(ctx, testDoc(content))
	require.NoError(t, err)
	assert.Equal(t, 6, result.Written)
	assert.Equal(t, 6, result.ChunkCount)
	assert.False(t, result.Skipped)
	assert.Empty(t, result.FailedBatches)

	stats, err := manager.Stats(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, int64(6), stats.VectorCount)

	state, err := states.Get("acme", 7)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, 6, state.ChunkCount)
	assert.Empty(t, state.FailedBatchList())
}

func TestIngest_UnchangedContentSkips(t *testing.T) {
	ctx := context.Background()
	pipeline, embedder, _, _ := newTestPipeline(t, memory.New())

	content := strings.Repeat("abcde", 12)
	_, err := pipeline.Ingest(ctx, testDoc(content))
	require.NoError(t, err)
	embedCallsAfterFirst := len(embedder.batches)

	result, err := pipeline.Ingest(ctx, testDoc(content))
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Equal(t, 6, result.ChunkCount)
	assert.Equal(t, embedCallsAfterFirst, len(embedder.batches), "skip must not embed anything")
}

func TestIngest_ReingestIsIdempotent(t *testing.T) {
	ctx := context.Background()
	pipeline, _, _, manager := newTestPipeline(t, memory.New())

	content := strings.Repeat("abcde", 12)
	_, err := pipeline.Ingest(ctx, testDoc(content))
	require.NoError(t, err)

	// Changed content of the same length overwrites in place.
	changed := strings.Repeat("vwxyz", 12)
	result, err := pipeline.Ingest(ctx, testDoc(changed))
	require.NoError(t, err)
	assert.False(t, result.Skipped)

	stats, err := manager.Stats(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, int64(6), stats.VectorCount, "re-ingest must overwrite, not duplicate")
}

func TestIngest_ShrunkDocumentDeletesStaleVectors(t *testing.T) {
	ctx := context.Background()
	pipeline, _, states, manager := newTestPipeline(t, memory.New())

	_, err := pipeline.Ingest(ctx, testDoc(strings.Repeat("abcde", 12))) // 6 chunks
	require.NoError(t, err)

	result, err := pipeline.Ingest(ctx, testDoc(strings.Repeat("vwxyz", 6))) // 3 chunks
	require.NoError(t, err)
	assert.Equal(t, 3, result.ChunkCount)

	stats, err := manager.Stats(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.VectorCount)

	state, err := states.Get("acme", 7)
	require.NoError(t, err)
	assert.Equal(t, 3, state.ChunkCount)
}

func TestIngest_PartialFailureAndResume(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{Store: memory.New(), failCalls: map[int]bool{1: true}}
	pipeline, embedder, states, manager := newTestPipeline(t, store)

	content := strings.Repeat("abcde", 12) // 6 chunks, 3 vector batches
	result, err := pipeline.Ingest(ctx, testDoc(content))
	require.NoError(t, err, "partial failure is reported in the result, not as an error")
	assert.Equal(t, []int{1}, result.FailedBatches)
	assert.Equal(t, 4, result.Written)

	state, err := states.Get("acme", 7)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, state.FailedBatchList())

	stats, err := manager.Stats(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.VectorCount, "committed batches stay committed")

	// Same content again: only the failed batch is re-embedded and resubmitted.
	embedder.batches = nil
	result, err = pipeline.Ingest(ctx, testDoc(content))
	require.NoError(t, err)
	assert.Empty(t, result.FailedBatches)
	assert.Equal(t, 2, result.Written)
	assert.Equal(t, []string{"abcde" + "abcde", "abcde" + "abcde"}, embedder.embeddedTexts())

	stats, err = manager.Stats(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, int64(6), stats.VectorCount)

	state, err = states.Get("acme", 7)
	require.NoError(t, err)
	assert.Empty(t, state.FailedBatchList())

	// And a third run is a pure no-op.
	result, err = pipeline.Ingest(ctx, testDoc(content))
	require.NoError(t, err)
	assert.True(t, result.Skipped)
}

func TestDeIndex(t *testing.T) {
	ctx := context.Background()
	pipeline, _, states, manager := newTestPipeline(t, memory.New())

	_, err := pipeline.Ingest(ctx, testDoc(strings.Repeat("abcde", 12)))
	require.NoError(t, err)

	require.NoError(t, pipeline.DeIndex(ctx, "acme", 7))

	stats, err := manager.Stats(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.VectorCount)

	state, err := states.Get("acme", 7)
	require.NoError(t, err)
	assert.Nil(t, state)

	// De-indexing an unknown document is a no-op.
	require.NoError(t, pipeline.DeIndex(ctx, "acme", 99))
}
