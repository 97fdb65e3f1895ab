package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hrassist/internal/vectorstore"
)

func record(id string, values []float32, visibility string) vectorstore.Record {
	return vectorstore.Record{
		ID:     id,
		Values: values,
		Metadata: vectorstore.Metadata{
			Namespace:  "acme",
			Visibility: visibility,
			Text:       "text " + id,
		},
	}
}

func TestDescribeIndexStats_UnknownIndex(t *testing.T) {
	store := New()
	_, err := store.DescribeIndexStats(context.Background(), "missing")
	require.ErrorIs(t, err, vectorstore.ErrIndexNotFound)
}

func TestUpsert_OverwritesByID(t *testing.T) {
	ctx := context.Background()
	store := New()
	require.NoError(t, store.CreateIndex(ctx, "idx", 2, "cosine"))

	require.NoError(t, store.Upsert(ctx, "idx", []vectorstore.Record{record("a", []float32{1, 0}, "internal")}))
	require.NoError(t, store.Upsert(ctx, "idx", []vectorstore.Record{record("a", []float32{0, 1}, "internal")}))

	stats, err := store.DescribeIndexStats(ctx, "idx")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.VectorCount)
}

func TestUpsert_DimensionChecked(t *testing.T) {
	ctx := context.Background()
	store := New()
	require.NoError(t, store.CreateIndex(ctx, "idx", 2, "cosine"))

	err := store.Upsert(ctx, "idx", []vectorstore.Record{record("a", []float32{1, 0, 0}, "internal")})
	require.Error(t, err)
}

func TestQuery_RankedWithInsertionOrderTieBreak(t *testing.T) {
	ctx := context.Background()
	store := New()
	require.NoError(t, store.CreateIndex(ctx, "idx", 2, "cosine"))

	// b and c score identically against the query; b was inserted first.
	require.NoError(t, store.Upsert(ctx, "idx", []vectorstore.Record{
		record("a", []float32{0, 1}, "internal"),
		record("b", []float32{1, 0}, "internal"),
		record("c", []float32{2, 0}, "internal"),
	}))

	matches, err := store.Query(ctx, "idx", []float32{1, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, matches, 3)
	assert.Equal(t, "b", matches[0].ID)
	assert.Equal(t, "c", matches[1].ID)
	assert.Equal(t, "a", matches[2].ID)
}

func TestQuery_Filter(t *testing.T) {
	ctx := context.Background()
	store := New()
	require.NoError(t, store.CreateIndex(ctx, "idx", 2, "cosine"))
	require.NoError(t, store.Upsert(ctx, "idx", []vectorstore.Record{
		record("pub", []float32{1, 0}, "public"),
		record("priv", []float32{1, 0}, "private"),
	}))

	matches, err := store.Query(ctx, "idx", []float32{1, 0}, 10, map[string]string{"visibility": "public"})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "pub", matches[0].ID)
}

func TestQuery_TopK(t *testing.T) {
	ctx := context.Background()
	store := New()
	require.NoError(t, store.CreateIndex(ctx, "idx", 2, "cosine"))
	require.NoError(t, store.Upsert(ctx, "idx", []vectorstore.Record{
		record("a", []float32{1, 0}, "internal"),
		record("b", []float32{1, 1}, "internal"),
		record("c", []float32{0, 1}, "internal"),
	}))

	matches, err := store.Query(ctx, "idx", []float32{1, 0}, 2, nil)
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}

func TestDeleteVectors(t *testing.T) {
	ctx := context.Background()
	store := New()
	require.NoError(t, store.CreateIndex(ctx, "idx", 2, "cosine"))
	require.NoError(t, store.Upsert(ctx, "idx", []vectorstore.Record{
		record("a", []float32{1, 0}, "internal"),
		record("b", []float32{0, 1}, "internal"),
	}))

	require.NoError(t, store.DeleteVectors(ctx, "idx", []string{"a", "unknown"}))

	stats, err := store.DescribeIndexStats(ctx, "idx")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.VectorCount)
}

func TestListIndexes(t *testing.T) {
	ctx := context.Background()
	store := New()
	require.NoError(t, store.CreateIndex(ctx, "beta", 2, "cosine"))
	require.NoError(t, store.CreateIndex(ctx, "alpha", 2, "cosine"))

	names, err := store.ListIndexes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, names)
}
