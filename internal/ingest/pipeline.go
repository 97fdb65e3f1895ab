// Package ingest turns a document into durably indexed vectors: chunk,
// embed, then batched upsert under deterministic ids so re-ingestion
// overwrites instead of duplicating.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"hrassist/internal/chunk"
	"hrassist/internal/index"
	"hrassist/internal/model"
	"hrassist/internal/vectorstore"
)

var ErrEmptyDocument = errors.New("document has no content to ingest")

// Embedder is the slice of the embedding client the pipeline needs.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// StateRepo persists per-document ingestion state.
type StateRepo interface {
	Get(namespace string, documentID uint) (*model.IngestState, error)
	Save(state *model.IngestState) error
	Delete(namespace string, documentID uint) error
}

// Result distinguishes written, skipped, and failed work so callers decide
// whether partial indexing is acceptable instead of getting a thrown error
// on partial success.
type Result struct {
	Written       int   `json:"written"`
	Skipped       bool  `json:"skipped"`
	ChunkCount    int   `json:"chunk_count"`
	FailedBatches []int `json:"failed_batches,omitempty"`
}

type Pipeline struct {
	splitter       *chunk.Splitter
	embedder       Embedder
	manager        *index.Manager
	states         StateRepo
	embedBatchSize int
}

func NewPipeline(splitter *chunk.Splitter, embedder Embedder, manager *index.Manager, states StateRepo, embedBatchSize int) *Pipeline {
	if embedBatchSize <= 0 {
		embedBatchSize = 10
	}
	return &Pipeline{
		splitter:       splitter,
		embedder:       embedder,
		manager:        manager,
		states:         states,
		embedBatchSize: embedBatchSize,
	}
}

// vectorIDSpace fixes the UUIDv5 namespace so ids derived from
// (documentID, ordinal) are stable across processes.
var vectorIDSpace = uuid.MustParse("8f0cba44-3fd1-4ab6-9a58-3a29e3a190cf")

// VectorID derives the deterministic vector id for a document chunk.
func VectorID(documentID uint, ordinal int) string {
	return uuid.NewSHA1(vectorIDSpace, []byte(fmt.Sprintf("%d:%d", documentID, ordinal))).String()
}

// ContentHash is the hash the pipeline keys its no-op skip on.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Ingest indexes one document. Unchanged content with no outstanding failed
// batches is a cheap no-op. Unchanged content with failed batches resubmits
// only those batches. Changed content re-upserts every chunk and deletes
// stale trailing vectors when the document shrank.
func (p *Pipeline) Ingest(ctx context.Context, doc model.Document) (*Result, error) {
	text := strings.TrimSpace(doc.Content)
	if text == "" {
		return nil, ErrEmptyDocument
	}
	hash := ContentHash(text)

	state, err := p.states.Get(doc.Namespace, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("load ingest state failed: %w", err)
	}

	if state != nil && state.ContentHash == hash {
		pending := state.FailedBatchList()
		if len(pending) == 0 {
			return &Result{Skipped: true, ChunkCount: state.ChunkCount}, nil
		}
		return p.resume(ctx, doc, state, pending)
	}

	chunks := p.splitter.Split(text)
	if len(chunks) == 0 {
		return nil, ErrEmptyDocument
	}

	records, err := p.buildRecords(ctx, doc, chunks, nil)
	if err != nil {
		return nil, err
	}

	if err := p.manager.EnsureIndex(ctx, doc.Namespace); err != nil {
		return nil, err
	}

	failed, err := p.upsert(ctx, doc.Namespace, records, nil)
	if err != nil {
		return nil, err
	}

	// The document shrank: remove the trailing vector ids the overwrite
	// did not cover.
	if state != nil && state.ChunkCount > len(chunks) {
		stale := make([]string, 0, state.ChunkCount-len(chunks))
		for ordinal := len(chunks); ordinal < state.ChunkCount; ordinal++ {
			stale = append(stale, VectorID(doc.ID, ordinal))
		}
		if err := p.manager.DeleteVectors(ctx, doc.Namespace, stale); err != nil {
			return nil, err
		}
	}

	if state == nil {
		state = &model.IngestState{Namespace: doc.Namespace, DocumentID: doc.ID}
	}
	state.ContentHash = hash
	state.ChunkCount = len(chunks)
	state.SetFailedBatches(failed)
	if err := p.states.Save(state); err != nil {
		return nil, fmt.Errorf("save ingest state failed: %w", err)
	}

	return &Result{
		Written:       len(records) - p.batchRecordCount(len(records), failed),
		ChunkCount:    len(chunks),
		FailedBatches: failed,
	}, nil
}

// resume resubmits only the batches a previous run reported as failed.
// Content is unchanged, so chunk boundaries and ids are identical; only the
// chunks inside failed batches are re-embedded.
func (p *Pipeline) resume(ctx context.Context, doc model.Document, state *model.IngestState, pending []int) (*Result, error) {
	chunks := p.splitter.Split(strings.TrimSpace(doc.Content))

	need := make(map[int]bool)
	batchSize := p.manager.BatchSize()
	for _, b := range pending {
		for i := b * batchSize; i < (b+1)*batchSize && i < len(chunks); i++ {
			need[i] = true
		}
	}

	records, err := p.buildRecords(ctx, doc, chunks, need)
	if err != nil {
		return nil, err
	}

	if err := p.manager.EnsureIndex(ctx, doc.Namespace); err != nil {
		return nil, err
	}

	failed, err := p.upsert(ctx, doc.Namespace, records, pending)
	if err != nil {
		return nil, err
	}

	state.SetFailedBatches(failed)
	if err := p.states.Save(state); err != nil {
		return nil, fmt.Errorf("save ingest state failed: %w", err)
	}

	resubmitted := p.batchRecordCount(len(records), pending)
	return &Result{
		Written:       resubmitted - p.batchRecordCount(len(records), failed),
		ChunkCount:    len(chunks),
		FailedBatches: failed,
	}, nil
}

// DeIndex removes every vector belonging to the document and clears its
// ingest state. Called when a document is deleted from the application.
func (p *Pipeline) DeIndex(ctx context.Context, namespace string, documentID uint) error {
	state, err := p.states.Get(namespace, documentID)
	if err != nil {
		return fmt.Errorf("load ingest state failed: %w", err)
	}
	if state == nil {
		return nil
	}
	ids := make([]string, 0, state.ChunkCount)
	for ordinal := 0; ordinal < state.ChunkCount; ordinal++ {
		ids = append(ids, VectorID(documentID, ordinal))
	}
	if err := p.manager.DeleteVectors(ctx, namespace, ids); err != nil {
		return err
	}
	return p.states.Delete(namespace, documentID)
}

// buildRecords embeds chunks and assembles vector records. When need is
// non-nil only those chunk indices are embedded; the rest stay zero-valued
// and must not be submitted by the caller.
func (p *Pipeline) buildRecords(ctx context.Context, doc model.Document, chunks []chunk.Chunk, need map[int]bool) ([]vectorstore.Record, error) {
	records := make([]vectorstore.Record, len(chunks))

	var texts []string
	var indices []int
	for i, c := range chunks {
		if need != nil && !need[i] {
			continue
		}
		texts = append(texts, c.Text)
		indices = append(indices, i)
	}

	var embeddings [][]float32
	for start := 0; start < len(texts); start += p.embedBatchSize {
		end := start + p.embedBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := p.embedder.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		embeddings = append(embeddings, batch...)
	}
	if len(embeddings) != len(texts) {
		return nil, errors.New("embedding count mismatch")
	}

	for n, i := range indices {
		c := chunks[i]
		records[i] = vectorstore.Record{
			ID:     VectorID(doc.ID, c.Ordinal),
			Values: embeddings[n],
			Metadata: vectorstore.Metadata{
				DocumentID: doc.ID,
				Ordinal:    c.Ordinal,
				Title:      doc.Title,
				Visibility: doc.Visibility,
				Namespace:  doc.Namespace,
				Text:       c.Text,
			},
		}
	}
	return records, nil
}

// upsert submits the requested batches and translates a partial failure into
// the failed-batch list; any other error propagates.
func (p *Pipeline) upsert(ctx context.Context, namespace string, records []vectorstore.Record, batches []int) ([]int, error) {
	err := p.manager.UpsertBatches(ctx, namespace, records, batches)
	if err == nil {
		return nil, nil
	}
	var batchErr *index.UpsertBatchError
	if errors.As(err, &batchErr) {
		return batchErr.FailedBatches, nil
	}
	return nil, err
}

// batchRecordCount sums how many records the given batch indices cover.
func (p *Pipeline) batchRecordCount(total int, batches []int) int {
	batchSize := p.manager.BatchSize()
	count := 0
	for _, b := range batches {
		start := b * batchSize
		if start >= total {
			continue
		}
		end := start + batchSize
		if end > total {
			end = total
		}
		count += end - start
	}
	return count
}
