package model

import (
	"encoding/json"
	"time"
)

// IngestState remembers what the ingestion pipeline last wrote for a
// document: the content hash (for no-op skips), the chunk count (so stale
// trailing vectors can be deleted when a document shrinks), and any batch
// indices whose upsert failed (so a re-run resubmits only those).
type IngestState struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Namespace     string    `gorm:"size:64;not null;uniqueIndex:idx_ns_doc" json:"namespace"`
	DocumentID    uint      `gorm:"not null;uniqueIndex:idx_ns_doc" json:"document_id"`
	ContentHash   string    `gorm:"size:64;not null" json:"content_hash"`
	ChunkCount    int       `gorm:"not null" json:"chunk_count"`
	FailedBatches string    `gorm:"type:text" json:"-"` // JSON array of int
	UpdatedAt     time.Time `json:"updated_at"`
}

// FailedBatchList returns the parsed failed batch indices; empty on parse error.
func (s *IngestState) FailedBatchList() []int {
	if s.FailedBatches == "" {
		return nil
	}
	var v []int
	_ = json.Unmarshal([]byte(s.FailedBatches), &v)
	return v
}

// SetFailedBatches stores the failed batch indices as JSON.
func (s *IngestState) SetFailedBatches(batches []int) {
	if len(batches) == 0 {
		s.FailedBatches = ""
		return
	}
	b, _ := json.Marshal(batches)
	s.FailedBatches = string(b)
}
