package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"hrassist/internal/model"
)

type IngestStateRepository struct {
	db *gorm.DB
}

func NewIngestStateRepository(db *gorm.DB) *IngestStateRepository {
	return &IngestStateRepository{db: db}
}

func (r *IngestStateRepository) Get(namespace string, documentID uint) (*model.IngestState, error) {
	var state model.IngestState
	if err := r.db.Where("namespace = ? AND document_id = ?", namespace, documentID).First(&state).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get ingest state failed: %w", err)
	}
	return &state, nil
}

func (r *IngestStateRepository) Save(state *model.IngestState) error {
	state.UpdatedAt = time.Now()
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "namespace"}, {Name: "document_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"content_hash", "chunk_count", "failed_batches", "updated_at"}),
	}).Create(state).Error
	if err != nil {
		return fmt.Errorf("save ingest state failed: %w", err)
	}
	return nil
}

func (r *IngestStateRepository) Delete(namespace string, documentID uint) error {
	if err := r.db.Where("namespace = ? AND document_id = ?", namespace, documentID).Delete(&model.IngestState{}).Error; err != nil {
		return fmt.Errorf("delete ingest state failed: %w", err)
	}
	return nil
}
