package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"hrassist/internal/model"
)

type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Create(doc *model.Document) error {
	if err := r.db.Create(doc).Error; err != nil {
		return fmt.Errorf("create document failed: %w", err)
	}
	return nil
}

func (r *DocumentRepository) Update(doc *model.Document) error {
	if err := r.db.Save(doc).Error; err != nil {
		return fmt.Errorf("update document failed: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByIDAndNamespace(id uint, namespace string) (*model.Document, error) {
	var doc model.Document
	if err := r.db.Where("id = ? AND namespace = ?", id, namespace).First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get document failed: %w", err)
	}
	return &doc, nil
}

func (r *DocumentRepository) ListByNamespace(namespace string) ([]model.Document, error) {
	var list []model.Document
	if err := r.db.Where("namespace = ?", namespace).Order("created_at DESC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list documents failed: %w", err)
	}
	return list, nil
}

func (r *DocumentRepository) DeleteByIDAndNamespace(id uint, namespace string) error {
	if err := r.db.Where("id = ? AND namespace = ?", id, namespace).Delete(&model.Document{}).Error; err != nil {
		return fmt.Errorf("delete document failed: %w", err)
	}
	return nil
}
