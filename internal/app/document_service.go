package app

import (
	"context"
	"errors"
	"strings"

	"hrassist/internal/ingest"
	"hrassist/internal/model"
	"hrassist/internal/repository"
)

var ErrDocumentNotFound = errors.New("document not found")

type IngestJobPublisher interface {
	PublishIngestJob(ctx context.Context, job ingest.Job) error
}

// DocumentService manages the document rows and keeps the vector index in
// step with them: writes enqueue a background ingest job, deletes de-index.
type DocumentService struct {
	docRepo   *repository.DocumentRepository
	pipeline  *ingest.Pipeline
	publisher IngestJobPublisher
}

func NewDocumentService(docRepo *repository.DocumentRepository, pipeline *ingest.Pipeline, publisher IngestJobPublisher) *DocumentService {
	return &DocumentService{
		docRepo:   docRepo,
		pipeline:  pipeline,
		publisher: publisher,
	}
}

type CreateDocumentInput struct {
	Namespace  string
	Title      string
	Content    string
	SourceType string
	Visibility string
}

// CreateDocument persists the document and schedules its indexing. When no
// broker is configured it falls back to indexing inline.
func (s *DocumentService) CreateDocument(ctx context.Context, input CreateDocumentInput) (*model.Document, error) {
	if input.Namespace == "" || strings.TrimSpace(input.Content) == "" {
		return nil, ErrInvalidRequest
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = "Untitled"
	}
	visibility := input.Visibility
	switch visibility {
	case model.VisibilityPublic, model.VisibilityInternal, model.VisibilityPrivate:
	case "":
		visibility = model.VisibilityInternal
	default:
		return nil, ErrInvalidRequest
	}
	sourceType := input.SourceType
	if sourceType == "" {
		sourceType = "text"
	}

	doc := &model.Document{
		Namespace:  input.Namespace,
		Title:      title,
		Content:    input.Content,
		SourceType: sourceType,
		Visibility: visibility,
	}
	if err := s.docRepo.Create(doc); err != nil {
		return nil, err
	}

	if s.publisher != nil {
		if err := s.publisher.PublishIngestJob(ctx, ingest.Job{Namespace: doc.Namespace, DocumentID: doc.ID}); err != nil {
			return nil, err
		}
		return doc, nil
	}
	if _, err := s.pipeline.Ingest(ctx, *doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *DocumentService) ListDocuments(namespace string) ([]model.Document, error) {
	if namespace == "" {
		return nil, ErrInvalidRequest
	}
	return s.docRepo.ListByNamespace(namespace)
}

// DeleteDocument removes the document row and all of its vectors.
func (s *DocumentService) DeleteDocument(ctx context.Context, namespace string, id uint) error {
	if namespace == "" || id == 0 {
		return ErrInvalidRequest
	}
	doc, err := s.docRepo.GetByIDAndNamespace(id, namespace)
	if err != nil {
		return err
	}
	if doc == nil {
		return ErrDocumentNotFound
	}
	if err := s.pipeline.DeIndex(ctx, namespace, id); err != nil {
		return err
	}
	return s.docRepo.DeleteByIDAndNamespace(id, namespace)
}

// IngestDocument indexes one document synchronously. Used by the background
// worker and by the reindex admin endpoint.
func (s *DocumentService) IngestDocument(ctx context.Context, namespace string, id uint) (*ingest.Result, error) {
	if namespace == "" || id == 0 {
		return nil, ErrInvalidRequest
	}
	doc, err := s.docRepo.GetByIDAndNamespace(id, namespace)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrDocumentNotFound
	}
	return s.pipeline.Ingest(ctx, *doc)
}
