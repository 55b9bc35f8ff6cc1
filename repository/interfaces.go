package repository

import (
	"context"
	"errors"
	"time"

	"regadvisor-backend/models"

	"github.com/google/uuid"
)

var (
	// ErrDocumentNotFound indicates the requested document does not exist
	ErrDocumentNotFound = errors.New("document not found")

	// ErrStoreUnavailable indicates an infrastructure-level store failure
	ErrStoreUnavailable = errors.New("store unavailable")
)

// DocumentRepository handles persistence of documents
type DocumentRepository interface {
	Create(ctx context.Context, doc *models.Document) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error)
	List(ctx context.Context, filter models.DocumentFilter) ([]models.Document, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.DocumentStatus) error
	MarkError(ctx context.Context, id uuid.UUID, message string) error
	MarkEmbedded(ctx context.Context, id uuid.UUID, passageCount int, embeddedAt time.Time) error
	SetArchivePath(ctx context.Context, id uuid.UUID, path string) error
}

// PassageRepository handles persistence of passages. SaveBatch persists one
// batch; callers split larger writes according to the store's batch limit.
type PassageRepository interface {
	SaveBatch(ctx context.Context, passages []models.Passage) error
	GetByDocument(ctx context.Context, documentID uuid.UUID) ([]models.Passage, error)
	DeleteByDocument(ctx context.Context, documentID uuid.UUID) error
	// ListEmbedded returns every passage carrying a vector across the
	// filtered document set, the candidate set for similarity search.
	ListEmbedded(ctx context.Context, filter models.DocumentFilter) ([]models.Passage, error)
}
