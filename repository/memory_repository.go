package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"regadvisor-backend/models"

	"github.com/google/uuid"
)

// Ensure the in-memory implementations satisfy the interfaces.
var (
	_ DocumentRepository = (*MemoryDocumentRepository)(nil)
	_ PassageRepository  = (*MemoryPassageRepository)(nil)
)

// MemoryDocumentRepository is an in-memory DocumentRepository used in tests
// and for local development without Postgres.
type MemoryDocumentRepository struct {
	mu        sync.RWMutex
	documents map[uuid.UUID]models.Document
}

// NewMemoryDocumentRepository creates an empty in-memory document repository
func NewMemoryDocumentRepository() *MemoryDocumentRepository {
	return &MemoryDocumentRepository{
		documents: make(map[uuid.UUID]models.Document),
	}
}

// Create stores a new document
func (r *MemoryDocumentRepository) Create(_ context.Context, doc *models.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	if doc.Status == "" {
		doc.Status = models.StatusPending
	}
	if doc.Language == "" {
		doc.Language = "en"
	}
	now := time.Now()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	r.documents[doc.ID] = *doc
	return nil
}

// GetByID retrieves a document by ID
func (r *MemoryDocumentRepository) GetByID(_ context.Context, id uuid.UUID) (*models.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	doc, ok := r.documents[id]
	if !ok {
		return nil, ErrDocumentNotFound
	}
	return &doc, nil
}

// List retrieves documents matching the filter, newest first
func (r *MemoryDocumentRepository) List(_ context.Context, filter models.DocumentFilter) ([]models.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var docs []models.Document
	for id := range r.documents {
		doc := r.documents[id]
		if filter.Matches(&doc) {
			docs = append(docs, doc)
		}
	}
	sort.Slice(docs, func(i, j int) bool {
		return docs[i].CreatedAt.After(docs[j].CreatedAt)
	})
	return docs, nil
}

// UpdateStatus transitions a document to a new processing status
func (r *MemoryDocumentRepository) UpdateStatus(_ context.Context, id uuid.UUID, status models.DocumentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, ok := r.documents[id]
	if !ok {
		return ErrDocumentNotFound
	}
	doc.Status = status
	doc.UpdatedAt = time.Now()
	r.documents[id] = doc
	return nil
}

// MarkError transitions a document to error status with a message
func (r *MemoryDocumentRepository) MarkError(_ context.Context, id uuid.UUID, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, ok := r.documents[id]
	if !ok {
		return ErrDocumentNotFound
	}
	doc.Status = models.StatusError
	doc.LastError = &message
	doc.UpdatedAt = time.Now()
	r.documents[id] = doc
	return nil
}

// MarkEmbedded transitions a document to embedded status
func (r *MemoryDocumentRepository) MarkEmbedded(_ context.Context, id uuid.UUID, passageCount int, embeddedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, ok := r.documents[id]
	if !ok {
		return ErrDocumentNotFound
	}
	doc.Status = models.StatusEmbedded
	doc.PassageCount = passageCount
	doc.EmbeddedAt = &embeddedAt
	doc.LastError = nil
	doc.UpdatedAt = time.Now()
	r.documents[id] = doc
	return nil
}

// SetArchivePath records the blob storage path of the raw document text
func (r *MemoryDocumentRepository) SetArchivePath(_ context.Context, id uuid.UUID, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, ok := r.documents[id]
	if !ok {
		return ErrDocumentNotFound
	}
	doc.ArchivePath = &path
	doc.UpdatedAt = time.Now()
	r.documents[id] = doc
	return nil
}

// MemoryPassageRepository is an in-memory PassageRepository
type MemoryPassageRepository struct {
	mu       sync.RWMutex
	passages map[uuid.UUID][]models.Passage // keyed by document id
}

// NewMemoryPassageRepository creates an empty in-memory passage repository
func NewMemoryPassageRepository() *MemoryPassageRepository {
	return &MemoryPassageRepository{
		passages: make(map[uuid.UUID][]models.Passage),
	}
}

// SaveBatch stores passages, replacing any existing passage with the same
// (document id, ordinal) pair
func (r *MemoryPassageRepository) SaveBatch(_ context.Context, passages []models.Passage) error {
	if len(passages) == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range passages {
		existing := r.passages[p.DocumentID]
		replaced := false
		for i := range existing {
			if existing[i].Index == p.Index {
				existing[i] = p
				replaced = true
				break
			}
		}
		if !replaced {
			existing = append(existing, p)
		}
		sort.Slice(existing, func(i, j int) bool {
			return existing[i].Index < existing[j].Index
		})
		r.passages[p.DocumentID] = existing
	}
	return nil
}

// GetByDocument retrieves all passages of a document ordered by ordinal
func (r *MemoryPassageRepository) GetByDocument(_ context.Context, documentID uuid.UUID) ([]models.Passage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored := r.passages[documentID]
	out := make([]models.Passage, len(stored))
	copy(out, stored)
	return out, nil
}

// DeleteByDocument removes all passages of a document
func (r *MemoryPassageRepository) DeleteByDocument(_ context.Context, documentID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.passages, documentID)
	return nil
}

// ListEmbedded returns every passage with a vector across the filtered set
func (r *MemoryPassageRepository) ListEmbedded(_ context.Context, filter models.DocumentFilter) ([]models.Passage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.Passage
	for _, stored := range r.passages {
		for _, p := range stored {
			if !p.HasEmbedding() {
				continue
			}
			if filter.Source != "" && p.Source != filter.Source {
				continue
			}
			if filter.Category != "" && !containsString(p.Categories, filter.Category) {
				continue
			}
			out = append(out, p)
		}
	}
	return out, nil
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
