package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"regadvisor-backend/config"
	"regadvisor-backend/models"
	"regadvisor-backend/providers"
	"regadvisor-backend/repository"
	"regadvisor-backend/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrEmptyDocument indicates a document exposes no usable text to
	// segment. The document is left in error status.
	ErrEmptyDocument = errors.New("document has no usable text")

	// ErrNoPassagesEmbedded indicates every passage embedding failed for a
	// document that did produce candidates. Recoverable by retrying later.
	ErrNoPassagesEmbedded = errors.New("no passages could be embedded")
)

// IngestionService drives a document through segmentation, embedding,
// persistence and status transition. Partial embedding failures are
// tolerated: ingestion is passage-granular, not document-granular.
type IngestionService struct {
	documentRepo repository.DocumentRepository
	passageRepo  repository.PassageRepository
	embedder     providers.Embedder
	segmenter    *Segmenter
	limiter      *providers.RateLimiter
	archive      storage.Storage
	saveBatch    int
	logger       *zap.Logger
}

// IngestionServiceOption is a functional option for IngestionService
type IngestionServiceOption func(*IngestionService)

// IngestionWithDocumentRepository sets the document repository
func IngestionWithDocumentRepository(repo repository.DocumentRepository) IngestionServiceOption {
	return func(s *IngestionService) {
		s.documentRepo = repo
	}
}

// IngestionWithPassageRepository sets the passage repository
func IngestionWithPassageRepository(repo repository.PassageRepository) IngestionServiceOption {
	return func(s *IngestionService) {
		s.passageRepo = repo
	}
}

// IngestionWithEmbedder sets the embedding provider
func IngestionWithEmbedder(embedder providers.Embedder) IngestionServiceOption {
	return func(s *IngestionService) {
		s.embedder = embedder
	}
}

// IngestionWithSegmenter sets the passage segmenter
func IngestionWithSegmenter(segmenter *Segmenter) IngestionServiceOption {
	return func(s *IngestionService) {
		s.segmenter = segmenter
	}
}

// IngestionWithRateLimiter sets the limiter applied to embedding calls
func IngestionWithRateLimiter(limiter *providers.RateLimiter) IngestionServiceOption {
	return func(s *IngestionService) {
		s.limiter = limiter
	}
}

// IngestionWithArchive sets the blob storage for raw document text
func IngestionWithArchive(archive storage.Storage) IngestionServiceOption {
	return func(s *IngestionService) {
		s.archive = archive
	}
}

// IngestionWithLogger sets the logger
func IngestionWithLogger(logger *zap.Logger) IngestionServiceOption {
	return func(s *IngestionService) {
		s.logger = logger
	}
}

// NewIngestionService creates a new ingestion service
func NewIngestionService(cfg config.PipelineConfig, opts ...IngestionServiceOption) *IngestionService {
	s := &IngestionService{
		segmenter: NewSegmenter(cfg.ChunkSize, cfg.ChunkOverlap, cfg.MinChunkSize),
		saveBatch: cfg.SaveBatch,
		logger:    zap.NewNop(),
	}
	if s.saveBatch <= 0 {
		s.saveBatch = 25
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Process ingests one document: segment its text, embed each passage,
// persist the successfully-embedded passages, and transition the document
// status. Returns the resulting status.
func (s *IngestionService) Process(ctx context.Context, documentID uuid.UUID) (models.DocumentStatus, error) {
	if s.documentRepo == nil || s.passageRepo == nil {
		return "", errors.New("repositories not set")
	}
	if s.embedder == nil {
		return "", errors.New("embedder not set")
	}

	doc, err := s.documentRepo.GetByID(ctx, documentID)
	if err != nil {
		return "", fmt.Errorf("failed to load document: %w", err)
	}

	// 1. Resolve the text to segment
	content := doc.Content()
	if content == "" {
		s.markError(ctx, documentID, "document has no full text or summary to segment")
		return models.StatusError, fmt.Errorf("%w: document %s", ErrEmptyDocument, documentID)
	}

	// 2. Archive the raw text for audit. Best effort: a missing archive
	// never blocks ingestion.
	s.archiveText(ctx, doc, content)

	// 3. Segment into passage candidates
	candidates := s.segmenter.Segment(content)
	if len(candidates) == 0 {
		s.markError(ctx, documentID, "segmentation produced no passages")
		return models.StatusError, fmt.Errorf("%w: document %s", ErrEmptyDocument, documentID)
	}

	if err := s.documentRepo.UpdateStatus(ctx, documentID, models.StatusChunked); err != nil {
		return "", fmt.Errorf("failed to update document status: %w", err)
	}

	s.logger.Info("document segmented",
		zap.String("document_id", documentID.String()),
		zap.Int("candidates", len(candidates)))

	// 4. Embed each candidate. A per-passage failure is logged and the
	// remaining passages continue; the passage is skipped for this run
	// rather than stored with a zero vector.
	embedded := make([]models.Passage, 0, len(candidates))
	failed := 0
	for i, candidate := range candidates {
		if ctx.Err() != nil {
			s.markError(ctx, documentID, "ingestion cancelled: "+ctx.Err().Error())
			return models.StatusError, ctx.Err()
		}

		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				s.markError(ctx, documentID, "ingestion cancelled: "+err.Error())
				return models.StatusError, err
			}
		}

		vector, err := s.embedder.Embed(ctx, candidate.Text)
		if err != nil {
			failed++
			s.logger.Warn("passage embedding failed, skipping",
				zap.String("document_id", documentID.String()),
				zap.Int("passage_index", i),
				zap.Error(err))
			continue
		}

		embedded = append(embedded, s.buildPassage(doc, i, candidate, vector))
	}

	if len(embedded) == 0 {
		s.markError(ctx, documentID, fmt.Sprintf("all %d passage embeddings failed", len(candidates)))
		return models.StatusError, fmt.Errorf("%w: document %s", ErrNoPassagesEmbedded, documentID)
	}

	// 5. Persist, replacing any passages from a previous run so ordinals
	// are never duplicated on re-ingestion
	if err := s.passageRepo.DeleteByDocument(ctx, documentID); err != nil {
		return "", fmt.Errorf("failed to clear previous passages: %w", err)
	}
	for start := 0; start < len(embedded); start += s.saveBatch {
		end := start + s.saveBatch
		if end > len(embedded) {
			end = len(embedded)
		}
		if err := s.passageRepo.SaveBatch(ctx, embedded[start:end]); err != nil {
			return "", fmt.Errorf("failed to save passages: %w", err)
		}
	}

	// 6. Transition to embedded; the invariant holds because at least one
	// persisted passage carries a vector
	if err := s.documentRepo.MarkEmbedded(ctx, documentID, len(embedded), time.Now()); err != nil {
		return "", fmt.Errorf("failed to mark document embedded: %w", err)
	}

	s.logger.Info("document ingested",
		zap.String("document_id", documentID.String()),
		zap.Int("passages", len(embedded)),
		zap.Int("failed_embeddings", failed))

	return models.StatusEmbedded, nil
}

// buildPassage assembles a passage with denormalized document metadata
func (s *IngestionService) buildPassage(doc *models.Document, index int, candidate PassageCandidate, vector []float32) models.Passage {
	return models.Passage{
		ID:             uuid.New(),
		DocumentID:     doc.ID,
		Index:          index,
		Content:        candidate.Text,
		ContentLength:  len(candidate.Text),
		SectionLabel:   candidate.SectionLabel,
		Embedding:      vector,
		EmbeddingModel: s.embedder.ModelName(),
		Source:         doc.Source,
		DocumentType:   doc.Type,
		Categories:     doc.Categories,
		DocumentTitle:  doc.Title,
		DocumentNumber: doc.DocumentNumber,
		Language:       doc.Language,
	}
}

// archiveText uploads the raw document text to blob storage and records
// the path on the document
func (s *IngestionService) archiveText(ctx context.Context, doc *models.Document, content string) {
	if s.archive == nil || doc.ArchivePath != nil {
		return
	}

	path, err := s.archive.Upload(ctx, doc.ID, doc.ID.String()+".txt", strings.NewReader(content))
	if err != nil {
		s.logger.Warn("failed to archive document text",
			zap.String("document_id", doc.ID.String()),
			zap.Error(err))
		return
	}
	if err := s.documentRepo.SetArchivePath(ctx, doc.ID, path); err != nil {
		s.logger.Warn("failed to record archive path",
			zap.String("document_id", doc.ID.String()),
			zap.Error(err))
	}
}

// markError transitions the document to error status. The update uses a
// context detached from the caller so a cancelled ingestion still leaves
// the document queryable instead of stuck in an intermediate status.
func (s *IngestionService) markError(ctx context.Context, documentID uuid.UUID, message string) {
	err := s.documentRepo.MarkError(context.WithoutCancel(ctx), documentID, message)
	if err != nil {
		s.logger.Error("failed to mark document error",
			zap.String("document_id", documentID.String()),
			zap.Error(err))
	}
}
