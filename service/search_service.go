package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"regadvisor-backend/models"
	"regadvisor-backend/providers"
	"regadvisor-backend/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SearchService scores stored passage vectors against a query embedding
// and returns the top-ranked matches. It is read-only and stateless per
// call; concurrent queries are safe.
type SearchService struct {
	documentRepo repository.DocumentRepository
	passageRepo  repository.PassageRepository
	embedder     providers.Embedder
	logger       *zap.Logger
}

// SearchServiceOption is a functional option for SearchService
type SearchServiceOption func(*SearchService)

// SearchWithDocumentRepository sets the document repository
func SearchWithDocumentRepository(repo repository.DocumentRepository) SearchServiceOption {
	return func(s *SearchService) {
		s.documentRepo = repo
	}
}

// SearchWithPassageRepository sets the passage repository
func SearchWithPassageRepository(repo repository.PassageRepository) SearchServiceOption {
	return func(s *SearchService) {
		s.passageRepo = repo
	}
}

// SearchWithEmbedder sets the embedding provider
func SearchWithEmbedder(embedder providers.Embedder) SearchServiceOption {
	return func(s *SearchService) {
		s.embedder = embedder
	}
}

// SearchWithLogger sets the logger
func SearchWithLogger(logger *zap.Logger) SearchServiceOption {
	return func(s *SearchService) {
		s.logger = logger
	}
}

// NewSearchService creates a new search service
func NewSearchService(opts ...SearchServiceOption) *SearchService {
	s := &SearchService{
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SearchOptions bounds one similarity search
type SearchOptions struct {
	TopK     int
	MinScore float64
	Filter   models.DocumentFilter
}

// Search embeds the query text, scores every stored passage vector in the
// filtered set by cosine similarity, discards results below MinScore, and
// returns at most TopK results sorted by descending score. Ties break on
// the lower passage ordinal for determinism. The scan is exhaustive by
// design at the documented corpus scale.
func (s *SearchService) Search(ctx context.Context, queryText string, opts SearchOptions) ([]models.SearchResult, error) {
	if s.passageRepo == nil {
		return nil, errors.New("passage repository not set")
	}
	if s.embedder == nil {
		return nil, errors.New("embedder not set")
	}
	if opts.TopK <= 0 {
		opts.TopK = 5
	}

	queryVec, err := s.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	passages, err := s.passageRepo.ListEmbedded(ctx, opts.Filter)
	if err != nil {
		return nil, fmt.Errorf("failed to load candidate passages: %w", err)
	}

	results := make([]models.SearchResult, 0, len(passages))
	for _, p := range passages {
		score := CosineSimilarity(queryVec, p.Embedding)
		if score < opts.MinScore {
			continue
		}
		results = append(results, models.SearchResult{Passage: p, Score: score})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Passage.Index != results[j].Passage.Index {
			return results[i].Passage.Index < results[j].Passage.Index
		}
		return results[i].Passage.DocumentID.String() < results[j].Passage.DocumentID.String()
	})

	if len(results) > opts.TopK {
		results = results[:opts.TopK]
	}

	s.attachDocuments(ctx, results)

	s.logger.Debug("similarity search completed",
		zap.Int("candidates", len(passages)),
		zap.Int("results", len(results)),
		zap.Float64("min_score", opts.MinScore))

	return results, nil
}

// attachDocuments loads each result's parent document so callers get the
// source URL and full metadata without extra round trips. A missing parent
// is tolerated; passage metadata is denormalized and self-describing.
func (s *SearchService) attachDocuments(ctx context.Context, results []models.SearchResult) {
	if s.documentRepo == nil {
		return
	}

	docs := make(map[uuid.UUID]*models.Document)
	for i := range results {
		docID := results[i].Passage.DocumentID
		doc, ok := docs[docID]
		if !ok {
			loaded, err := s.documentRepo.GetByID(ctx, docID)
			if err != nil {
				s.logger.Warn("failed to load parent document for search result",
					zap.String("document_id", docID.String()),
					zap.Error(err))
				continue
			}
			doc = loaded
			docs[docID] = doc
		}
		results[i].Document = doc
	}
}

// CosineSimilarity returns the cosine of the angle between two vectors:
// dot product divided by the product of magnitudes, 0 when either vector
// has zero magnitude.
func CosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
