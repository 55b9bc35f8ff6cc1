package service

import (
	"context"
	"testing"

	"regadvisor-backend/models"
	"regadvisor-backend/providers"
	"regadvisor-backend/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubEmbedder returns canned vectors keyed by input text. Call indexes
// listed in failOn return ErrEmbeddingUnavailable instead.
type stubEmbedder struct {
	vectors     map[string][]float32
	fallbackVec []float32
	failOn      map[int]bool
	calls       int
}

func newStubEmbedder() *stubEmbedder {
	return &stubEmbedder{
		vectors:     make(map[string][]float32),
		fallbackVec: []float32{1, 0, 0},
		failOn:      make(map[int]bool),
	}
}

func (e *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	call := e.calls
	e.calls++
	if e.failOn[call] {
		return nil, providers.ErrEmbeddingUnavailable
	}
	if v, ok := e.vectors[text]; ok {
		return v, nil
	}
	return e.fallbackVec, nil
}

func (e *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (e *stubEmbedder) Dimensions() int   { return len(e.fallbackVec) }
func (e *stubEmbedder) ModelName() string { return "stub-embedder" }

func embeddedPassage(docID uuid.UUID, index int, content string, vec []float32) models.Passage {
	return models.Passage{
		ID:             uuid.New(),
		DocumentID:     docID,
		Index:          index,
		Content:        content,
		ContentLength:  len(content),
		Embedding:      vec,
		EmbeddingModel: "stub-embedder",
		Source:         "BaFin",
		DocumentType:   models.DocTypeGuideline,
		DocumentTitle:  "AML Guidelines",
		Language:       "en",
	}
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 2, 3}, []float32{1, 2, 3}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)

	// Scale invariance
	assert.InDelta(t,
		CosineSimilarity([]float32{1, 2}, []float32{3, 4}),
		CosineSimilarity([]float32{10, 20}, []float32{3, 4}), 1e-9)

	// Symmetry
	a, b := []float32{0.2, 0.7, 0.1}, []float32{0.9, 0.1, 0.4}
	assert.InDelta(t, CosineSimilarity(a, b), CosineSimilarity(b, a), 1e-9)
}

func TestCosineSimilarityZeroVector(t *testing.T) {
	assert.Equal(t, 0.0, CosineSimilarity([]float32{0, 0, 0}, []float32{1, 2, 3}))
	assert.Equal(t, 0.0, CosineSimilarity([]float32{1, 2, 3}, []float32{0, 0, 0}))
	assert.Equal(t, 0.0, CosineSimilarity(nil, nil))
}

func newTestSearchService(t *testing.T, embedder providers.Embedder) (*SearchService, *repository.MemoryDocumentRepository, *repository.MemoryPassageRepository) {
	t.Helper()
	docRepo := repository.NewMemoryDocumentRepository()
	passageRepo := repository.NewMemoryPassageRepository()
	svc := NewSearchService(
		SearchWithDocumentRepository(docRepo),
		SearchWithPassageRepository(passageRepo),
		SearchWithEmbedder(embedder),
	)
	return svc, docRepo, passageRepo
}

func TestSearchRanksByScoreAndAppliesThreshold(t *testing.T) {
	embedder := newStubEmbedder()
	embedder.vectors["reporting duties"] = []float32{1, 0}

	svc, _, passageRepo := newTestSearchService(t, embedder)

	docID := uuid.New()
	require.NoError(t, passageRepo.SaveBatch(context.Background(), []models.Passage{
		embeddedPassage(docID, 0, "exact match", []float32{1, 0}),
		embeddedPassage(docID, 1, "close match", []float32{0.8, 0.6}),
		embeddedPassage(docID, 2, "weak match", []float32{0.6, 0.8}),
		embeddedPassage(docID, 3, "orthogonal", []float32{0, 1}),
	}))

	results, err := svc.Search(context.Background(), "reporting duties", SearchOptions{
		TopK:     10,
		MinScore: 0.5,
	})
	require.NoError(t, err)

	require.Len(t, results, 3)
	assert.Equal(t, "exact match", results[0].Passage.Content)
	assert.Equal(t, "close match", results[1].Passage.Content)
	assert.Equal(t, "weak match", results[2].Passage.Content)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	assert.InDelta(t, 0.8, results[1].Score, 1e-6)
	for _, r := range results {
		assert.GreaterOrEqual(t, r.Score, 0.5)
	}
}

func TestSearchTruncatesToTopK(t *testing.T) {
	embedder := newStubEmbedder()
	svc, _, passageRepo := newTestSearchService(t, embedder)

	docID := uuid.New()
	var passages []models.Passage
	for i := 0; i < 8; i++ {
		passages = append(passages, embeddedPassage(docID, i, "passage", []float32{1, 0, 0}))
	}
	require.NoError(t, passageRepo.SaveBatch(context.Background(), passages))

	results, err := svc.Search(context.Background(), "anything", SearchOptions{TopK: 3})
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestSearchTieBreaksOnOrdinalThenDocument(t *testing.T) {
	embedder := newStubEmbedder()
	svc, _, passageRepo := newTestSearchService(t, embedder)

	docA := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	docB := uuid.MustParse("22222222-2222-2222-2222-222222222222")

	// Identical vectors, so scores tie exactly.
	require.NoError(t, passageRepo.SaveBatch(context.Background(), []models.Passage{
		embeddedPassage(docB, 2, "docB idx2", []float32{1, 0, 0}),
		embeddedPassage(docA, 5, "docA idx5", []float32{1, 0, 0}),
		embeddedPassage(docB, 5, "docB idx5", []float32{1, 0, 0}),
		embeddedPassage(docA, 2, "docA idx2", []float32{1, 0, 0}),
	}))

	results, err := svc.Search(context.Background(), "anything", SearchOptions{TopK: 10})
	require.NoError(t, err)

	require.Len(t, results, 4)
	assert.Equal(t, "docA idx2", results[0].Passage.Content)
	assert.Equal(t, "docB idx2", results[1].Passage.Content)
	assert.Equal(t, "docA idx5", results[2].Passage.Content)
	assert.Equal(t, "docB idx5", results[3].Passage.Content)
}

func TestSearchAppliesDocumentFilter(t *testing.T) {
	embedder := newStubEmbedder()
	svc, _, passageRepo := newTestSearchService(t, embedder)

	bafin := embeddedPassage(uuid.New(), 0, "bafin passage", []float32{1, 0, 0})
	sec := embeddedPassage(uuid.New(), 0, "sec passage", []float32{1, 0, 0})
	sec.Source = "SEC"
	require.NoError(t, passageRepo.SaveBatch(context.Background(), []models.Passage{bafin, sec}))

	results, err := svc.Search(context.Background(), "anything", SearchOptions{
		TopK:   10,
		Filter: models.DocumentFilter{Source: "SEC"},
	})
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, "sec passage", results[0].Passage.Content)
}

func TestSearchAttachesParentDocument(t *testing.T) {
	embedder := newStubEmbedder()
	svc, docRepo, passageRepo := newTestSearchService(t, embedder)

	doc := &models.Document{
		Source:    "BaFin",
		Type:      models.DocTypeGuideline,
		Title:     "AML Guidelines",
		SourceURL: "https://example.org/aml-guidelines",
	}
	require.NoError(t, docRepo.Create(context.Background(), doc))
	require.NoError(t, passageRepo.SaveBatch(context.Background(), []models.Passage{
		embeddedPassage(doc.ID, 0, "passage", []float32{1, 0, 0}),
	}))

	results, err := svc.Search(context.Background(), "anything", SearchOptions{TopK: 1})
	require.NoError(t, err)

	require.Len(t, results, 1)
	require.NotNil(t, results[0].Document)
	assert.Equal(t, "https://example.org/aml-guidelines", results[0].Document.SourceURL)
}

func TestSearchPropagatesEmbeddingFailure(t *testing.T) {
	embedder := newStubEmbedder()
	embedder.failOn[0] = true
	svc, _, _ := newTestSearchService(t, embedder)

	_, err := svc.Search(context.Background(), "anything", SearchOptions{TopK: 5})
	require.Error(t, err)
	assert.ErrorIs(t, err, providers.ErrEmbeddingUnavailable)
}
