package service

import (
	"context"
	"strings"
	"testing"

	"regadvisor-backend/config"
	"regadvisor-backend/models"
	"regadvisor-backend/providers"
	"regadvisor-backend/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubGenerator records the generation request and returns a canned answer.
type stubGenerator struct {
	response string
	err      error

	lastSystem  string
	lastHistory []providers.Message
	lastPrompt  string
	calls       int
}

func (g *stubGenerator) Generate(_ context.Context, system string, history []providers.Message, question string) (string, error) {
	g.calls++
	g.lastSystem = system
	g.lastHistory = history
	g.lastPrompt = question
	if g.err != nil {
		return "", g.err
	}
	return g.response, nil
}

func (g *stubGenerator) ModelName() string { return "stub-generator" }

func testRetrievalConfig() config.RetrievalConfig {
	return config.RetrievalConfig{
		TopK:             5,
		SearchTopK:       10,
		MinScore:         0.3,
		StrictScore:      0.6,
		ContextLimit:     5,
		BestWeight:       0.6,
		MeanWeight:       0.4,
		ConfidenceCap:    0.95,
		LowConfidence:    0.40,
		MediumConfidence: 0.65,
		ExcerptLength:    300,
	}
}

type answerFixture struct {
	docRepo     *repository.MemoryDocumentRepository
	passageRepo *repository.MemoryPassageRepository
	embedder    *stubEmbedder
	generator   *stubGenerator
	svc         *AnswerService
}

func newAnswerFixture(t *testing.T, retrieval config.RetrievalConfig) *answerFixture {
	t.Helper()
	f := &answerFixture{
		docRepo:     repository.NewMemoryDocumentRepository(),
		passageRepo: repository.NewMemoryPassageRepository(),
		embedder:    newStubEmbedder(),
		generator:   &stubGenerator{response: "Grounded answer [Source 1]."},
	}
	search := NewSearchService(
		SearchWithDocumentRepository(f.docRepo),
		SearchWithPassageRepository(f.passageRepo),
		SearchWithEmbedder(f.embedder),
	)
	f.svc = NewAnswerService(retrieval,
		AnswerWithSearchService(search),
		AnswerWithGenerator(f.generator),
	)
	return f
}

func TestAnswerRefusesWithoutRelevantSources(t *testing.T) {
	f := newAnswerFixture(t, testRetrievalConfig())
	f.generator.response = "The corpus contains no supporting text for this question."

	answer, err := f.svc.Answer(context.Background(), "What are the margin requirements on Mars?", nil, models.DocumentFilter{})
	require.NoError(t, err)

	assert.False(t, answer.HasRelevantSources)
	assert.Empty(t, answer.Citations)
	assert.Zero(t, answer.Confidence)
	assert.Contains(t, answer.Disclaimer, "No sufficiently relevant source")

	// The generator is still invoked, but under the refusal instruction.
	assert.Equal(t, 1, f.generator.calls)
	assert.Contains(t, f.generator.lastSystem, "decline to answer")
	assert.Contains(t, f.generator.lastPrompt, "No source passages were found")
}

func TestAnswerUsesOnlyStrictlyRelevantPassages(t *testing.T) {
	f := newAnswerFixture(t, testRetrievalConfig())
	f.embedder.vectors["reporting deadlines"] = []float32{1, 0}

	docID := uuid.New()
	strong := embeddedPassage(docID, 0, "Reports are due within four weeks of quarter end.", []float32{0.9, 0.43589})
	weak := embeddedPassage(docID, 1, "Unrelated marketing rules apply to retail funds.", []float32{0.4, 0.91652})
	require.NoError(t, f.passageRepo.SaveBatch(context.Background(), []models.Passage{strong, weak}))

	answer, err := f.svc.Answer(context.Background(), "reporting deadlines", nil, models.DocumentFilter{})
	require.NoError(t, err)

	// The weak passage scores ~0.4: above the search threshold, below the
	// strict one. It must appear neither in context nor in citations.
	assert.True(t, answer.HasRelevantSources)
	require.Len(t, answer.Citations, 1)
	assert.Contains(t, answer.Citations[0].Excerpt, "four weeks")
	assert.Contains(t, f.generator.lastPrompt, "four weeks")
	assert.NotContains(t, f.generator.lastPrompt, "marketing rules")

	// Single passage at ~0.9: confidence = 0.6*0.9 + 0.4*0.9
	assert.InDelta(t, 0.9, answer.Confidence, 0.01)
}

func TestAnswerConfidenceBlendAndCap(t *testing.T) {
	f := newAnswerFixture(t, testRetrievalConfig())
	f.embedder.vectors["q"] = []float32{1, 0}

	docID := uuid.New()
	require.NoError(t, f.passageRepo.SaveBatch(context.Background(), []models.Passage{
		embeddedPassage(docID, 0, "first", []float32{1, 0}),
		embeddedPassage(docID, 1, "second", []float32{0.8, 0.6}),
	}))

	answer, err := f.svc.Answer(context.Background(), "q", nil, models.DocumentFilter{})
	require.NoError(t, err)

	// best 1.0, mean 0.9: 0.6*1.0 + 0.4*0.9 = 0.96, capped at 0.95
	assert.InDelta(t, 0.95, answer.Confidence, 1e-6)
	assert.Empty(t, answer.Disclaimer)
}

func TestAnswerDisclaimerTiers(t *testing.T) {
	cfg := testRetrievalConfig()
	svc := NewAnswerService(cfg)

	assert.Contains(t, svc.disclaimer(0, false), "No sufficiently relevant source")
	assert.Contains(t, svc.disclaimer(0.35, true), "Low confidence")
	assert.Contains(t, svc.disclaimer(0.55, true), "Consider verifying")
	assert.Empty(t, svc.disclaimer(0.80, true))
}

func TestAnswerContextLimit(t *testing.T) {
	cfg := testRetrievalConfig()
	cfg.ContextLimit = 2
	f := newAnswerFixture(t, cfg)

	docID := uuid.New()
	var passages []models.Passage
	for i := 0; i < 6; i++ {
		passages = append(passages, embeddedPassage(docID, i, "highly relevant passage", []float32{1, 0, 0}))
	}
	require.NoError(t, f.passageRepo.SaveBatch(context.Background(), passages))

	answer, err := f.svc.Answer(context.Background(), "q", nil, models.DocumentFilter{})
	require.NoError(t, err)

	assert.Len(t, answer.Citations, 2)
	assert.Contains(t, f.generator.lastPrompt, "[Source 2]")
	assert.NotContains(t, f.generator.lastPrompt, "[Source 3]")
}

func TestAnswerTruncatesCitationExcerpts(t *testing.T) {
	cfg := testRetrievalConfig()
	cfg.ExcerptLength = 40
	f := newAnswerFixture(t, cfg)

	docID := uuid.New()
	content := strings.Repeat("Obligations apply to every institution. ", 10)
	require.NoError(t, f.passageRepo.SaveBatch(context.Background(), []models.Passage{
		embeddedPassage(docID, 0, content, []float32{1, 0, 0}),
	}))

	answer, err := f.svc.Answer(context.Background(), "q", nil, models.DocumentFilter{})
	require.NoError(t, err)

	require.Len(t, answer.Citations, 1)
	excerpt := answer.Citations[0].Excerpt
	assert.True(t, strings.HasSuffix(excerpt, "…"))
	assert.LessOrEqual(t, len(excerpt), 40+len("…"))
}

func TestAnswerCitationCarriesSourceURL(t *testing.T) {
	f := newAnswerFixture(t, testRetrievalConfig())

	doc := &models.Document{
		Source:    "BaFin",
		Type:      models.DocTypeGuideline,
		Title:     "AML Guidelines",
		SourceURL: "https://example.org/aml",
	}
	require.NoError(t, f.docRepo.Create(context.Background(), doc))
	require.NoError(t, f.passageRepo.SaveBatch(context.Background(), []models.Passage{
		embeddedPassage(doc.ID, 0, "passage", []float32{1, 0, 0}),
	}))

	answer, err := f.svc.Answer(context.Background(), "q", nil, models.DocumentFilter{})
	require.NoError(t, err)

	require.Len(t, answer.Citations, 1)
	assert.Equal(t, "https://example.org/aml", answer.Citations[0].SourceURL)
	assert.Equal(t, doc.ID.String(), answer.Citations[0].DocumentID)
}

func TestAnswerForwardsConversationHistory(t *testing.T) {
	f := newAnswerFixture(t, testRetrievalConfig())

	history := []models.ChatMessage{
		{Role: "user", Content: "What is the reporting deadline?"},
		{Role: "assistant", Content: "Four weeks after quarter end [Source 1]."},
	}

	_, err := f.svc.Answer(context.Background(), "Does that apply to branches too?", history, models.DocumentFilter{})
	require.NoError(t, err)

	require.Len(t, f.generator.lastHistory, 2)
	assert.Equal(t, "user", f.generator.lastHistory[0].Role)
	assert.Equal(t, "assistant", f.generator.lastHistory[1].Role)
	assert.Equal(t, "Four weeks after quarter end [Source 1].", f.generator.lastHistory[1].Content)
}

func TestAnswerPropagatesGenerationFailure(t *testing.T) {
	f := newAnswerFixture(t, testRetrievalConfig())
	f.generator.err = providers.ErrGenerationUnavailable

	_, err := f.svc.Answer(context.Background(), "q", nil, models.DocumentFilter{})
	require.Error(t, err)
	assert.ErrorIs(t, err, providers.ErrGenerationUnavailable)
}

func TestAnswerCancelledContextSkipsGeneration(t *testing.T) {
	f := newAnswerFixture(t, testRetrievalConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.Answer(ctx, "q", nil, models.DocumentFilter{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, f.generator.calls)
}
