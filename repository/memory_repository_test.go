package repository

import (
	"context"
	"testing"
	"time"

	"regadvisor-backend/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDocument(source string, categories ...string) *models.Document {
	return &models.Document{
		Source:     source,
		Type:       models.DocTypeGuideline,
		Categories: categories,
		Title:      "Test Guidelines",
	}
}

func TestMemoryDocumentLifecycle(t *testing.T) {
	repo := NewMemoryDocumentRepository()
	ctx := context.Background()

	doc := testDocument("BaFin", "aml")
	require.NoError(t, repo.Create(ctx, doc))
	assert.NotEqual(t, uuid.Nil, doc.ID)
	assert.Equal(t, models.StatusPending, doc.Status)
	assert.Equal(t, "en", doc.Language)

	loaded, err := repo.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.Title, loaded.Title)

	require.NoError(t, repo.UpdateStatus(ctx, doc.ID, models.StatusChunked))
	loaded, err = repo.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusChunked, loaded.Status)

	embeddedAt := time.Now()
	require.NoError(t, repo.MarkEmbedded(ctx, doc.ID, 7, embeddedAt))
	loaded, err = repo.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusEmbedded, loaded.Status)
	assert.Equal(t, 7, loaded.PassageCount)
	require.NotNil(t, loaded.EmbeddedAt)
	assert.Nil(t, loaded.LastError)
}

func TestMemoryDocumentMarkErrorAndRecover(t *testing.T) {
	repo := NewMemoryDocumentRepository()
	ctx := context.Background()

	doc := testDocument("BaFin")
	require.NoError(t, repo.Create(ctx, doc))

	require.NoError(t, repo.MarkError(ctx, doc.ID, "embedding provider down"))
	loaded, err := repo.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, loaded.Status)
	require.NotNil(t, loaded.LastError)
	assert.Equal(t, "embedding provider down", *loaded.LastError)

	// A later successful run clears the error.
	require.NoError(t, repo.MarkEmbedded(ctx, doc.ID, 3, time.Now()))
	loaded, err = repo.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusEmbedded, loaded.Status)
	assert.Nil(t, loaded.LastError)
}

func TestMemoryDocumentNotFound(t *testing.T) {
	repo := NewMemoryDocumentRepository()
	ctx := context.Background()

	_, err := repo.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrDocumentNotFound)

	assert.ErrorIs(t, repo.UpdateStatus(ctx, uuid.New(), models.StatusChunked), ErrDocumentNotFound)
	assert.ErrorIs(t, repo.MarkError(ctx, uuid.New(), "x"), ErrDocumentNotFound)
	assert.ErrorIs(t, repo.MarkEmbedded(ctx, uuid.New(), 1, time.Now()), ErrDocumentNotFound)
	assert.ErrorIs(t, repo.SetArchivePath(ctx, uuid.New(), "path"), ErrDocumentNotFound)
}

func TestMemoryDocumentListFilters(t *testing.T) {
	repo := NewMemoryDocumentRepository()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, testDocument("BaFin", "aml")))
	require.NoError(t, repo.Create(ctx, testDocument("BaFin", "esg")))
	require.NoError(t, repo.Create(ctx, testDocument("SEC", "aml")))

	all, err := repo.List(ctx, models.DocumentFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	bafin, err := repo.List(ctx, models.DocumentFilter{Source: "BaFin"})
	require.NoError(t, err)
	assert.Len(t, bafin, 2)

	aml, err := repo.List(ctx, models.DocumentFilter{Category: "aml"})
	require.NoError(t, err)
	assert.Len(t, aml, 2)

	both, err := repo.List(ctx, models.DocumentFilter{Source: "SEC", Category: "aml"})
	require.NoError(t, err)
	assert.Len(t, both, 1)
}

func passageWithVector(docID uuid.UUID, index int, vec []float32) models.Passage {
	return models.Passage{
		ID:         uuid.New(),
		DocumentID: docID,
		Index:      index,
		Content:    "content",
		Embedding:  vec,
		Source:     "BaFin",
		Categories: []string{"aml"},
	}
}

func TestMemoryPassageSaveBatchUpsertsByOrdinal(t *testing.T) {
	repo := NewMemoryPassageRepository()
	ctx := context.Background()
	docID := uuid.New()

	first := passageWithVector(docID, 0, []float32{1, 0})
	require.NoError(t, repo.SaveBatch(ctx, []models.Passage{first}))

	replacement := passageWithVector(docID, 0, []float32{0, 1})
	replacement.Content = "replaced"
	require.NoError(t, repo.SaveBatch(ctx, []models.Passage{replacement}))

	stored, err := repo.GetByDocument(ctx, docID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "replaced", stored[0].Content)
}

func TestMemoryPassageGetByDocumentOrdered(t *testing.T) {
	repo := NewMemoryPassageRepository()
	ctx := context.Background()
	docID := uuid.New()

	require.NoError(t, repo.SaveBatch(ctx, []models.Passage{
		passageWithVector(docID, 2, []float32{1, 0}),
		passageWithVector(docID, 0, []float32{1, 0}),
		passageWithVector(docID, 1, []float32{1, 0}),
	}))

	stored, err := repo.GetByDocument(ctx, docID)
	require.NoError(t, err)
	require.Len(t, stored, 3)
	for i, p := range stored {
		assert.Equal(t, i, p.Index)
	}
}

func TestMemoryPassageDeleteByDocument(t *testing.T) {
	repo := NewMemoryPassageRepository()
	ctx := context.Background()
	docID := uuid.New()

	require.NoError(t, repo.SaveBatch(ctx, []models.Passage{
		passageWithVector(docID, 0, []float32{1, 0}),
		passageWithVector(docID, 1, []float32{1, 0}),
	}))
	require.NoError(t, repo.DeleteByDocument(ctx, docID))

	stored, err := repo.GetByDocument(ctx, docID)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestMemoryPassageListEmbeddedSkipsVectorless(t *testing.T) {
	repo := NewMemoryPassageRepository()
	ctx := context.Background()
	docID := uuid.New()

	withVec := passageWithVector(docID, 0, []float32{1, 0})
	withoutVec := passageWithVector(docID, 1, nil)
	require.NoError(t, repo.SaveBatch(ctx, []models.Passage{withVec, withoutVec}))

	embedded, err := repo.ListEmbedded(ctx, models.DocumentFilter{})
	require.NoError(t, err)
	require.Len(t, embedded, 1)
	assert.Equal(t, 0, embedded[0].Index)
}

func TestMemoryPassageListEmbeddedFilters(t *testing.T) {
	repo := NewMemoryPassageRepository()
	ctx := context.Background()

	bafin := passageWithVector(uuid.New(), 0, []float32{1, 0})
	sec := passageWithVector(uuid.New(), 0, []float32{1, 0})
	sec.Source = "SEC"
	sec.Categories = []string{"esg"}
	require.NoError(t, repo.SaveBatch(ctx, []models.Passage{bafin, sec}))

	bySource, err := repo.ListEmbedded(ctx, models.DocumentFilter{Source: "SEC"})
	require.NoError(t, err)
	require.Len(t, bySource, 1)
	assert.Equal(t, "SEC", bySource[0].Source)

	byCategory, err := repo.ListEmbedded(ctx, models.DocumentFilter{Category: "aml"})
	require.NoError(t, err)
	require.Len(t, byCategory, 1)
	assert.Equal(t, "BaFin", byCategory[0].Source)
}
