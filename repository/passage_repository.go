package repository

import (
	"context"
	"fmt"

	"regadvisor-backend/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PostgresPassageRepository handles database operations for passages
type PostgresPassageRepository struct {
	db *pgxpool.Pool
}

// NewPostgresPassageRepository creates a new passage repository
func NewPostgresPassageRepository(db *pgxpool.Pool) *PostgresPassageRepository {
	return &PostgresPassageRepository{db: db}
}

// SaveBatch persists a batch of passages in a single transaction.
// An existing passage with the same (document_id, idx) is replaced, so
// re-ingestion never duplicates ordinals.
func (r *PostgresPassageRepository) SaveBatch(ctx context.Context, passages []models.Passage) error {
	if len(passages) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO passages (
			id, document_id, idx, content, content_length, section_label,
			embedding, embedding_model, source, doc_type, categories,
			doc_title, doc_number, language
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
		)
		ON CONFLICT (document_id, idx) DO UPDATE SET
			content = EXCLUDED.content,
			content_length = EXCLUDED.content_length,
			section_label = EXCLUDED.section_label,
			embedding = EXCLUDED.embedding,
			embedding_model = EXCLUDED.embedding_model`

	for _, p := range passages {
		var embedding interface{}
		if p.HasEmbedding() {
			embedding = pgvector.NewVector(p.Embedding)
		}
		batch.Queue(query,
			p.ID,
			p.DocumentID,
			p.Index,
			p.Content,
			p.ContentLength,
			p.SectionLabel,
			embedding,
			p.EmbeddingModel,
			p.Source,
			p.DocumentType,
			p.Categories,
			p.DocumentTitle,
			p.DocumentNumber,
			p.Language,
		)
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()

	for range passages {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("%w: failed to save passage batch: %v", ErrStoreUnavailable, err)
		}
	}
	return nil
}

const passageColumns = `
	id, document_id, idx, content, content_length, section_label,
	embedding, embedding_model, source, doc_type, categories,
	doc_title, doc_number, language`

func scanPassage(row pgx.Row) (*models.Passage, error) {
	p := &models.Passage{}
	var embedding *pgvector.Vector
	err := row.Scan(
		&p.ID,
		&p.DocumentID,
		&p.Index,
		&p.Content,
		&p.ContentLength,
		&p.SectionLabel,
		&embedding,
		&p.EmbeddingModel,
		&p.Source,
		&p.DocumentType,
		&p.Categories,
		&p.DocumentTitle,
		&p.DocumentNumber,
		&p.Language,
	)
	if err != nil {
		return nil, err
	}
	if embedding != nil {
		p.Embedding = embedding.Slice()
	}
	return p, nil
}

// GetByDocument retrieves all passages of a document ordered by ordinal
func (r *PostgresPassageRepository) GetByDocument(ctx context.Context, documentID uuid.UUID) ([]models.Passage, error) {
	query := `SELECT` + passageColumns + ` FROM passages WHERE document_id = $1 ORDER BY idx`

	rows, err := r.db.Query(ctx, query, documentID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query passages: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	return collectPassages(rows)
}

// DeleteByDocument removes all passages of a document
func (r *PostgresPassageRepository) DeleteByDocument(ctx context.Context, documentID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM passages WHERE document_id = $1`, documentID)
	if err != nil {
		return fmt.Errorf("%w: failed to delete passages: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// ListEmbedded returns every passage with a vector across the filtered
// document set. Scoring happens in the search service so ranking semantics
// stay identical across store backends.
func (r *PostgresPassageRepository) ListEmbedded(ctx context.Context, filter models.DocumentFilter) ([]models.Passage, error) {
	query := `SELECT` + passageColumns + ` FROM passages WHERE embedding IS NOT NULL`
	args := []interface{}{}

	if filter.Source != "" {
		args = append(args, filter.Source)
		query += fmt.Sprintf(" AND source = $%d", len(args))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		query += fmt.Sprintf(" AND $%d = ANY(categories)", len(args))
	}
	query += " ORDER BY document_id, idx"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query embedded passages: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	return collectPassages(rows)
}

func collectPassages(rows pgx.Rows) ([]models.Passage, error) {
	var passages []models.Passage
	for rows.Next() {
		p, err := scanPassage(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to scan passage: %v", ErrStoreUnavailable, err)
		}
		passages = append(passages, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: error iterating passages: %v", ErrStoreUnavailable, err)
	}
	return passages, nil
}
