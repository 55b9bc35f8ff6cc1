package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"regadvisor-backend/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresDocumentRepository handles database operations for documents
type PostgresDocumentRepository struct {
	db *pgxpool.Pool
}

// NewPostgresDocumentRepository creates a new document repository
func NewPostgresDocumentRepository(db *pgxpool.Pool) *PostgresDocumentRepository {
	return &PostgresDocumentRepository{db: db}
}

// Create creates a new document
func (r *PostgresDocumentRepository) Create(ctx context.Context, doc *models.Document) error {
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	if doc.Status == "" {
		doc.Status = models.StatusPending
	}
	if doc.Language == "" {
		doc.Language = "en"
	}

	query := `
		INSERT INTO documents (
			id, source, doc_type, categories, title, short_title, document_number,
			source_url, language, published_at, effective_at, full_text, summary,
			status, passage_count, last_error, archive_path
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17
		) RETURNING created_at, updated_at`

	err := r.db.QueryRow(
		ctx, query,
		doc.ID,
		doc.Source,
		doc.Type,
		doc.Categories,
		doc.Title,
		doc.ShortTitle,
		doc.DocumentNumber,
		doc.SourceURL,
		doc.Language,
		doc.PublishedAt,
		doc.EffectiveAt,
		doc.FullText,
		doc.Summary,
		doc.Status,
		doc.PassageCount,
		doc.LastError,
		doc.ArchivePath,
	).Scan(&doc.CreatedAt, &doc.UpdatedAt)

	if err != nil {
		return fmt.Errorf("%w: failed to create document: %v", ErrStoreUnavailable, err)
	}
	return nil
}

const documentColumns = `
	id, source, doc_type, categories, title, short_title, document_number,
	source_url, language, published_at, effective_at, full_text, summary,
	status, passage_count, last_error, archive_path, created_at, updated_at, embedded_at`

func scanDocument(row pgx.Row) (*models.Document, error) {
	doc := &models.Document{}
	err := row.Scan(
		&doc.ID,
		&doc.Source,
		&doc.Type,
		&doc.Categories,
		&doc.Title,
		&doc.ShortTitle,
		&doc.DocumentNumber,
		&doc.SourceURL,
		&doc.Language,
		&doc.PublishedAt,
		&doc.EffectiveAt,
		&doc.FullText,
		&doc.Summary,
		&doc.Status,
		&doc.PassageCount,
		&doc.LastError,
		&doc.ArchivePath,
		&doc.CreatedAt,
		&doc.UpdatedAt,
		&doc.EmbeddedAt,
	)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// GetByID retrieves a document by ID
func (r *PostgresDocumentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	query := `SELECT` + documentColumns + ` FROM documents WHERE id = $1`

	doc, err := scanDocument(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDocumentNotFound
		}
		return nil, fmt.Errorf("%w: failed to get document: %v", ErrStoreUnavailable, err)
	}
	return doc, nil
}

// List retrieves documents filtered by source and topical category
func (r *PostgresDocumentRepository) List(ctx context.Context, filter models.DocumentFilter) ([]models.Document, error) {
	query := `SELECT` + documentColumns + ` FROM documents WHERE 1=1`
	args := []interface{}{}

	if filter.Source != "" {
		args = append(args, filter.Source)
		query += fmt.Sprintf(" AND source = $%d", len(args))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		query += fmt.Sprintf(" AND $%d = ANY(categories)", len(args))
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list documents: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to scan document: %v", ErrStoreUnavailable, err)
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: error iterating documents: %v", ErrStoreUnavailable, err)
	}

	return docs, nil
}

// UpdateStatus transitions a document to a new processing status
func (r *PostgresDocumentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.DocumentStatus) error {
	query := `UPDATE documents SET status = $2, updated_at = NOW() WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("%w: failed to update status: %v", ErrStoreUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

// MarkError transitions a document to error status with a message
func (r *PostgresDocumentRepository) MarkError(ctx context.Context, id uuid.UUID, message string) error {
	query := `
		UPDATE documents SET status = $2, last_error = $3, updated_at = NOW()
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, models.StatusError, message)
	if err != nil {
		return fmt.Errorf("%w: failed to mark document error: %v", ErrStoreUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

// MarkEmbedded transitions a document to embedded status, recording the
// passage count and completion timestamp and clearing any previous error
func (r *PostgresDocumentRepository) MarkEmbedded(ctx context.Context, id uuid.UUID, passageCount int, embeddedAt time.Time) error {
	query := `
		UPDATE documents SET
			status = $2,
			passage_count = $3,
			embedded_at = $4,
			last_error = NULL,
			updated_at = NOW()
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, models.StatusEmbedded, passageCount, embeddedAt)
	if err != nil {
		return fmt.Errorf("%w: failed to mark document embedded: %v", ErrStoreUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

// SetArchivePath records the blob storage path of the raw document text
func (r *PostgresDocumentRepository) SetArchivePath(ctx context.Context, id uuid.UUID, path string) error {
	query := `UPDATE documents SET archive_path = $2, updated_at = NOW() WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, path)
	if err != nil {
		return fmt.Errorf("%w: failed to set archive path: %v", ErrStoreUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDocumentNotFound
	}
	return nil
}
