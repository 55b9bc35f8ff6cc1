package models

import (
	"github.com/google/uuid"
)

// Passage represents a contiguous excerpt of a document's text, the unit
// of embedding and retrieval. Document metadata is denormalized onto the
// passage so search results are self-describing without a join.
type Passage struct {
	ID             uuid.UUID    `json:"id"`
	DocumentID     uuid.UUID    `json:"document_id"`
	Index          int          `json:"index"` // ordinal within the document, 0-based
	Content        string       `json:"content"`
	ContentLength  int          `json:"content_length"`
	SectionLabel   *string      `json:"section_label,omitempty"` // e.g. "§ 34f", "Article 8"
	Embedding      []float32    `json:"embedding,omitempty"`
	EmbeddingModel string       `json:"embedding_model,omitempty"`
	Source         string       `json:"source"`
	DocumentType   DocumentType `json:"document_type"`
	Categories     []string     `json:"categories,omitempty"`
	DocumentTitle  string       `json:"document_title"`
	DocumentNumber *string      `json:"document_number,omitempty"`
	Language       string       `json:"language"`
}

// HasEmbedding reports whether a non-empty vector has been assigned
func (p *Passage) HasEmbedding() bool {
	return len(p.Embedding) > 0
}
