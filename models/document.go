package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// DocumentStatus represents the processing status of a document
type DocumentStatus string

const (
	StatusPending  DocumentStatus = "pending"
	StatusScraped  DocumentStatus = "scraped"
	StatusChunked  DocumentStatus = "chunked"
	StatusEmbedded DocumentStatus = "embedded"
	StatusError    DocumentStatus = "error"
)

// DocumentType classifies the kind of regulatory text
type DocumentType string

const (
	DocTypeRule      DocumentType = "rule"
	DocTypeGuideline DocumentType = "guideline"
	DocTypeQA        DocumentType = "qa"
	DocTypeStatute   DocumentType = "statute"
	DocTypeStandard  DocumentType = "standard"
)

// Document represents a single regulatory text unit in the corpus
type Document struct {
	ID             uuid.UUID      `json:"id"`
	Source         string         `json:"source" validate:"required"` // regulator/jurisdiction tag, e.g. "BaFin", "SEC"
	Type           DocumentType   `json:"type" validate:"required"`
	Categories     []string       `json:"categories,omitempty"` // topical tags, e.g. "esg", "fund_reporting"
	Title          string         `json:"title" validate:"required"`
	ShortTitle     *string        `json:"short_title,omitempty"`
	DocumentNumber *string        `json:"document_number,omitempty"`
	SourceURL      string         `json:"source_url,omitempty"`
	Language       string         `json:"language"`
	PublishedAt    *time.Time     `json:"published_at,omitempty"`
	EffectiveAt    *time.Time     `json:"effective_at,omitempty"`
	FullText       *string        `json:"full_text,omitempty"` // may be absent pending later capture
	Summary        *string        `json:"summary,omitempty"`   // fallback text when full text is missing
	Status         DocumentStatus `json:"status"`
	PassageCount   int            `json:"passage_count"`
	LastError      *string        `json:"last_error,omitempty"`
	ArchivePath    *string        `json:"archive_path,omitempty"` // blob storage path of the raw text
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	EmbeddedAt     *time.Time     `json:"embedded_at,omitempty"`
}

// Content returns the text to segment: the full text when present,
// otherwise the summary. Empty string means nothing usable exists.
func (d *Document) Content() string {
	if d.FullText != nil && *d.FullText != "" {
		return *d.FullText
	}
	if d.Summary != nil && *d.Summary != "" {
		return *d.Summary
	}
	return ""
}

// Validate checks required document fields before ingestion
func (d *Document) Validate() error {
	return validator.New().Struct(d)
}

// DocumentFilter restricts document listings by source and topical category
type DocumentFilter struct {
	Source   string
	Category string
}

// Matches reports whether the document satisfies the filter
func (f DocumentFilter) Matches(d *Document) bool {
	if f.Source != "" && d.Source != f.Source {
		return false
	}
	if f.Category != "" {
		found := false
		for _, c := range d.Categories {
			if c == f.Category {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
