package models

import (
	"time"
)

// SearchResult pairs a passage with its parent document and a cosine
// similarity score. Produced fresh per query, never stored.
type SearchResult struct {
	Passage  Passage   `json:"passage"`
	Document *Document `json:"document,omitempty"`
	Score    float64   `json:"score"`
}

// Citation references a document/passage pair that supported an answer
type Citation struct {
	DocumentID     string  `json:"document_id"`
	DocumentTitle  string  `json:"document_title"`
	DocumentNumber *string `json:"document_number,omitempty"`
	SectionLabel   *string `json:"section_label,omitempty"`
	Excerpt        string  `json:"excerpt"`
	SourceURL      string  `json:"source_url,omitempty"`
	Score          float64 `json:"score"`
}

// Answer is the transient result of a grounded question-answering request
type Answer struct {
	Text               string     `json:"text"`
	Citations          []Citation `json:"citations"`
	Confidence         float64    `json:"confidence"` // in [0, 1]
	HasRelevantSources bool       `json:"has_relevant_sources"`
	Disclaimer         string     `json:"disclaimer,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// ChatMessage is one turn of conversation history, chronological order
type ChatMessage struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}
