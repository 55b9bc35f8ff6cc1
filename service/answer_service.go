package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"regadvisor-backend/config"
	"regadvisor-backend/models"
	"regadvisor-backend/providers"

	"go.uber.org/zap"
)

// AnswerService assembles grounded answers: it retrieves the most relevant
// passages, builds a constrained generation request, and enforces the
// no-hallucination contract. When no sufficiently relevant source exists
// the expected outcome is an explicit refusal, never a best-effort guess.
type AnswerService struct {
	search    *SearchService
	generator providers.Generator
	retrieval config.RetrievalConfig
	language  string
	logger    *zap.Logger
}

// AnswerServiceOption is a functional option for AnswerService
type AnswerServiceOption func(*AnswerService)

// AnswerWithSearchService sets the similarity search service
func AnswerWithSearchService(search *SearchService) AnswerServiceOption {
	return func(s *AnswerService) {
		s.search = search
	}
}

// AnswerWithGenerator sets the generation provider
func AnswerWithGenerator(generator providers.Generator) AnswerServiceOption {
	return func(s *AnswerService) {
		s.generator = generator
	}
}

// AnswerWithLanguage sets the working language answers must be written in
func AnswerWithLanguage(language string) AnswerServiceOption {
	return func(s *AnswerService) {
		s.language = language
	}
}

// AnswerWithLogger sets the logger
func AnswerWithLogger(logger *zap.Logger) AnswerServiceOption {
	return func(s *AnswerService) {
		s.logger = logger
	}
}

// NewAnswerService creates a new answer service
func NewAnswerService(retrieval config.RetrievalConfig, opts ...AnswerServiceOption) *AnswerService {
	s := &AnswerService{
		retrieval: retrieval,
		language:  "English",
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Answer responds to a compliance question strictly from the corpus.
func (s *AnswerService) Answer(ctx context.Context, question string, history []models.ChatMessage, filter models.DocumentFilter) (*models.Answer, error) {
	if s.search == nil {
		return nil, errors.New("search service not set")
	}
	if s.generator == nil {
		return nil, errors.New("generator not set")
	}

	// 1. Search wider than the final context so the strict filter has
	// candidates to choose from
	results, err := s.search.Search(ctx, question, SearchOptions{
		TopK:     s.retrieval.SearchTopK,
		MinScore: s.retrieval.MinScore,
		Filter:   filter,
	})
	if err != nil {
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}

	// 2. Only passages above the stricter threshold populate the context
	// and the citation list
	var relevant []models.SearchResult
	for _, r := range results {
		if r.Score >= s.retrieval.StrictScore {
			relevant = append(relevant, r)
		}
	}
	if limit := s.retrieval.ContextLimit; limit > 0 && len(relevant) > limit {
		relevant = relevant[:limit]
	}

	confidence := s.computeConfidence(relevant)

	// Abort before the generation call when the caller has gone away;
	// that is the most expensive step.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 3. Delegate generation under the grounding contract
	system := s.systemInstruction(len(relevant) > 0)
	prompt := s.buildPrompt(question, relevant)

	text, err := s.generator.Generate(ctx, system, toProviderMessages(history), prompt)
	if err != nil {
		return nil, fmt.Errorf("generation failed: %w", err)
	}

	answer := &models.Answer{
		Text:               text,
		Citations:          s.buildCitations(relevant),
		Confidence:         confidence,
		HasRelevantSources: len(relevant) > 0,
		Disclaimer:         s.disclaimer(confidence, len(relevant) > 0),
		CreatedAt:          time.Now(),
	}

	s.logger.Info("answer assembled",
		zap.Int("retrieved", len(results)),
		zap.Int("used_in_context", len(relevant)),
		zap.Float64("confidence", answer.Confidence),
		zap.Bool("has_relevant_sources", answer.HasRelevantSources))

	return answer, nil
}

// computeConfidence blends the single best score with the mean score of
// the passages actually used in context, capped to avoid false certainty
// and floored near zero when no relevant source exists.
func (s *AnswerService) computeConfidence(relevant []models.SearchResult) float64 {
	if len(relevant) == 0 {
		return 0
	}

	best := relevant[0].Score
	sum := 0.0
	for _, r := range relevant {
		sum += r.Score
	}
	mean := sum / float64(len(relevant))

	confidence := s.retrieval.BestWeight*best + s.retrieval.MeanWeight*mean
	if confidence < 0 {
		confidence = 0
	}
	if cap := s.retrieval.ConfidenceCap; cap > 0 && confidence > cap {
		confidence = cap
	}
	return confidence
}

// disclaimer returns the tiered verification notice
func (s *AnswerService) disclaimer(confidence float64, hasSources bool) string {
	if !hasSources {
		return "No sufficiently relevant source was found in the regulatory corpus. Please consult the primary sources or a qualified compliance officer."
	}
	if confidence < s.retrieval.LowConfidence {
		return "Low confidence: verify this answer against the primary regulatory sources before acting on it."
	}
	if confidence < s.retrieval.MediumConfidence {
		return "Consider verifying this answer against the cited primary sources."
	}
	return ""
}

// systemInstruction builds the grounding contract for the generation
// service.
func (s *AnswerService) systemInstruction(hasSources bool) string {
	var b strings.Builder
	b.WriteString("You are a compliance assistant answering questions about financial regulations. ")
	b.WriteString("Answer strictly and exclusively from the numbered source passages provided. ")
	b.WriteString("Never fabricate section or article numbers. ")
	b.WriteString("Cite the source label (e.g. [Source 2]) inline for every claim you make. ")
	b.WriteString("If the sources allow more than one interpretation, state the uncertainty explicitly instead of guessing. ")
	if !hasSources {
		b.WriteString("No source passages are available for this question. You must state that the corpus contains no supporting text and decline to answer. Do not answer from outside knowledge. ")
	}
	b.WriteString(fmt.Sprintf("Respond in %s.", s.language))
	return b.String()
}

// buildPrompt lays out the numbered source passages followed by the
// question
func (s *AnswerService) buildPrompt(question string, relevant []models.SearchResult) string {
	var b strings.Builder

	if len(relevant) == 0 {
		b.WriteString("No source passages were found for this question.\n\n")
	} else {
		b.WriteString("Source passages:\n\n")
		for i, r := range relevant {
			label := r.Passage.DocumentTitle
			if r.Passage.DocumentNumber != nil {
				label += " (" + *r.Passage.DocumentNumber + ")"
			}
			if r.Passage.SectionLabel != nil {
				label += ", " + *r.Passage.SectionLabel
			}
			fmt.Fprintf(&b, "[Source %d] %s\n%s\n\n", i+1, label, r.Passage.Content)
		}
	}

	b.WriteString("Question: ")
	b.WriteString(question)
	return b.String()
}

// buildCitations creates one citation per passage used in context, sorted
// by score descending (search results already arrive in that order)
func (s *AnswerService) buildCitations(relevant []models.SearchResult) []models.Citation {
	citations := make([]models.Citation, 0, len(relevant))
	for _, r := range relevant {
		excerpt := r.Passage.Content
		if limit := s.retrieval.ExcerptLength; limit > 0 && len(excerpt) > limit {
			cut := excerpt[:limit]
			// Avoid cutting a multi-byte rune at the boundary.
			for len(cut) > 0 && !utf8.ValidString(cut) {
				cut = cut[:len(cut)-1]
			}
			excerpt = strings.TrimSpace(cut) + "…"
		}

		sourceURL := ""
		if r.Document != nil {
			sourceURL = r.Document.SourceURL
		}

		citations = append(citations, models.Citation{
			DocumentID:     r.Passage.DocumentID.String(),
			DocumentTitle:  r.Passage.DocumentTitle,
			DocumentNumber: r.Passage.DocumentNumber,
			SectionLabel:   r.Passage.SectionLabel,
			Excerpt:        excerpt,
			SourceURL:      sourceURL,
			Score:          r.Score,
		})
	}
	return citations
}

func toProviderMessages(history []models.ChatMessage) []providers.Message {
	messages := make([]providers.Message, 0, len(history))
	for _, msg := range history {
		messages = append(messages, providers.Message{Role: msg.Role, Content: msg.Content})
	}
	return messages
}
