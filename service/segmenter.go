package service

import (
	"regexp"
	"strings"
)

// OverlapMarker prefixes duplicated boundary text carried into a passage
// from its predecessor, so downstream consumers can detect the overlap.
const OverlapMarker = "…"

// PassageCandidate is a segmenter output: passage text plus the section
// label inherited from a detected header, if any.
type PassageCandidate struct {
	Text         string
	SectionLabel *string
}

// Segmenter splits regulatory text into bounded, slightly-overlapping
// passages, preferring natural section boundaries.
type Segmenter struct {
	maxSize int
	overlap int
	minSize int
}

// NewSegmenter creates a segmenter. maxSize bounds passage length in
// characters, overlap is the number of trailing characters carried into
// the next passage of the same section, minSize discards near-empty
// fragments.
func NewSegmenter(maxSize, overlap, minSize int) *Segmenter {
	if maxSize <= 0 {
		maxSize = 1500
	}
	if overlap < 0 {
		overlap = 0
	}
	if minSize < 0 {
		minSize = 0
	}
	return &Segmenter{
		maxSize: maxSize,
		overlap: overlap,
		minSize: minSize,
	}
}

// Regulatory section header patterns: symbol-prefixed numbered sections,
// "Article N", "Chapter N", and leading decimal-numbered heading lines.
var (
	sectionHeaderPattern = regexp.MustCompile(
		`(?mi)^[ \t]*(?:§+[ \t]*\d+[a-z]?\b.*|article[ \t]+\d+\b.*|chapter[ \t]+(?:\d+|[IVXLC]+)\b.*|\d+(?:\.\d+)*[ \t]+\p{Lu}.*)$`)

	paragraphSplitter = regexp.MustCompile(`\n[ \t]*\n`)
	sentenceSplitter  = regexp.MustCompile(`[^.!?]*[.!?]+(?:\s|$)|[^.!?]+$`)
)

// Segment splits text into ordered passage candidates. An empty result
// means the document has no usable text; callers treat that as an
// ingestion error.
func (s *Segmenter) Segment(text string) []PassageCandidate {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	// A document that fits in one passage needs no boundary analysis
	// and no overlap logic.
	if len(text) <= s.maxSize {
		if len(text) < s.minSize {
			return nil
		}
		return []PassageCandidate{{Text: text, SectionLabel: s.headerLabel(text)}}
	}

	var candidates []PassageCandidate
	for _, section := range s.splitSections(text) {
		parts := s.splitWithinSection(section.text)

		var kept []string
		for _, part := range parts {
			if len(part) < s.minSize {
				continue
			}
			kept = append(kept, part)
		}

		if s.overlap > 0 && len(kept) > 1 {
			kept = s.applyOverlap(kept)
		}

		for _, part := range kept {
			candidates = append(candidates, PassageCandidate{
				Text:         part,
				SectionLabel: section.label,
			})
		}
	}
	return candidates
}

type section struct {
	label *string
	text  string
}

// splitSections cuts text at regulatory header lines. Text preceding the
// first header becomes an unlabeled leading section when it is long enough
// to be meaningful.
func (s *Segmenter) splitSections(text string) []section {
	matches := sectionHeaderPattern.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return []section{{text: text}}
	}

	var sections []section

	leading := strings.TrimSpace(text[:matches[0][0]])
	if len(leading) >= s.minSize {
		sections = append(sections, section{text: leading})
	}

	for i, match := range matches {
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		body := strings.TrimSpace(text[match[0]:end])
		if body == "" {
			continue
		}
		label := strings.TrimSpace(text[match[0]:match[1]])
		sections = append(sections, section{label: &label, text: body})
	}
	return sections
}

// headerLabel returns the first line as a label when it matches a
// section header pattern.
func (s *Segmenter) headerLabel(text string) *string {
	firstLine := text
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		firstLine = text[:idx]
	}
	firstLine = strings.TrimSpace(firstLine)
	if loc := sectionHeaderPattern.FindStringIndex(firstLine); loc != nil && loc[0] == 0 && loc[1] == len(firstLine) {
		return &firstLine
	}
	return nil
}

// splitWithinSection bounds one logical section to maxSize: whole section
// if it fits, otherwise paragraphs accumulated into buffers, with a
// sentence-level fallback for paragraphs that alone exceed the bound.
func (s *Segmenter) splitWithinSection(text string) []string {
	if len(text) <= s.maxSize {
		return []string{text}
	}

	var parts []string
	var buf strings.Builder

	flush := func() {
		if buf.Len() > 0 {
			parts = append(parts, strings.TrimSpace(buf.String()))
			buf.Reset()
		}
	}

	for _, paragraph := range paragraphSplitter.Split(text, -1) {
		paragraph = strings.TrimSpace(paragraph)
		if paragraph == "" {
			continue
		}

		if len(paragraph) > s.maxSize {
			flush()
			parts = append(parts, s.splitSentences(paragraph)...)
			continue
		}

		if buf.Len() > 0 && buf.Len()+2+len(paragraph) > s.maxSize {
			flush()
		}
		if buf.Len() > 0 {
			buf.WriteString("\n\n")
		}
		buf.WriteString(paragraph)
	}
	flush()

	return parts
}

// splitSentences applies the same accumulate-and-flush rule at sentence
// granularity. A single sentence longer than maxSize is hard-cut so
// segmentation always terminates.
func (s *Segmenter) splitSentences(text string) []string {
	sentences := sentenceSplitter.FindAllString(text, -1)
	if len(sentences) == 0 {
		sentences = []string{text}
	}

	var parts []string
	var buf strings.Builder

	flush := func() {
		if buf.Len() > 0 {
			parts = append(parts, strings.TrimSpace(buf.String()))
			buf.Reset()
		}
	}

	for _, sentence := range sentences {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}

		if len(sentence) > s.maxSize {
			flush()
			for len(sentence) > s.maxSize {
				parts = append(parts, sentence[:s.maxSize])
				sentence = sentence[s.maxSize:]
			}
			if sentence != "" {
				buf.WriteString(sentence)
			}
			continue
		}

		if buf.Len() > 0 && buf.Len()+1+len(sentence) > s.maxSize {
			flush()
		}
		if buf.Len() > 0 {
			buf.WriteString(" ")
		}
		buf.WriteString(sentence)
	}
	flush()

	return parts
}

// applyOverlap prefixes each passage after the first with the trailing
// overlap characters of its predecessor, marked with an ellipsis.
func (s *Segmenter) applyOverlap(parts []string) []string {
	out := make([]string, len(parts))
	out[0] = parts[0]
	for i := 1; i < len(parts); i++ {
		prev := parts[i-1]
		tail := prev
		if len(prev) > s.overlap {
			tail = prev[len(prev)-s.overlap:]
		}
		// Avoid cutting a multi-byte rune at the boundary.
		for len(tail) > 0 && !isRuneStart(tail[0]) {
			tail = tail[1:]
		}
		out[i] = OverlapMarker + tail + "\n" + parts[i]
	}
	return out
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
