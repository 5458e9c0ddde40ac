package service

import (
	"strings"
	"unicode/utf8"

	"github.com/daureny/rag-chatbot-be/types"
	"github.com/google/uuid"
)

// TextSplitter breaks document text into overlapping chunks, preferring the
// largest structural separator that still fits: paragraphs, then lines, then
// sentences, then words, then single characters.
type TextSplitter struct {
	chunkSize    int
	chunkOverlap int
	separators   []string
}

func NewTextSplitter(chunkSize, chunkOverlap int) *TextSplitter {
	return &TextSplitter{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		separators:   []string{"\n\n", "\n", ".", " ", ""},
	}
}

// SplitText splits text into chunks of at most chunkSize characters, adjacent
// chunks sharing up to chunkOverlap characters.
func (t *TextSplitter) SplitText(text string) []string {
	return t.split(text, t.separators)
}

// SplitDocuments splits every page and assigns each chunk a fresh id, keeping
// the page metadata.
func (t *TextSplitter) SplitDocuments(pages []types.DocumentPage) []types.Chunk {
	var chunks []types.Chunk
	for _, page := range pages {
		for _, text := range t.SplitText(page.Text) {
			chunks = append(chunks, types.Chunk{
				ID:       uuid.NewString(),
				Text:     text,
				Metadata: page.Metadata,
			})
		}
	}
	return chunks
}

func (t *TextSplitter) split(text string, separators []string) []string {
	// Pick the first separator actually present; "" always matches and
	// splits into single characters.
	separator := separators[len(separators)-1]
	var remaining []string
	for i, s := range separators {
		if s == "" || strings.Contains(text, s) {
			separator = s
			remaining = separators[i+1:]
			break
		}
	}

	splits := splitKeepSeparator(text, separator)

	var final []string
	var pending []string
	for _, piece := range splits {
		if utf8.RuneCountInString(piece) < t.chunkSize {
			pending = append(pending, piece)
			continue
		}
		if len(pending) > 0 {
			final = append(final, t.merge(pending)...)
			pending = nil
		}
		if len(remaining) == 0 {
			final = append(final, piece)
		} else {
			final = append(final, t.split(piece, remaining)...)
		}
	}
	if len(pending) > 0 {
		final = append(final, t.merge(pending)...)
	}
	return final
}

// splitKeepSeparator splits text by separator, attaching each separator to the
// piece that follows it so no characters are lost on rejoin.
func splitKeepSeparator(text, separator string) []string {
	if separator == "" {
		return strings.Split(text, "")
	}
	parts := strings.Split(text, separator)
	splits := make([]string, 0, len(parts))
	if parts[0] != "" {
		splits = append(splits, parts[0])
	}
	for _, p := range parts[1:] {
		splits = append(splits, separator+p)
	}
	return splits
}

// merge greedily packs splits into chunks of at most chunkSize characters,
// carrying a suffix of up to chunkOverlap characters into the next chunk.
func (t *TextSplitter) merge(splits []string) []string {
	var docs []string
	var current []string
	total := 0

	for _, d := range splits {
		dLen := utf8.RuneCountInString(d)
		if total+dLen > t.chunkSize && total > 0 {
			if doc := strings.TrimSpace(strings.Join(current, "")); doc != "" {
				docs = append(docs, doc)
			}
			// Drop leading splits until the retained tail fits inside the
			// overlap and leaves room for the next split.
			for total > t.chunkOverlap || (total+dLen > t.chunkSize && total > 0) {
				total -= utf8.RuneCountInString(current[0])
				current = current[1:]
			}
		}
		current = append(current, d)
		total += dLen
	}
	if doc := strings.TrimSpace(strings.Join(current, "")); doc != "" {
		docs = append(docs, doc)
	}
	return docs
}
