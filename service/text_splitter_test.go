package service

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/daureny/rag-chatbot-be/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitTextRespectsChunkSize(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 1000; i++ {
		fmt.Fprintf(&sb, "w%03d ", i)
	}
	text := sb.String() // 5000 characters of space-separated words

	splitter := NewTextSplitter(1200, 150)
	chunks := splitter.SplitText(text)

	require.NotEmpty(t, chunks)
	for i, chunk := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(chunk), 1200, "chunk %d too long", i)
	}
}

func TestSplitTextChunkCountEstimate(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 1000; i++ {
		fmt.Fprintf(&sb, "w%03d ", i)
	}

	splitter := NewTextSplitter(1200, 150)
	chunks := splitter.SplitText(sb.String())

	// ceil((5000-150)/(1200-150)) = 5, allow one chunk of slack
	assert.InDelta(t, 5, len(chunks), 1)
}

func TestSplitTextOverlapCarriesTail(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 1000; i++ {
		fmt.Fprintf(&sb, "w%03d ", i)
	}

	splitter := NewTextSplitter(1200, 150)
	chunks := splitter.SplitText(sb.String())

	require.Greater(t, len(chunks), 1)
	for i := 1; i < len(chunks); i++ {
		head := string([]rune(chunks[i])[:50])
		assert.Contains(t, chunks[i-1], head, "chunk %d should start inside the tail of chunk %d", i, i-1)
	}
}

func TestSplitTextPrefersParagraphBoundaries(t *testing.T) {
	paraA := strings.Repeat("a", 600)
	paraB := strings.Repeat("b", 600)
	text := paraA + "\n\n" + paraB

	splitter := NewTextSplitter(700, 0)
	chunks := splitter.SplitText(text)

	require.Len(t, chunks, 2)
	assert.Equal(t, paraA, chunks[0])
	assert.Equal(t, paraB, chunks[1])
}

func TestSplitTextFallsBackToCharacters(t *testing.T) {
	text := strings.Repeat("x", 50) // no separator of any kind

	splitter := NewTextSplitter(10, 0)
	chunks := splitter.SplitText(text)

	require.Len(t, chunks, 5)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(chunk), 10)
	}
	assert.Equal(t, text, strings.Join(chunks, ""))
}

func TestSplitTextKeepsShortTextWhole(t *testing.T) {
	splitter := NewTextSplitter(4000, 500)
	chunks := splitter.SplitText("Короткий текст.\n\nВторой абзац.")

	require.Len(t, chunks, 1)
	assert.Equal(t, "Короткий текст.\n\nВторой абзац.", chunks[0])
}

func TestSplitDocumentsAssignsUniqueIDs(t *testing.T) {
	pages := []types.DocumentPage{
		{Text: strings.Repeat("раз два три. ", 100), Metadata: types.DocumentMetadata{Source: "doc one", Filename: "one.txt"}},
		{Text: "короткая страница", Metadata: types.DocumentMetadata{Source: "doc two", Filename: "two.txt"}},
	}

	splitter := NewTextSplitter(200, 20)
	chunks := splitter.SplitDocuments(pages)

	require.NotEmpty(t, chunks)
	seen := make(map[string]bool)
	for _, chunk := range chunks {
		assert.NotEmpty(t, chunk.ID)
		assert.False(t, seen[chunk.ID], "duplicate chunk id %s", chunk.ID)
		seen[chunk.ID] = true
		assert.NotEmpty(t, chunk.Metadata.Source)
	}
	assert.Equal(t, "doc two", chunks[len(chunks)-1].Metadata.Source)
}
