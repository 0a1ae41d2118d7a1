package ingestion_engine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krypta-docs/krypta/internal/models"
)

func proseHints() models.StructuralHints {
	return models.StructuralHints{Kind: models.HintNone}
}

func TestChunkEmptyTextIsAnError(t *testing.T) {
	c := NewChunker(1200, 240, 100)
	_, err := c.Chunk("   \n\t ", proseHints(), "a.txt")
	require.ErrorIs(t, err, ErrNoChunks)
}

func TestChunkShortDocumentBecomesSingleChunk(t *testing.T) {
	c := NewChunker(1200, 240, 100)
	text := strings.TrimSpace(strings.Repeat("fifty words of content here ", 10)) // 50 words

	chunks, err := c.Chunk(text, proseHints(), "a.txt")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Position)
	assert.Equal(t, text, chunks[0].Text)
	assert.Positive(t, chunks[0].TokenCount)
}

func TestChunkSlidesOnePerSlide(t *testing.T) {
	c := NewChunker(1200, 240, 5)
	text := "Intro to distributed systems\fConsensus and quorums\fFailure detectors in practice"
	slides := []models.SlideBoundary{
		{Number: 1, Start: 0, End: 28},
		{Number: 2, Start: 29, End: 50},
		{Number: 3, Start: 51, End: len(text)},
	}

	chunks, err := c.Chunk(text, models.StructuralHints{Kind: models.HintSlides, Slides: slides}, "deck.pptx")
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	for i, ch := range chunks {
		assert.Equal(t, i, ch.Position)
		assert.Equal(t, i+1, ch.SlideNum)
		assert.NotContains(t, ch.Text, "\f")
	}
	assert.Equal(t, "Intro to distributed systems", chunks[0].Text)
	assert.Equal(t, "Failure detectors in practice", chunks[2].Text)
}

func TestChunkSlidesOversizedSlideSplitsKeepingSlideNum(t *testing.T) {
	c := NewChunker(80, 10, 5)
	slide := "First sentence of a very long slide body. Second sentence with more words in it. Third sentence closing the slide out."
	slides := []models.SlideBoundary{{Number: 7, Start: 0, End: len(slide)}}

	chunks, err := c.Chunk(slide, models.StructuralHints{Kind: models.HintSlides, Slides: slides}, "deck.pptx")
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)
	for _, ch := range chunks {
		assert.Equal(t, 7, ch.SlideNum, "split pieces still cite the parent slide")
	}
}

func TestChunkThreeSlidesWithOversizedMiddleSlide(t *testing.T) {
	c := NewChunker(80, 10, 5)
	s1 := "Short opening slide."
	s2 := "A much longer middle slide with several sentences. It keeps going well past the limit. And then it adds one more sentence for good measure."
	s3 := "Short closing slide."
	text := s1 + "\f" + s2 + "\f" + s3
	slides := []models.SlideBoundary{
		{Number: 1, Start: 0, End: len(s1)},
		{Number: 2, Start: len(s1) + 1, End: len(s1) + 1 + len(s2)},
		{Number: 3, Start: len(s1) + 1 + len(s2) + 1, End: len(text)},
	}

	chunks, err := c.Chunk(text, models.StructuralHints{Kind: models.HintSlides, Slides: slides}, "deck.pptx")
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(chunks), 4, "slide 2 must split into multiple chunks")

	seen := map[int]bool{}
	for i, ch := range chunks {
		assert.Equal(t, i, ch.Position)
		seen[ch.SlideNum] = true
	}
	assert.True(t, seen[1] && seen[2] && seen[3], "every slide number must appear")
}

func TestChunkSlidesWithoutBoundariesFallsBackToProse(t *testing.T) {
	c := NewChunker(1200, 240, 5)
	text := "alpha beta gamma\fdelta epsilon zeta"

	chunks, err := c.Chunk(text, models.StructuralHints{Kind: models.HintSlides}, "deck.pptx")
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	for _, ch := range chunks {
		assert.NotContains(t, ch.Text, "\f", "markers must not leak into chunk text")
	}
}

func TestChunkRowsOnePerRowWithFileNamePrefix(t *testing.T) {
	c := NewChunker(1200, 240, 5)
	rows := []models.RowGroup{
		{Sheet: "budget", Row: 2, CellRange: "A2:C2", Text: "rent | 1200 | monthly"},
		{Sheet: "budget", Row: 3, CellRange: "A3:C3", Text: "power | 90 | monthly"},
		{Sheet: "budget", Row: 5, CellRange: "A5:A5", Text: ""},
	}

	chunks, err := c.Chunk("rent 1200 monthly power 90 monthly extra words", models.StructuralHints{Kind: models.HintCells, Rows: rows}, "budget.xlsx")
	require.NoError(t, err)
	require.Len(t, chunks, 2, "empty rows are dropped")

	assert.Contains(t, chunks[0].Text, "budget.xlsx")
	assert.Contains(t, chunks[0].Text, "rent | 1200 | monthly")
	assert.Equal(t, "budget", chunks[0].SheetName)
	assert.Equal(t, 2, chunks[0].RowNum)
	assert.Equal(t, "A2:C2", chunks[0].CellRange)
	assert.Equal(t, []int{0, 1}, []int{chunks[0].Position, chunks[1].Position})
}

func TestChunkProseWindowsAreBoundedAndContiguous(t *testing.T) {
	c := NewChunker(100, 20, 5)
	sentence := "every chunk should end cleanly at a sentence or word boundary. "
	text := strings.Repeat(sentence, 20)

	chunks, err := c.Chunk(text, proseHints(), "a.txt")
	require.NoError(t, err)
	require.Greater(t, len(chunks), 3)

	for i, ch := range chunks {
		assert.Equal(t, i, ch.Position, "positions must be contiguous")
		assert.LessOrEqual(t, len(ch.Text), c.MaxChars)
		assert.NotEmpty(t, strings.TrimSpace(ch.Text))
	}
	for i := 1; i < len(chunks); i++ {
		assert.Greater(t, chunks[i].CharStart, chunks[i-1].CharStart)
		assert.Less(t, chunks[i].CharStart, chunks[i-1].CharEnd, "windows must overlap")
	}
}

func TestChunkProseMakesForwardProgressWithoutDelimiters(t *testing.T) {
	c := NewChunker(50, 10, 5)
	text := strings.Repeat("x", 1000) + " " + strings.Repeat("y", 1000)

	chunks, err := c.Chunk(text, proseHints(), "a.txt")
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	var total int
	for _, ch := range chunks {
		total += len(ch.Text)
	}
	assert.GreaterOrEqual(t, total, 2000, "all input text must be covered")
}

func TestApproxTokens(t *testing.T) {
	assert.Equal(t, 0, approxTokens(""))
	assert.Equal(t, 1, approxTokens("abc"))
	assert.Equal(t, 3, approxTokens("twelve chars"))
}
