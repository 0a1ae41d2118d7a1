package ingestion_engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/krypta-docs/krypta/internal/models"
)

// ErrNoChunks means chunking produced nothing for non-empty input. Never a
// silent "ready with no chunks" state.
var ErrNoChunks = errors.New("chunking produced no chunks for non-empty text")

// snapLookback bounds how far a window boundary may move backwards to find a
// preferred delimiter.
const snapLookback = 200

// Chunker splits normalized text into retrieval-sized units, guided by the
// structural hints extraction produced.
type Chunker struct {
	MaxChars         int
	Overlap          int
	SingleChunkWords int
}

func NewChunker(maxChars, overlap, singleChunkWords int) *Chunker {
	if maxChars < 1 {
		maxChars = 1200
	}
	if overlap < 0 || overlap >= maxChars {
		overlap = maxChars / 5
	}
	return &Chunker{MaxChars: maxChars, Overlap: overlap, SingleChunkWords: singleChunkWords}
}

// Chunk produces the ordered, contiguously indexed chunk set for one
// document. fileName feeds the spreadsheet prefix so downstream ranking can
// weight filename relevance.
func (c *Chunker) Chunk(text string, hints models.StructuralHints, fileName string) ([]models.DocumentChunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrNoChunks
	}

	// Short documents become exactly one chunk regardless of strategy;
	// avoids degenerate over-chunking of short OCR results.
	if len(strings.Fields(text)) < c.SingleChunkWords {
		single := strings.TrimSpace(stripMarkers(text))
		if single == "" {
			return nil, ErrNoChunks
		}
		return reindex([]models.DocumentChunk{{
			Text:       single,
			CharEnd:    len(single),
			TokenCount: approxTokens(single),
		}}), nil
	}

	var chunks []models.DocumentChunk
	switch hints.Kind {
	case models.HintSlides:
		chunks = c.chunkSlides(text, hints.Slides)
	case models.HintCells:
		chunks = c.chunkRows(hints.Rows, fileName)
	default:
		chunks = c.chunkProse(text)
	}

	chunks = reindex(chunks)
	if len(chunks) == 0 {
		return nil, ErrNoChunks
	}
	return chunks, nil
}

// chunkSlides emits one chunk per slide when it fits, otherwise splits the
// slide by sentence boundaries with each piece retaining the parent slide
// number (retrieval can still cite "slide 7"). Missing markers despite slide
// hints fall back to plain chunking over marker-stripped text.
func (c *Chunker) chunkSlides(text string, slides []models.SlideBoundary) []models.DocumentChunk {
	if len(slides) == 0 {
		return c.chunkProse(stripMarkers(text))
	}

	var out []models.DocumentChunk
	for _, s := range slides {
		if s.Start < 0 || s.End > len(text) || s.Start >= s.End {
			continue
		}
		body := strings.TrimSpace(text[s.Start:s.End])
		if body == "" {
			continue
		}
		if len(body) <= c.MaxChars {
			out = append(out, models.DocumentChunk{
				Text:       body,
				SlideNum:   s.Number,
				CharStart:  s.Start,
				CharEnd:    s.End,
				TokenCount: approxTokens(body),
			})
			continue
		}
		for _, piece := range accumulateSentences(body, c.MaxChars) {
			out = append(out, models.DocumentChunk{
				Text:       piece,
				SlideNum:   s.Number,
				CharStart:  s.Start,
				CharEnd:    s.End,
				TokenCount: approxTokens(piece),
			})
		}
	}

	if len(out) == 0 {
		return c.chunkProse(stripMarkers(text))
	}
	return out
}

// chunkRows emits one chunk per row group, prefixed with the source filename.
func (c *Chunker) chunkRows(rows []models.RowGroup, fileName string) []models.DocumentChunk {
	var out []models.DocumentChunk
	for _, r := range rows {
		if strings.TrimSpace(r.Text) == "" {
			continue
		}
		content := fmt.Sprintf("%s — %s row %d: %s", fileName, r.Sheet, r.Row, r.Text)
		out = append(out, models.DocumentChunk{
			Text:       content,
			SheetName:  r.Sheet,
			RowNum:     r.Row,
			CellRange:  r.CellRange,
			TokenCount: approxTokens(content),
		})
	}
	return out
}

// chunkProse slides fixed windows forward by MaxChars-Overlap, snapping each
// window end to the nearest preferred delimiter (paragraph, sentence, word)
// within a bounded look-back so chunks don't split mid-word.
func (c *Chunker) chunkProse(text string) []models.DocumentChunk {
	var out []models.DocumentChunk
	n := len(text)
	start := 0
	for start < n {
		end := start + c.MaxChars
		if end >= n {
			end = n
		} else {
			end = snapBoundary(text, start, end)
		}

		piece := strings.TrimSpace(text[start:end])
		if piece != "" {
			out = append(out, models.DocumentChunk{
				Text:       piece,
				CharStart:  start,
				CharEnd:    end,
				TokenCount: approxTokens(piece),
			})
		}

		if end >= n {
			break
		}
		next := end - c.Overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return out
}

// snapBoundary moves end backwards (at most snapLookback) to the best
// delimiter: paragraph break, then sentence break, then word break.
func snapBoundary(text string, start, end int) int {
	low := end - snapLookback
	if low < start+1 {
		low = start + 1
	}
	window := text[low:end]

	if i := strings.LastIndex(window, "\n\n"); i >= 0 {
		return low + i + 2
	}
	best := -1
	for _, delim := range []string{". ", "! ", "? ", ".\n", "!\n", "?\n"} {
		if i := strings.LastIndex(window, delim); i > best {
			best = i + len(delim)
		}
	}
	if best > 0 {
		return low + best
	}
	if i := strings.LastIndexAny(window, " \n\t"); i >= 0 {
		return low + i + 1
	}
	return end
}

// accumulateSentences packs whole sentences into pieces of at most maxChars.
// A single sentence longer than maxChars is emitted as-is rather than cut.
func accumulateSentences(text string, maxChars int) []string {
	var (
		pieces []string
		buf    strings.Builder
	)
	flush := func() {
		if s := strings.TrimSpace(buf.String()); s != "" {
			pieces = append(pieces, s)
		}
		buf.Reset()
	}
	for _, sentence := range splitSentences(text) {
		if buf.Len() > 0 && buf.Len()+len(sentence)+1 > maxChars {
			flush()
		}
		if buf.Len() > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(sentence)
	}
	flush()
	return pieces
}

// splitSentences cuts after ./!/? followed by whitespace. Cheap and good
// enough for chunk boundaries; abbreviations just make slightly odd cuts.
func splitSentences(text string) []string {
	var (
		out  []string
		last int
	)
	for i := 0; i < len(text)-1; i++ {
		ch := text[i]
		if (ch == '.' || ch == '!' || ch == '?') && (text[i+1] == ' ' || text[i+1] == '\n') {
			if s := strings.TrimSpace(text[last : i+1]); s != "" {
				out = append(out, s)
			}
			last = i + 1
		}
	}
	if s := strings.TrimSpace(text[last:]); s != "" {
		out = append(out, s)
	}
	return out
}

// reindex drops empties and assigns contiguous 0-based positions.
func reindex(chunks []models.DocumentChunk) []models.DocumentChunk {
	out := chunks[:0]
	pos := 0
	for _, ch := range chunks {
		if strings.TrimSpace(ch.Text) == "" {
			continue
		}
		ch.Position = pos
		pos++
		out = append(out, ch)
	}
	return out
}

func stripMarkers(text string) string {
	return strings.ReplaceAll(text, "\f", "\n")
}

// approxTokens is a cheap token estimator (~4 chars ≈ 1 token).
func approxTokens(s string) int {
	n := len([]rune(s))
	if n <= 0 {
		return 0
	}
	return (n + 3) / 4
}
