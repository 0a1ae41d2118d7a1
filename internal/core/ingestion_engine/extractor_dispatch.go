package ingestion_engine

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/krypta-docs/krypta/internal/core"
	"github.com/krypta-docs/krypta/internal/models"
)

// Confidence assigned to OCR output: the vision service returns no score of
// its own, so we pin a conservative constant.
const ocrConfidence = 0.6

// scannedCharsPerPage is the scanned-vs-native heuristic for PDFs: a text
// layer yielding fewer characters per page than this is assumed to be a scan.
const scannedCharsPerPage = 100

// scannedPlaceholder keeps a document browsable when every OCR engine fails.
// Degraded service, not an error.
const scannedPlaceholder = "[scanned document: text extraction unavailable]"

// Dispatcher routes a decrypted blob to the right extraction strategy and
// normalizes the output. Ordered dispatch, first match wins: presentations,
// raster images, PDFs, spreadsheets, then generic.
type Dispatcher struct {
	native      core.NativeExtractor
	vision      core.VisionExtractor // primary OCR engine
	fallbackOCR core.VisionExtractor // secondary OCR engine, may be nil
	minChars    int
}

func NewDispatcher(native core.NativeExtractor, vision, fallbackOCR core.VisionExtractor, minChars int) *Dispatcher {
	return &Dispatcher{native: native, vision: vision, fallbackOCR: fallbackOCR, minChars: minChars}
}

func (d *Dispatcher) Extract(ctx context.Context, data []byte, mediaType, fileName string) (*models.ExtractionResult, error) {
	var (
		res *models.ExtractionResult
		err error
	)

	switch {
	case isPresentation(mediaType):
		res, err = d.extractSlides(ctx, data, mediaType)
	case isImage(mediaType):
		res, err = d.extractImage(ctx, data, mediaType)
	case mediaType == "application/pdf":
		res, err = d.extractPDF(ctx, data)
	case isSpreadsheet(mediaType):
		res, err = d.extractSpreadsheet(ctx, data, mediaType, fileName)
	default:
		res, err = d.extractGeneric(ctx, data, mediaType)
	}
	if err != nil {
		return nil, err
	}

	if len(strings.TrimSpace(res.Text)) < d.minChars {
		return nil, &core.InsufficientContentError{Got: len(strings.TrimSpace(res.Text)), Min: d.minChars}
	}
	if res.WordCount == 0 {
		res.WordCount = len(strings.Fields(res.Text))
	}
	return res, nil
}

// extractSlides pulls per-slide text out of a presentation. Slide texts are
// separated by form feeds in the converter output; the boundaries feed
// slide-aware chunking downstream.
func (d *Dispatcher) extractSlides(ctx context.Context, data []byte, mediaType string) (*models.ExtractionResult, error) {
	nr, err := d.native.ExtractNative(ctx, data, mediaType)
	if err != nil {
		return nil, &core.ExtractionError{MediaType: mediaType, Cause: err}
	}

	text := normalizeKeepMarkers(nr.Text)
	var boundaries []models.SlideBoundary
	offset := 0
	slideNum := 0
	for _, part := range strings.SplitAfter(text, "\f") {
		body := strings.TrimSuffix(part, "\f")
		if strings.TrimSpace(body) != "" {
			slideNum++
			boundaries = append(boundaries, models.SlideBoundary{
				Number: slideNum,
				Start:  offset,
				End:    offset + len(body),
			})
		}
		offset += len(part)
	}

	return &models.ExtractionResult{
		Text:       text,
		Confidence: 0.9,
		PageCount:  len(boundaries),
		Hints:      models.StructuralHints{Kind: models.HintSlides, Slides: boundaries},
	}, nil
}

// extractImage runs the OCR chain on a raster image.
func (d *Dispatcher) extractImage(ctx context.Context, data []byte, mediaType string) (*models.ExtractionResult, error) {
	text, err := d.runOCRChain(ctx, data, mediaType)
	if err != nil {
		return nil, &core.ExtractionError{MediaType: mediaType, Cause: err}
	}
	return &models.ExtractionResult{
		Text:       text,
		Confidence: ocrConfidence,
		PageCount:  1,
		Hints:      models.StructuralHints{Kind: models.HintNone},
	}, nil
}

// extractPDF reads the text layer directly and falls back to OCR when the
// scanned-vs-native heuristic says there is no usable layer. If the whole OCR
// chain fails, a low-confidence placeholder keeps the document browsable.
func (d *Dispatcher) extractPDF(ctx context.Context, data []byte) (*models.ExtractionResult, error) {
	nr, err := d.native.ExtractNative(ctx, data, "application/pdf")
	if err == nil && !looksScanned(nr) {
		return &models.ExtractionResult{
			Text:       nr.Text,
			Confidence: nr.Confidence,
			PageCount:  nr.PageCount,
			WordCount:  nr.WordCount,
			Hints:      models.StructuralHints{Kind: models.HintNone},
		}, nil
	}
	if err != nil {
		log.Printf("Dispatcher: pdf native extraction failed, trying OCR: %v", err)
	}

	pages := 1
	if nr != nil && nr.PageCount > 0 {
		pages = nr.PageCount
	}

	text, ocrErr := d.runOCRChain(ctx, data, "application/pdf")
	if ocrErr != nil {
		log.Printf("Dispatcher: pdf OCR chain exhausted, serving placeholder: %v", ocrErr)
		return &models.ExtractionResult{
			Text:       scannedPlaceholder,
			Confidence: 0.1,
			PageCount:  pages,
			Hints:      models.StructuralHints{Kind: models.HintNone},
		}, nil
	}
	return &models.ExtractionResult{
		Text:       text,
		Confidence: ocrConfidence,
		PageCount:  pages,
		Hints:      models.StructuralHints{Kind: models.HintNone},
	}, nil
}

// extractSpreadsheet converts sheet content and rebuilds row structure from
// the converter's flattened output (one row per line, cells tab- or
// comma-separated).
func (d *Dispatcher) extractSpreadsheet(ctx context.Context, data []byte, mediaType, fileName string) (*models.ExtractionResult, error) {
	nr, err := d.native.ExtractNative(ctx, data, mediaType)
	if err != nil {
		return nil, &core.ExtractionError{MediaType: mediaType, Cause: err}
	}

	sheet := sheetName(fileName)
	var rows []models.RowGroup
	rowNum := 0
	for _, line := range strings.Split(nr.Text, "\n") {
		rowNum++
		if strings.TrimSpace(line) == "" {
			continue
		}
		cells := splitCells(line)
		rows = append(rows, models.RowGroup{
			Sheet:     sheet,
			Row:       rowNum,
			CellRange: cellRange(rowNum, len(cells)),
			Text:      strings.Join(cells, " | "),
		})
	}

	return &models.ExtractionResult{
		Text:       nr.Text,
		Confidence: nr.Confidence,
		WordCount:  nr.WordCount,
		Hints:      models.StructuralHints{Kind: models.HintCells, Rows: rows},
	}, nil
}

// extractGeneric is the catch-all. Image-like formats that the generic path
// rejects get one OCR attempt; anything else propagates the failure.
func (d *Dispatcher) extractGeneric(ctx context.Context, data []byte, mediaType string) (*models.ExtractionResult, error) {
	nr, err := d.native.ExtractNative(ctx, data, mediaType)
	if err != nil {
		if isImageLike(mediaType) {
			text, ocrErr := d.runOCRChain(ctx, data, mediaType)
			if ocrErr == nil {
				return &models.ExtractionResult{
					Text:       text,
					Confidence: ocrConfidence,
					Hints:      models.StructuralHints{Kind: models.HintNone},
				}, nil
			}
		}
		return nil, &core.ExtractionError{MediaType: mediaType, Cause: err}
	}
	return &models.ExtractionResult{
		Text:       nr.Text,
		Confidence: nr.Confidence,
		PageCount:  nr.PageCount,
		WordCount:  nr.WordCount,
		Hints:      models.StructuralHints{Kind: models.HintNone},
	}, nil
}

// runOCRChain tries the primary vision engine, then the secondary one.
// A stage-local fallback: only the final failure propagates.
func (d *Dispatcher) runOCRChain(ctx context.Context, data []byte, mediaType string) (string, error) {
	text, err := d.vision.ExtractViaVision(ctx, data, mediaType)
	if err == nil && strings.TrimSpace(text) != "" {
		return text, nil
	}
	if err != nil {
		log.Printf("Dispatcher: primary OCR failed for %s: %v", mediaType, err)
	}
	if d.fallbackOCR == nil {
		if err != nil {
			return "", err
		}
		return text, nil
	}
	text2, err2 := d.fallbackOCR.ExtractViaVision(ctx, data, mediaType)
	if err2 != nil {
		if err != nil {
			return "", err
		}
		return "", err2
	}
	return text2, nil
}

func looksScanned(nr *core.NativeResult) bool {
	pages := nr.PageCount
	if pages < 1 {
		pages = 1
	}
	return len(strings.TrimSpace(nr.Text))/pages < scannedCharsPerPage
}

func isPresentation(mediaType string) bool {
	return strings.Contains(mediaType, "presentation") ||
		strings.Contains(mediaType, "ms-powerpoint")
}

func isSpreadsheet(mediaType string) bool {
	return strings.Contains(mediaType, "spreadsheet") ||
		strings.Contains(mediaType, "ms-excel") ||
		mediaType == "text/csv"
}

func isImage(mediaType string) bool {
	return strings.HasPrefix(mediaType, "image/")
}

func isImageLike(mediaType string) bool {
	return isImage(mediaType) || strings.Contains(mediaType, "photoshop") ||
		strings.Contains(mediaType, "postscript")
}

func sheetName(fileName string) string {
	base := fileName
	if i := strings.LastIndexByte(base, '/'); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.LastIndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	if base == "" {
		return "Sheet1"
	}
	return base
}

func splitCells(line string) []string {
	var raw []string
	if strings.ContainsRune(line, '\t') {
		raw = strings.Split(line, "\t")
	} else {
		raw = strings.Split(line, ",")
	}
	cells := make([]string, 0, len(raw))
	for _, c := range raw {
		if c = strings.TrimSpace(c); c != "" {
			cells = append(cells, c)
		}
	}
	return cells
}

// cellRange renders spreadsheet coordinates like "A3:D3".
func cellRange(row, cellCount int) string {
	if cellCount < 1 {
		cellCount = 1
	}
	last := columnLetter(cellCount - 1)
	return fmt.Sprintf("A%d:%s%d", row, last, row)
}

func columnLetter(idx int) string {
	s := ""
	for {
		s = string(rune('A'+idx%26)) + s
		idx = idx/26 - 1
		if idx < 0 {
			break
		}
	}
	return s
}

// normalizeKeepMarkers canonicalizes line endings without touching the form
// feeds the slide boundaries point into.
func normalizeKeepMarkers(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}
