package ingestion_engine

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"code.sajari.com/docconv"

	"github.com/krypta-docs/krypta/internal/core"
)

// DocconvExtractor implements core.NativeExtractor using sajari/docconv,
// which shells out to pdftotext, tika-style office converters and friends.
type DocconvExtractor struct{}

var _ core.NativeExtractor = (*DocconvExtractor)(nil)

func NewDocconvExtractor() *DocconvExtractor {
	return &DocconvExtractor{}
}

func (e *DocconvExtractor) ExtractNative(ctx context.Context, data []byte, mediaType string) (*core.NativeResult, error) {
	res, err := docconv.Convert(bytes.NewReader(data), mediaType, false)
	if err != nil {
		return nil, fmt.Errorf("docconv %s: %w", mediaType, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	text := res.Body
	pages := 0
	if mediaType == "application/pdf" {
		// pdftotext separates pages with form feeds.
		pages = strings.Count(text, "\f") + 1
	}

	return &core.NativeResult{
		Text:       text,
		PageCount:  pages,
		WordCount:  len(strings.Fields(text)),
		Confidence: 0.95,
	}, nil
}

// DocconvOCR is the secondary OCR engine in the fallback chain: docconv's
// image path runs gosseract/tesseract. Best-effort only; the primary vision
// engine handles most scanned input.
type DocconvOCR struct{}

var _ core.VisionExtractor = (*DocconvOCR)(nil)

func NewDocconvOCR() *DocconvOCR {
	return &DocconvOCR{}
}

func (e *DocconvOCR) ExtractViaVision(ctx context.Context, data []byte, mediaType string) (string, error) {
	if !strings.HasPrefix(mediaType, "image/") {
		mediaType = "image/png"
	}
	res, err := docconv.Convert(bytes.NewReader(data), mediaType, false)
	if err != nil {
		return "", fmt.Errorf("docconv ocr: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return res.Body, nil
}
