package core

import "context"

// NativeResult is what a native (non-OCR) extraction engine returns.
type NativeResult struct {
	Text       string
	PageCount  int
	WordCount  int
	Confidence float64
}

// NativeExtractor reads the text layer of a document format directly
// (pdftotext, office converters, plain text). Failure is a typed error, not
// something the pipeline crashes on.
type NativeExtractor interface {
	ExtractNative(ctx context.Context, data []byte, mediaType string) (*NativeResult, error)
}
