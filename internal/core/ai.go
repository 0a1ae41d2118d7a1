package core

import "context"

// EmbeddingProvider turns texts into fixed-dimension vectors, one per input,
// in input order.
type EmbeddingProvider interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// VisionExtractor reads text out of a raster image via an external vision
// capability (OCR). The upstream service returns no confidence score.
type VisionExtractor interface {
	ExtractViaVision(ctx context.Context, data []byte, mediaType string) (string, error)
}
