package ingestion_engine

import "context"

// Ingestor is the pipeline entry point the intake layer sees. Enqueue hands a
// document to a background worker and returns; ProcessOne runs the staged
// pipeline synchronously (used by workers and tests).
type Ingestor interface {
	Enqueue(docID string)
	ProcessOne(ctx context.Context, docID string) error
	Close()
}
