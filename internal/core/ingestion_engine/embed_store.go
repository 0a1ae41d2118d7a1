package ingestion_engine

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/krypta-docs/krypta/internal/core"
	"github.com/krypta-docs/krypta/internal/models"
)

// embedParallelism caps concurrent embedding requests per pipeline run.
const embedParallelism = 4

// embedChunks fills in one vector per chunk, batching requests. All batches
// must succeed before anything is written anywhere: a failure on batch two of
// two leaves no partial vector set behind.
func (i *DocumentIngestor) embedChunks(ctx context.Context, chunks []models.DocumentChunk) error {
	batchSize := i.cfg.BatchSize
	if batchSize < 1 {
		batchSize = 16
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedParallelism)

	for lo := 0; lo < len(chunks); lo += batchSize {
		hi := lo + batchSize
		if hi > len(chunks) {
			hi = len(chunks)
		}
		batch := chunks[lo:hi]

		g.Go(func() error {
			texts := make([]string, len(batch))
			for k := range batch {
				texts[k] = batch[k].Text
			}
			vecs, err := i.embedder.EmbedBatch(gctx, texts)
			if err != nil {
				return &core.EmbeddingError{Cause: err}
			}
			if len(vecs) != len(batch) {
				return &core.EmbeddingError{Cause: fmt.Errorf("size mismatch: got %d vectors for %d texts", len(vecs), len(batch))}
			}
			for k := range batch {
				if dim := i.cfg.EmbedDim; dim > 0 && len(vecs[k]) != dim {
					return &core.EmbeddingError{Cause: fmt.Errorf("dimension mismatch: got %d, stores expect %d", len(vecs[k]), dim)}
				}
				batch[k].Embedding = vecs[k]
			}
			return nil
		})
	}

	return g.Wait()
}

// storeVectors replaces the document's vector set in the index:
// delete-then-insert, so reprocessing never leaves stale vectors from an
// earlier run.
func (i *DocumentIngestor) storeVectors(ctx context.Context, documentID string, chunks []models.DocumentChunk) error {
	if err := i.index.DeleteByDocument(ctx, documentID); err != nil {
		return &core.VectorStoreError{Op: "delete", Cause: err}
	}
	if err := i.index.Upsert(ctx, documentID, chunks); err != nil {
		return &core.VectorStoreError{Op: "upsert", Cause: err}
	}
	return nil
}

// verifyVectors reads back the per-document count and requires at least
// VerifyThreshold of the expected chunks. The tolerance exists for eventually
// consistent indexes; it is configuration, not magic.
func (i *DocumentIngestor) verifyVectors(ctx context.Context, documentID string, expected int) error {
	count, err := i.index.CountByDocument(ctx, documentID)
	if err != nil {
		return &core.VectorStoreError{Op: "verify", Cause: err}
	}
	threshold := i.cfg.VerifyThreshold
	if threshold <= 0 || threshold > 1 {
		threshold = 0.95
	}
	if float64(count) < threshold*float64(expected) || count == 0 {
		return &core.VectorStoreError{
			Op:    "verify",
			Cause: fmt.Errorf("index holds %d of %d expected vectors", count, expected),
		}
	}
	return nil
}
