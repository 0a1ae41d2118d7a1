package ingestion_engine

import (
	"context"
	"log"

	"github.com/krypta-docs/krypta/internal/core"
	"github.com/krypta-docs/krypta/internal/models"
)

// IdempotencyGuard short-circuits re-uploads of identical content to the same
// location under the same name. Read-only: the caller decides what to do with
// a match.
type IdempotencyGuard struct {
	db core.DbClient
}

func NewIdempotencyGuard(db core.DbClient) *IdempotencyGuard {
	return &IdempotencyGuard{db: db}
}

// CheckExisting returns the matching ready document, or nil. A lookup error
// degrades to "no match": an outage of the secondary index must not block
// uploads.
func (g *IdempotencyGuard) CheckExisting(ctx context.Context, ownerID, contentHash, fileName, folderID string) *models.Document {
	if contentHash == "" {
		return nil
	}
	doc, err := g.db.FindCompletedDocument(ctx, ownerID, contentHash, fileName, folderID)
	if err != nil {
		log.Printf("IdempotencyGuard: lookup failed, proceeding as new upload: %v", err)
		return nil
	}
	return doc
}
