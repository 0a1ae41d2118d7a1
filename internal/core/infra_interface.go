package core

import (
	"context"

	"github.com/krypta-docs/krypta/internal/models"
)

// DbClient defines all persistence operations the services need.
// It abstracts Postgres/pgvector so higher layers never depend on a specific DB.
type DbClient interface {
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocumentByID(ctx context.Context, id string) (*models.Document, error)
	ListDocumentsByOwner(ctx context.Context, ownerID string) ([]models.Document, error)
	UpdateDocumentStatus(ctx context.Context, id string, status string, reason string) error
	UpdateDocumentDerived(ctx context.Context, id string, extractedText string, pageCount, wordCount int) error
	UpdateDocumentChunkCount(ctx context.Context, id string, count int) error
	DeleteDocument(ctx context.Context, id string) error

	// FindCompletedDocument is the idempotency lookup: a ready document with
	// the same owner, content hash, filename and target location.
	FindCompletedDocument(ctx context.Context, ownerID, contentHash, fileName, folderID string) (*models.Document, error)

	// ReplaceDocumentChunks deletes any prior chunk rows for the document and
	// inserts the given set in one transaction.
	ReplaceDocumentChunks(ctx context.Context, documentID string, chunks []models.DocumentChunk) error
	GetChunksByDocument(ctx context.Context, documentID string) ([]models.DocumentChunk, error)
	DeleteChunksByDocument(ctx context.Context, documentID string) error

	Close() error
}

// ObjectClient defines interactions with S3 or any object storage. Keys are
// opaque strings chosen by the caller.
type ObjectClient interface {
	Put(ctx context.Context, key string, data []byte, mediaType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
}

// VectorIndex is the contract the pipeline requires from a vector store. The
// wire protocol behind it is not this package's concern.
type VectorIndex interface {
	Upsert(ctx context.Context, documentID string, chunks []models.DocumentChunk) error
	DeleteByDocument(ctx context.Context, documentID string) error
	CountByDocument(ctx context.Context, documentID string) (int, error)
}

// ProgressSink receives stage transitions for a pipeline run. Delivery is
// best-effort; pipeline correctness never depends on it.
type ProgressSink interface {
	Publish(ownerID, documentID, stage string, percent int, message string)
}

// CacheInvalidator is poked once a document reaches a terminal state so any
// cached listing reflects it. Best-effort.
type CacheInvalidator interface {
	Invalidate(ownerID string)
}
