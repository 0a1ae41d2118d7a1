package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/krypta-docs/krypta/internal/core"
	"github.com/krypta-docs/krypta/internal/core/crypto"
	"github.com/krypta-docs/krypta/internal/core/ingestion_engine"
	"github.com/krypta-docs/krypta/internal/models"
)

var (
	ErrNotFound  = errors.New("document not found")
	ErrNotOwner  = errors.New("document belongs to a different owner")
	ErrBadStatus = errors.New("document status does not allow this operation")
)

// UploadInput is everything intake needs for one upload.
type UploadInput struct {
	OwnerID    string
	FileName   string
	MediaType  string
	FolderID   string
	Data       []byte
	Encryption crypto.UploadMeta
}

// UploadResult reports whether the upload was deduplicated against an
// existing ready document.
type UploadResult struct {
	Document     *models.Document
	Deduplicated bool
}

// DocumentService owns the intake path (validate, encrypt, store, record,
// enqueue) and document lifecycle operations. All processing happens in the
// background ingestor; the service never blocks on the pipeline.
type DocumentService struct {
	db       core.DbClient
	storage  core.ObjectClient
	index    core.VectorIndex
	gate     *crypto.Gate
	guard    *ingestion_engine.IdempotencyGuard
	ingestor ingestion_engine.Ingestor
	cache    core.CacheInvalidator
}

func NewDocumentService(
	db core.DbClient,
	storage core.ObjectClient,
	index core.VectorIndex,
	gate *crypto.Gate,
	ingestor ingestion_engine.Ingestor,
	cache core.CacheInvalidator,
) *DocumentService {
	return &DocumentService{
		db:       db,
		storage:  storage,
		index:    index,
		gate:     gate,
		guard:    ingestion_engine.NewIdempotencyGuard(db),
		ingestor: ingestor,
		cache:    cache,
	}
}

// UploadAndIngest runs the intake sequence: resolve the encryption mode,
// dedupe against an identical completed upload, write the blob, record the
// document and hand it to the background pipeline. Returns as soon as the
// document is queued.
func (s *DocumentService) UploadAndIngest(ctx context.Context, in UploadInput) (*UploadResult, error) {
	if strings.TrimSpace(in.FileName) == "" {
		return nil, &core.ValidationError{Field: "file_name", Reason: "required"}
	}
	if len(in.Data) == 0 {
		return nil, &core.ValidationError{Field: "file", Reason: "empty upload"}
	}
	if in.MediaType == "" {
		in.MediaType = "application/octet-stream"
	}

	mode, err := s.gate.ResolveMode(in.Encryption)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(in.Data)
	contentHash := hex.EncodeToString(sum[:])

	// Same bytes, same name, same folder, already ready: reuse it.
	if existing := s.guard.CheckExisting(ctx, in.OwnerID, contentHash, in.FileName, in.FolderID); existing != nil {
		log.Printf("DocumentService: dedup hit for %s (%s), reusing document %s", in.FileName, in.OwnerID, existing.ID)
		return &UploadResult{Document: existing, Deduplicated: true}, nil
	}

	docID := uuid.NewString()
	key := s.objectKey(in.OwnerID, docID, in.FileName)

	blob := in.Data
	if mode == models.EncryptionServer {
		blob, err = s.gate.EncryptForStorage(in.OwnerID, in.Data)
		if err != nil {
			return nil, fmt.Errorf("encrypt for storage: %w", err)
		}
	}
	// Zero-knowledge blobs arrive already encrypted; stored verbatim.

	if err := s.storage.Put(ctx, key, blob, in.MediaType); err != nil {
		return nil, fmt.Errorf("blob store: %w", err)
	}

	now := time.Now()
	doc := &models.Document{
		ID:             docID,
		OwnerID:        in.OwnerID,
		FileName:       in.FileName,
		MediaType:      in.MediaType,
		ContentHash:    contentHash,
		StorageKey:     key,
		SizeBytes:      int64(len(in.Data)),
		FolderID:       in.FolderID,
		EncryptionMode: mode,
		EncryptionMeta: in.Encryption.ZK,
		Status:         models.StatusUploading,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if mode == models.EncryptionZK {
		// The excerpt is the only text the server will ever see for this
		// document; the pipeline indexes it directly.
		doc.ExtractedText = in.Encryption.PlaintextExcerpt
	}

	if err := s.db.CreateDocument(ctx, doc); err != nil {
		if derr := s.storage.Delete(ctx, key); derr != nil {
			log.Printf("DocumentService: orphaned blob %s after failed insert: %v", key, derr)
		}
		return nil, fmt.Errorf("record document: %w", err)
	}

	s.ingestor.Enqueue(doc.ID)
	return &UploadResult{Document: doc}, nil
}

func (s *DocumentService) Get(ctx context.Context, ownerID, docID string) (*models.Document, error) {
	return s.ownedDocument(ctx, ownerID, docID)
}

func (s *DocumentService) List(ctx context.Context, ownerID string) ([]models.Document, error) {
	return s.db.ListDocumentsByOwner(ctx, ownerID)
}

// Chunks returns the relational mirror of a document's chunk set, in position
// order.
func (s *DocumentService) Chunks(ctx context.Context, ownerID, docID string) ([]models.DocumentChunk, error) {
	if _, err := s.ownedDocument(ctx, ownerID, docID); err != nil {
		return nil, err
	}
	return s.db.GetChunksByDocument(ctx, docID)
}

// Retry re-runs the pipeline for a failed document. The original blob is
// still in storage, so nothing is re-uploaded.
func (s *DocumentService) Retry(ctx context.Context, ownerID, docID string) (*models.Document, error) {
	doc, err := s.ownedDocument(ctx, ownerID, docID)
	if err != nil {
		return nil, err
	}
	if doc.Status != models.StatusFailed {
		return nil, fmt.Errorf("%w: retry requires status %q, document is %q", ErrBadStatus, models.StatusFailed, doc.Status)
	}
	s.ingestor.Enqueue(doc.ID)
	return doc, nil
}

// Reprocess re-runs the pipeline for a ready or failed document, e.g. after a
// chunking configuration change. Replace-not-append semantics in the pipeline
// make this safe to call repeatedly.
func (s *DocumentService) Reprocess(ctx context.Context, ownerID, docID string) (*models.Document, error) {
	doc, err := s.ownedDocument(ctx, ownerID, docID)
	if err != nil {
		return nil, err
	}
	if doc.Status != models.StatusReady && doc.Status != models.StatusFailed {
		return nil, fmt.Errorf("%w: reprocess requires a terminal status, document is %q", ErrBadStatus, doc.Status)
	}
	s.ingestor.Enqueue(doc.ID)
	return doc, nil
}

// Delete fans out across every store holding document state: vector index,
// blob storage, then the relational row (chunks cascade). Index and blob
// deletions are best-effort; the row delete is authoritative.
func (s *DocumentService) Delete(ctx context.Context, ownerID, docID string) error {
	doc, err := s.ownedDocument(ctx, ownerID, docID)
	if err != nil {
		return err
	}

	if err := s.index.DeleteByDocument(ctx, docID); err != nil {
		log.Printf("DocumentService: vector delete for %s: %v", docID, err)
	}
	if doc.StorageKey != "" {
		if err := s.storage.Delete(ctx, doc.StorageKey); err != nil {
			log.Printf("DocumentService: blob delete for %s: %v", docID, err)
		}
	}
	if err := s.db.DeleteChunksByDocument(ctx, docID); err != nil {
		log.Printf("DocumentService: chunk mirror delete for %s: %v", docID, err)
	}
	if err := s.db.DeleteDocument(ctx, docID); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}

	s.cache.Invalidate(ownerID)
	return nil
}

func (s *DocumentService) ownedDocument(ctx context.Context, ownerID, docID string) (*models.Document, error) {
	doc, err := s.db.GetDocumentByID(ctx, docID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrNotFound
	}
	if doc.OwnerID != ownerID {
		return nil, ErrNotOwner
	}
	return doc, nil
}

// objectKey creates a consistent storage key layout.
func (s *DocumentService) objectKey(ownerID, docID, fileName string) string {
	fileName = strings.TrimSpace(fileName)
	fileName = strings.ReplaceAll(fileName, " ", "_")
	return path.Join("owners", ownerID, "documents", docID, fileName)
}
