package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krypta-docs/krypta/internal/core"
	"github.com/krypta-docs/krypta/internal/core/crypto"
	"github.com/krypta-docs/krypta/internal/models"
)

type svcDB struct {
	mu      sync.Mutex
	docs    map[string]*models.Document
	created []string
	deleted []string
	findErr error
}

func newSvcDB(docs ...*models.Document) *svcDB {
	db := &svcDB{docs: map[string]*models.Document{}}
	for _, d := range docs {
		db.docs[d.ID] = d
	}
	return db
}

func (f *svcDB) CreateDocument(_ context.Context, doc *models.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[doc.ID] = doc
	f.created = append(f.created, doc.ID)
	return nil
}

func (f *svcDB) GetDocumentByID(_ context.Context, id string) (*models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return nil, nil
	}
	cp := *doc
	return &cp, nil
}

func (f *svcDB) ListDocumentsByOwner(_ context.Context, ownerID string) ([]models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Document
	for _, d := range f.docs {
		if d.OwnerID == ownerID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (f *svcDB) UpdateDocumentStatus(_ context.Context, id, status, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.docs[id]; ok {
		d.Status = status
		d.Error = reason
	}
	return nil
}

func (f *svcDB) UpdateDocumentDerived(_ context.Context, _, _ string, _, _ int) error { return nil }

func (f *svcDB) UpdateDocumentChunkCount(_ context.Context, _ string, _ int) error { return nil }

func (f *svcDB) DeleteDocument(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.docs, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *svcDB) FindCompletedDocument(_ context.Context, ownerID, contentHash, fileName, folderID string) (*models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	for _, d := range f.docs {
		if d.OwnerID == ownerID && d.ContentHash == contentHash &&
			d.FileName == fileName && d.FolderID == folderID && d.Status == models.StatusReady {
			cp := *d
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *svcDB) ReplaceDocumentChunks(_ context.Context, _ string, _ []models.DocumentChunk) error {
	return nil
}

func (f *svcDB) GetChunksByDocument(_ context.Context, _ string) ([]models.DocumentChunk, error) {
	return nil, nil
}

func (f *svcDB) DeleteChunksByDocument(_ context.Context, _ string) error { return nil }

func (f *svcDB) Close() error { return nil }

type svcStorage struct {
	mu      sync.Mutex
	blobs   map[string][]byte
	deleted []string
}

func newSvcStorage() *svcStorage { return &svcStorage{blobs: map[string][]byte{}} }

func (f *svcStorage) Put(_ context.Context, key string, data []byte, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blobs[key] = data
	return nil
}

func (f *svcStorage) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.blobs[key], nil
}

func (f *svcStorage) Exists(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.blobs[key]
	return ok, nil
}

func (f *svcStorage) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.blobs, key)
	f.deleted = append(f.deleted, key)
	return nil
}

type svcIndex struct {
	mu      sync.Mutex
	deleted []string
}

func (f *svcIndex) Upsert(_ context.Context, _ string, _ []models.DocumentChunk) error { return nil }

func (f *svcIndex) DeleteByDocument(_ context.Context, documentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, documentID)
	return nil
}

func (f *svcIndex) CountByDocument(_ context.Context, _ string) (int, error) { return 0, nil }

type svcIngestor struct {
	mu       sync.Mutex
	enqueued []string
}

func (f *svcIngestor) Enqueue(docID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enqueued = append(f.enqueued, docID)
}

func (f *svcIngestor) ProcessOne(_ context.Context, _ string) error { return nil }

func (f *svcIngestor) Close() {}

type svcCache struct {
	mu          sync.Mutex
	invalidated []string
}

func (f *svcCache) Invalidate(ownerID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, ownerID)
}

type svcHarness struct {
	db      *svcDB
	storage *svcStorage
	index   *svcIndex
	ing     *svcIngestor
	cache   *svcCache
	gate    *crypto.Gate
	svc     *DocumentService
}

func newSvcHarness(docs ...*models.Document) *svcHarness {
	h := &svcHarness{
		db:      newSvcDB(docs...),
		storage: newSvcStorage(),
		index:   &svcIndex{},
		ing:     &svcIngestor{},
		cache:   &svcCache{},
		gate:    crypto.NewGate("service-test-master", 50),
	}
	h.svc = NewDocumentService(h.db, h.storage, h.index, h.gate, h.ing, h.cache)
	return h
}

func plainUpload(fileName string, data string) UploadInput {
	return UploadInput{
		OwnerID:   "owner-1",
		FileName:  fileName,
		MediaType: "text/plain",
		Data:      []byte(data),
	}
}

func TestUploadAndIngestQueuesDocument(t *testing.T) {
	h := newSvcHarness()

	res, err := h.svc.UploadAndIngest(context.Background(), plainUpload("notes.txt", "some document body"))
	require.NoError(t, err)
	require.False(t, res.Deduplicated)

	doc := res.Document
	assert.Equal(t, models.StatusUploading, doc.Status)
	assert.Equal(t, models.EncryptionNone, doc.EncryptionMode)
	assert.NotEmpty(t, doc.ContentHash)
	assert.Equal(t, int64(len("some document body")), doc.SizeBytes)

	assert.Equal(t, []string{doc.ID}, h.ing.enqueued)
	assert.Contains(t, h.storage.blobs, doc.StorageKey)
	assert.Equal(t, []byte("some document body"), h.storage.blobs[doc.StorageKey])
}

func TestUploadDeduplicatesAgainstReadyDocument(t *testing.T) {
	h := newSvcHarness()

	first, err := h.svc.UploadAndIngest(context.Background(), plainUpload("notes.txt", "identical bytes"))
	require.NoError(t, err)
	h.db.docs[first.Document.ID].Status = models.StatusReady

	second, err := h.svc.UploadAndIngest(context.Background(), plainUpload("notes.txt", "identical bytes"))
	require.NoError(t, err)

	assert.True(t, second.Deduplicated)
	assert.Equal(t, first.Document.ID, second.Document.ID)
	assert.Len(t, h.ing.enqueued, 1, "the duplicate must not be re-queued")
	assert.Len(t, h.db.created, 1, "the duplicate must not create a new row")
	assert.Len(t, h.storage.blobs, 1)
}

func TestUploadProceedsWhenDedupLookupFails(t *testing.T) {
	h := newSvcHarness()

	first, err := h.svc.UploadAndIngest(context.Background(), plainUpload("notes.txt", "identical bytes"))
	require.NoError(t, err)
	h.db.docs[first.Document.ID].Status = models.StatusReady

	// A dedup-index outage must not block uploads.
	h.db.findErr = errors.New("connection refused")

	second, err := h.svc.UploadAndIngest(context.Background(), plainUpload("notes.txt", "identical bytes"))
	require.NoError(t, err)

	assert.False(t, second.Deduplicated)
	assert.NotEqual(t, first.Document.ID, second.Document.ID)
	assert.Len(t, h.ing.enqueued, 2, "the second upload is processed as new")
}

func TestUploadDifferentFolderIsNotADuplicate(t *testing.T) {
	h := newSvcHarness()

	first, err := h.svc.UploadAndIngest(context.Background(), plainUpload("notes.txt", "identical bytes"))
	require.NoError(t, err)
	h.db.docs[first.Document.ID].Status = models.StatusReady

	in := plainUpload("notes.txt", "identical bytes")
	in.FolderID = "folder-b"
	second, err := h.svc.UploadAndIngest(context.Background(), in)
	require.NoError(t, err)

	assert.False(t, second.Deduplicated)
	assert.NotEqual(t, first.Document.ID, second.Document.ID)
}

func TestUploadZKValidationHappensBeforeStorage(t *testing.T) {
	h := newSvcHarness()

	in := plainUpload("secret.bin", "client-side ciphertext")
	in.Encryption = crypto.UploadMeta{Mode: models.EncryptionZK} // no envelope

	_, err := h.svc.UploadAndIngest(context.Background(), in)
	require.Error(t, err)

	var verr *core.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Empty(t, h.storage.blobs, "a rejected upload must not touch blob storage")
	assert.Empty(t, h.db.created)
	assert.Empty(t, h.ing.enqueued)
}

func TestUploadZKStoresBlobVerbatimAndKeepsExcerpt(t *testing.T) {
	h := newSvcHarness()

	excerpt := "this excerpt is comfortably longer than the fifty character minimum"
	in := plainUpload("secret.bin", "opaque client-side ciphertext bytes")
	in.Encryption = crypto.UploadMeta{
		Mode: models.EncryptionZK,
		ZK: &models.ZKMeta{
			Salt: "c2FsdA==", IV: "aXY=", AuthTag: "dGFn", EncryptedFileName: "ZmlsZQ==",
		},
		PlaintextExcerpt: excerpt,
	}

	res, err := h.svc.UploadAndIngest(context.Background(), in)
	require.NoError(t, err)

	doc := res.Document
	assert.Equal(t, models.EncryptionZK, doc.EncryptionMode)
	assert.Equal(t, excerpt, doc.ExtractedText)
	require.NotNil(t, doc.EncryptionMeta)
	assert.Equal(t, []byte("opaque client-side ciphertext bytes"), h.storage.blobs[doc.StorageKey],
		"zero-knowledge blobs are stored exactly as received")
}

func TestUploadServerManagedEncryptsAtRest(t *testing.T) {
	h := newSvcHarness()

	in := plainUpload("notes.txt", "readable plaintext body")
	in.Encryption = crypto.UploadMeta{Mode: models.EncryptionServer}

	res, err := h.svc.UploadAndIngest(context.Background(), in)
	require.NoError(t, err)

	stored := h.storage.blobs[res.Document.StorageKey]
	require.NotEmpty(t, stored)
	assert.NotEqual(t, []byte("readable plaintext body"), stored)

	opened, err := h.gate.DecryptForProcessing("owner-1", stored)
	require.NoError(t, err)
	assert.Equal(t, []byte("readable plaintext body"), opened)
}

func TestRetryRequiresFailedStatus(t *testing.T) {
	ready := &models.Document{ID: "d-ready", OwnerID: "owner-1", Status: models.StatusReady}
	failed := &models.Document{ID: "d-failed", OwnerID: "owner-1", Status: models.StatusFailed}
	h := newSvcHarness(ready, failed)

	_, err := h.svc.Retry(context.Background(), "owner-1", "d-ready")
	require.ErrorIs(t, err, ErrBadStatus)

	_, err = h.svc.Retry(context.Background(), "owner-1", "d-failed")
	require.NoError(t, err)
	assert.Equal(t, []string{"d-failed"}, h.ing.enqueued)
}

func TestReprocessAllowsReadyAndFailed(t *testing.T) {
	ready := &models.Document{ID: "d-ready", OwnerID: "owner-1", Status: models.StatusReady}
	processing := &models.Document{ID: "d-proc", OwnerID: "owner-1", Status: models.StatusProcessing}
	h := newSvcHarness(ready, processing)

	_, err := h.svc.Reprocess(context.Background(), "owner-1", "d-ready")
	require.NoError(t, err)

	_, err = h.svc.Reprocess(context.Background(), "owner-1", "d-proc")
	require.ErrorIs(t, err, ErrBadStatus)
}

func TestOwnershipIsEnforced(t *testing.T) {
	doc := &models.Document{ID: "d-1", OwnerID: "owner-1", Status: models.StatusReady}
	h := newSvcHarness(doc)

	_, err := h.svc.Get(context.Background(), "owner-2", "d-1")
	require.ErrorIs(t, err, ErrNotOwner)

	_, err = h.svc.Get(context.Background(), "owner-1", "d-missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteFansOutAcrossStores(t *testing.T) {
	doc := &models.Document{
		ID: "d-1", OwnerID: "owner-1", Status: models.StatusReady,
		StorageKey: "owners/owner-1/documents/d-1/notes.txt",
	}
	h := newSvcHarness(doc)
	h.storage.blobs[doc.StorageKey] = []byte("bytes")

	require.NoError(t, h.svc.Delete(context.Background(), "owner-1", "d-1"))

	assert.Equal(t, []string{"d-1"}, h.index.deleted)
	assert.Equal(t, []string{doc.StorageKey}, h.storage.deleted)
	assert.Equal(t, []string{"d-1"}, h.db.deleted)
	assert.Equal(t, []string{"owner-1"}, h.cache.invalidated)
}
