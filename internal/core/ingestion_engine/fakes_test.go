package ingestion_engine

import (
	"context"
	"errors"
	"sync"

	"github.com/krypta-docs/krypta/internal/core"
	"github.com/krypta-docs/krypta/internal/models"
)

// In-memory stand-ins for the pipeline's collaborators.

type fakeDB struct {
	mu          sync.Mutex
	docs        map[string]*models.Document
	statuses    []string
	reasons     []string
	replaced    map[string][]models.DocumentChunk
	chunkCounts map[string]int
	derivedText map[string]string
	replaceErr  error
	findErr     error
}

func newFakeDB(docs ...*models.Document) *fakeDB {
	db := &fakeDB{
		docs:        map[string]*models.Document{},
		replaced:    map[string][]models.DocumentChunk{},
		chunkCounts: map[string]int{},
		derivedText: map[string]string{},
	}
	for _, d := range docs {
		db.docs[d.ID] = d
	}
	return db
}

func (f *fakeDB) CreateDocument(_ context.Context, doc *models.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[doc.ID] = doc
	return nil
}

func (f *fakeDB) GetDocumentByID(_ context.Context, id string) (*models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return nil, nil
	}
	cp := *doc
	return &cp, nil
}

func (f *fakeDB) ListDocumentsByOwner(_ context.Context, ownerID string) ([]models.Document, error) {
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

func (f *fakeDB) UpdateDocumentStatus(_ context.Context, id, status, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.docs[id]; ok {
		d.Status = status
		d.Error = reason
	}
	f.statuses = append(f.statuses, status)
	f.reasons = append(f.reasons, reason)
	return nil
}

func (f *fakeDB) UpdateDocumentDerived(_ context.Context, id, extractedText string, pageCount, wordCount int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.derivedText[id] = extractedText
	if d, ok := f.docs[id]; ok {
		d.ExtractedText = extractedText
		d.PageCount = pageCount
		d.WordCount = wordCount
	}
	return nil
}

func (f *fakeDB) UpdateDocumentChunkCount(_ context.Context, id string, count int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chunkCounts[id] = count
	if d, ok := f.docs[id]; ok {
		d.ChunkCount = count
	}
	return nil
}

func (f *fakeDB) DeleteDocument(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.docs, id)
	return nil
}

func (f *fakeDB) FindCompletedDocument(_ context.Context, ownerID, contentHash, fileName, folderID string) (*models.Document, error) {
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

func (f *fakeDB) ReplaceDocumentChunks(_ context.Context, documentID string, chunks []models.DocumentChunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.replaceErr != nil {
		return f.replaceErr
	}
	f.replaced[documentID] = append([]models.DocumentChunk(nil), chunks...)
	return nil
}

func (f *fakeDB) GetChunksByDocument(_ context.Context, documentID string) ([]models.DocumentChunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.replaced[documentID], nil
}

func (f *fakeDB) DeleteChunksByDocument(_ context.Context, documentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.replaced, documentID)
	return nil
}

func (f *fakeDB) Close() error { return nil }

type fakeObj struct {
	mu       sync.Mutex
	data     map[string][]byte
	getCalls int
	getErr   error
}

func newFakeObj() *fakeObj { return &fakeObj{data: map[string][]byte{}} }

func (f *fakeObj) Put(_ context.Context, key string, data []byte, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = data
	return nil
}

func (f *fakeObj) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if f.getErr != nil {
		return nil, f.getErr
	}
	d, ok := f.data[key]
	if !ok {
		return nil, errors.New("no such key: " + key)
	}
	return d, nil
}

func (f *fakeObj) Exists(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.data[key]
	return ok, nil
}

func (f *fakeObj) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	return nil
}

type fakeEmbedder struct {
	mu     sync.Mutex
	dim    int
	calls  int
	failOn int // 1-based call number that errors; 0 means never
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	if f.failOn > 0 && call == f.failOn {
		return nil, errors.New("embedding backend unavailable")
	}
	dim := f.dim
	if dim == 0 {
		dim = 4
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, dim)
		v[0] = float32(len(texts[i]))
		out[i] = v
	}
	return out, nil
}

type fakeIndex struct {
	mu            sync.Mutex
	vectors       map[string][]models.DocumentChunk
	ops           []string // "delete", "upsert" in call order
	countOverride *int
	upsertErr     error
	deleteErr     error
	countErr      error
}

func newFakeIndex() *fakeIndex { return &fakeIndex{vectors: map[string][]models.DocumentChunk{}} }

func (f *fakeIndex) Upsert(_ context.Context, documentID string, chunks []models.DocumentChunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.ops = append(f.ops, "upsert")
	f.vectors[documentID] = append([]models.DocumentChunk(nil), chunks...)
	return nil
}

func (f *fakeIndex) DeleteByDocument(_ context.Context, documentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.ops = append(f.ops, "delete")
	delete(f.vectors, documentID)
	return nil
}

func (f *fakeIndex) CountByDocument(_ context.Context, documentID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.countErr != nil {
		return 0, f.countErr
	}
	if f.countOverride != nil {
		return *f.countOverride, nil
	}
	return len(f.vectors[documentID]), nil
}

type fakeSink struct {
	mu          sync.Mutex
	stages      []string
	invalidated []string
}

func (f *fakeSink) Publish(_, _, stage string, _ int, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stages = append(f.stages, stage)
}

func (f *fakeSink) Invalidate(ownerID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, ownerID)
}

func (f *fakeSink) lastStage() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.stages) == 0 {
		return ""
	}
	return f.stages[len(f.stages)-1]
}

type fakeNative struct {
	mu    sync.Mutex
	text  string // when empty, echoes the input bytes
	pages int
	err   error
	calls int
}

func (f *fakeNative) ExtractNative(_ context.Context, data []byte, _ string) (*core.NativeResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	text := f.text
	if text == "" {
		text = string(data)
	}
	return &core.NativeResult{Text: text, PageCount: f.pages, Confidence: 0.95}, nil
}

type fakeVision struct {
	mu    sync.Mutex
	text  string
	err   error
	calls int
}

func (f *fakeVision) ExtractViaVision(_ context.Context, _ []byte, _ string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}
