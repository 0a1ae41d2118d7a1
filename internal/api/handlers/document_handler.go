package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/krypta-docs/krypta/internal/core"
	"github.com/krypta-docs/krypta/internal/core/crypto"
	"github.com/krypta-docs/krypta/internal/models"
	"github.com/krypta-docs/krypta/internal/services"
)

const maxUploadBytes = 64 << 20 // 64 MB

type DocumentHandler struct {
	docs *services.DocumentService
}

func NewDocumentHandler(docs *services.DocumentService) *DocumentHandler {
	return &DocumentHandler{docs: docs}
}

// UploadDocument accepts a multipart upload plus encryption metadata and
// queues it for ingestion. Responds 202 with the pending document, or 200
// when deduplication matched an existing ready document.
func (h *DocumentHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFrom(r)
	if !ok {
		http.Error(w, "missing X-Owner-ID header", http.StatusBadRequest)
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "invalid file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		http.Error(w, "reading upload failed", http.StatusBadRequest)
		return
	}
	if len(data) > maxUploadBytes {
		http.Error(w, "file too large", http.StatusRequestEntityTooLarge)
		return
	}

	mediaType := header.Header.Get("Content-Type")
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}

	enc := crypto.UploadMeta{
		Mode:             r.FormValue("encryption_mode"),
		PlaintextExcerpt: r.FormValue("plaintext_excerpt"),
	}
	if enc.Mode == models.EncryptionZK || enc.Mode == "zk" {
		enc.ZK = &models.ZKMeta{
			Salt:              r.FormValue("salt"),
			IV:                r.FormValue("iv"),
			AuthTag:           r.FormValue("auth_tag"),
			EncryptedFileName: r.FormValue("encrypted_file_name"),
		}
	}

	uploadctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	res, err := h.docs.UploadAndIngest(uploadctx, services.UploadInput{
		OwnerID:    ownerID,
		FileName:   filepath.Base(header.Filename),
		MediaType:  mediaType,
		FolderID:   r.FormValue("folder_id"),
		Data:       data,
		Encryption: enc,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	status := http.StatusAccepted
	if res.Deduplicated {
		status = http.StatusOK
	}
	writeJSON(w, status, res.Document)
}

func (h *DocumentHandler) GetDocuments(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFrom(r)
	if !ok {
		http.Error(w, "missing X-Owner-ID header", http.StatusBadRequest)
		return
	}

	documents, err := h.docs.List(r.Context(), ownerID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, documents)
}

func (h *DocumentHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFrom(r)
	if !ok {
		http.Error(w, "missing X-Owner-ID header", http.StatusBadRequest)
		return
	}

	doc, err := h.docs.Get(r.Context(), ownerID, chi.URLParam(r, "document_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *DocumentHandler) GetDocumentChunks(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFrom(r)
	if !ok {
		http.Error(w, "missing X-Owner-ID header", http.StatusBadRequest)
		return
	}

	chunks, err := h.docs.Chunks(r.Context(), ownerID, chi.URLParam(r, "document_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chunks)
}

// RetryDocument re-queues a failed document.
func (h *DocumentHandler) RetryDocument(w http.ResponseWriter, r *http.Request) {
	h.requeue(w, r, h.docs.Retry)
}

// ReprocessDocument re-queues a ready or failed document through the full
// pipeline, replacing its chunks and vectors.
func (h *DocumentHandler) ReprocessDocument(w http.ResponseWriter, r *http.Request) {
	h.requeue(w, r, h.docs.Reprocess)
}

func (h *DocumentHandler) requeue(w http.ResponseWriter, r *http.Request, op func(context.Context, string, string) (*models.Document, error)) {
	ownerID, ok := ownerFrom(r)
	if !ok {
		http.Error(w, "missing X-Owner-ID header", http.StatusBadRequest)
		return
	}

	doc, err := op(r.Context(), ownerID, chi.URLParam(r, "document_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, doc)
}

func (h *DocumentHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFrom(r)
	if !ok {
		http.Error(w, "missing X-Owner-ID header", http.StatusBadRequest)
		return
	}

	if err := h.docs.Delete(r.Context(), ownerID, chi.URLParam(r, "document_id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ownerFrom identifies the caller. Authentication lives in front of this
// service; the header is trusted as-is.
func ownerFrom(r *http.Request) (string, bool) {
	owner := r.Header.Get("X-Owner-ID")
	return owner, owner != ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("DocumentHandler: writing response: %v", err)
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	var verr *core.ValidationError
	switch {
	case errors.As(err, &verr):
		http.Error(w, verr.Error(), http.StatusBadRequest)
	case errors.Is(err, services.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, services.ErrNotOwner):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, services.ErrBadStatus):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
