package models

import (
	"time"
)

// Document status lifecycle. Only the pipeline orchestrator moves a document
// between these states; retry/reprocess re-enter "processing" explicitly.
const (
	StatusUploading  = "uploading"
	StatusProcessing = "processing"
	StatusReady      = "ready"
	StatusFailed     = "failed"
)

// Encryption modes for a stored document.
const (
	EncryptionNone   = "none"
	EncryptionServer = "server"
	EncryptionZK     = "zero-knowledge"
)

// Document represents a user-uploaded file and its ingestion state.
type Document struct {
	ID             string    `db:"id" json:"id"`
	OwnerID        string    `db:"owner_id" json:"owner_id"`
	FileName       string    `db:"file_name" json:"file_name"`
	MediaType      string    `db:"media_type" json:"media_type"`
	ContentHash    string    `db:"content_hash" json:"content_hash"` // sha256 hex over plaintext bytes
	StorageKey     string    `db:"storage_key" json:"storage_key"`   // opaque blob-store key
	SizeBytes      int64     `db:"size_bytes" json:"size_bytes"`
	FolderID       string    `db:"folder_id" json:"folder_id"` // target location for dedup
	EncryptionMode string    `db:"encryption_mode" json:"encryption_mode"`
	EncryptionMeta *ZKMeta   `db:"encryption_meta" json:"encryption_meta,omitempty"`
	Status         string    `db:"status" json:"status"`
	Error          string    `db:"error" json:"error,omitempty"`
	ChunkCount     int       `db:"chunk_count" json:"chunk_count"`
	PageCount      int       `db:"page_count" json:"page_count"`
	WordCount      int       `db:"word_count" json:"word_count"`
	ExtractedText  string    `db:"extracted_text" json:"-"` // cached for reprocessing
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// ZKMeta carries the client-side encryption envelope for zero-knowledge
// uploads. The server stores it verbatim and never derives a key from it.
type ZKMeta struct {
	Salt              string `json:"salt"`
	IV                string `json:"iv"`
	AuthTag           string `json:"auth_tag"`
	EncryptedFileName string `json:"encrypted_file_name"`
}

// DocumentChunk is one retrieval unit of a document. Position is 0-based and
// contiguous within one pipeline run; re-running the pipeline replaces the
// whole set.
type DocumentChunk struct {
	ID         string    `db:"id" json:"id"`
	DocumentID string    `db:"document_id" json:"document_id"`
	Position   int       `db:"position" json:"position"`
	Text       string    `db:"text" json:"text"`
	Embedding  []float32 `db:"embedding" json:"-"` // pgvector column, optional in the mirror
	SlideNum   int       `db:"slide_num" json:"slide_num,omitempty"`
	SheetName  string    `db:"sheet_name" json:"sheet_name,omitempty"`
	RowNum     int       `db:"row_num" json:"row_num,omitempty"`
	CellRange  string    `db:"cell_range" json:"cell_range,omitempty"`
	CharStart  int       `db:"char_start" json:"char_start"`
	CharEnd    int       `db:"char_end" json:"char_end"`
	TokenCount int       `db:"token_count" json:"token_count"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// HintKind tags the structural metadata produced by extraction.
type HintKind string

const (
	HintNone   HintKind = "none"
	HintSlides HintKind = "slides"
	HintCells  HintKind = "cells"
)

// SlideBoundary marks one slide's span inside the extracted text.
type SlideBoundary struct {
	Number int // 1-based slide number
	Start  int // byte offset into the extracted text
	End    int
}

// RowGroup is one spreadsheet row's worth of text plus its coordinates.
type RowGroup struct {
	Sheet     string
	Row       int // 1-based row number within the sheet
	CellRange string
	Text      string
}

// StructuralHints is a tagged union: exactly the fields matching Kind are
// populated. It lives in memory between extraction and chunking and is
// serialized only at the storage boundary.
type StructuralHints struct {
	Kind   HintKind
	Slides []SlideBoundary
	Rows   []RowGroup
}

// ExtractionResult is the normalized output of one extraction attempt.
// It is ephemeral; only Text is cached back onto the document row.
type ExtractionResult struct {
	Text       string
	Confidence float64 // 0..1, extraction-method dependent
	PageCount  int
	WordCount  int
	Hints      StructuralHints
}

// PipelineRun is one attempt to take a document from intake to ready/failed.
// A retry or reprocess creates a new run for the same document.
type PipelineRun struct {
	ID         string
	DocumentID string
	OwnerID    string
	StartedAt  time.Time
}
