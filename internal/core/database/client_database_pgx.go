package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/krypta-docs/krypta/internal/config"
	"github.com/krypta-docs/krypta/internal/core"
	"github.com/krypta-docs/krypta/internal/models"
)

type DatabaseClient struct {
	db *sql.DB
}

var _ core.DbClient = (*DatabaseClient)(nil)

func NewDatabaseClient(ctx context.Context, cfg *config.Config) (*DatabaseClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Sensible pool settings for an API service; adjust as needed.
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

func (c *DatabaseClient) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc == nil {
		return errors.New("nil document")
	}
	meta, err := marshalZKMeta(doc.EncryptionMeta)
	if err != nil {
		return err
	}
	const q = `
		INSERT INTO documents
			(id, owner_id, file_name, media_type, content_hash, storage_key, size_bytes,
			 folder_id, encryption_mode, encryption_meta, status, error, chunk_count,
			 page_count, word_count, extracted_text, created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
			 COALESCE($17, now()), COALESCE($18, now()))
	`
	_, err = c.db.ExecContext(ctx, q,
		doc.ID, doc.OwnerID, doc.FileName, doc.MediaType, doc.ContentHash, doc.StorageKey,
		doc.SizeBytes, doc.FolderID, doc.EncryptionMode, meta, doc.Status, doc.Error,
		doc.ChunkCount, doc.PageCount, doc.WordCount, doc.ExtractedText,
		nullTime(doc.CreatedAt), nullTime(doc.UpdatedAt))
	return err
}

const documentColumns = `
	id, owner_id, file_name, media_type, content_hash, storage_key, size_bytes,
	folder_id, encryption_mode, encryption_meta, status, error, chunk_count,
	page_count, word_count, extracted_text, created_at, updated_at
`

func (c *DatabaseClient) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	q := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	return c.scanDocument(c.db.QueryRowContext(ctx, q, id))
}

func (c *DatabaseClient) ListDocumentsByOwner(ctx context.Context, ownerID string) ([]models.Document, error) {
	q := `SELECT ` + documentColumns + ` FROM documents WHERE owner_id = $1 ORDER BY created_at DESC`
	rows, err := c.db.QueryContext(ctx, q, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		d, err := scanDocumentRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// FindCompletedDocument is the idempotency lookup. Matching on filename as
// well as hash is deliberate: identical bytes under a different user-chosen
// name are a copy, not a re-upload.
func (c *DatabaseClient) FindCompletedDocument(ctx context.Context, ownerID, contentHash, fileName, folderID string) (*models.Document, error) {
	q := `SELECT ` + documentColumns + `
		FROM documents
		WHERE owner_id = $1 AND content_hash = $2 AND file_name = $3 AND folder_id = $4
		  AND status = $5
		ORDER BY created_at DESC
		LIMIT 1`
	return c.scanDocument(c.db.QueryRowContext(ctx, q, ownerID, contentHash, fileName, folderID, models.StatusReady))
}

func (c *DatabaseClient) UpdateDocumentStatus(ctx context.Context, id string, status string, reason string) error {
	const q = `
		UPDATE documents
		SET status = $2, error = $3, updated_at = now()
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, id, status, reason)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("document not found: %s", id)
	}
	return nil
}

func (c *DatabaseClient) UpdateDocumentDerived(ctx context.Context, id string, extractedText string, pageCount, wordCount int) error {
	const q = `
		UPDATE documents
		SET extracted_text = $2, page_count = $3, word_count = $4, updated_at = now()
		WHERE id = $1
	`
	_, err := c.db.ExecContext(ctx, q, id, extractedText, pageCount, wordCount)
	return err
}

func (c *DatabaseClient) UpdateDocumentChunkCount(ctx context.Context, id string, count int) error {
	const q = `
		UPDATE documents
		SET chunk_count = $2, updated_at = now()
		WHERE id = $1
	`
	_, err := c.db.ExecContext(ctx, q, id, count)
	return err
}

func (c *DatabaseClient) DeleteDocument(ctx context.Context, id string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	return err
}

// ReplaceDocumentChunks swaps the chunk mirror for a document in one
// transaction: reprocessing never appends to a prior run's rows.
func (c *DatabaseClient) ReplaceDocumentChunks(ctx context.Context, documentID string, chunks []models.DocumentChunk) error {
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, documentID); err != nil {
		_ = tx.Rollback()
		return err
	}

	const q = `
		INSERT INTO document_chunks
			(id, document_id, position, text, embedding, slide_num, sheet_name,
			 row_num, cell_range, char_start, char_end, token_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, COALESCE($13, now()))
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range chunks {
		ch := &chunks[i]
		var vec any
		if len(ch.Embedding) > 0 {
			vec = pgvector.NewVector(ch.Embedding)
		}
		if _, err := stmt.ExecContext(ctx,
			ch.ID, documentID, ch.Position, ch.Text, vec, ch.SlideNum, ch.SheetName,
			ch.RowNum, ch.CellRange, ch.CharStart, ch.CharEnd, ch.TokenCount, nullTime(ch.CreatedAt),
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (c *DatabaseClient) GetChunksByDocument(ctx context.Context, documentID string) ([]models.DocumentChunk, error) {
	const q = `
		SELECT id, document_id, position, text, slide_num, sheet_name,
		       row_num, cell_range, char_start, char_end, token_count, created_at
		FROM document_chunks
		WHERE document_id = $1
		ORDER BY position ASC
	`
	rows, err := c.db.QueryContext(ctx, q, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.DocumentChunk
	for rows.Next() {
		var ch models.DocumentChunk
		if err := rows.Scan(
			&ch.ID, &ch.DocumentID, &ch.Position, &ch.Text, &ch.SlideNum, &ch.SheetName,
			&ch.RowNum, &ch.CellRange, &ch.CharStart, &ch.CharEnd, &ch.TokenCount, &ch.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) DeleteChunksByDocument(ctx context.Context, documentID string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, documentID)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (c *DatabaseClient) scanDocument(row *sql.Row) (*models.Document, error) {
	d, err := scanDocumentRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

func scanDocumentRow(row rowScanner) (*models.Document, error) {
	var (
		d    models.Document
		meta sql.NullString
	)
	if err := row.Scan(
		&d.ID, &d.OwnerID, &d.FileName, &d.MediaType, &d.ContentHash, &d.StorageKey,
		&d.SizeBytes, &d.FolderID, &d.EncryptionMode, &meta, &d.Status, &d.Error,
		&d.ChunkCount, &d.PageCount, &d.WordCount, &d.ExtractedText, &d.CreatedAt, &d.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if meta.Valid && meta.String != "" {
		var zk models.ZKMeta
		if err := json.Unmarshal([]byte(meta.String), &zk); err != nil {
			return nil, fmt.Errorf("decode encryption_meta: %w", err)
		}
		d.EncryptionMeta = &zk
	}
	return &d, nil
}

func marshalZKMeta(m *models.ZKMeta) (any, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode encryption_meta: %w", err)
	}
	return string(b), nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
