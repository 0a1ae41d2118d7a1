package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/krypta-docs/krypta/internal/core"
	"github.com/krypta-docs/krypta/internal/core/crypto"
	"github.com/krypta-docs/krypta/internal/models"
)

// DocumentIngestor runs the staged pipeline for one document at a time per
// worker: decrypt, extract, clean, analyze, chunk, embed, vector-store write,
// verification, relational sync, terminal state. It is the only mutator of
// document status.
type DocumentIngestor struct {
	db         core.DbClient
	obj        core.ObjectClient
	embedder   core.EmbeddingProvider
	index      core.VectorIndex
	dispatcher *Dispatcher
	chunker    *Chunker
	gate       *crypto.Gate
	progress   core.ProgressSink
	cache      core.CacheInvalidator
	cfg        *IngestConfig
	pool       *ants.Pool
}

var _ Ingestor = (*DocumentIngestor)(nil)

func NewDocumentIngestor(
	db core.DbClient,
	obj core.ObjectClient,
	embedder core.EmbeddingProvider,
	index core.VectorIndex,
	dispatcher *Dispatcher,
	chunker *Chunker,
	gate *crypto.Gate,
	progress core.ProgressSink,
	cache core.CacheInvalidator,
	cfg *IngestConfig,
) (*DocumentIngestor, error) {
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("worker pool: %w", err)
	}
	return &DocumentIngestor{
		db: db, obj: obj, embedder: embedder, index: index,
		dispatcher: dispatcher, chunker: chunker, gate: gate,
		progress: progress, cache: cache, cfg: cfg, pool: pool,
	}, nil
}

// Enqueue schedules a document for background processing. Blocks when every
// worker is busy; the upload response has already been sent by then.
func (i *DocumentIngestor) Enqueue(docID string) {
	err := i.pool.Submit(func() {
		if err := i.ProcessOne(context.Background(), docID); err != nil {
			log.Printf("DocumentIngestor: document %s failed: %v", docID, err)
		}
	})
	if err != nil {
		log.Printf("DocumentIngestor: could not schedule document %s: %v", docID, err)
	}
}

func (i *DocumentIngestor) Close() {
	if i.pool != nil {
		i.pool.Release()
	}
}

// ProcessOne is one PipelineRun: a fresh attempt to take the document from
// intake to ready/failed. Exactly one terminal transition happens here.
func (i *DocumentIngestor) ProcessOne(ctx context.Context, docID string) error {
	timeout := time.Duration(i.cfg.TimeoutMinutes) * time.Minute
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	proctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	doc, err := i.db.GetDocumentByID(proctx, docID)
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}
	if doc == nil {
		return fmt.Errorf("document not found: %s", docID)
	}

	run := &models.PipelineRun{
		ID:         uuid.NewString(),
		DocumentID: docID,
		OwnerID:    doc.OwnerID,
		StartedAt:  time.Now(),
	}
	log.Printf("DocumentIngestor: run %s processing document %s (%s)", run.ID, docID, doc.FileName)

	if err := i.db.UpdateDocumentStatus(proctx, docID, models.StatusProcessing, ""); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	chunkCount, lastStage, runErr := i.runPipeline(proctx, run, doc)
	if errors.Is(proctx.Err(), context.DeadlineExceeded) {
		// Wall-clock guard: a run that outlives its budget fails even when
		// every stage call came back clean.
		runErr = &core.TimeoutError{Stage: lastStage}
	}
	if runErr != nil {
		i.finalize(run, models.StatusFailed, runErr.Error())
		return runErr
	}

	syncCtx, syncCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer syncCancel()
	if err := i.db.UpdateDocumentChunkCount(syncCtx, docID, chunkCount); err != nil {
		log.Printf("DocumentIngestor: chunk count update for %s: %v", docID, err)
	}
	i.finalize(run, models.StatusReady, "")
	log.Printf("DocumentIngestor: run %s completed document %s with %d chunks", run.ID, docID, chunkCount)
	return nil
}

// runPipeline executes the stages in order. It returns the produced chunk
// count and the last stage reached (for timeout attribution).
func (i *DocumentIngestor) runPipeline(ctx context.Context, run *models.PipelineRun, doc *models.Document) (int, string, error) {
	stage := StageExtractionStart

	res, err := i.acquireText(ctx, run, doc)
	if err != nil {
		return 0, stage, err
	}
	stage = StageExtractionComplete

	// Whitespace normalization. Skipped when structural hints carry offsets
	// into the raw text.
	i.publish(run, StageCleaning, "")
	stage = StageCleaning
	if res.Hints.Kind == models.HintNone {
		res.Text = normalizeWhitespace(res.Text)
	}

	i.publish(run, StageAnalysis, "")
	stage = StageAnalysis
	trimmed := strings.TrimSpace(res.Text)
	if len(trimmed) < i.cfg.MinExtractChars {
		return 0, stage, &core.InsufficientContentError{Got: len(trimmed), Min: i.cfg.MinExtractChars}
	}
	res.WordCount = len(strings.Fields(res.Text))
	if err := i.db.UpdateDocumentDerived(ctx, doc.ID, res.Text, res.PageCount, res.WordCount); err != nil {
		log.Printf("DocumentIngestor: caching extracted text for %s: %v", doc.ID, err)
	}

	i.publish(run, StageChunkingStart, "")
	stage = StageChunkingStart
	chunks, err := i.chunker.Chunk(res.Text, res.Hints, doc.FileName)
	if err != nil {
		return 0, stage, err
	}
	now := time.Now()
	for k := range chunks {
		chunks[k].ID = uuid.NewString()
		chunks[k].DocumentID = doc.ID
		chunks[k].CreatedAt = now
	}
	i.publish(run, StageChunkingComplete, fmt.Sprintf("%d chunks", len(chunks)))
	stage = StageChunkingComplete

	i.publish(run, StageEmbeddingStart, "")
	stage = StageEmbeddingStart
	if err := i.embedChunks(ctx, chunks); err != nil {
		return 0, stage, err
	}
	i.publish(run, StageEmbeddingComplete, "")
	stage = StageEmbeddingComplete

	i.publish(run, StageVectorStoreStart, "")
	stage = StageVectorStoreStart
	if err := i.storeVectors(ctx, doc.ID, chunks); err != nil {
		return 0, stage, err
	}
	i.publish(run, StageVectorStoreComplete, "")
	stage = StageVectorStoreComplete

	i.publish(run, StageVerificationStart, "")
	stage = StageVerificationStart
	if err := i.verifyVectors(ctx, doc.ID, len(chunks)); err != nil {
		return 0, stage, err
	}
	i.publish(run, StageVerificationComplete, "")
	stage = StageVerificationComplete

	i.publish(run, StageDatabaseSync, "")
	stage = StageDatabaseSync
	if err := i.db.ReplaceDocumentChunks(ctx, doc.ID, chunks); err != nil {
		return 0, stage, fmt.Errorf("chunk mirror sync: %w", err)
	}

	return len(chunks), stage, nil
}

// acquireText yields the plaintext the rest of the pipeline works on. For
// zero-knowledge documents the server cannot decrypt: the caller-supplied
// excerpt is the only searchable content, and its absence is terminal before
// any extraction is attempted.
func (i *DocumentIngestor) acquireText(ctx context.Context, run *models.PipelineRun, doc *models.Document) (*models.ExtractionResult, error) {
	if doc.EncryptionMode == models.EncryptionZK {
		excerpt := doc.ExtractedText
		if len(strings.TrimSpace(excerpt)) < i.cfg.MinZKPlaintext {
			return nil, &core.ValidationError{
				Field:  "plaintext_excerpt",
				Reason: fmt.Sprintf("zero-knowledge document has no usable plaintext (need %d chars); it cannot be indexed", i.cfg.MinZKPlaintext),
			}
		}
		i.publish(run, StageExtractionStart, "client-supplied plaintext")
		i.publish(run, StageExtractionComplete, "")
		return &models.ExtractionResult{
			Text:       excerpt,
			Confidence: 1.0,
			WordCount:  len(strings.Fields(excerpt)),
			Hints:      models.StructuralHints{Kind: models.HintNone},
		}, nil
	}

	i.publish(run, StageExtractionStart, "")
	blob, err := i.obj.Get(ctx, doc.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("blob fetch: %w", err)
	}

	plaintext := blob
	if doc.EncryptionMode == models.EncryptionServer {
		plaintext, err = i.gate.DecryptForProcessing(doc.OwnerID, blob)
		if err != nil {
			return nil, fmt.Errorf("decrypt for processing: %w", err)
		}
	}

	res, err := i.dispatcher.Extract(ctx, plaintext, doc.MediaType, doc.FileName)
	if err != nil {
		return nil, err
	}
	i.publish(run, StageExtractionComplete, fmt.Sprintf("confidence %.2f", res.Confidence))
	return res, nil
}

// finalize performs the single terminal transition for a run plus its
// best-effort side effects. Uses a fresh context: the run context may already
// be dead (timeout) and a failed document must never stay stuck in
// "processing".
func (i *DocumentIngestor) finalize(run *models.PipelineRun, status, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := i.db.UpdateDocumentStatus(ctx, run.DocumentID, status, reason); err != nil {
		log.Printf("DocumentIngestor: terminal status write for %s: %v", run.DocumentID, err)
	}
	if status == models.StatusReady {
		i.publish(run, StageComplete, "")
	} else {
		i.publish(run, StageFailed, reason)
	}
	i.cache.Invalidate(run.OwnerID)
}

func (i *DocumentIngestor) publish(run *models.PipelineRun, stage, message string) {
	i.progress.Publish(run.OwnerID, run.DocumentID, stage, stagePercents[stage], message)
}

// normalizeWhitespace canonicalizes line endings, strips trailing spaces and
// collapses runs of blank lines.
func normalizeWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	var (
		b      strings.Builder
		blanks int
	)
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if line == "" {
			blanks++
			if blanks > 1 {
				continue
			}
		} else {
			blanks = 0
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}
