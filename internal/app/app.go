package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/krypta-docs/krypta/internal/config"
	"github.com/krypta-docs/krypta/internal/core"
	"github.com/krypta-docs/krypta/internal/core/crypto"
	db "github.com/krypta-docs/krypta/internal/core/database"
	"github.com/krypta-docs/krypta/internal/core/ingestion_engine"
	"github.com/krypta-docs/krypta/internal/core/llm"
	objectclient "github.com/krypta-docs/krypta/internal/core/object-client"
	"github.com/krypta-docs/krypta/internal/core/progress"
	"github.com/krypta-docs/krypta/internal/core/vectorindex"
	"github.com/krypta-docs/krypta/internal/services"
)

type App struct {
	DBClient *db.DatabaseClient
	Ingestor ingestion_engine.Ingestor
	Server   *Server
	sink     *progress.NSQSink
	embedder *llm.GeminiEmbedder
	vision   *llm.GeminiVision
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	dbClient, err := db.NewDatabaseClient(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	log.Println("Database initialized and ready.")

	objClient, err := objectclient.NewS3Client(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	log.Println("Object client initialized and ready.")

	index, err := vectorindex.NewStore(appCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the vector index: %w", err)
	}
	log.Println("Vector index initialized and ready.")

	embedder, err := llm.NewGeminiEmbedder(appCtx, cfg.AIAPIKey, cfg.EmbedModel)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the embedder: %w", err)
	}

	vision, err := llm.NewGeminiVision(appCtx, cfg.AIAPIKey, cfg.VisionModel)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the vision extractor: %w", err)
	}

	var (
		sink     *progress.NSQSink
		prog     core.ProgressSink
		cacheInv core.CacheInvalidator
	)
	if cfg.NSQDHost != "" {
		sink, err = progress.NewNSQSink(cfg.NSQDHost, cfg.ProgressTopic, cfg.InvalidateTopic)
		if err != nil {
			return nil, fmt.Errorf("couldn't connect the progress sink: %w", err)
		}
		prog, cacheInv = sink, sink
	} else {
		log.Println("NSQD_HOST not set; progress events are disabled.")
		noop := progress.NoopSink{}
		prog, cacheInv = noop, noop
	}

	gate := crypto.NewGate(cfg.MasterKey, cfg.MinZKPlaintext)
	dispatcher := ingestion_engine.NewDispatcher(
		ingestion_engine.NewDocconvExtractor(),
		vision,
		ingestion_engine.NewDocconvOCR(),
		cfg.MinExtractChars,
	)
	chunker := ingestion_engine.NewChunker(cfg.ChunkMaxChars, cfg.ChunkOverlap, cfg.SingleChunkWords)

	ingCfg := &ingestion_engine.IngestConfig{
		MaxChunkChars:    cfg.ChunkMaxChars,
		OverlapChars:     cfg.ChunkOverlap,
		BatchSize:        cfg.EmbedBatchSize,
		EmbedDim:         cfg.EmbedDim,
		MinExtractChars:  cfg.MinExtractChars,
		MinZKPlaintext:   cfg.MinZKPlaintext,
		SingleChunkWords: cfg.SingleChunkWords,
		VerifyThreshold:  cfg.VerifyThreshold,
		TimeoutMinutes:   cfg.PipelineTimeoutMin,
		Workers:          cfg.Workers,
	}

	ingestor, err := ingestion_engine.NewDocumentIngestor(
		dbClient, objClient, embedder, index, dispatcher, chunker, gate, prog, cacheInv, ingCfg,
	)
	if err != nil {
		return nil, err
	}

	docService := services.NewDocumentService(dbClient, objClient, index, gate, ingestor, cacheInv)
	server := NewServer(cfg, docService)

	return &App{
		DBClient: dbClient,
		Ingestor: ingestor,
		Server:   server,
		sink:     sink,
		embedder: embedder,
		vision:   vision,
	}, nil
}

func (a *App) Close() {
	if a.Ingestor != nil {
		a.Ingestor.Close()
	}
	if a.sink != nil {
		a.sink.Stop()
	}
	if a.embedder != nil {
		_ = a.embedder.Close()
	}
	if a.vision != nil {
		_ = a.vision.Close()
	}
	if a.DBClient != nil {
		_ = a.DBClient.Close()
	}
}
