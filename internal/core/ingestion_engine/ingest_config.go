package ingestion_engine

// IngestConfig tunes the pipeline.
//
// MaxChunkChars:    upper bound for one chunk's text (e.g., 1200).
// OverlapChars:     window overlap for prose chunking, preserves context
//                   across chunk boundaries (~20% of MaxChunkChars).
// BatchSize:        how many chunks to embed per request.
// EmbedDim:         expected vector width; a vector of any other width is an
//                   embedding failure before anything is written (the chunk
//                   mirror column is a fixed-width vector). 0 disables the
//                   check.
// MinExtractChars:  extraction output below this is a pipeline failure.
// MinZKPlaintext:   minimum usable plaintext excerpt for zero-knowledge docs.
// SingleChunkWords: documents under this word count produce exactly one chunk.
// VerifyThreshold:  fraction of expected vectors that must be observed in the
//                   index after the write (tolerates eventual consistency).
// TimeoutMinutes:   wall-clock budget for one whole pipeline run.
// Workers:          background worker pool size.
type IngestConfig struct {
	MaxChunkChars    int
	OverlapChars     int
	BatchSize        int
	EmbedDim         int
	MinExtractChars  int
	MinZKPlaintext   int
	SingleChunkWords int
	VerifyThreshold  float64
	TimeoutMinutes   int
	Workers          int
}

// Stage names published to the progress sink, in pipeline order.
const (
	StageExtractionStart      = "extraction-start"
	StageExtractionComplete   = "extraction-complete"
	StageCleaning             = "cleaning"
	StageAnalysis             = "analysis"
	StageChunkingStart        = "chunking-start"
	StageChunkingComplete     = "chunking-complete"
	StageEmbeddingStart       = "embedding-start"
	StageEmbeddingComplete    = "embedding-complete"
	StageVectorStoreStart     = "vector-store-start"
	StageVectorStoreComplete  = "vector-store-complete"
	StageVerificationStart    = "verification-start"
	StageVerificationComplete = "verification-complete"
	StageDatabaseSync         = "database-sync"
	StageComplete             = "complete"
	StageFailed               = "failed"
)

// stagePercents maps each stage to a monotonically increasing progress value.
// Coarse vs granular reporting is a matter of which rows a sink cares about,
// not separate pipelines.
var stagePercents = map[string]int{
	StageExtractionStart:      5,
	StageExtractionComplete:   25,
	StageCleaning:             30,
	StageAnalysis:             35,
	StageChunkingStart:        40,
	StageChunkingComplete:     50,
	StageEmbeddingStart:       55,
	StageEmbeddingComplete:    72,
	StageVectorStoreStart:     78,
	StageVectorStoreComplete:  85,
	StageVerificationStart:    90,
	StageVerificationComplete: 95,
	StageDatabaseSync:         98,
	StageComplete:             100,
	StageFailed:               100,
}
