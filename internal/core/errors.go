package core

import "fmt"

// ValidationError means the upload itself is unusable (bad or missing
// encryption metadata, unsupported media type). Raised before any processing
// starts; never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
	}
	return "validation: " + e.Reason
}

// ExtractionError means every strategy in the dispatch chain failed for this
// document.
type ExtractionError struct {
	MediaType string
	Cause     error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed for %s: %v", e.MediaType, e.Cause)
}

func (e *ExtractionError) Unwrap() error { return e.Cause }

// InsufficientContentError means extraction succeeded but produced text too
// short to be searchable. Terminal for the run.
type InsufficientContentError struct {
	Got int
	Min int
}

func (e *InsufficientContentError) Error() string {
	return fmt.Sprintf("insufficient content: extracted %d chars, need at least %d", e.Got, e.Min)
}

// EmbeddingError wraps a failure from the embedding capability.
type EmbeddingError struct {
	Cause error
}

func (e *EmbeddingError) Error() string { return fmt.Sprintf("embedding failed: %v", e.Cause) }
func (e *EmbeddingError) Unwrap() error { return e.Cause }

// VectorStoreError wraps a vector-index write, delete or verification
// failure. A verification shortfall uses this type with Cause describing the
// observed vs expected counts.
type VectorStoreError struct {
	Op    string // "delete", "upsert", "verify"
	Cause error
}

func (e *VectorStoreError) Error() string {
	return fmt.Sprintf("vector store %s failed: %v", e.Op, e.Cause)
}

func (e *VectorStoreError) Unwrap() error { return e.Cause }

// TimeoutError is raised by the orchestrator's wall-clock guard when a whole
// pipeline run exceeds its budget, regardless of which stage was in flight.
type TimeoutError struct {
	Stage string
}

func (e *TimeoutError) Error() string {
	if e.Stage != "" {
		return "pipeline timed out during " + e.Stage
	}
	return "pipeline timed out"
}
