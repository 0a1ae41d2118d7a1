package ingestion_engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krypta-docs/krypta/internal/models"
)

func TestIdempotencyGuardReturnsReadyMatch(t *testing.T) {
	existing := &models.Document{
		ID: "d-1", OwnerID: "owner-1", ContentHash: "abc", FileName: "notes.txt",
		FolderID: "f-1", Status: models.StatusReady,
	}
	g := NewIdempotencyGuard(newFakeDB(existing))

	match := g.CheckExisting(context.Background(), "owner-1", "abc", "notes.txt", "f-1")
	require.NotNil(t, match)
	assert.Equal(t, "d-1", match.ID)
}

func TestIdempotencyGuardEmptyHashNeverMatches(t *testing.T) {
	g := NewIdempotencyGuard(newFakeDB())
	assert.Nil(t, g.CheckExisting(context.Background(), "owner-1", "", "notes.txt", ""))
}

func TestIdempotencyGuardLookupErrorDegradesToNoMatch(t *testing.T) {
	existing := &models.Document{
		ID: "d-1", OwnerID: "owner-1", ContentHash: "abc", FileName: "notes.txt",
		Status: models.StatusReady,
	}
	db := newFakeDB(existing)
	db.findErr = errors.New("connection refused")
	g := NewIdempotencyGuard(db)

	match := g.CheckExisting(context.Background(), "owner-1", "abc", "notes.txt", "")
	assert.Nil(t, match, "an index outage must read as a new upload, not an error")
}
