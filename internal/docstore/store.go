package docstore

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("document not found")
	// ErrVersionConflict is returned by Put when the expected version no
	// longer matches the stored one (someone else saved first).
	ErrVersionConflict = errors.New("document version conflict")
)

// Store is the engine's contract with the document store. Put performs a
// compare-and-swap when expectedVersion >= 0 and an unconditional
// last-writer-wins write when expectedVersion < 0.
type Store interface {
	Create(ctx context.Context, doc *Document) (string, error)
	Get(ctx context.Context, id string) (*Document, error)
	Put(ctx context.Context, id, body string, expectedVersion int64) (int64, error)

	ListGrants(ctx context.Context, documentID string) ([]Grant, error)
	GetGrant(ctx context.Context, documentID, userID string) (*Grant, error)
	UpsertGrant(ctx context.Context, g Grant) error
	DeleteGrant(ctx context.Context, documentID, userID string) error
}
