package permission

import (
	"context"
	"errors"
	"fmt"

	"github.com/inkwave/inkwave/sync-engine/internal/docstore"
)

// ErrDenied is returned by any access-gated operation when the caller's
// effective tier is insufficient. Never retried.
var ErrDenied = errors.New("permission denied")

// Resolver computes a user's effective tier on a document: document owner
// first, then the grant record, then none. Callers must resolve fresh at
// call time; grants change mid-session and tiers must never be cached.
type Resolver struct {
	store docstore.Store
}

func NewResolver(store docstore.Store) *Resolver {
	return &Resolver{store: store}
}

func (r *Resolver) Resolve(ctx context.Context, documentID, userID string) (docstore.Tier, error) {
	doc, err := r.store.Get(ctx, documentID)
	if err != nil {
		return docstore.TierNone, fmt.Errorf("resolve tier: %w", err)
	}
	if doc.OwnerID == userID {
		return docstore.TierOwner, nil
	}
	g, err := r.store.GetGrant(ctx, documentID, userID)
	if err != nil {
		return docstore.TierNone, fmt.Errorf("resolve tier: %w", err)
	}
	if g == nil {
		return docstore.TierNone, nil
	}
	return g.Tier, nil
}

// Require resolves the caller's tier and returns ErrDenied unless it is at
// least the required one.
func (r *Resolver) Require(ctx context.Context, documentID, userID string, required docstore.Tier) (docstore.Tier, error) {
	tier, err := r.Resolve(ctx, documentID, userID)
	if err != nil {
		return docstore.TierNone, err
	}
	if !tier.AtLeast(required) {
		return tier, ErrDenied
	}
	return tier, nil
}
