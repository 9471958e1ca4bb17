package permission

import (
	"context"
	"fmt"

	"github.com/inkwave/inkwave/sync-engine/internal/docstore"
)

// Manager mutates grant records on behalf of privileged users. The resolver
// itself stays read-only; all writes go through here so the authorization
// rules live in one place.
type Manager struct {
	store    docstore.Store
	resolver *Resolver
}

func NewManager(store docstore.Store, resolver *Resolver) *Manager {
	return &Manager{store: store, resolver: resolver}
}

// UpdateTier sets the target user's tier. Requires the actor to hold admin or
// better, and the owner can never be downgraded into a grant row.
func (m *Manager) UpdateTier(ctx context.Context, documentID, actorID, targetID string, tier docstore.Tier) error {
	if !tier.Valid() {
		return fmt.Errorf("update tier: %q is not a grantable tier", tier)
	}
	if _, err := m.resolver.Require(ctx, documentID, actorID, docstore.TierAdmin); err != nil {
		return err
	}
	doc, err := m.store.Get(ctx, documentID)
	if err != nil {
		return err
	}
	if doc.OwnerID == targetID {
		return ErrDenied
	}
	return m.store.UpsertGrant(ctx, docstore.Grant{
		DocumentID: documentID,
		UserID:     targetID,
		Tier:       tier,
		GrantedBy:  actorID,
	})
}

// RemoveCollaborator deletes the target's grant. The actor must hold admin or
// better and must outrank the target unless the actor is the owner.
func (m *Manager) RemoveCollaborator(ctx context.Context, documentID, actorID, targetID string) error {
	actorTier, err := m.resolver.Require(ctx, documentID, actorID, docstore.TierAdmin)
	if err != nil {
		return err
	}
	targetTier, err := m.resolver.Resolve(ctx, documentID, targetID)
	if err != nil {
		return err
	}
	if targetTier == docstore.TierOwner {
		return ErrDenied
	}
	if actorTier != docstore.TierOwner && targetTier.AtLeast(actorTier) {
		return ErrDenied
	}
	return m.store.DeleteGrant(ctx, documentID, targetID)
}
