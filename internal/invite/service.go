package invite

import (
	"context"
	"fmt"
	"time"

	"github.com/inkwave/inkwave/sync-engine/internal/activity"
	"github.com/inkwave/inkwave/sync-engine/internal/docstore"
	"github.com/inkwave/inkwave/sync-engine/internal/permission"
	"github.com/inkwave/inkwave/sync-engine/pkg/logger"
	"github.com/inkwave/inkwave/sync-engine/pkg/metrics"
)

const maxCodeCollisionRetries = 5

// Service issues, redeems, and revokes invite codes. Minting, listing, and
// deactivating are owner-only; even admins cannot manage invites.
type Service struct {
	repo     Repo
	store    docstore.Store
	resolver *permission.Resolver
	recorder activity.Recorder // optional
	now      func() time.Time
}

func NewService(repo Repo, store docstore.Store, resolver *permission.Resolver, recorder activity.Recorder) *Service {
	return &Service{repo: repo, store: store, resolver: resolver, recorder: recorder, now: time.Now}
}

func (s *Service) record(ctx context.Context, ev activity.Event) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.Record(ctx, ev); err != nil {
		logger.Warnf("invite: recording %s failed: %v", ev.Type, err)
	}
}

// CreateInvite mints a new code granting tier on the document. maxUses == 0
// means unlimited, a nil expiresAt never expires.
func (s *Service) CreateInvite(ctx context.Context, documentID string, tier docstore.Tier, issuerID string, maxUses int, expiresAt *time.Time) (*Invite, error) {
	if !tier.Valid() {
		return nil, fmt.Errorf("create invite: %q is not a grantable tier", tier)
	}
	if _, err := s.resolver.Require(ctx, documentID, issuerID, docstore.TierOwner); err != nil {
		return nil, err
	}

	inv := &Invite{
		DocumentID: documentID,
		Tier:       tier,
		CreatedBy:  issuerID,
		MaxUses:    maxUses,
		ExpiresAt:  expiresAt,
		Active:     true,
	}
	var err error
	for attempt := 0; attempt < maxCodeCollisionRetries; attempt++ {
		inv.Code, err = newCode()
		if err != nil {
			return nil, err
		}
		if _, err := s.repo.GetByCode(ctx, inv.Code); err == nil {
			continue // collision against an existing code, draw again
		}
		if err := s.repo.Create(ctx, inv); err != nil {
			return nil, fmt.Errorf("create invite: %w", err)
		}
		s.record(ctx, activity.Event{
			DocumentID: documentID,
			ActorID:    issuerID,
			Type:       activity.TypeInviteCreated,
			Payload:    map[string]any{"inviteId": inv.ID, "tier": string(tier)},
		})
		return inv, nil
	}
	return nil, fmt.Errorf("create invite: could not find an unused code after %d attempts", maxCodeCollisionRetries)
}

// Redeem validates the code and, on success, atomically consumes one use and
// upserts the grant at the invite's tier. Validation failures carry a
// specific reason; none of them are retryable.
func (s *Service) Redeem(ctx context.Context, code, redeemerID string) (string, error) {
	inv, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		metrics.InviteRedemptions.WithLabelValues("not_found").Inc()
		return "", err
	}
	if !inv.Active {
		metrics.InviteRedemptions.WithLabelValues("not_found").Inc()
		return "", ErrNotFound
	}
	if inv.Expired(s.now()) {
		metrics.InviteRedemptions.WithLabelValues("expired").Inc()
		return "", ErrExpired
	}
	if inv.Exhausted() {
		metrics.InviteRedemptions.WithLabelValues("exhausted").Inc()
		return "", ErrExhausted
	}
	g, err := s.store.GetGrant(ctx, inv.DocumentID, redeemerID)
	if err != nil {
		return "", fmt.Errorf("redeem invite: %w", err)
	}
	if g != nil {
		metrics.InviteRedemptions.WithLabelValues("already_collaborator").Inc()
		return "", ErrAlreadyCollaborator
	}
	doc, err := s.store.Get(ctx, inv.DocumentID)
	if err != nil {
		return "", fmt.Errorf("redeem invite: %w", err)
	}
	if doc.OwnerID == redeemerID {
		metrics.InviteRedemptions.WithLabelValues("is_owner").Inc()
		return "", ErrIsOwner
	}

	// the race against maxUses is decided here, not by the checks above
	if err := s.repo.ConsumeUse(ctx, inv.ID); err != nil {
		metrics.InviteRedemptions.WithLabelValues("exhausted").Inc()
		return "", err
	}
	if err := s.store.UpsertGrant(ctx, docstore.Grant{
		DocumentID: inv.DocumentID,
		UserID:     redeemerID,
		Tier:       inv.Tier,
		GrantedBy:  inv.CreatedBy,
	}); err != nil {
		return "", fmt.Errorf("redeem invite: %w", err)
	}

	metrics.InviteRedemptions.WithLabelValues("success").Inc()
	s.record(ctx, activity.Event{
		DocumentID: inv.DocumentID,
		ActorID:    redeemerID,
		Type:       activity.TypeInviteRedeemed,
		Payload:    map[string]any{"inviteId": inv.ID, "tier": string(inv.Tier)},
	})
	return inv.DocumentID, nil
}

// ListInvites returns all invites for the document. Owner only.
func (s *Service) ListInvites(ctx context.Context, documentID, requesterID string) ([]*Invite, error) {
	if _, err := s.resolver.Require(ctx, documentID, requesterID, docstore.TierOwner); err != nil {
		return nil, err
	}
	return s.repo.ListByDocument(ctx, documentID)
}

// Deactivate revokes an invite. Owner only; redemption fails afterwards
// regardless of remaining uses.
func (s *Service) Deactivate(ctx context.Context, inviteID, requesterID string) error {
	inv, err := s.repo.Get(ctx, inviteID)
	if err != nil {
		return err
	}
	if _, err := s.resolver.Require(ctx, inv.DocumentID, requesterID, docstore.TierOwner); err != nil {
		return err
	}
	return s.repo.Deactivate(ctx, inviteID)
}
