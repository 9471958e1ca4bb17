package invite

import (
	"context"
	"fmt"
	"time"

	"github.com/inkwave/inkwave/sync-engine/internal/docstore"
)

// Invite is a redeemable capability code granting a tier on a document.
// MaxUses == 0 means unlimited; a nil ExpiresAt never expires.
type Invite struct {
	ID         string        `json:"id" bson:"_id,omitempty"`
	Code       string        `json:"code" bson:"code"`
	DocumentID string        `json:"documentId" bson:"documentId"`
	Tier       docstore.Tier `json:"tier" bson:"tier"`
	CreatedBy  string        `json:"createdBy" bson:"createdBy"`
	MaxUses    int           `json:"maxUses,omitempty" bson:"maxUses,omitempty"`
	Uses       int           `json:"uses" bson:"uses"`
	ExpiresAt  *time.Time    `json:"expiresAt,omitempty" bson:"expiresAt,omitempty"`
	Active     bool          `json:"active" bson:"active"`
	CreatedAt  time.Time     `json:"createdAt" bson:"createdAt"`
}

// Expired reports whether the invite's expiry has passed at the given time.
func (i *Invite) Expired(now time.Time) bool {
	return i.ExpiresAt != nil && now.After(*i.ExpiresAt)
}

// Exhausted reports whether the use budget is spent.
func (i *Invite) Exhausted() bool {
	return i.MaxUses > 0 && i.Uses >= i.MaxUses
}

// Reason tags the distinct redemption failures; callers render a distinct
// message per reason and never retry.
type Reason string

const (
	ReasonNotFound            Reason = "not_found"
	ReasonExpired             Reason = "expired"
	ReasonExhausted           Reason = "exhausted"
	ReasonAlreadyCollaborator Reason = "already_collaborator"
	ReasonIsOwner             Reason = "is_owner"
)

type Error struct {
	Reason Reason
}

func (e *Error) Error() string {
	return fmt.Sprintf("invite: %s", e.Reason)
}

// Is matches any *Error with the same reason, so errors.Is works against the
// package sentinels below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Reason == e.Reason
}

var (
	ErrNotFound            = &Error{Reason: ReasonNotFound}
	ErrExpired             = &Error{Reason: ReasonExpired}
	ErrExhausted           = &Error{Reason: ReasonExhausted}
	ErrAlreadyCollaborator = &Error{Reason: ReasonAlreadyCollaborator}
	ErrIsOwner             = &Error{Reason: ReasonIsOwner}
)

// Repo persists invites. ConsumeUse is the only mutation raced by concurrent
// redeemers and must be atomic: when one use remains, exactly one caller wins.
type Repo interface {
	Create(ctx context.Context, inv *Invite) error
	Get(ctx context.Context, id string) (*Invite, error)
	GetByCode(ctx context.Context, code string) (*Invite, error)
	ListByDocument(ctx context.Context, documentID string) ([]*Invite, error)
	Deactivate(ctx context.Context, id string) error
	ConsumeUse(ctx context.Context, id string) error
}
