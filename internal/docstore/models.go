package docstore

import "time"

// Document is the engine's view of a stored note. Bodies and metadata are
// owned by the backing store; the sync engine only reads snapshots and writes
// through Put, it never keeps bodies of its own.
type Document struct {
	ID        string    `json:"id" bson:"_id,omitempty"`
	Title     string    `json:"title" bson:"title"`
	Body      string    `json:"body,omitempty" bson:"body,omitempty"`
	OwnerID   string    `json:"ownerId" bson:"ownerId"`
	Version   int64     `json:"version" bson:"version"`
	Public    bool      `json:"public" bson:"public"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

// Tier is a collaborator's permission level on a document. Tiers are totally
// ordered: owner > admin > write > read > none. The owner tier is implicit
// from Document.OwnerID and is never materialized as a grant.
type Tier string

const (
	TierNone  Tier = ""
	TierRead  Tier = "read"
	TierWrite Tier = "write"
	TierAdmin Tier = "admin"
	TierOwner Tier = "owner"
)

var tierRank = map[Tier]int{
	TierNone:  0,
	TierRead:  1,
	TierWrite: 2,
	TierAdmin: 3,
	TierOwner: 4,
}

// AtLeast reports whether t grants at least the required tier.
func (t Tier) AtLeast(required Tier) bool {
	return tierRank[t] >= tierRank[required]
}

// Valid reports whether t names a grantable tier (owner is implicit, never granted).
func (t Tier) Valid() bool {
	switch t {
	case TierRead, TierWrite, TierAdmin:
		return true
	}
	return false
}

// Grant assigns a tier to a non-owner user on a document. A user holds at
// most one grant per document; re-granting overwrites the tier.
type Grant struct {
	DocumentID string    `json:"documentId" bson:"documentId"`
	UserID     string    `json:"userId" bson:"userId"`
	Tier       Tier      `json:"tier" bson:"tier"`
	GrantedBy  string    `json:"grantedBy" bson:"grantedBy"`
	CreatedAt  time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt" bson:"updatedAt"`
}
