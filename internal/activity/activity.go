package activity

import (
	"context"
	"time"
)

type EventType string

const (
	TypePresenceJoin     EventType = "presence.join"
	TypePresenceLeave    EventType = "presence.leave"
	TypeInviteCreated    EventType = "invite.created"
	TypeInviteRedeemed   EventType = "invite.redeemed"
	TypeGrantUpdated     EventType = "grant.updated"
	TypeGrantRemoved     EventType = "grant.removed"
	TypeConflictResolved EventType = "conflict.resolved"
)

// Event is one row of the per-document audit trail. The log is append-only;
// retention and cleanup are external concerns, the engine never mutates or
// deletes entries.
type Event struct {
	ID         string         `json:"id" bson:"_id,omitempty"`
	DocumentID string         `json:"documentId" bson:"documentId"`
	ActorID    string         `json:"actorId" bson:"actorId"`
	Type       EventType      `json:"type" bson:"type"`
	Payload    map[string]any `json:"payload,omitempty" bson:"payload,omitempty"`
	CreatedAt  time.Time      `json:"createdAt" bson:"createdAt"`
}

// Recorder appends and reads activity events.
type Recorder interface {
	Record(ctx context.Context, ev Event) error
	List(ctx context.Context, documentID string, limit int) ([]Event, error)
}
