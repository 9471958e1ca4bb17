package presence

import (
	"context"
	"sync"
	"time"
)

// Record is one user's ephemeral presence on a document. Records are created
// on join, refreshed on heartbeat, and must never outlive the session that
// produced them: with no heartbeat past the liveness timeout they are treated
// as offline whether or not Leave was ever called.
type Record struct {
	DocumentID string    `json:"documentId"`
	UserID     string    `json:"userId"`
	LastSeen   time.Time `json:"lastSeen"`
	Cursor     *int      `json:"cursor,omitempty"`
	Selection  *Range    `json:"selection,omitempty"`
}

type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Metadata carries the optional cursor/selection supplied on join/heartbeat.
// Last writer wins per user.
type Metadata struct {
	Cursor    *int   `json:"cursor,omitempty"`
	Selection *Range `json:"selection,omitempty"`
}

type ChangeKind string

const (
	ChangeJoined  ChangeKind = "joined"
	ChangeLeft    ChangeKind = "left"
	ChangeExpired ChangeKind = "expired"
)

// Change is a roster transition observable by other subscribers of the same
// document.
type Change struct {
	DocumentID string     `json:"documentId"`
	UserID     string     `json:"userId"`
	Kind       ChangeKind `json:"kind"`
}

// Tracker maintains per-document rosters of connected collaborators.
type Tracker interface {
	Join(ctx context.Context, documentID, userID string, md Metadata) error
	Heartbeat(ctx context.Context, documentID, userID string, md Metadata) error
	Leave(ctx context.Context, documentID, userID string) error
	Roster(ctx context.Context, documentID string) ([]Record, error)
	Watch(ctx context.Context, documentID string) (*Watcher, error)
}

const changeBuffer = 8

// Watcher delivers roster changes for one document. Close is idempotent.
type Watcher struct {
	changes   chan Change
	closeOnce sync.Once
	detach    func()
}

func (w *Watcher) Changes() <-chan Change { return w.changes }

func (w *Watcher) Close() {
	w.closeOnce.Do(func() {
		if w.detach != nil {
			w.detach()
		}
	})
}

// offer never blocks the tracker; a lagging watcher just misses transitions
// and can re-read Roster.
func (w *Watcher) offer(c Change) {
	select {
	case w.changes <- c:
	default:
	}
}
