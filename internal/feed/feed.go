package feed

import (
	"context"
	"sync"
	"time"
)

// Update is a versioned document-changed notification. Delivery is
// at-least-once and may reorder across reconnects; consumers must gate on
// Version against their last-applied marker.
type Update struct {
	DocumentID string    `json:"documentId"`
	Version    int64     `json:"version"`
	Body       string    `json:"body"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

type EventKind int

const (
	// KindUpdate carries a versioned document update.
	KindUpdate EventKind = iota
	// KindResynced is a synthetic marker emitted after a successful
	// reconnect (or a dropped message): feed continuity cannot be trusted
	// and the consumer should re-fetch a full snapshot.
	KindResynced
	// KindOffline is emitted once when the retry budget is exhausted.
	KindOffline
)

type Event struct {
	Kind   EventKind
	Update *Update
}

// Feed publishes and subscribes to per-document update streams.
type Feed interface {
	Subscribe(ctx context.Context, documentID string) (*Subscription, error)
	Publish(ctx context.Context, u Update) error
}

// Subscription is the handle returned by Subscribe. Close is idempotent and
// is a no-op after the underlying transport has already failed.
type Subscription struct {
	events    chan Event
	closeOnce sync.Once
	cancel    context.CancelFunc
	detach    func()
}

func (s *Subscription) Events() <-chan Event { return s.events }

func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		if s.detach != nil {
			s.detach()
		}
		if s.cancel != nil {
			s.cancel()
		}
	})
}

// offer delivers ev without blocking the producer. When the consumer lags
// behind the buffer, the oldest queued event is discarded to make room for a
// resync marker, so the consumer always learns continuity broke and
// re-fetches instead of trusting whatever it drains later.
func (s *Subscription) offer(ev Event) {
	select {
	case s.events <- ev:
		return
	default:
	}
	select {
	case <-s.events:
	default:
	}
	select {
	case s.events <- Event{Kind: KindResynced}:
	default:
	}
}
