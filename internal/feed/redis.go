package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/inkwave/inkwave/sync-engine/pkg/logger"
	"github.com/inkwave/inkwave/sync-engine/pkg/metrics"
)

// maxReconnectAttempts bounds one outage before the subscription gives up and
// surfaces a single Offline event.
const maxReconnectAttempts = 10

// RedisFeed implements Feed over Redis pub/sub, one channel per document.
// Payloads are JSON-encoded Updates. Prefix may be empty.
type RedisFeed struct {
	client         *redis.Client
	prefix         string
	backoffInitial time.Duration
	backoffMax     time.Duration
}

func NewRedisFeed(client *redis.Client, prefix string, backoffInitial, backoffMax time.Duration) *RedisFeed {
	if prefix == "" {
		prefix = "feed:"
	}
	if backoffInitial <= 0 {
		backoffInitial = time.Second
	}
	if backoffMax < backoffInitial {
		backoffMax = 30 * time.Second
	}
	return &RedisFeed{client: client, prefix: prefix, backoffInitial: backoffInitial, backoffMax: backoffMax}
}

func (f *RedisFeed) channel(documentID string) string {
	return f.prefix + documentID
}

func (f *RedisFeed) Publish(ctx context.Context, u Update) error {
	b, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("feed publish: %w", err)
	}
	return f.client.Publish(ctx, f.channel(u.DocumentID), b).Err()
}

func (f *RedisFeed) Subscribe(ctx context.Context, documentID string) (*Subscription, error) {
	pubsub := f.client.Subscribe(ctx, f.channel(documentID))
	// confirm the subscription before handing out the handle
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("feed subscribe %s: %w", documentID, err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	sub := &Subscription{events: make(chan Event, eventBuffer), cancel: cancel}
	go f.receiveLoop(loopCtx, documentID, pubsub, sub)
	return sub, nil
}

func (f *RedisFeed) receiveLoop(ctx context.Context, documentID string, pubsub *redis.PubSub, sub *Subscription) {
	defer close(sub.events)
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			_ = pubsub.Close()
			next, ok := f.reconnect(ctx, documentID)
			if !ok {
				if ctx.Err() == nil {
					sub.offer(Event{Kind: KindOffline})
				}
				return
			}
			pubsub = next
			sub.offer(Event{Kind: KindResynced})
			continue
		}

		var u Update
		if err := json.Unmarshal([]byte(msg.Payload), &u); err != nil {
			logger.Warnf("feed %s: dropping malformed payload: %v", documentID, err)
			continue
		}
		sub.offer(Event{Kind: KindUpdate, Update: &u})
	}
}

// reconnect retries the channel subscription with exponential backoff until
// it succeeds, the context is cancelled, or the attempt budget runs out.
func (f *RedisFeed) reconnect(ctx context.Context, documentID string) (*redis.PubSub, bool) {
	backoff := f.backoffInitial
	for attempt := 1; attempt <= maxReconnectAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, false
		case <-time.After(backoff):
		}

		pubsub := f.client.Subscribe(ctx, f.channel(documentID))
		if _, err := pubsub.Receive(ctx); err == nil {
			metrics.FeedReconnects.WithLabelValues("success").Inc()
			logger.Infof("feed %s: reconnected after %d attempt(s)", documentID, attempt)
			return pubsub, true
		} else {
			metrics.FeedReconnects.WithLabelValues("failure").Inc()
			logger.Warnf("feed %s: reconnect attempt %d failed: %v", documentID, attempt, err)
			_ = pubsub.Close()
		}

		backoff *= 2
		if backoff > f.backoffMax {
			backoff = f.backoffMax
		}
	}
	return nil, false
}
