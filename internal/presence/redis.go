package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/inkwave/inkwave/sync-engine/pkg/logger"
)

// RedisTracker keeps presence records as JSON values under
// "<prefix><documentID>:<userID>" with TTL equal to the liveness timeout, so
// reaping is delegated to key expiry and works across engine replicas.
// Join/leave transitions are published on "<prefix>changes:<documentID>".
type RedisTracker struct {
	client   *redis.Client
	prefix   string
	liveness time.Duration
}

func NewRedisTracker(client *redis.Client, prefix string, liveness time.Duration) *RedisTracker {
	if prefix == "" {
		prefix = "presence:"
	}
	return &RedisTracker{client: client, prefix: prefix, liveness: liveness}
}

func (t *RedisTracker) key(documentID, userID string) string {
	return t.prefix + documentID + ":" + userID
}

func (t *RedisTracker) changesChannel(documentID string) string {
	return t.prefix + "changes:" + documentID
}

func (t *RedisTracker) write(ctx context.Context, rec *Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return t.client.Set(ctx, t.key(rec.DocumentID, rec.UserID), b, t.liveness).Err()
}

func (t *RedisTracker) publish(ctx context.Context, c Change) {
	b, err := json.Marshal(c)
	if err != nil {
		return
	}
	if err := t.client.Publish(ctx, t.changesChannel(c.DocumentID), b).Err(); err != nil {
		logger.Warnf("presence: publish change failed: %v", err)
	}
}

func (t *RedisTracker) Join(ctx context.Context, documentID, userID string, md Metadata) error {
	rec := &Record{
		DocumentID: documentID,
		UserID:     userID,
		LastSeen:   time.Now().UTC(),
		Cursor:     md.Cursor,
		Selection:  md.Selection,
	}
	if err := t.write(ctx, rec); err != nil {
		return fmt.Errorf("presence join: %w", err)
	}
	t.publish(ctx, Change{DocumentID: documentID, UserID: userID, Kind: ChangeJoined})
	return nil
}

func (t *RedisTracker) Heartbeat(ctx context.Context, documentID, userID string, md Metadata) error {
	// read-modify-write keeps unset metadata fields from a previous beat
	prev, _ := t.get(ctx, documentID, userID)
	rec := &Record{DocumentID: documentID, UserID: userID, LastSeen: time.Now().UTC()}
	if prev != nil {
		rec.Cursor = prev.Cursor
		rec.Selection = prev.Selection
	}
	if md.Cursor != nil {
		rec.Cursor = md.Cursor
	}
	if md.Selection != nil {
		rec.Selection = md.Selection
	}
	if err := t.write(ctx, rec); err != nil {
		return fmt.Errorf("presence heartbeat: %w", err)
	}
	if prev == nil {
		// key had expired; this beat re-establishes presence
		t.publish(ctx, Change{DocumentID: documentID, UserID: userID, Kind: ChangeJoined})
	}
	return nil
}

func (t *RedisTracker) Leave(ctx context.Context, documentID, userID string) error {
	if err := t.client.Del(ctx, t.key(documentID, userID)).Err(); err != nil {
		return fmt.Errorf("presence leave: %w", err)
	}
	t.publish(ctx, Change{DocumentID: documentID, UserID: userID, Kind: ChangeLeft})
	return nil
}

func (t *RedisTracker) get(ctx context.Context, documentID, userID string) (*Record, error) {
	b, err := t.client.Get(ctx, t.key(documentID, userID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (t *RedisTracker) Roster(ctx context.Context, documentID string) ([]Record, error) {
	pattern := t.prefix + documentID + ":*"
	out := []Record{}
	iter := t.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		b, err := t.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			if err == redis.Nil {
				continue // expired between scan and get
			}
			return nil, err
		}
		var rec Record
		if err := json.Unmarshal(b, &rec); err != nil {
			logger.Warnf("presence: skipping malformed record %s: %v", iter.Val(), err)
			continue
		}
		out = append(out, rec)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("presence roster: %w", err)
	}
	return out, nil
}

// Watch forwards published join/leave changes and detects expiries by
// periodically diffing the roster (key expiry itself emits no message we can
// rely on across redis configurations).
func (t *RedisTracker) Watch(ctx context.Context, documentID string) (*Watcher, error) {
	pubsub := t.client.Subscribe(ctx, t.changesChannel(documentID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("presence watch: %w", err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	w := &Watcher{changes: make(chan Change, changeBuffer)}
	w.detach = func() {
		cancel()
		_ = pubsub.Close()
	}

	go t.watchLoop(loopCtx, documentID, pubsub, w)
	return w, nil
}

func (t *RedisTracker) watchLoop(ctx context.Context, documentID string, pubsub *redis.PubSub, w *Watcher) {
	defer close(w.changes)

	interval := t.liveness / 2
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	known := map[string]struct{}{}
	if roster, err := t.Roster(ctx, documentID); err == nil {
		for _, rec := range roster {
			known[rec.UserID] = struct{}{}
		}
	}

	msgs := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			var c Change
			if err := json.Unmarshal([]byte(msg.Payload), &c); err != nil {
				continue
			}
			switch c.Kind {
			case ChangeJoined:
				known[c.UserID] = struct{}{}
			case ChangeLeft:
				delete(known, c.UserID)
			}
			w.offer(c)
		case <-ticker.C:
			roster, err := t.Roster(ctx, documentID)
			if err != nil {
				continue
			}
			present := make(map[string]struct{}, len(roster))
			for _, rec := range roster {
				present[rec.UserID] = struct{}{}
			}
			for userID := range known {
				if _, ok := present[userID]; !ok {
					delete(known, userID)
					w.offer(Change{DocumentID: documentID, UserID: userID, Kind: ChangeExpired})
				}
			}
		}
	}
}
