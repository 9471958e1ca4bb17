package activity

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryLog is an in-process recorder for tests and single-node runs.
type MemoryLog struct {
	mu     sync.RWMutex
	events map[string][]Event // documentID -> events, oldest first
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{events: make(map[string][]Event)}
}

func (l *MemoryLog) Record(ctx context.Context, ev Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	l.events[ev.DocumentID] = append(l.events[ev.DocumentID], ev)
	return nil
}

// List returns the newest events first, at most limit of them (0 = all).
func (l *MemoryLog) List(ctx context.Context, documentID string, limit int) ([]Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	evs := l.events[documentID]
	out := make([]Event, 0, len(evs))
	for i := len(evs) - 1; i >= 0; i-- {
		out = append(out, evs[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
