package presence

import (
	"context"
	"sync"
	"time"
)

// MemoryTracker keeps rosters in process. Each document gets its own room
// with its own lock so unrelated documents never contend.
type MemoryTracker struct {
	mu       sync.Mutex
	rooms    map[string]*room
	liveness time.Duration
	now      func() time.Time
	stop     chan struct{}
	stopOnce sync.Once
}

type room struct {
	mu       sync.Mutex
	members  map[string]*Record
	watchers map[*Watcher]struct{}
}

func NewMemoryTracker(liveness time.Duration) *MemoryTracker {
	t := &MemoryTracker{
		rooms:    make(map[string]*room),
		liveness: liveness,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
	go t.reapLoop()
	return t
}

// Stop terminates the background reaper.
func (t *MemoryTracker) Stop() {
	t.stopOnce.Do(func() { close(t.stop) })
}

func (t *MemoryTracker) room(documentID string) *room {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.rooms[documentID]
	if !ok {
		r = &room{members: make(map[string]*Record), watchers: make(map[*Watcher]struct{})}
		t.rooms[documentID] = r
	}
	return r
}

func (t *MemoryTracker) Join(ctx context.Context, documentID, userID string, md Metadata) error {
	r := t.room(documentID)
	r.mu.Lock()
	r.members[userID] = &Record{
		DocumentID: documentID,
		UserID:     userID,
		LastSeen:   t.now(),
		Cursor:     md.Cursor,
		Selection:  md.Selection,
	}
	r.notifyLocked(Change{DocumentID: documentID, UserID: userID, Kind: ChangeJoined})
	r.mu.Unlock()
	return nil
}

func (t *MemoryTracker) Heartbeat(ctx context.Context, documentID, userID string, md Metadata) error {
	r := t.room(documentID)
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.members[userID]
	if !ok {
		// record was reaped while the client thinks it is still attached;
		// a heartbeat re-establishes presence
		r.members[userID] = &Record{
			DocumentID: documentID,
			UserID:     userID,
			LastSeen:   t.now(),
			Cursor:     md.Cursor,
			Selection:  md.Selection,
		}
		r.notifyLocked(Change{DocumentID: documentID, UserID: userID, Kind: ChangeJoined})
		return nil
	}
	rec.LastSeen = t.now()
	if md.Cursor != nil {
		rec.Cursor = md.Cursor
	}
	if md.Selection != nil {
		rec.Selection = md.Selection
	}
	return nil
}

func (t *MemoryTracker) Leave(ctx context.Context, documentID, userID string) error {
	r := t.room(documentID)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[userID]; !ok {
		return nil
	}
	delete(r.members, userID)
	r.notifyLocked(Change{DocumentID: documentID, UserID: userID, Kind: ChangeLeft})
	return nil
}

func (t *MemoryTracker) Roster(ctx context.Context, documentID string) ([]Record, error) {
	r := t.room(documentID)
	cutoff := t.now().Add(-t.liveness)
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, 0, len(r.members))
	for _, rec := range r.members {
		if rec.LastSeen.Before(cutoff) {
			continue
		}
		out = append(out, *rec)
	}
	return out, nil
}

func (t *MemoryTracker) Watch(ctx context.Context, documentID string) (*Watcher, error) {
	r := t.room(documentID)
	w := &Watcher{changes: make(chan Change, changeBuffer)}
	w.detach = func() {
		r.mu.Lock()
		delete(r.watchers, w)
		r.mu.Unlock()
		close(w.changes)
	}
	r.mu.Lock()
	r.watchers[w] = struct{}{}
	r.mu.Unlock()
	return w, nil
}

func (r *room) notifyLocked(c Change) {
	for w := range r.watchers {
		w.offer(c)
	}
}

func (t *MemoryTracker) reapLoop() {
	interval := t.liveness / 2
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			t.reap()
		}
	}
}

// reap deletes records past the liveness timeout and notifies watchers, so
// uncleanly disconnected clients disappear without an explicit Leave.
func (t *MemoryTracker) reap() {
	t.mu.Lock()
	rooms := make(map[string]*room, len(t.rooms))
	for id, r := range t.rooms {
		rooms[id] = r
	}
	t.mu.Unlock()

	cutoff := t.now().Add(-t.liveness)
	for docID, r := range rooms {
		r.mu.Lock()
		for userID, rec := range r.members {
			if rec.LastSeen.Before(cutoff) {
				delete(r.members, userID)
				r.notifyLocked(Change{DocumentID: docID, UserID: userID, Kind: ChangeExpired})
			}
		}
		r.mu.Unlock()
	}
}
