package feed

import (
	"context"
	"sync"
)

const eventBuffer = 16

// MemoryFeed is an in-process broker used for unit tests and single-node
// development runs. Fanout is synchronous with the publisher.
type MemoryFeed struct {
	mu   sync.Mutex
	subs map[string]map[*Subscription]struct{}
}

func NewMemoryFeed() *MemoryFeed {
	return &MemoryFeed{subs: make(map[string]map[*Subscription]struct{})}
}

func (f *MemoryFeed) Subscribe(ctx context.Context, documentID string) (*Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub := &Subscription{events: make(chan Event, eventBuffer)}
	sub.detach = func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if set, ok := f.subs[documentID]; ok {
			delete(set, sub)
			if len(set) == 0 {
				delete(f.subs, documentID)
			}
		}
		close(sub.events)
	}
	set, ok := f.subs[documentID]
	if !ok {
		set = make(map[*Subscription]struct{})
		f.subs[documentID] = set
	}
	set[sub] = struct{}{}
	return sub, nil
}

func (f *MemoryFeed) Publish(ctx context.Context, u Update) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := u
	for sub := range f.subs[u.DocumentID] {
		sub.offer(Event{Kind: KindUpdate, Update: &cp})
	}
	return nil
}

// Resync injects a resync marker to every subscriber of the document. Used by
// tests and by operators forcing clients to re-snapshot.
func (f *MemoryFeed) Resync(documentID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for sub := range f.subs[documentID] {
		sub.offer(Event{Kind: KindResynced})
	}
}
