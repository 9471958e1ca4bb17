package hub

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/inkwave/inkwave/sync-engine/internal/activity"
	"github.com/inkwave/inkwave/sync-engine/internal/conflict"
	"github.com/inkwave/inkwave/sync-engine/internal/docstore"
	"github.com/inkwave/inkwave/sync-engine/internal/feed"
	"github.com/inkwave/inkwave/sync-engine/internal/presence"
	"github.com/inkwave/inkwave/sync-engine/pkg/logger"
	"github.com/inkwave/inkwave/sync-engine/pkg/metrics"
)

// Session is one user's live attachment to one document. All session state is
// owned by a single loop goroutine; public methods hand work to the loop, so
// feed delivery, heartbeats, and user edits never race the conflict fence.
// Callbacks are invoked from the loop goroutine and must not block.
type Session struct {
	hub        *Hub
	DocumentID string
	UserID     string

	cbMu       sync.Mutex
	onUpdate   func(feed.Update)
	onConflict func(conflict.Conflict)
	onPresence func(presence.Change)
	onOffline  func()

	cmds    chan func()
	loopCtx context.Context
	cancel  context.CancelFunc
	done    chan struct{}

	closeOnce sync.Once

	// loop-owned state
	baseVersion int64
	baseBody    string
	draft       *conflict.Draft
	pending     *conflict.Conflict
	cursor      presence.Metadata
	wentOffline bool

	sub     *feed.Subscription
	watcher *presence.Watcher
}

// OnUpdate registers the callback fired when a remote update becomes the new
// baseline (including after resolving a conflict in favor of remote).
func (s *Session) OnUpdate(cb func(feed.Update)) {
	s.cbMu.Lock()
	s.onUpdate = cb
	s.cbMu.Unlock()
}

// OnConflict registers the callback fired when an incoming update requires a
// user decision. The local draft stays untouched until Resolve is called.
func (s *Session) OnConflict(cb func(conflict.Conflict)) {
	s.cbMu.Lock()
	s.onConflict = cb
	s.cbMu.Unlock()
}

// OnPresenceChange registers the callback fired on roster transitions.
func (s *Session) OnPresenceChange(cb func(presence.Change)) {
	s.cbMu.Lock()
	s.onPresence = cb
	s.cbMu.Unlock()
}

// OnOffline registers the callback fired once when the feed's retry budget is
// exhausted.
func (s *Session) OnOffline(cb func()) {
	s.cbMu.Lock()
	s.onOffline = cb
	s.cbMu.Unlock()
}

func (s *Session) loop() {
	defer close(s.done)
	ticker := time.NewTicker(s.hub.heartbeatInterval)
	defer ticker.Stop()

	events := s.sub.Events()
	changes := s.watcher.Changes()
	for {
		select {
		case <-s.loopCtx.Done():
			return
		case fn := <-s.cmds:
			fn()
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			s.handleFeedEvent(ev)
		case ch, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			s.firePresence(ch)
		case <-ticker.C:
			s.heartbeat()
		}
	}
}

// run executes fn on the loop goroutine and waits for it.
func (s *Session) run(fn func()) error {
	doneFn := make(chan struct{})
	wrapped := func() {
		fn()
		close(doneFn)
	}
	select {
	case s.cmds <- wrapped:
	case <-s.loopCtx.Done():
		return ErrClosed
	}
	select {
	case <-doneFn:
		return nil
	case <-s.loopCtx.Done():
		return ErrClosed
	}
}

func (s *Session) handleFeedEvent(ev feed.Event) {
	switch ev.Kind {
	case feed.KindUpdate:
		s.handleUpdate(*ev.Update)
	case feed.KindResynced:
		// feed continuity is broken; trust only a fresh snapshot
		ctx, cancel := context.WithTimeout(s.loopCtx, 5*time.Second)
		doc, err := s.hub.store.Get(ctx, s.DocumentID)
		cancel()
		if err != nil {
			logger.Warnf("session %s/%s: resync snapshot failed: %v", s.DocumentID, s.UserID, err)
			return
		}
		s.handleUpdate(feed.Update{
			DocumentID: s.DocumentID,
			Version:    doc.Version,
			Body:       doc.Body,
			UpdatedAt:  doc.UpdatedAt,
		})
	case feed.KindOffline:
		if s.wentOffline {
			return
		}
		s.wentOffline = true
		s.cbMu.Lock()
		cb := s.onOffline
		s.cbMu.Unlock()
		if cb != nil {
			cb()
		}
	}
}

// handleUpdate normalizes at-least-once, reorderable delivery through the
// version gate, then runs the timestamp fence.
func (s *Session) handleUpdate(u feed.Update) {
	if u.Version <= s.baseVersion {
		metrics.FeedUpdates.WithLabelValues("stale").Inc()
		return
	}
	switch conflict.Classify(s.draft, u) {
	case conflict.ApplyRemote:
		s.applyBaseline(u)
	case conflict.RequireResolution:
		if s.pending != nil && u.Version <= s.pending.Remote.Version {
			return
		}
		s.pending = &conflict.Conflict{Local: *s.draft, Remote: u}
		metrics.FeedUpdates.WithLabelValues("conflict").Inc()
		s.cbMu.Lock()
		cb := s.onConflict
		s.cbMu.Unlock()
		if cb != nil {
			cb(*s.pending)
		}
	}
}

func (s *Session) applyBaseline(u feed.Update) {
	s.baseVersion = u.Version
	s.baseBody = u.Body
	metrics.FeedUpdates.WithLabelValues("applied").Inc()
	s.cbMu.Lock()
	cb := s.onUpdate
	s.cbMu.Unlock()
	if cb != nil {
		cb(u)
	}
}

func (s *Session) firePresence(ch presence.Change) {
	s.cbMu.Lock()
	cb := s.onPresence
	s.cbMu.Unlock()
	if cb != nil {
		cb(ch)
	}
}

// heartbeat is fire-and-forget: a failed beat is logged and retried on the
// next tick, never surfaced to the user.
func (s *Session) heartbeat() {
	md := s.cursor
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.hub.presence.Heartbeat(ctx, s.DocumentID, s.UserID, md); err != nil {
			logger.Warnf("session %s/%s: heartbeat failed: %v", s.DocumentID, s.UserID, err)
			return
		}
		metrics.PresenceHeartbeats.Inc()
	}()
}

// Edit replaces the local draft body. The first edit since the last baseline
// records the edit-start fence; subsequent edits only update the body.
func (s *Session) Edit(body string) error {
	return s.run(func() {
		if s.draft == nil {
			s.draft = &conflict.Draft{Body: body, EditStart: s.hub.now()}
			return
		}
		s.draft.Body = body
	})
}

// UpdateCursor stores cursor/selection metadata carried by the next
// heartbeat.
func (s *Session) UpdateCursor(md presence.Metadata) error {
	return s.run(func() { s.cursor = md })
}

// Snapshot returns the session's current baseline and editing state.
func (s *Session) Snapshot() (version int64, body string, editing, conflicted bool, err error) {
	err = s.run(func() {
		version = s.baseVersion
		body = s.baseBody
		editing = s.draft != nil
		conflicted = s.pending != nil
	})
	return
}

// Save writes the draft through the document store with the baseline version
// as the compare-and-swap expectation, publishes the resulting update, and
// clears the draft. A store-side version conflict is not a failure: it is
// routed through the conflict fence like any other remote update.
func (s *Session) Save(ctx context.Context) error {
	var (
		body    string
		version int64
	)
	if err := s.run(func() {
		if s.draft != nil {
			body = s.draft.Body
		}
		version = s.baseVersion
	}); err != nil {
		return err
	}
	if body == "" && s.drained() {
		return nil // nothing to save
	}

	// permissions are resolved fresh at call time, never cached
	if _, err := s.hub.resolver.Require(ctx, s.DocumentID, s.UserID, docstore.TierWrite); err != nil {
		return err
	}

	newVersion, err := s.hub.store.Put(ctx, s.DocumentID, body, version)
	if errors.Is(err, docstore.ErrVersionConflict) {
		doc, gerr := s.hub.store.Get(ctx, s.DocumentID)
		if gerr != nil {
			return gerr
		}
		return s.run(func() {
			s.handleUpdate(feed.Update{
				DocumentID: s.DocumentID,
				Version:    doc.Version,
				Body:       doc.Body,
				UpdatedAt:  doc.UpdatedAt,
			})
		})
	}
	if err != nil {
		return err
	}

	// adopt the new baseline before publishing: the session receives its own
	// update back from the feed, and the version gate must already see it as
	// stale or a live draft would fence against our own save
	if err := s.run(func() {
		// a concurrent writer may already have advanced us past newVersion
		if newVersion > s.baseVersion {
			s.baseVersion = newVersion
			s.baseBody = body
		}
		s.draft = nil
	}); err != nil {
		return err
	}

	u := feed.Update{DocumentID: s.DocumentID, Version: newVersion, Body: body, UpdatedAt: s.hub.now()}
	if err := s.hub.feed.Publish(ctx, u); err != nil {
		logger.Warnf("session %s/%s: publishing update failed: %v", s.DocumentID, s.UserID, err)
	}
	return nil
}

func (s *Session) drained() bool {
	var empty bool
	_ = s.run(func() { empty = s.draft == nil })
	return empty
}

// Resolve settles the pending conflict. Choosing remote discards the local
// draft (archiving it when an archive is configured) and adopts the remote
// update as baseline. Choosing local keeps the draft; the baseline marker
// moves to the remote version so the next save races it last-writer-wins.
func (s *Session) Resolve(useRemote bool) error {
	var resolveErr error
	err := s.run(func() {
		if s.pending == nil {
			resolveErr = ErrNoConflict
			return
		}
		pend := *s.pending
		s.pending = nil
		if useRemote {
			if s.hub.archive != nil {
				discarded := pend.Local.Body
				go func() {
					ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
					defer cancel()
					key, err := s.hub.archive.SaveDraft(ctx, s.DocumentID, s.UserID, discarded)
					if err != nil {
						logger.Warnf("session %s/%s: draft archive failed: %v", s.DocumentID, s.UserID, err)
						return
					}
					logger.Debugf("session %s/%s: discarded draft archived at %s", s.DocumentID, s.UserID, key)
				}()
			}
			s.draft = nil
			// a reordered pre-fence update may have advanced the baseline
			// past the conflicting version while the conflict was pending
			if pend.Remote.Version > s.baseVersion {
				s.applyBaseline(pend.Remote)
			}
			metrics.ConflictsResolved.WithLabelValues("remote").Inc()
		} else {
			s.baseVersion = pend.Remote.Version
			metrics.ConflictsResolved.WithLabelValues("local").Inc()
		}
		side := "local"
		if useRemote {
			side = "remote"
		}
		s.hub.record(activity.Event{
			DocumentID: s.DocumentID,
			ActorID:    s.UserID,
			Type:       activity.TypeConflictResolved,
			Payload:    map[string]any{"side": side, "remoteVersion": pend.Remote.Version},
		})
	})
	if err != nil {
		return err
	}
	return resolveErr
}

// Close tears the session down in reverse open order: stop heartbeat, leave
// presence, detach the watcher, unsubscribe from the feed. Idempotent, safe
// after partial failures, and leaves no background work behind.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.hub.presence.Leave(ctx, s.DocumentID, s.UserID); err != nil {
			logger.Warnf("session %s/%s: leave failed (liveness timeout will reap): %v", s.DocumentID, s.UserID, err)
		}
		s.watcher.Close()
		s.sub.Close()

		metrics.OpenSessions.Dec()
		s.hub.record(activity.Event{DocumentID: s.DocumentID, ActorID: s.UserID, Type: activity.TypePresenceLeave})
		logger.Debugf("session closed: doc=%s user=%s", s.DocumentID, s.UserID)
	})
}
