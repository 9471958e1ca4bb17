package hub

import (
	"context"
	"errors"
	"time"

	"github.com/inkwave/inkwave/sync-engine/internal/activity"
	"github.com/inkwave/inkwave/sync-engine/internal/archive"
	"github.com/inkwave/inkwave/sync-engine/internal/docstore"
	"github.com/inkwave/inkwave/sync-engine/internal/feed"
	"github.com/inkwave/inkwave/sync-engine/internal/permission"
	"github.com/inkwave/inkwave/sync-engine/internal/presence"
	"github.com/inkwave/inkwave/sync-engine/pkg/logger"
	"github.com/inkwave/inkwave/sync-engine/pkg/metrics"
)

var (
	ErrClosed     = errors.New("session closed")
	ErrNoConflict = errors.New("no pending conflict")
)

// Options carries the optional collaborators and tunables of a Hub.
type Options struct {
	Recorder          activity.Recorder
	Archive           *archive.DraftArchive
	ConnectTimeout    time.Duration
	HeartbeatInterval time.Duration
}

// Hub opens per-document collaboration sessions. Sessions for different
// documents are fully independent; all composition of feed, presence,
// conflict detection, and permissions happens here.
type Hub struct {
	store    docstore.Store
	feed     feed.Feed
	presence presence.Tracker
	resolver *permission.Resolver
	recorder activity.Recorder
	archive  *archive.DraftArchive

	connectTimeout    time.Duration
	heartbeatInterval time.Duration
	now               func() time.Time
}

func New(store docstore.Store, f feed.Feed, p presence.Tracker, r *permission.Resolver, opts Options) *Hub {
	h := &Hub{
		store:             store,
		feed:              f,
		presence:          p,
		resolver:          r,
		recorder:          opts.Recorder,
		archive:           opts.Archive,
		connectTimeout:    opts.ConnectTimeout,
		heartbeatInterval: opts.HeartbeatInterval,
		now:               time.Now,
	}
	if h.connectTimeout <= 0 {
		h.connectTimeout = 10 * time.Second
	}
	if h.heartbeatInterval <= 0 {
		h.heartbeatInterval = 15 * time.Second
	}
	return h
}

// Open fetches the initial snapshot, attaches to the change feed, joins
// presence, and starts the session loop. It fails fast when the attach phase
// exceeds the connect timeout, and unwinds cleanly on partial failure.
func (h *Hub) Open(ctx context.Context, documentID, userID string) (*Session, error) {
	ctx, cancelAttach := context.WithTimeout(ctx, h.connectTimeout)
	defer cancelAttach()

	doc, err := h.store.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}
	tier, err := h.resolver.Resolve(ctx, documentID, userID)
	if err != nil {
		return nil, err
	}
	if !doc.Public && tier == docstore.TierNone {
		return nil, permission.ErrDenied
	}

	sub, err := h.feed.Subscribe(ctx, documentID)
	if err != nil {
		return nil, err
	}
	watcher, err := h.presence.Watch(ctx, documentID)
	if err != nil {
		sub.Close()
		return nil, err
	}
	if err := h.presence.Join(ctx, documentID, userID, presence.Metadata{}); err != nil {
		watcher.Close()
		sub.Close()
		return nil, err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	s := &Session{
		hub:         h,
		DocumentID:  documentID,
		UserID:      userID,
		baseVersion: doc.Version,
		baseBody:    doc.Body,
		sub:         sub,
		watcher:     watcher,
		cmds:        make(chan func(), 8),
		loopCtx:     loopCtx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	go s.loop()

	metrics.OpenSessions.Inc()
	h.record(activity.Event{DocumentID: documentID, ActorID: userID, Type: activity.TypePresenceJoin})
	logger.Debugf("session open: doc=%s user=%s version=%d", documentID, userID, doc.Version)
	return s, nil
}

// record is fire-and-forget: it runs on the session loop goroutine, and a
// slow recorder must never stall feed or conflict processing.
func (h *Hub) record(ev activity.Event) {
	if h.recorder == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := h.recorder.Record(ctx, ev); err != nil {
			logger.Warnf("hub: recording %s failed: %v", ev.Type, err)
		}
	}()
}
