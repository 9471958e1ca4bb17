package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/inkwave/inkwave/sync-engine/internal/conflict"
	"github.com/inkwave/inkwave/sync-engine/internal/docstore"
	"github.com/inkwave/inkwave/sync-engine/internal/feed"
	"github.com/inkwave/inkwave/sync-engine/internal/hub"
	"github.com/inkwave/inkwave/sync-engine/internal/permission"
	"github.com/inkwave/inkwave/sync-engine/internal/presence"
	"github.com/inkwave/inkwave/sync-engine/pkg/logger"
	"github.com/inkwave/inkwave/sync-engine/pkg/middleware"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// clientFrame is what the browser sends over the socket.
type clientFrame struct {
	Op        string             `json:"op"` // edit | cursor | save | resolve | snapshot
	Body      string             `json:"body,omitempty"`
	UseRemote bool               `json:"useRemote,omitempty"`
	Metadata  *presence.Metadata `json:"metadata,omitempty"`
}

// serverFrame is what the engine pushes back. One frame per session event;
// the write pump serializes them so callbacks never block the session loop.
type serverFrame struct {
	Kind     string           `json:"kind"`
	Update   *feed.Update     `json:"update,omitempty"`
	Conflict *conflictFrame   `json:"conflict,omitempty"`
	Presence *presence.Change `json:"presence,omitempty"`
	Snapshot *snapshotFrame   `json:"snapshot,omitempty"`
	Error    string           `json:"error,omitempty"`
}

type conflictFrame struct {
	LocalBody  string      `json:"localBody"`
	EditStart  time.Time   `json:"editStart"`
	RemoteBody string      `json:"remoteBody"`
	Remote     feed.Update `json:"remote"`
}

type snapshotFrame struct {
	Version    int64  `json:"version"`
	Body       string `json:"body"`
	Editing    bool   `json:"editing"`
	Conflicted bool   `json:"conflicted"`
}

func RegisterSyncRoutes(r *gin.Engine, h *hub.Hub, auth gin.HandlerFunc) {
	r.GET("/api/documents/:id/sync", auth, func(c *gin.Context) {
		userID := middleware.UserID(c)
		docID := c.Param("id")

		session, err := h.Open(c.Request.Context(), docID, userID)
		if err != nil {
			switch {
			case errors.Is(err, permission.ErrDenied):
				c.JSON(http.StatusForbidden, gin.H{"error": "permission denied"})
			case errors.Is(err, docstore.ErrNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
			default:
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "could not attach to document"})
			}
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			session.Close()
			logger.Warnf("websocket upgrade failed for %s/%s: %v", docID, userID, err)
			return
		}

		bridge := &wsBridge{
			conn:    conn,
			session: session,
			out:     make(chan serverFrame, 32),
			done:    make(chan struct{}),
		}
		bridge.attach()
		go bridge.writePump()
		bridge.readPump()
	})
}

type wsBridge struct {
	conn    *websocket.Conn
	session *hub.Session
	out     chan serverFrame
	done    chan struct{}
}

// send drops frames rather than block a session callback. The client falls
// back to the snapshot op when it detects a gap.
func (b *wsBridge) send(f serverFrame) {
	select {
	case b.out <- f:
	case <-b.done:
	default:
	}
}

func (b *wsBridge) attach() {
	b.session.OnUpdate(func(u feed.Update) {
		b.send(serverFrame{Kind: "update", Update: &u})
	})
	b.session.OnConflict(func(cf conflict.Conflict) {
		b.send(serverFrame{Kind: "conflict", Conflict: &conflictFrame{
			LocalBody:  cf.Local.Body,
			EditStart:  cf.Local.EditStart,
			RemoteBody: cf.Remote.Body,
			Remote:     cf.Remote,
		}})
	})
	b.session.OnPresenceChange(func(ch presence.Change) {
		b.send(serverFrame{Kind: "presence", Presence: &ch})
	})
	b.session.OnOffline(func() {
		b.send(serverFrame{Kind: "offline"})
	})
}

func (b *wsBridge) writePump() {
	for {
		select {
		case f := <-b.out:
			if err := b.conn.WriteJSON(f); err != nil {
				return
			}
		case <-b.done:
			return
		}
	}
}

func (b *wsBridge) readPump() {
	defer func() {
		close(b.done)
		b.session.Close()
		b.conn.Close()
	}()

	b.pushSnapshot()

	for {
		_, raw, err := b.conn.ReadMessage()
		if err != nil {
			return
		}
		var f clientFrame
		if err := json.Unmarshal(raw, &f); err != nil {
			b.send(serverFrame{Kind: "error", Error: "invalid frame"})
			continue
		}
		b.dispatch(f)
	}
}

func (b *wsBridge) dispatch(f clientFrame) {
	var err error
	switch f.Op {
	case "edit":
		err = b.session.Edit(f.Body)
	case "cursor":
		if f.Metadata != nil {
			err = b.session.UpdateCursor(*f.Metadata)
		}
	case "save":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = b.session.Save(ctx)
		cancel()
		if err == nil {
			b.pushSnapshot()
		}
	case "resolve":
		err = b.session.Resolve(f.UseRemote)
		if err == nil {
			b.pushSnapshot()
		}
	case "snapshot":
		b.pushSnapshot()
	default:
		b.send(serverFrame{Kind: "error", Error: "unknown op"})
		return
	}
	if err != nil {
		b.send(serverFrame{Kind: "error", Error: err.Error()})
	}
}

func (b *wsBridge) pushSnapshot() {
	version, body, editing, conflicted, err := b.session.Snapshot()
	if err != nil {
		return
	}
	b.send(serverFrame{Kind: "snapshot", Snapshot: &snapshotFrame{
		Version:    version,
		Body:       body,
		Editing:    editing,
		Conflicted: conflicted,
	}})
}
