package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/inkwave/inkwave/sync-engine/internal/activity"
	"github.com/inkwave/inkwave/sync-engine/internal/docstore"
	"github.com/inkwave/inkwave/sync-engine/internal/feed"
	"github.com/inkwave/inkwave/sync-engine/internal/hub"
	"github.com/inkwave/inkwave/sync-engine/internal/invite"
	"github.com/inkwave/inkwave/sync-engine/internal/permission"
	"github.com/inkwave/inkwave/sync-engine/internal/presence"
)

// testAuth trusts the X-User header so tests can act as arbitrary users
// without minting tokens.
func testAuth(c *gin.Context) {
	user := c.GetHeader("X-User")
	if user == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing identity"})
		return
	}
	c.Set("userID", user)
	c.Next()
}

type apiFixture struct {
	router   *gin.Engine
	store    *docstore.MemoryStore
	resolver *permission.Resolver
	invites  *invite.Service
	tracker  *presence.MemoryTracker
	log      *activity.MemoryLog
	hub      *hub.Hub
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := docstore.NewMemoryStore()
	resolver := permission.NewResolver(store)
	manager := permission.NewManager(store, resolver)
	tracker := presence.NewMemoryTracker(45 * time.Second)
	log := activity.NewMemoryLog()
	svc := invite.NewService(invite.NewMemoryRepo(), store, resolver, log)
	h := hub.New(store, feed.NewMemoryFeed(), tracker, resolver, hub.Options{
		Recorder:          log,
		ConnectTimeout:    2 * time.Second,
		HeartbeatInterval: time.Hour,
	})

	r := gin.New()
	RegisterDocumentRoutes(r, DocumentDeps{
		Store:    store,
		Resolver: resolver,
		Manager:  manager,
		Presence: tracker,
		Activity: log,
	}, testAuth)
	RegisterInviteRoutes(r, svc, testAuth)
	RegisterSyncRoutes(r, h, testAuth)

	return &apiFixture{router: r, store: store, resolver: resolver, invites: svc, tracker: tracker, log: log, hub: h}
}

func (fx *apiFixture) seedDocument(t *testing.T, owner string, public bool) string {
	t.Helper()
	now := time.Now().UTC()
	id, err := fx.store.Create(context.Background(), &docstore.Document{
		Title:     "meeting notes",
		Body:      "initial body",
		OwnerID:   owner,
		Version:   1,
		Public:    public,
		CreatedAt: now,
		UpdatedAt: now,
	})
	require.NoError(t, err)
	return id
}

func (fx *apiFixture) do(t *testing.T, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload *bytes.Buffer
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		payload = bytes.NewBuffer(raw)
	} else {
		payload = bytes.NewBuffer(nil)
	}
	req := httptest.NewRequest(method, path, payload)
	if user != "" {
		req.Header.Set("X-User", user)
	}
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	fx.router.ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}
