package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwave/inkwave/sync-engine/internal/docstore"
	"github.com/inkwave/inkwave/sync-engine/internal/presence"
)

func TestCreateAndFetchDocument(t *testing.T) {
	fx := newAPIFixture(t)

	w := fx.do(t, http.MethodPost, "/api/documents", "olga", gin.H{"title": "roadmap", "body": "q3 plans"})
	require.Equal(t, http.StatusCreated, w.Code)
	var created docstore.Document
	decodeJSON(t, w, &created)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, "olga", created.OwnerID)
	assert.EqualValues(t, 1, created.Version)

	w = fx.do(t, http.MethodGet, "/api/documents/"+created.ID, "olga", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Document docstore.Document `json:"document"`
		Tier     docstore.Tier     `json:"tier"`
	}
	decodeJSON(t, w, &resp)
	assert.Equal(t, "q3 plans", resp.Document.Body)
	assert.Equal(t, docstore.TierOwner, resp.Tier)
}

func TestFetchDeniedForStranger(t *testing.T) {
	fx := newAPIFixture(t)
	id := fx.seedDocument(t, "olga", false)

	w := fx.do(t, http.MethodGet, "/api/documents/"+id, "mallory", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = fx.do(t, http.MethodGet, "/api/documents/"+id, "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPublicDocumentReadableByAnyone(t *testing.T) {
	fx := newAPIFixture(t)
	id := fx.seedDocument(t, "olga", true)

	w := fx.do(t, http.MethodGet, "/api/documents/"+id, "mallory", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCollaboratorManagement(t *testing.T) {
	fx := newAPIFixture(t)
	id := fx.seedDocument(t, "olga", false)
	ctx := context.Background()

	require.NoError(t, fx.store.UpsertGrant(ctx, docstore.Grant{DocumentID: id, UserID: "adam", Tier: docstore.TierAdmin}))

	// admins can grant write
	w := fx.do(t, http.MethodPut, "/api/documents/"+id+"/collaborators/bert", "adam", gin.H{"tier": "write"})
	require.Equal(t, http.StatusNoContent, w.Code)

	tier, err := fx.resolver.Resolve(ctx, id, "bert")
	require.NoError(t, err)
	assert.Equal(t, docstore.TierWrite, tier)

	// a writer cannot grant
	w = fx.do(t, http.MethodPut, "/api/documents/"+id+"/collaborators/carl", "bert", gin.H{"tier": "read"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	// listing requires at least read
	w = fx.do(t, http.MethodGet, "/api/documents/"+id+"/collaborators", "bert", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = fx.do(t, http.MethodGet, "/api/documents/"+id+"/collaborators", "mallory", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// removal lands in the activity trail
	w = fx.do(t, http.MethodDelete, "/api/documents/"+id+"/collaborators/bert", "olga", nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = fx.do(t, http.MethodGet, "/api/documents/"+id+"/activity", "olga", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var trail struct {
		Events []struct {
			Type string `json:"type"`
		} `json:"events"`
	}
	decodeJSON(t, w, &trail)
	require.NotEmpty(t, trail.Events)
	assert.Equal(t, "grant.removed", trail.Events[0].Type)
}

func TestRosterEndpoint(t *testing.T) {
	fx := newAPIFixture(t)
	id := fx.seedDocument(t, "olga", false)
	ctx := context.Background()

	require.NoError(t, fx.tracker.Join(ctx, id, "olga", presence.Metadata{}))

	w := fx.do(t, http.MethodGet, "/api/documents/"+id+"/roster", "olga", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Roster []presence.Record `json:"roster"`
	}
	decodeJSON(t, w, &resp)
	require.Len(t, resp.Roster, 1)
	assert.Equal(t, "olga", resp.Roster[0].UserID)
}
