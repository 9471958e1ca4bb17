package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwave/inkwave/sync-engine/internal/docstore"
	"github.com/inkwave/inkwave/sync-engine/internal/invite"
)

func TestInviteLifecycleOverHTTP(t *testing.T) {
	fx := newAPIFixture(t)
	id := fx.seedDocument(t, "olga", false)

	// only the owner may mint
	w := fx.do(t, http.MethodPost, "/api/documents/"+id+"/invites", "mallory", gin.H{"tier": "write", "maxUses": 1})
	require.Equal(t, http.StatusForbidden, w.Code)

	w = fx.do(t, http.MethodPost, "/api/documents/"+id+"/invites", "olga", gin.H{"tier": "write", "maxUses": 1})
	require.Equal(t, http.StatusCreated, w.Code)
	var inv invite.Invite
	decodeJSON(t, w, &inv)
	require.NotEmpty(t, inv.Code)

	// redeeming grants the tier and reports the document
	w = fx.do(t, http.MethodPost, "/api/invites/redeem", "bert", gin.H{"code": inv.Code})
	require.Equal(t, http.StatusOK, w.Code)
	var redeemed struct {
		DocumentID string `json:"documentId"`
	}
	decodeJSON(t, w, &redeemed)
	assert.Equal(t, id, redeemed.DocumentID)

	tier, err := fx.resolver.Resolve(context.Background(), id, "bert")
	require.NoError(t, err)
	assert.Equal(t, docstore.TierWrite, tier)

	// single use is now spent
	w = fx.do(t, http.MethodPost, "/api/invites/redeem", "carl", gin.H{"code": inv.Code})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRedeemFailureStatuses(t *testing.T) {
	fx := newAPIFixture(t)
	id := fx.seedDocument(t, "olga", false)

	w := fx.do(t, http.MethodPost, "/api/invites/redeem", "bert", gin.H{"code": "nope"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = fx.do(t, http.MethodPost, "/api/invites/redeem", "bert", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = fx.do(t, http.MethodPost, "/api/documents/"+id+"/invites", "olga", gin.H{"tier": "read"})
	require.Equal(t, http.StatusCreated, w.Code)
	var inv invite.Invite
	decodeJSON(t, w, &inv)

	// owners cannot redeem into their own document
	w = fx.do(t, http.MethodPost, "/api/invites/redeem", "olga", gin.H{"code": inv.Code})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestInviteListAndDeactivate(t *testing.T) {
	fx := newAPIFixture(t)
	id := fx.seedDocument(t, "olga", false)

	w := fx.do(t, http.MethodPost, "/api/documents/"+id+"/invites", "olga", gin.H{"tier": "read"})
	require.Equal(t, http.StatusCreated, w.Code)
	var inv invite.Invite
	decodeJSON(t, w, &inv)

	w = fx.do(t, http.MethodGet, "/api/documents/"+id+"/invites", "olga", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = fx.do(t, http.MethodGet, "/api/documents/"+id+"/invites", "bert", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = fx.do(t, http.MethodDelete, "/api/invites/"+inv.ID, "olga", nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	// deactivated codes read as not found
	w = fx.do(t, http.MethodPost, "/api/invites/redeem", "bert", gin.H{"code": inv.Code})
	assert.Equal(t, http.StatusNotFound, w.Code)
}
