package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/inkwave/inkwave/sync-engine/internal/docstore"
	"github.com/inkwave/inkwave/sync-engine/internal/invite"
	"github.com/inkwave/inkwave/sync-engine/internal/permission"
	"github.com/inkwave/inkwave/sync-engine/pkg/middleware"
)

// inviteStatus maps the tagged redemption failures onto distinct HTTP
// responses so the UI can render a specific message per reason.
func inviteStatus(err error) (int, string) {
	var ie *invite.Error
	if errors.As(err, &ie) {
		switch ie.Reason {
		case invite.ReasonNotFound:
			return http.StatusNotFound, "invite code not found or no longer active"
		case invite.ReasonExpired:
			return http.StatusGone, "invite code has expired"
		case invite.ReasonExhausted:
			return http.StatusConflict, "invite code has no uses left"
		case invite.ReasonAlreadyCollaborator:
			return http.StatusConflict, "you already collaborate on this document"
		case invite.ReasonIsOwner:
			return http.StatusConflict, "you own this document"
		}
	}
	if errors.Is(err, permission.ErrDenied) {
		return http.StatusForbidden, "permission denied"
	}
	return http.StatusInternalServerError, "internal error"
}

func RegisterInviteRoutes(r *gin.Engine, svc *invite.Service, auth gin.HandlerFunc) {
	r.POST("/api/documents/:id/invites", auth, func(c *gin.Context) {
		var req struct {
			Tier      string     `json:"tier"`
			MaxUses   int        `json:"maxUses"`
			ExpiresAt *time.Time `json:"expiresAt,omitempty"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		inv, err := svc.CreateInvite(c.Request.Context(), c.Param("id"), docstore.Tier(req.Tier), middleware.UserID(c), req.MaxUses, req.ExpiresAt)
		if err != nil {
			if errors.Is(err, permission.ErrDenied) {
				c.JSON(http.StatusForbidden, gin.H{"error": "only the owner may create invites"})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, inv)
	})

	r.GET("/api/documents/:id/invites", auth, func(c *gin.Context) {
		list, err := svc.ListInvites(c.Request.Context(), c.Param("id"), middleware.UserID(c))
		if err != nil {
			status, msg := inviteStatus(err)
			c.JSON(status, gin.H{"error": msg})
			return
		}
		c.JSON(http.StatusOK, list)
	})

	r.POST("/api/invites/redeem", auth, func(c *gin.Context) {
		var req struct {
			Code string `json:"code"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || req.Code == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "code is required"})
			return
		}
		docID, err := svc.Redeem(c.Request.Context(), req.Code, middleware.UserID(c))
		if err != nil {
			status, msg := inviteStatus(err)
			c.JSON(status, gin.H{"error": msg})
			return
		}
		c.JSON(http.StatusOK, gin.H{"documentId": docID})
	})

	r.DELETE("/api/invites/:id", auth, func(c *gin.Context) {
		if err := svc.Deactivate(c.Request.Context(), c.Param("id"), middleware.UserID(c)); err != nil {
			status, msg := inviteStatus(err)
			c.JSON(status, gin.H{"error": msg})
			return
		}
		c.Status(http.StatusNoContent)
	})
}
