package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/inkwave/inkwave/sync-engine/internal/activity"
	"github.com/inkwave/inkwave/sync-engine/internal/docstore"
	"github.com/inkwave/inkwave/sync-engine/internal/permission"
	"github.com/inkwave/inkwave/sync-engine/internal/presence"
	"github.com/inkwave/inkwave/sync-engine/pkg/middleware"
)

type DocumentDeps struct {
	Store    docstore.Store
	Resolver *permission.Resolver
	Manager  *permission.Manager
	Presence presence.Tracker
	Activity activity.Recorder
}

func storeStatus(err error) (int, string) {
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		return http.StatusNotFound, "document not found"
	case errors.Is(err, permission.ErrDenied):
		return http.StatusForbidden, "permission denied"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func RegisterDocumentRoutes(r *gin.Engine, deps DocumentDeps, auth gin.HandlerFunc) {
	r.POST("/api/documents", auth, func(c *gin.Context) {
		var req struct {
			Title  string `json:"title"`
			Body   string `json:"body"`
			Public bool   `json:"public"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		now := time.Now().UTC()
		doc := &docstore.Document{
			ID:        uuid.NewString(),
			Title:     req.Title,
			Body:      req.Body,
			OwnerID:   middleware.UserID(c),
			Version:   1,
			Public:    req.Public,
			CreatedAt: now,
			UpdatedAt: now,
		}
		id, err := deps.Store.Create(c.Request.Context(), doc)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		doc.ID = id
		c.JSON(http.StatusCreated, doc)
	})

	r.GET("/api/documents/:id", auth, func(c *gin.Context) {
		userID := middleware.UserID(c)
		doc, err := deps.Store.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			status, msg := storeStatus(err)
			c.JSON(status, gin.H{"error": msg})
			return
		}
		tier, err := deps.Resolver.Resolve(c.Request.Context(), doc.ID, userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		if !doc.Public && tier == docstore.TierNone {
			c.JSON(http.StatusForbidden, gin.H{"error": "permission denied"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"document": doc, "tier": tier})
	})

	r.GET("/api/documents/:id/roster", auth, func(c *gin.Context) {
		userID := middleware.UserID(c)
		docID := c.Param("id")
		doc, err := deps.Store.Get(c.Request.Context(), docID)
		if err != nil {
			status, msg := storeStatus(err)
			c.JSON(status, gin.H{"error": msg})
			return
		}
		tier, err := deps.Resolver.Resolve(c.Request.Context(), docID, userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		if !doc.Public && tier == docstore.TierNone {
			c.JSON(http.StatusForbidden, gin.H{"error": "permission denied"})
			return
		}
		roster, err := deps.Presence.Roster(c.Request.Context(), docID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"roster": roster})
	})

	r.GET("/api/documents/:id/collaborators", auth, func(c *gin.Context) {
		docID := c.Param("id")
		if _, err := deps.Resolver.Require(c.Request.Context(), docID, middleware.UserID(c), docstore.TierRead); err != nil {
			status, msg := storeStatus(err)
			c.JSON(status, gin.H{"error": msg})
			return
		}
		grants, err := deps.Store.ListGrants(c.Request.Context(), docID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"grants": grants})
	})

	r.PUT("/api/documents/:id/collaborators/:userId", auth, func(c *gin.Context) {
		var req struct {
			Tier string `json:"tier"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		docID := c.Param("id")
		actorID := middleware.UserID(c)
		targetID := c.Param("userId")
		if err := deps.Manager.UpdateTier(c.Request.Context(), docID, actorID, targetID, docstore.Tier(req.Tier)); err != nil {
			if errors.Is(err, permission.ErrDenied) || errors.Is(err, docstore.ErrNotFound) {
				status, msg := storeStatus(err)
				c.JSON(status, gin.H{"error": msg})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if deps.Activity != nil {
			_ = deps.Activity.Record(c.Request.Context(), activity.Event{
				DocumentID: docID,
				ActorID:    actorID,
				Type:       activity.TypeGrantUpdated,
				Payload:    map[string]any{"userId": targetID, "tier": req.Tier},
				CreatedAt:  time.Now().UTC(),
			})
		}
		c.Status(http.StatusNoContent)
	})

	r.DELETE("/api/documents/:id/collaborators/:userId", auth, func(c *gin.Context) {
		docID := c.Param("id")
		actorID := middleware.UserID(c)
		targetID := c.Param("userId")
		if err := deps.Manager.RemoveCollaborator(c.Request.Context(), docID, actorID, targetID); err != nil {
			status, msg := storeStatus(err)
			c.JSON(status, gin.H{"error": msg})
			return
		}
		if deps.Activity != nil {
			_ = deps.Activity.Record(c.Request.Context(), activity.Event{
				DocumentID: docID,
				ActorID:    actorID,
				Type:       activity.TypeGrantRemoved,
				Payload:    map[string]any{"userId": targetID},
				CreatedAt:  time.Now().UTC(),
			})
		}
		c.Status(http.StatusNoContent)
	})

	r.GET("/api/documents/:id/activity", auth, func(c *gin.Context) {
		docID := c.Param("id")
		if _, err := deps.Resolver.Require(c.Request.Context(), docID, middleware.UserID(c), docstore.TierRead); err != nil {
			status, msg := storeStatus(err)
			c.JSON(status, gin.H{"error": msg})
			return
		}
		limit := 50
		if raw := c.Query("limit"); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
				limit = n
			}
		}
		events, err := deps.Activity.List(c.Request.Context(), docID, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"events": events})
	})
}
