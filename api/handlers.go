// Package api implements the HTTP surface of the healing engine.
//
// The surface is read-only with one exception, the backup restore
// endpoint. Handlers delegate to the state manager, the work queue and
// the backup service and return JSON responses.
package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ukdeo/Self-Healing-Database/internal/backup"
	"github.com/ukdeo/Self-Healing-Database/internal/queue"
	"github.com/ukdeo/Self-Healing-Database/internal/state"
	"github.com/ukdeo/Self-Healing-Database/internal/store"
	"github.com/ukdeo/Self-Healing-Database/pkg/cache"
)

// Handler holds references to the engine components the HTTP surface
// reads from.
type Handler struct {
	state   *state.State
	queue   *queue.WorkQueue
	backups *backup.Service
	store   store.Store
	history state.HistoryStore // nil when persistence is disabled
	cache   *cache.Cache       // nil when Redis is disabled
}

// NewHandler creates a Handler. history and snapshotCache may be nil.
func NewHandler(s *state.State, q *queue.WorkQueue, backups *backup.Service, st store.Store, history state.HistoryStore, snapshotCache *cache.Cache) *Handler {
	return &Handler{
		state:   s,
		queue:   q,
		backups: backups,
		store:   st,
		history: history,
		cache:   snapshotCache,
	}
}

// RegisterRoutes sets up all routes on the given Gin engine.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/", h.Dashboard)
	r.GET("/health", h.ServiceHealth)
	r.GET("/api/status", h.Status)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/history", h.History)
		v1.GET("/backups", h.ListBackups)
		v1.POST("/backups/:name/restore", h.RestoreBackup)
	}
}

// Dashboard serves the embedded status page.
func (h *Handler) Dashboard(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(dashboardHTML))
}

// ServiceHealth reports process liveness and store reachability.
func (h *Handler) ServiceHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	database := "connected"
	status := "healthy"
	if err := h.store.Ping(ctx); err != nil {
		database = "disconnected"
		status = "degraded"
	}

	snap := h.state.Snapshot(h.queue.Depth())
	c.JSON(http.StatusOK, gin.H{
		"status":   status,
		"service":  "self-healing-database",
		"database": database,
		"uptime":   time.Since(snap.StartTime).Round(time.Second).String(),
	})
}

// Status returns the full engine snapshot. The rendered JSON is cached
// in Redis for a short TTL when a cache is configured; cache failures
// fall back to a fresh snapshot.
func (h *Handler) Status(c *gin.Context) {
	ctx := c.Request.Context()

	if h.cache != nil {
		if cached, err := h.cache.Get(ctx, cache.SnapshotKey); err == nil && cached != "" {
			c.Data(http.StatusOK, "application/json", []byte(cached))
			return
		}
	}

	snap := h.state.Snapshot(h.queue.Depth())
	body, err := json.Marshal(snap)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if h.cache != nil {
		if err := h.cache.Set(ctx, cache.SnapshotKey, string(body), cache.SnapshotTTL); err != nil {
			log.Printf("api: snapshot cache write failed: %v", err)
		}
	}
	c.Data(http.StatusOK, "application/json", body)
}

// History returns persisted defect outcomes, newest first. Responds
// 503 when no history store is configured.
func (h *Handler) History(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "defect history persistence is not configured"})
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer between 1 and 500"})
			return
		}
		limit = n
	}

	records, err := h.history.List(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records, "count": len(records)})
}

// ListBackups returns the backup collections present in the store.
func (h *Handler) ListBackups(c *gin.Context) {
	names, err := h.backups.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"backups": names, "count": len(names)})
}

// RestoreBackup copies documents from a backup collection back into its
// source collection, skipping documents that still exist.
func (h *Handler) RestoreBackup(c *gin.Context) {
	name := c.Param("name")
	target, restored, err := h.backups.Restore(c.Request.Context(), name)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"backup":   name,
		"target":   target,
		"restored": restored,
	})
}
