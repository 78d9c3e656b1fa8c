package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/channelsync/inventory-service/internal/database"
	"github.com/channelsync/inventory-service/internal/lifecycle"
	"github.com/channelsync/inventory-service/internal/rematch"
	"github.com/channelsync/inventory-service/internal/taskqueue"
	"github.com/channelsync/inventory-service/internal/types"
)

// BatchHandler handles batch lifecycle HTTP endpoints
type BatchHandler struct {
	repo         *database.BatchRepo
	manager      *lifecycle.Manager
	rematcher    *rematch.Engine
	queue        *taskqueue.Queue
	pollDeadline time.Duration
}

// NewBatchHandler creates a new batch handler
func NewBatchHandler(repo *database.BatchRepo, manager *lifecycle.Manager, rematcher *rematch.Engine, queue *taskqueue.Queue, pollDeadline time.Duration) *BatchHandler {
	if pollDeadline <= 0 {
		pollDeadline = 2 * time.Hour
	}
	return &BatchHandler{
		repo:         repo,
		manager:      manager,
		rematcher:    rematcher,
		queue:        queue,
		pollDeadline: pollDeadline,
	}
}

// RequestSnapshotRequest represents the request for a new inventory snapshot
type RequestSnapshotRequest struct {
	Channel       string `json:"channel" binding:"required"`
	MarketplaceID string `json:"marketplaceId" binding:"required"`
	SnapshotKind  string `json:"snapshotKind" binding:"required"`
}

// RequestSnapshotResponse is returned once the channel accepts the request
type RequestSnapshotResponse struct {
	Batch   *database.Batch `json:"batch"`
	PollURL string          `json:"pollUrl"`
}

// RequestSnapshot asks the channel for a fresh inventory report
// POST /internal/batches
func (h *BatchHandler) RequestSnapshot(c *gin.Context) {
	var req RequestSnapshotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	kind := types.SnapshotKind(strings.TrimSpace(req.SnapshotKind))
	if !kind.IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("snapshotKind must be %q or %q", types.KindMarketplaceTotals, types.KindPerLocation),
		})
		return
	}

	ctx := c.Request.Context()
	batch, err := h.manager.RequestSnapshot(ctx, req.Channel, req.MarketplaceID, kind)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Snapshot request failed: " + err.Error()})
		return
	}

	// Background polling picks the batch up even if the caller never polls.
	if h.queue != nil {
		deadline := time.Now().Add(h.pollDeadline)
		if _, err := h.queue.SchedulePoll(ctx, batch.ID, time.Now().Add(lifecycle.Delay(0)), deadline); err != nil {
			log.Warn().Err(err).Str("batch_id", batch.ID).Msg("Failed to schedule background polling")
		}
	}

	c.JSON(http.StatusAccepted, RequestSnapshotResponse{
		Batch:   batch,
		PollURL: fmt.Sprintf("/internal/batches/%s/poll", batch.ID),
	})
}

// PollBatch performs one poll step for a batch
// POST /internal/batches/:batchId/poll
func (h *BatchHandler) PollBatch(c *gin.Context) {
	batchID := c.Param("batchId")

	result, err := h.manager.PollOnce(c.Request.Context(), batchID)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Poll failed: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetBatch returns one batch with its lifecycle state and counts
// GET /internal/batches/:batchId
func (h *BatchHandler) GetBatch(c *gin.Context) {
	batch, err := h.repo.GetBatch(c.Request.Context(), c.Param("batchId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Batch not found"})
		return
	}
	c.JSON(http.StatusOK, batch)
}

// ListBatches returns recent batches, optionally filtered by channel
// GET /internal/batches
func (h *BatchHandler) ListBatches(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	batches, err := h.repo.ListBatches(c.Request.Context(), c.Query("channel"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list batches: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"batches": batches, "count": len(batches)})
}

// RematchBatch reclassifies every row of a batch against current mappings
// POST /internal/batches/:batchId/rematch
func (h *BatchHandler) RematchBatch(c *gin.Context) {
	batchID := c.Param("batchId")

	result, err := h.rematcher.RematchBatch(c.Request.Context(), batchID)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Rematch failed: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetStats returns service-wide batch and row totals
// GET /internal/stats
func (h *BatchHandler) GetStats(c *gin.Context) {
	stats, err := h.repo.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute stats: " + err.Error()})
		return
	}

	response := gin.H{"totals": stats}
	if poolStats := database.Stats(); poolStats != nil {
		response["dbPool"] = gin.H{
			"totalConns": poolStats.TotalConns(),
			"idleConns":  poolStats.IdleConns(),
		}
	}
	c.JSON(http.StatusOK, response)
}

// RegisterBatchRoutes registers batch lifecycle routes with the Gin router
func RegisterBatchRoutes(r *gin.RouterGroup, h *BatchHandler) {
	r.POST("/batches", h.RequestSnapshot)
	r.GET("/batches", h.ListBatches)
	r.GET("/batches/:batchId", h.GetBatch)
	r.POST("/batches/:batchId/poll", h.PollBatch)
	r.POST("/batches/:batchId/rematch", h.RematchBatch)
	r.GET("/stats", h.GetStats)
}
