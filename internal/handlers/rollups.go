package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/channelsync/inventory-service/internal/database"
	"github.com/channelsync/inventory-service/internal/mappings"
	"github.com/channelsync/inventory-service/internal/rollup"
)

// RollupHandler handles on-demand aggregation endpoints
type RollupHandler struct {
	repo     *database.BatchRepo
	mappings *mappings.Store
}

// NewRollupHandler creates a new rollup handler
func NewRollupHandler(repo *database.BatchRepo, store *mappings.Store) *RollupHandler {
	return &RollupHandler{repo: repo, mappings: store}
}

// GetLocationRollup aggregates a batch's rows per location
// GET /internal/batches/:batchId/rollup/locations
func (h *RollupHandler) GetLocationRollup(c *gin.Context) {
	batchID := c.Param("batchId")
	ctx := c.Request.Context()

	batch, err := h.repo.GetBatch(ctx, batchID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Batch not found"})
		return
	}

	rows, err := h.repo.AllRows(ctx, batchID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load rows: " + err.Error()})
		return
	}

	locations, err := h.mappings.ActiveLocationMap(ctx, batch.Channel, batch.MarketplaceID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load location mappings: " + err.Error()})
		return
	}

	result := rollup.LocationRollup(rows, locations)
	c.JSON(http.StatusOK, gin.H{
		"batchId":   batchID,
		"locations": result,
	})
}

// GetLocationSkuRollup aggregates one location's rows per SKU
// GET /internal/batches/:batchId/rollup/locations/:locationCode/skus
func (h *RollupHandler) GetLocationSkuRollup(c *gin.Context) {
	batchID := c.Param("batchId")
	locationCode := c.Param("locationCode")

	rows, err := h.repo.AllRows(c.Request.Context(), batchID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load rows: " + err.Error()})
		return
	}

	result := rollup.LocationSkuRollup(rows, locationCode)
	c.JSON(http.StatusOK, gin.H{
		"batchId":      batchID,
		"locationCode": locationCode,
		"skus":         result,
	})
}

// RegisterRollupRoutes registers rollup routes with the Gin router
func RegisterRollupRoutes(r *gin.RouterGroup, repo *database.BatchRepo, store *mappings.Store) {
	handler := NewRollupHandler(repo, store)

	r.GET("/batches/:batchId/rollup/locations", handler.GetLocationRollup)
	r.GET("/batches/:batchId/rollup/locations/:locationCode/skus", handler.GetLocationSkuRollup)
}
