package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/channelsync/inventory-service/internal/mappings"
	"github.com/channelsync/inventory-service/internal/metrics"
	"github.com/channelsync/inventory-service/internal/rematch"
)

// MappingHandler handles SKU and location mapping HTTP endpoints
type MappingHandler struct {
	store     *mappings.Store
	importer  *mappings.Importer
	rematcher *rematch.Engine
	companyID string
}

// NewMappingHandler creates a new mapping handler
func NewMappingHandler(store *mappings.Store, importer *mappings.Importer, rematcher *rematch.Engine, companyID string) *MappingHandler {
	return &MappingHandler{
		store:     store,
		importer:  importer,
		rematcher: rematcher,
		companyID: companyID,
	}
}

// UpsertSkuMappingRequest represents one SKU mapping write, optionally
// followed by a rematch of the affected rows in one batch
type UpsertSkuMappingRequest struct {
	mappings.SkuMappingInput
	RematchBatchID string `json:"rematchBatchId,omitempty"`
}

// UpsertSkuMapping creates or corrects a SKU mapping
// POST /internal/mappings/sku
func (h *MappingHandler) UpsertSkuMapping(c *gin.Context) {
	var req UpsertSkuMappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	// Deactivation goes through DELETE; a POSTed mapping is always active.
	req.Active = true

	ctx := c.Request.Context()
	mapping, err := h.store.UpsertSkuMapping(ctx, req.SkuMappingInput)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Upsert failed: " + err.Error()})
		return
	}

	response := gin.H{"mapping": mapping}
	if req.RematchBatchID != "" {
		result, err := h.rematcher.RematchExternalSku(ctx, req.RematchBatchID, req.ExternalSku)
		if err != nil {
			// The mapping itself landed; report the rematch failure alongside.
			log.Warn().Err(err).Str("batch_id", req.RematchBatchID).Msg("Rematch after mapping upsert failed")
			response["rematchError"] = err.Error()
		} else {
			response["rematch"] = result
		}
	}

	c.JSON(http.StatusOK, response)
}

// ListSkuMappings returns mappings matching the filter
// GET /internal/mappings/sku?channel=&marketplaceId=&active=&q=&page=&limit=
func (h *MappingHandler) ListSkuMappings(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 500 {
		limit = 50
	}

	filter := mappings.SkuMappingFilter{
		Channel:       c.Query("channel"),
		MarketplaceID: c.Query("marketplaceId"),
		ActiveOnly:    c.DefaultQuery("active", "true") == "true",
		Search:        c.Query("q"),
		Limit:         limit,
		Offset:        (page - 1) * limit,
	}

	result, total, err := h.store.ListSkuMappings(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list mappings: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"mappings": result,
		"total":    total,
		"page":     page,
		"limit":    limit,
	})
}

// DeactivateSkuMapping soft-deletes a mapping
// DELETE /internal/mappings/sku/:id
func (h *MappingHandler) DeactivateSkuMapping(c *gin.Context) {
	if err := h.store.DeactivateSkuMapping(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Mapping deactivated"})
}

// UpsertLocationMapping creates or corrects a location mapping
// POST /internal/mappings/locations
func (h *MappingHandler) UpsertLocationMapping(c *gin.Context) {
	var req mappings.LocationMappingInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	req.Active = true

	mapping, err := h.store.UpsertLocationMapping(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Upsert failed: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"mapping": mapping})
}

// ListLocationMappings returns location mappings for a channel/marketplace
// GET /internal/mappings/locations?channel=&marketplaceId=&active=
func (h *MappingHandler) ListLocationMappings(c *gin.Context) {
	activeOnly := c.DefaultQuery("active", "true") == "true"

	result, err := h.store.ListLocationMappings(c.Request.Context(), c.Query("channel"), c.Query("marketplaceId"), activeOnly)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list location mappings: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"mappings": result, "count": len(result)})
}

// ImportMappingsRequest represents a bulk mapping submission
type ImportMappingsRequest struct {
	Channel       string               `json:"channel" binding:"required"`
	MarketplaceID string               `json:"marketplaceId" binding:"required"`
	Rows          []mappings.ImportRow `json:"rows" binding:"required"`
}

// ImportMappings applies a bulk mapping submission with per-row outcomes
// POST /internal/mappings/import
func (h *MappingHandler) ImportMappings(c *gin.Context) {
	var req ImportMappingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	if len(req.Rows) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "rows must not be empty"})
		return
	}

	result, err := h.importer.Import(c.Request.Context(), h.companyID, req.Channel, req.MarketplaceID, req.Rows)
	if err != nil {
		status := http.StatusBadGateway
		if result != nil {
			// Partial information is still useful to the caller.
			c.JSON(status, gin.H{"error": err.Error(), "result": result})
			return
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	metrics.MappingsImported.WithLabelValues("upserted").Add(float64(result.Upserted))
	metrics.MappingsImported.WithLabelValues("skipped").Add(float64(result.Skipped))
	metrics.MappingsImported.WithLabelValues("error").Add(float64(result.Errors))

	c.JSON(http.StatusOK, result)
}

// RegisterMappingRoutes registers mapping routes with the Gin router
func RegisterMappingRoutes(r *gin.RouterGroup, h *MappingHandler) {
	r.POST("/mappings/sku", h.UpsertSkuMapping)
	r.GET("/mappings/sku", h.ListSkuMappings)
	r.DELETE("/mappings/sku/:id", h.DeactivateSkuMapping)
	r.POST("/mappings/locations", h.UpsertLocationMapping)
	r.GET("/mappings/locations", h.ListLocationMappings)
	r.POST("/mappings/import", h.ImportMappings)
}
