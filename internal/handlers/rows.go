package handlers

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/channelsync/inventory-service/internal/database"
)

// RowHandler handles inventory row HTTP endpoints
type RowHandler struct {
	repo *database.BatchRepo
}

// NewRowHandler creates a new row handler
func NewRowHandler(repo *database.BatchRepo) *RowHandler {
	return &RowHandler{repo: repo}
}

// ListRows returns a page of a batch's rows
// GET /internal/batches/:batchId/rows?unmatchedOnly=&page=&limit=
func (h *RowHandler) ListRows(c *gin.Context) {
	batchID := c.Param("batchId")
	unmatchedOnly := c.Query("unmatchedOnly") == "true"
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 500 {
		limit = 50
	}

	rows, total, err := h.repo.ListRows(c.Request.Context(), batchID, unmatchedOnly, limit, (page-1)*limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list rows: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"rows":  rows,
		"total": total,
		"page":  page,
		"limit": limit,
	})
}

// ExportUnmatched streams a batch's unmatched rows as CSV, in the column
// layout the bulk mapping importer accepts, so the file can be corrected
// offline and submitted straight back.
// GET /internal/batches/:batchId/rows/export
func (h *RowHandler) ExportUnmatched(c *gin.Context) {
	batchID := c.Param("batchId")

	rows, err := h.repo.AllRows(c.Request.Context(), batchID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load rows: " + err.Error()})
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="unmatched-%s.csv"`, batchID))

	w := csv.NewWriter(c.Writer)
	w.Write([]string{"external_sku", "variant_id", "internal_sku", "asin", "fnsku", "notes"})

	for _, row := range rows {
		if row.MatchStatus != "unmatched" {
			continue
		}
		w.Write([]string{
			row.ExternalSku,
			"",
			"",
			deref(row.Asin),
			deref(row.Fnsku),
			"",
		})
	}
	w.Flush()
}

// GetErrorSummary returns per-flag counts of a batch's flagged rows
// GET /internal/batches/:batchId/errors
func (h *RowHandler) GetErrorSummary(c *gin.Context) {
	batchID := c.Param("batchId")

	summary, err := h.repo.RowErrorSummary(c.Request.Context(), batchID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to summarize row errors: " + err.Error()})
		return
	}

	total := 0
	for _, count := range summary {
		total += count
	}
	c.JSON(http.StatusOK, gin.H{
		"batchId":     batchID,
		"flaggedRows": total,
		"byFlag":      summary,
	})
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// RegisterRowRoutes registers inventory row routes with the Gin router
func RegisterRowRoutes(r *gin.RouterGroup, repo *database.BatchRepo) {
	handler := NewRowHandler(repo)

	r.GET("/batches/:batchId/rows", handler.ListRows)
	r.GET("/batches/:batchId/rows/export", handler.ExportUnmatched)
	r.GET("/batches/:batchId/errors", handler.GetErrorSummary)
}
