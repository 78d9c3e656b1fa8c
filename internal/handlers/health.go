package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/channelsync/inventory-service/internal/database"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

// HealthCheck handles the health check endpoint
func HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status: "ok",
	}

	if database.Pool() != nil {
		if err := database.Status(c.Request.Context()); err != nil {
			response.Database = "disconnected"
			c.JSON(http.StatusServiceUnavailable, response)
			return
		}
		response.Database = "connected"
	} else {
		response.Database = "not configured"
	}

	c.JSON(http.StatusOK, response)
}
