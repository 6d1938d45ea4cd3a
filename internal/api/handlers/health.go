package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthCheck GET /health
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "chess-matchmaking",
	})
}
