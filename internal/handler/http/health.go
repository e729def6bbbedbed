// Package http holds the plain HTTP (non-websocket) handlers.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Health answers the liveness probe.
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}
