package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Version is set at build time via -ldflags; "dev" outside a release build.
var Version = "dev"

// Health handles GET /api/health.
func (d *Deps) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"version":      Version,
		"update_check": false,
	})
}
