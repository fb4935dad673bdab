package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nexus-edge/anolis/internal/kernel"
)

func healthHandler(k *kernel.Kernel) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// readyHandler reports FAULT mode as not-ready; everything else is ready to
// accept control traffic.
func readyHandler(k *kernel.Kernel) gin.HandlerFunc {
	return func(c *gin.Context) {
		if k.Mode.IsFault() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "fault"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready", "mode": k.Mode.CurrentMode(), "devices": k.Registry.DeviceCount()})
	}
}
