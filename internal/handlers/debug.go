package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"toolswap-chat/internal/presence"
	"toolswap-chat/internal/telemetry"
)

// RegisterDebugRoutes wires debug-only endpoints: an audit pipeline probe and
// a presence snapshot for poking at a running instance.
func RegisterDebugRoutes(router *gin.Engine, emitter *telemetry.AuditEmitter, registry *presence.Registry, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitter.Emit(c.Request.Context(), "INFO", "audit test", requestIDFromContext(c), userIDFromContext(c))
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/debug/presence", func(c *gin.Context) {
		if registry == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "presence registry not configured"})
			return
		}
		online := registry.Snapshot()
		c.JSON(http.StatusOK, gin.H{"online_users": online, "count": len(online)})
	})
}
