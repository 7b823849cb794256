package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"group-chat-service/internal/presence"
	"group-chat-service/internal/telemetry"
)

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router gin.IRoutes, emitter *telemetry.AuditEmitter, registry *presence.Registry, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		requestIDFromContext(c)
		emitter.Emit(c.Request.Context(), telemetry.AuditRecord{Level: "INFO", Text: "audit test", UserID: userIDFromContext(c)})
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/debug/presence", func(c *gin.Context) {
		_, online := registry.Lookup(c.Query("user_id"))
		c.JSON(http.StatusOK, gin.H{"online_users": registry.Count(), "online": online})
	})
}
