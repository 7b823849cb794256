package middleware

import (
	"github.com/gin-gonic/gin"

	"group-chat-service/internal/observability"
)

const RequestIDKey = "request_id"

// RequestID propagates or assigns X-Request-Id and makes it available to handlers and the core.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := observability.RequestIDFromRequest(c.Request)
		c.Set(RequestIDKey, requestID)
		c.Header("X-Request-Id", requestID)
		c.Request = c.Request.WithContext(observability.WithRequestID(c.Request.Context(), requestID))
		c.Next()
	}
}
