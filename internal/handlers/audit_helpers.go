package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"group-chat-service/internal/apperr"
	"group-chat-service/internal/middleware"
	"group-chat-service/internal/observability"
	"group-chat-service/internal/telemetry"
)

// Auditor records rejected and failed requests.
type Auditor interface {
	Emit(ctx context.Context, rec telemetry.AuditRecord)
}

func requestIDFromContext(c *gin.Context) string {
	if id := c.GetString(middleware.RequestIDKey); id != "" {
		return id
	}
	requestID := observability.RequestIDFromRequest(c.Request)
	c.Set(middleware.RequestIDKey, requestID)
	c.Request = c.Request.WithContext(observability.WithRequestID(c.Request.Context(), requestID))
	return requestID
}

func userIDFromContext(c *gin.Context) string {
	return c.GetString(middleware.UserIDKey)
}

func emitAudit(c *gin.Context, audit Auditor, level, text string) {
	if audit == nil {
		return
	}
	requestIDFromContext(c)
	audit.Emit(c.Request.Context(), telemetry.AuditRecord{Level: level, Text: text, UserID: userIDFromContext(c)})
}

// respondError writes the status and stable code for err. Store failures are not echoed to clients.
func respondError(c *gin.Context, audit Auditor, err error) {
	status := apperr.HTTPStatus(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		message = "temporarily unavailable"
		if !errors.Is(err, apperr.ErrUnavailable) {
			message = "internal error"
		}
		emitAudit(c, audit, "ERROR", "internal error")
	} else if status == http.StatusForbidden {
		emitAudit(c, audit, "ERROR", "not allowed")
	}
	c.JSON(status, gin.H{"error": message, "code": apperr.Code(err)})
}

func parseID(c *gin.Context, param string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(param), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + param, "code": apperr.Code(apperr.ErrInvalidArgument)})
		return 0, false
	}
	return id, true
}
