package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"group-chat-service/internal/models"
)

// ModerationService applies admin operations on memberships.
type ModerationService interface {
	ApplyAction(ctx context.Context, groupID int64, actorID, targetID string, action models.ModerationAction) (models.Membership, error)
	AddMember(ctx context.Context, groupID int64, actorID, userID string) (models.Membership, error)
	RemoveMember(ctx context.Context, groupID int64, actorID, userID string) error
}

// ModerateMember handles PATCH /groups/:group_id/members.
func (h *GroupHandler) ModerateMember(c *gin.Context) {
	groupID, ok := parseID(c, "group_id")
	if !ok {
		return
	}

	var req struct {
		TargetUserID string                  `json:"target_user_id" binding:"required"`
		Action       models.ModerationAction `json:"action" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		emitAudit(c, h.audit, "ERROR", "invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "invalid_argument"})
		return
	}

	membership, err := h.moderation.ApplyAction(c.Request.Context(), groupID, userIDFromContext(c), req.TargetUserID, req.Action)
	if err != nil {
		respondError(c, h.audit, err)
		return
	}
	c.JSON(http.StatusOK, membership)
}

// AddMember handles POST /groups/:group_id/members.
func (h *GroupHandler) AddMember(c *gin.Context) {
	groupID, ok := parseID(c, "group_id")
	if !ok {
		return
	}

	var req struct {
		UserID string `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		emitAudit(c, h.audit, "ERROR", "invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "invalid_argument"})
		return
	}

	membership, err := h.moderation.AddMember(c.Request.Context(), groupID, userIDFromContext(c), req.UserID)
	if err != nil {
		respondError(c, h.audit, err)
		return
	}
	c.JSON(http.StatusCreated, membership)
}

// RemoveMember handles DELETE /groups/:group_id/members/:user_id.
func (h *GroupHandler) RemoveMember(c *gin.Context) {
	groupID, ok := parseID(c, "group_id")
	if !ok {
		return
	}

	if err := h.moderation.RemoveMember(c.Request.Context(), groupID, userIDFromContext(c), c.Param("user_id")); err != nil {
		respondError(c, h.audit, err)
		return
	}
	c.Status(http.StatusNoContent)
}
