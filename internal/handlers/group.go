package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"group-chat-service/internal/chat"
	"group-chat-service/internal/models"
	"group-chat-service/internal/repositories"
)

// ChatService is the core API used by the HTTP layer.
type ChatService interface {
	CreateGroup(ctx context.Context, in chat.CreateGroupInput) (models.Group, bool, error)
	DeleteGroup(ctx context.Context, groupID int64, requesterID string) error
	GetGroup(ctx context.Context, groupID int64, userID string) (models.GroupDetail, error)
	ListGroups(ctx context.Context, userID string) ([]models.GroupSummary, error)
	ListAdminGroups(ctx context.Context, userID string) ([]models.AdminGroup, error)
	SendMessage(ctx context.Context, groupID int64, senderID string, payload models.Payload) (models.Message, error)
	AckRead(ctx context.Context, messageID int64, userID string) (models.Message, error)
	History(ctx context.Context, groupID int64, userID string, page repositories.Page) ([]models.Message, error)
	Search(ctx context.Context, groupID int64, userID, query string) ([]models.Message, error)
}

// GroupHandler manages group, message and membership endpoints.
type GroupHandler struct {
	chat       ChatService
	moderation ModerationService
	audit      Auditor
}

// NewGroupHandler constructs a GroupHandler.
func NewGroupHandler(chat ChatService, moderation ModerationService, audit Auditor) *GroupHandler {
	return &GroupHandler{chat: chat, moderation: moderation, audit: audit}
}

// CreateGroup handles POST /groups. It answers 201 for a new group and 200 when an identical
// group already existed.
func (h *GroupHandler) CreateGroup(c *gin.Context) {
	userID := userIDFromContext(c)

	var req struct {
		MemberIDs []string         `json:"member_ids" binding:"required,min=1"`
		Kind      models.GroupKind `json:"kind"`
		Name      *string          `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		emitAudit(c, h.audit, "ERROR", "invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "invalid_argument"})
		return
	}

	group, created, err := h.chat.CreateGroup(c.Request.Context(), chat.CreateGroupInput{
		Members:   req.MemberIDs,
		CreatorID: userID,
		Kind:      req.Kind,
		Name:      req.Name,
	})
	if err != nil {
		respondError(c, h.audit, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"group": group, "created": created})
}

// ListGroups returns groups the caller belongs to with unread counts.
func (h *GroupHandler) ListGroups(c *gin.Context) {
	groups, err := h.chat.ListGroups(c.Request.Context(), userIDFromContext(c))
	if err != nil {
		respondError(c, h.audit, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

// ListAdminGroups returns groups the caller administers.
func (h *GroupHandler) ListAdminGroups(c *gin.Context) {
	groups, err := h.chat.ListAdminGroups(c.Request.Context(), userIDFromContext(c))
	if err != nil {
		respondError(c, h.audit, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

// GetGroup handles GET /groups/:group_id.
func (h *GroupHandler) GetGroup(c *gin.Context) {
	groupID, ok := parseID(c, "group_id")
	if !ok {
		return
	}
	detail, err := h.chat.GetGroup(c.Request.Context(), groupID, userIDFromContext(c))
	if err != nil {
		respondError(c, h.audit, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// DeleteGroup handles DELETE /groups/:group_id.
func (h *GroupHandler) DeleteGroup(c *gin.Context) {
	groupID, ok := parseID(c, "group_id")
	if !ok {
		return
	}
	if err := h.chat.DeleteGroup(c.Request.Context(), groupID, userIDFromContext(c)); err != nil {
		respondError(c, h.audit, err)
		return
	}
	c.Status(http.StatusNoContent)
}
