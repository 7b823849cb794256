package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"group-chat-service/internal/models"
	"group-chat-service/internal/repositories"
)

// GetGroupMessages handles GET /groups/:group_id/messages?offset=&limit=.
func (h *GroupHandler) GetGroupMessages(c *gin.Context) {
	groupID, ok := parseID(c, "group_id")
	if !ok {
		return
	}

	var query struct {
		Offset int `form:"offset" binding:"min=0"`
		Limit  int `form:"limit" binding:"min=0"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "invalid_argument"})
		return
	}

	msgs, err := h.chat.History(c.Request.Context(), groupID, userIDFromContext(c), repositories.Page{Offset: query.Offset, Limit: query.Limit})
	if err != nil {
		respondError(c, h.audit, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// PostGroupMessage persists and fans out a group message.
func (h *GroupHandler) PostGroupMessage(c *gin.Context) {
	groupID, ok := parseID(c, "group_id")
	if !ok {
		return
	}

	var payload models.Payload
	if err := c.ShouldBindJSON(&payload); err != nil {
		emitAudit(c, h.audit, "ERROR", "invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "invalid_argument"})
		return
	}

	msg, err := h.chat.SendMessage(c.Request.Context(), groupID, userIDFromContext(c), payload)
	if err != nil {
		respondError(c, h.audit, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// SearchMessages handles GET /groups/:group_id/messages/search?q=.
func (h *GroupHandler) SearchMessages(c *gin.Context) {
	groupID, ok := parseID(c, "group_id")
	if !ok {
		return
	}

	msgs, err := h.chat.Search(c.Request.Context(), groupID, userIDFromContext(c), c.Query("q"))
	if err != nil {
		respondError(c, h.audit, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// MarkRead handles POST /messages/:message_id/read.
func (h *GroupHandler) MarkRead(c *gin.Context) {
	messageID, ok := parseID(c, "message_id")
	if !ok {
		return
	}

	msg, err := h.chat.AckRead(c.Request.Context(), messageID, userIDFromContext(c))
	if err != nil {
		respondError(c, h.audit, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}
