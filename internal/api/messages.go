package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"viperd/internal/storage"
)

type MessagesHandler struct {
	Store  *storage.Store
	Logger zerolog.Logger
}

func (h *MessagesHandler) List(c *gin.Context) {
	chatID, ok := pathInt64(c, "chatID")
	if !ok {
		return
	}
	messages, err := h.Store.ListMessages(c.Request.Context(), chatID)
	if err != nil {
		respondStoreError(c, h.Logger, err)
		return
	}
	out := make([]messageOut, 0, len(messages))
	for _, m := range messages {
		out = append(out, toMessageOut(m))
	}
	c.JSON(http.StatusOK, out)
}

type messageCreateIn struct {
	ID        string `json:"id" binding:"required"`
	Role      string `json:"role" binding:"required,oneof=system user assistant"`
	Content   string `json:"content"`
	CreatedAt string `json:"createdAt" binding:"required"`
	Status    string `json:"status" binding:"required"`
	Error     string `json:"error"`
}

func (h *MessagesHandler) Create(c *gin.Context) {
	chatID, ok := pathInt64(c, "chatID")
	if !ok {
		return
	}
	var in messageCreateIn
	if err := c.ShouldBindJSON(&in); err != nil {
		detail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	createdAt, err := storage.ParseTimestamp(in.CreatedAt)
	if err != nil {
		detail(c, http.StatusBadRequest, "invalid createdAt")
		return
	}
	msg := storage.Message{
		ID:        in.ID,
		ChatID:    chatID,
		Role:      in.Role,
		Content:   in.Content,
		CreatedAt: createdAt,
		Status:    in.Status,
		Error:     in.Error,
	}
	if err := h.Store.AppendMessage(c.Request.Context(), msg); err != nil {
		respondStoreError(c, h.Logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type messagePatchIn struct {
	Content *string `json:"content"`
	Status  *string `json:"status"`
	Error   *string `json:"error"`
}

func (h *MessagesHandler) Patch(c *gin.Context) {
	chatID, ok := pathInt64(c, "chatID")
	if !ok {
		return
	}
	var in messagePatchIn
	if err := c.ShouldBindJSON(&in); err != nil {
		detail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	patch := storage.MessagePatch{
		Content: in.Content,
		Status:  in.Status,
		Error:   in.Error,
	}
	if err := h.Store.PatchMessage(c.Request.Context(), chatID, c.Param("messageID"), patch); err != nil {
		respondStoreError(c, h.Logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
