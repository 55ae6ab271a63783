package api

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"viperd/internal/storage"
)

type ChatsHandler struct {
	Store  *storage.Store
	Logger zerolog.Logger
}

type chatCreateIn struct {
	Title string `json:"title"`
}

func (h *ChatsHandler) Create(c *gin.Context) {
	var in chatCreateIn
	if err := c.ShouldBindJSON(&in); err != nil {
		detail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	chat, err := h.Store.CreateChat(c.Request.Context(), in.Title)
	if err != nil {
		respondStoreError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, toChatOut(chat))
}

type chatPatchIn struct {
	Title *string `json:"title"`
}

func (h *ChatsHandler) Patch(c *gin.Context) {
	id, ok := pathInt64(c, "chatID")
	if !ok {
		return
	}
	var in chatPatchIn
	if err := c.ShouldBindJSON(&in); err != nil {
		detail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.Store.PatchChat(c.Request.Context(), id, in.Title); err != nil {
		respondStoreError(c, h.Logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ChatsHandler) Delete(c *gin.Context) {
	id, ok := pathInt64(c, "chatID")
	if !ok {
		return
	}
	if err := h.Store.DeleteChat(c.Request.Context(), id); err != nil {
		respondStoreError(c, h.Logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type currentChatIn struct {
	ID int64 `json:"id"`
}

// PutCurrent records the chat the client last had open. The value is a
// hint for bootstrap and is accepted without checking the chat exists.
func (h *ChatsHandler) PutCurrent(c *gin.Context) {
	var in currentChatIn
	if err := c.ShouldBindJSON(&in); err != nil {
		detail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	payload, err := json.Marshal(map[string]int64{"id": in.ID})
	if err != nil {
		respondStoreError(c, h.Logger, err)
		return
	}
	if err := h.Store.SetSetting(c.Request.Context(), storage.SettingCurrentChat, string(payload)); err != nil {
		respondStoreError(c, h.Logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
