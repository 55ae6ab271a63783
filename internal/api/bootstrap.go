package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"viperd/internal/storage"
)

type BootstrapHandler struct {
	Store  *storage.Store
	Logger zerolog.Logger
}

type bootstrapOut struct {
	Models        []modelConfigOut `json:"models"`
	Chats         []chatOut        `json:"chats"`
	SelectedModel *string          `json:"selectedModel"`
	CurrentChatID *int64           `json:"currentChatId"`
	// MessagesByChatID is always null; clients fetch messages lazily.
	MessagesByChatID map[string]any `json:"messagesByChatId"`
}

func (h *BootstrapHandler) Get(c *gin.Context) {
	snap, err := h.Store.Bootstrap(c.Request.Context())
	if err != nil {
		respondStoreError(c, h.Logger, err)
		return
	}
	out := bootstrapOut{
		Models:        make([]modelConfigOut, 0, len(snap.Models)),
		Chats:         make([]chatOut, 0, len(snap.Chats)),
		SelectedModel: snap.SelectedModel,
		CurrentChatID: snap.CurrentChatID,
	}
	for _, m := range snap.Models {
		out.Models = append(out.Models, toModelConfigOut(m))
	}
	for _, ch := range snap.Chats {
		out.Chats = append(out.Chats, toChatOut(ch))
	}
	c.JSON(http.StatusOK, out)
}
