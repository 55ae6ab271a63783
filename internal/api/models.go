package api

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"viperd/internal/storage"
)

type ModelsHandler struct {
	Store  *storage.Store
	Logger zerolog.Logger
}

type modelConfigCreateIn struct {
	Name        string          `json:"name" binding:"required"`
	APIBaseURL  string          `json:"apiBaseUrl" binding:"required"`
	Type        string          `json:"type" binding:"required"`
	ModelID     *string         `json:"modelId"`
	APIKey      *string         `json:"apiKey"`
	Headers     json.RawMessage `json:"headers"`
	Temperature *float64        `json:"temperature"`
	MaxTokens   *int64          `json:"maxTokens"`
	Source      string          `json:"source"`
}

func (h *ModelsHandler) Create(c *gin.Context) {
	var in modelConfigCreateIn
	if err := c.ShouldBindJSON(&in); err != nil {
		detail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	headers, err := normalizeHeaders(in.Headers)
	if err != nil {
		detail(c, http.StatusBadRequest, err.Error())
		return
	}
	created, err := h.Store.CreateModelConfig(c.Request.Context(), storage.ModelConfig{
		Name:        in.Name,
		APIBaseURL:  in.APIBaseURL,
		Type:        in.Type,
		ModelID:     in.ModelID,
		APIKey:      in.APIKey,
		Headers:     headers,
		Temperature: in.Temperature,
		MaxTokens:   in.MaxTokens,
		Source:      in.Source,
	})
	if err != nil {
		respondStoreError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, toModelConfigOut(created))
}

type modelConfigPatchIn struct {
	Name        *string         `json:"name"`
	APIBaseURL  *string         `json:"apiBaseUrl"`
	Type        *string         `json:"type"`
	ModelID     *string         `json:"modelId"`
	APIKey      *string         `json:"apiKey"`
	Headers     json.RawMessage `json:"headers"`
	Temperature *float64        `json:"temperature"`
	MaxTokens   *int64          `json:"maxTokens"`
	Source      *string         `json:"source"`
}

func (in modelConfigPatchIn) toPatch() (storage.ModelConfigPatch, error) {
	headers, err := normalizeHeaders(in.Headers)
	if err != nil {
		return storage.ModelConfigPatch{}, err
	}
	return storage.ModelConfigPatch{
		Name:        in.Name,
		APIBaseURL:  in.APIBaseURL,
		Type:        in.Type,
		ModelID:     in.ModelID,
		APIKey:      in.APIKey,
		Headers:     headers,
		Temperature: in.Temperature,
		MaxTokens:   in.MaxTokens,
		Source:      in.Source,
	}, nil
}

func (h *ModelsHandler) PatchByID(c *gin.Context) {
	id, ok := pathInt64(c, "id")
	if !ok {
		return
	}
	var in modelConfigPatchIn
	if err := c.ShouldBindJSON(&in); err != nil {
		detail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	patch, err := in.toPatch()
	if err != nil {
		detail(c, http.StatusBadRequest, err.Error())
		return
	}
	updated, err := h.Store.PatchModelConfigByID(c.Request.Context(), id, patch)
	if err != nil {
		respondStoreError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, toModelConfigOut(updated))
}

func (h *ModelsHandler) PatchByName(c *gin.Context) {
	var in modelConfigPatchIn
	if err := c.ShouldBindJSON(&in); err != nil {
		detail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	patch, err := in.toPatch()
	if err != nil {
		detail(c, http.StatusBadRequest, err.Error())
		return
	}
	updated, err := h.Store.PatchModelConfigByName(c.Request.Context(), c.Param("name"), patch)
	if err != nil {
		respondStoreError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, toModelConfigOut(updated))
}

func (h *ModelsHandler) DeleteByID(c *gin.Context) {
	id, ok := pathInt64(c, "id")
	if !ok {
		return
	}
	if err := h.Store.DeleteModelConfigByID(c.Request.Context(), id); err != nil {
		respondStoreError(c, h.Logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ModelsHandler) DeleteByName(c *gin.Context) {
	if err := h.Store.DeleteModelConfigByName(c.Request.Context(), c.Param("name")); err != nil {
		respondStoreError(c, h.Logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type selectedModelIn struct {
	Name string `json:"name" binding:"required"`
	ID   *int64 `json:"id"`
}

func (h *ModelsHandler) PutSelected(c *gin.Context) {
	var in selectedModelIn
	if err := c.ShouldBindJSON(&in); err != nil {
		detail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	value := map[string]any{"name": in.Name}
	if in.ID != nil {
		value["id"] = *in.ID
	}
	payload, err := json.Marshal(value)
	if err != nil {
		respondStoreError(c, h.Logger, err)
		return
	}
	if err := h.Store.SetSetting(c.Request.Context(), storage.SettingSelectedModel, string(payload)); err != nil {
		respondStoreError(c, h.Logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
