package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"viperd/internal/storage"
)

type chatOut struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
	// Timestamp is the chat's updated_at, which is what orders the list.
	Timestamp string `json:"timestamp"`
}

func toChatOut(c storage.Chat) chatOut {
	return chatOut{
		ID:        c.ID,
		Title:     c.Title,
		Timestamp: storage.FormatTimestamp(c.UpdatedAt),
	}
}

type messageOut struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"createdAt"`
	Status    string `json:"status"`
	Error     string `json:"error"`
}

func toMessageOut(m storage.Message) messageOut {
	return messageOut{
		ID:        m.ID,
		Role:      m.Role,
		Content:   m.Content,
		CreatedAt: storage.FormatTimestamp(m.CreatedAt),
		Status:    m.Status,
		Error:     m.Error,
	}
}

type modelConfigOut struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	APIBaseURL  string   `json:"apiBaseUrl"`
	Type        string   `json:"type"`
	ModelID     *string  `json:"modelId"`
	APIKey      *string  `json:"apiKey"`
	Headers     *string  `json:"headers"`
	Temperature *float64 `json:"temperature"`
	MaxTokens   *int64   `json:"maxTokens"`
	Source      string   `json:"source"`
}

func toModelConfigOut(m storage.ModelConfig) modelConfigOut {
	return modelConfigOut{
		ID:          m.ID,
		Name:        m.Name,
		APIBaseURL:  m.APIBaseURL,
		Type:        m.Type,
		ModelID:     m.ModelID,
		APIKey:      m.APIKey,
		Headers:     m.Headers,
		Temperature: m.Temperature,
		MaxTokens:   m.MaxTokens,
		Source:      m.Source,
	}
}

// normalizeHeaders flattens the headers union into the stored string form:
// objects are serialized to compact JSON with scalar values stringified,
// strings pass through unchanged.
func normalizeHeaders(raw json.RawMessage) (*string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return &asString, nil
	}
	var asObject map[string]any
	if err := json.Unmarshal(raw, &asObject); err == nil {
		flat := make(map[string]string, len(asObject))
		for k, v := range asObject {
			switch t := v.(type) {
			case string:
				flat[k] = t
			case float64:
				flat[k] = strconv.FormatFloat(t, 'f', -1, 64)
			case bool:
				flat[k] = strconv.FormatBool(t)
			}
		}
		b, err := json.Marshal(flat)
		if err != nil {
			return nil, err
		}
		s := string(b)
		return &s, nil
	}
	return nil, errors.New("headers must be a string or an object")
}

func detail(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"detail": msg})
}

// respondStoreError maps storage failures to the wire: missing rows are
// 404, everything else is a logged 500.
func respondStoreError(c *gin.Context, logger zerolog.Logger, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		detail(c, http.StatusNotFound, "not found")
		return
	}
	logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("storage error")
	detail(c, http.StatusInternalServerError, "internal error")
}

func pathInt64(c *gin.Context, name string) (int64, bool) {
	v, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		detail(c, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return v, true
}
