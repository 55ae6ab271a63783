package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"viperd/internal/llm"
	"viperd/internal/metrics"
	"viperd/internal/storage"
)

const flushTimeout = 5 * time.Second

type LLMHandler struct {
	Store   *storage.Store
	Client  *llm.Client
	Metrics *metrics.Metrics
	Logger  zerolog.Logger
}

type llmModelIn struct {
	Name            string      `json:"name"`
	APIBaseURL      string      `json:"apiBaseUrl"`
	ModelID         string      `json:"modelId"`
	APIKey          string      `json:"apiKey"`
	Headers         llm.Headers `json:"headers"`
	CompletionsPath string      `json:"completionsPath"`
}

// llmMetaIn carries the persistence hints the client attaches to a
// streamed completion. When absent the stream is relayed without being
// written back to the store. Both camelCase and snake_case spellings are
// accepted on the wire.
type llmMetaIn struct {
	ChatID             int64
	AssistantMessageID string
}

func (m *llmMetaIn) UnmarshalJSON(b []byte) error {
	var raw struct {
		ChatID                int64  `json:"chatId"`
		AssistantMessageID    string `json:"assistantMessageId"`
		ChatIDAlt             int64  `json:"chat_id"`
		AssistantMessageIDAlt string `json:"assistant_message_id"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	m.ChatID = raw.ChatID
	if m.ChatID == 0 {
		m.ChatID = raw.ChatIDAlt
	}
	m.AssistantMessageID = raw.AssistantMessageID
	if m.AssistantMessageID == "" {
		m.AssistantMessageID = raw.AssistantMessageIDAlt
	}
	return nil
}

type llmCompletionIn struct {
	Model       llmModelIn        `json:"model"`
	Messages    []llm.ChatMessage `json:"messages"`
	Stream      bool              `json:"stream"`
	Temperature *float64          `json:"temperature"`
	MaxTokens   *int64            `json:"maxTokens"`
	Viper       *llmMetaIn        `json:"viper"`
}

func (h *LLMHandler) ChatCompletions(c *gin.Context) {
	var in llmCompletionIn
	if err := c.ShouldBindJSON(&in); err != nil {
		detail(c, http.StatusBadRequest, "invalid request body")
		return
	}

	req := llm.Request{
		Model: llm.ModelRef{
			Name:            in.Model.Name,
			APIBaseURL:      in.Model.APIBaseURL,
			ModelID:         in.Model.ModelID,
			APIKey:          in.Model.APIKey,
			Headers:         in.Model.Headers,
			CompletionsPath: in.Model.CompletionsPath,
		},
		Messages:    in.Messages,
		Stream:      in.Stream,
		Temperature: in.Temperature,
		MaxTokens:   in.MaxTokens,
	}
	if err := req.Validate(); err != nil {
		detail(c, http.StatusBadRequest, err.Error())
		return
	}

	h.Metrics.ProxyRequests.Inc()
	if in.Stream {
		h.stream(c, req, in.Viper)
		return
	}
	h.complete(c, req)
}

func (h *LLMHandler) complete(c *gin.Context, req llm.Request) {
	body, err := h.Client.Complete(c.Request.Context(), req)
	if err != nil {
		// Non-streaming upstream failures collapse to 502 with the
		// upstream status and body carried in the detail.
		h.Metrics.UpstreamErrors.Inc()
		h.Logger.Error().Err(err).Msg("upstream completion failed")
		detail(c, http.StatusBadGateway, err.Error())
		return
	}
	c.Data(http.StatusOK, "application/json", body)
}

func (h *LLMHandler) stream(c *gin.Context, req llm.Request, meta *llmMetaIn) {
	resp, err := h.Client.OpenStream(c.Request.Context(), req)
	if err != nil {
		h.respondUpstreamError(c, err)
		return
	}
	h.Metrics.StreamsStarted.Inc()

	header := c.Writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)

	var acc llm.Accumulator
	defer func() {
		resp.Body.Close()
		acc.Finish()
		h.flushAssistant(meta, &acc)
	}()

	// Tee every relayed chunk through the accumulator so the reply can
	// be persisted even when the client walks away mid-stream.
	reader := io.TeeReader(resp.Body, &acc)
	buf := make([]byte, 32*1024)
	for {
		n, rerr := reader.Read(buf)
		if n > 0 {
			if _, werr := c.Writer.Write(buf[:n]); werr != nil {
				return
			}
			c.Writer.Flush()
		}
		if rerr != nil {
			if !errors.Is(rerr, io.EOF) && !errors.Is(rerr, context.Canceled) {
				h.Logger.Warn().Err(rerr).Msg("upstream stream interrupted")
			}
			return
		}
	}
}

// flushAssistant persists the accumulated reply under the client-chosen
// message id. Runs on its own context so a dropped client connection
// cannot abort the write.
func (h *LLMHandler) flushAssistant(meta *llmMetaIn, acc *llm.Accumulator) {
	if meta == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	err := h.Store.UpsertMessage(ctx, storage.Message{
		ID:        meta.AssistantMessageID,
		ChatID:    meta.ChatID,
		Role:      "assistant",
		Content:   acc.Text(),
		CreatedAt: storage.UTCNow(),
		Status:    "complete",
	})
	if err != nil {
		h.Logger.Error().Err(err).
			Int64("chat_id", meta.ChatID).
			Str("message_id", meta.AssistantMessageID).
			Msg("flush assistant message")
		return
	}
	h.Metrics.StreamFlushes.Inc()
}

// respondUpstreamError handles pre-relay streaming failures: the upstream's
// own status passes through with its body, transport failures become 502.
func (h *LLMHandler) respondUpstreamError(c *gin.Context, err error) {
	h.Metrics.UpstreamErrors.Inc()

	var ue *llm.UpstreamError
	if errors.As(err, &ue) && ue.StatusCode > 0 {
		body := ue.Body
		if body == "" {
			body = http.StatusText(ue.StatusCode)
		}
		detail(c, ue.StatusCode, body)
		return
	}
	h.Logger.Error().Err(err).Msg("upstream request failed")
	detail(c, http.StatusBadGateway, "upstream request failed")
}
