// Package api maps the HTTP surface onto the store and the upstream proxy.
package api

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"viperd/internal/llm"
	"viperd/internal/metrics"
	"viperd/internal/storage"
)

type RouterConfig struct {
	Store        *storage.Store
	LLM          *llm.Client
	Metrics      *metrics.Metrics
	Logger       zerolog.Logger
	CORSOrigins  []string
	AllowAllCORS bool
	HealthPath   string
	MetricsPath  string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Global()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(cfg.Logger))

	corsCfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Requested-With"},
	}
	if cfg.AllowAllCORS {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.CORSOrigins
		corsCfg.AllowCredentials = true
	}
	router.Use(cors.New(corsCfg))

	if cfg.HealthPath == "" {
		cfg.HealthPath = "/healthz"
	}
	router.GET(cfg.HealthPath, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if cfg.MetricsPath != "" {
		router.GET(cfg.MetricsPath, gin.WrapH(promhttp.Handler()))
	}

	bootstrapH := &BootstrapHandler{Store: cfg.Store}
	chatsH := &ChatsHandler{Store: cfg.Store, Logger: cfg.Logger}
	messagesH := &MessagesHandler{Store: cfg.Store, Logger: cfg.Logger}
	modelsH := &ModelsHandler{Store: cfg.Store, Logger: cfg.Logger}
	llmH := &LLMHandler{
		Store:   cfg.Store,
		Client:  cfg.LLM,
		Metrics: cfg.Metrics,
		Logger:  cfg.Logger,
	}

	api := router.Group("/api")
	{
		api.GET("/bootstrap", bootstrapH.Get)

		api.POST("/chats", chatsH.Create)
		api.PATCH("/chats/:chatID", chatsH.Patch)
		api.DELETE("/chats/:chatID", chatsH.Delete)
		api.PUT("/chats/current", chatsH.PutCurrent)

		api.GET("/chats/:chatID/messages", messagesH.List)
		api.POST("/chats/:chatID/messages", messagesH.Create)
		api.PATCH("/chats/:chatID/messages/:messageID", messagesH.Patch)

		api.POST("/models", modelsH.Create)
		api.PATCH("/models/:id", modelsH.PatchByID)
		api.PATCH("/models/by-name/:name", modelsH.PatchByName)
		api.DELETE("/models/:id", modelsH.DeleteByID)
		api.DELETE("/models/by-name/:name", modelsH.DeleteByName)
		api.PUT("/models/selected", modelsH.PutSelected)

		api.POST("/llm/chat/completions", llmH.ChatCompletions)
	}

	return router
}
