package handler

import (
	"github.com/gin-gonic/gin"

	"baria-go/internal/middleware"
	"baria-go/internal/service"
	"baria-go/pkg/health"
	"baria-go/pkg/metrics"
)

// RouterDeps are the services behind the HTTP API.
type RouterDeps struct {
	Retrieval      service.RetrievalService
	Ask            service.AskService
	Ingest         service.IngestService
	Auth           service.AuthService
	Conversations  service.ConversationService
	Checker        *health.Checker
	Metrics        *metrics.Metrics
	AuthEnabled    bool
	DefaultTopK    int
	MinScore       *float64
	MaxUploadBytes int64
}

// NewRouter registers every route on a fresh engine.
func NewRouter(d RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestLogger(), middleware.Metrics(d.Metrics), gin.Recovery())

	indexHandler := NewIndexHandler(d.Retrieval)
	searchHandler := NewSearchHandler(d.Retrieval, d.DefaultTopK, d.MinScore)
	askHandler := NewAskHandler(d.Ask)
	healthHandler := NewHealthHandler(d.Checker, d.Retrieval)
	authHandler := NewAuthHandler(d.Auth)
	documentHandler := NewDocumentHandler(d.Ingest, d.Retrieval, d.MaxUploadBytes)
	conversationHandler := NewConversationHandler(d.Conversations)

	r.GET("/health", healthHandler.Health)
	r.GET("/health/live", healthHandler.Live)
	r.GET("/health/ready", healthHandler.Ready)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	// service-to-service routes
	r.POST("/index", indexHandler.Index)
	r.POST("/index_chunks", indexHandler.Index)
	r.POST("/search", searchHandler.Search)
	r.POST("/ask", askHandler.Ask)

	apiV1 := r.Group("/api/v1")
	{
		auth := apiV1.Group("/auth")
		{
			auth.POST("/login", authHandler.Login)
			auth.POST("/refresh", authHandler.Refresh)
		}

		apiV1.POST("/screen", askHandler.Screen)
		apiV1.POST("/search", searchHandler.Search)
		apiV1.POST("/ask", askHandler.Ask)
		apiV1.GET("/ask/stream", askHandler.Stream)

		admin := apiV1.Group("")
		admin.Use(middleware.AuthMiddleware(d.Auth, d.AuthEnabled), middleware.RequireRole(service.RoleAdmin, d.AuthEnabled))
		{
			admin.POST("/index", indexHandler.Index)
			documents := admin.Group("/documents")
			{
				documents.POST("/upload", documentHandler.Upload)
				documents.GET("", documentHandler.List)
				documents.DELETE("/:id", documentHandler.Delete)
			}
			admin.GET("/patients/:user_id", conversationHandler.GetPatientRecord)
		}
	}
	return r
}
