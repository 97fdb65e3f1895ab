package http

import (
	"github.com/gin-gonic/gin"

	"hrassist/internal/bootstrap"
	"hrassist/internal/transport/http/handler"
	"hrassist/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	chatHandler := handler.NewChatHandler(app.ChatService)
	documentHandler := handler.NewDocumentHandler(app.DocumentService)
	adminHandler := handler.NewAdminHandler(app.IndexManager)

	v1 := router.Group("/api/v1")
	v1.Use(middleware.AuthJWT(app.Config.Auth.JWTSecret))

	chatGroup := v1.Group("/chat")
	chatGroup.POST("/ask", chatHandler.Ask)
	chatGroup.POST("/ask/stream", chatHandler.AskStream)
	chatGroup.POST("/sessions", chatHandler.CreateSession)
	chatGroup.GET("/sessions", chatHandler.ListSessions)
	chatGroup.DELETE("/sessions/:id", chatHandler.DeleteSession)
	chatGroup.POST("/sessions/:id/messages", chatHandler.SessionAsk)
	chatGroup.POST("/sessions/:id/messages/stream", chatHandler.SessionAskStream)
	chatGroup.GET("/history", chatHandler.GetHistory)

	docGroup := v1.Group("/documents")
	docGroup.POST("", documentHandler.Create)
	docGroup.POST("/upload", documentHandler.UploadPDF)
	docGroup.GET("", documentHandler.List)
	docGroup.DELETE("/:id", documentHandler.Delete)
	docGroup.POST("/:id/reindex", documentHandler.Reindex)

	adminGroup := v1.Group("/admin")
	adminGroup.GET("/index/stats", adminHandler.IndexStats)
	adminGroup.POST("/index/reset", adminHandler.ResetIndex)

	return router
}
