package http

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/civicpulse/upload-service/internal/auth"
	"github.com/civicpulse/upload-service/internal/http/handler"
)

// UploadPermission is required on upload routes when auth is enabled.
const UploadPermission = "media:upload"

type RouterConfig struct {
	Limits        handler.Limits
	PublicBaseURL string
	// Verifier enables bearer auth on upload routes when set.
	Verifier *auth.Verifier
}

func NewRouter(svc handler.MediaService, cfg RouterConfig, logger *slog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(logger))

	healthHandler := handler.NewHealthHandler(svc, logger)
	uploadHandler := handler.NewUploadHandler(svc, cfg.Limits, cfg.PublicBaseURL, logger)
	fileHandler := handler.NewFileHandler(svc, logger)

	router.GET("/healthz", healthHandler.Health)

	api := router.Group("/api")

	// Stored names are unguessable; files stay public.
	api.GET("/files/:category/:filename", fileHandler.GetFile)
	api.HEAD("/files/:category/:filename", fileHandler.GetFile)

	uploadRoutes := api.Group("/upload")
	if cfg.Verifier != nil {
		uploadRoutes.Use(auth.Middleware(cfg.Verifier, logger), auth.RequirePermissions(UploadPermission))
	}
	{
		uploadRoutes.POST("", uploadHandler.Upload)
		uploadRoutes.POST("/multiple", uploadHandler.UploadMultiple)
		uploadRoutes.POST("/avatar", uploadHandler.UploadAvatar)
	}

	return router
}
