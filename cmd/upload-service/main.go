package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/civicpulse/upload-service/internal/auth"
	"github.com/civicpulse/upload-service/internal/config"
	httpapi "github.com/civicpulse/upload-service/internal/http"
	"github.com/civicpulse/upload-service/internal/http/handler"
	"github.com/civicpulse/upload-service/internal/ingest"
	"github.com/civicpulse/upload-service/internal/log"
	"github.com/civicpulse/upload-service/internal/sniff"
	"github.com/civicpulse/upload-service/internal/storage/local"
	"github.com/civicpulse/upload-service/internal/transcode"
	"github.com/civicpulse/upload-service/internal/validation"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := log.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	store, err := local.NewLocalStorage(cfg.Upload.Root, logger)
	if err != nil {
		logger.Error("Failed to initialize storage", "root", cfg.Upload.Root, "error", err)
		os.Exit(1)
	}

	sniffer, err := sniff.New(cfg.SniffBackend)
	if err != nil {
		logger.Error("Failed to initialize sniffer", "error", err)
		os.Exit(1)
	}

	var transcoder transcode.Transcoder
	if cfg.Transcode.Enabled {
		t, err := transcode.New(cfg.TranscodeOptions())
		if err != nil {
			logger.Error("Failed to initialize transcoder", "error", err)
			os.Exit(1)
		}
		transcoder = t
	}

	policy := cfg.Policy()
	svc := ingest.NewService(validation.NewGate(sniffer, policy), transcoder, store, logger)

	routerCfg := httpapi.RouterConfig{
		Limits: handler.Limits{
			MaxFileSize: policy.MaxUploadSize(),
			MaxFiles:    cfg.Upload.MaxFiles,
		},
		PublicBaseURL: cfg.PublicBaseURL,
	}
	if cfg.Auth.Enabled {
		jwksClient := auth.NewJWKSClient(cfg.Auth.JWKSUrl, cfg.Auth.JWKSCacheTTL)
		routerCfg.Verifier = auth.NewVerifier(jwksClient, auth.Config{
			Issuer:   cfg.Auth.Issuer,
			Audience: cfg.Auth.Audience,
		})
	}

	router := httpapi.NewRouter(svc, routerCfg, logger)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting upload service",
			"addr", cfg.HTTPAddr,
			"root", cfg.Upload.Root,
			"sniffer", cfg.SniffBackend,
			"transcode", cfg.Transcode.Enabled,
			"auth", cfg.Auth.Enabled,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("Server exited")
}
