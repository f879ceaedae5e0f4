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

	"github.com/engelke/fashion-hack-2024/internal/api"
	"github.com/engelke/fashion-hack-2024/internal/app"
	"github.com/engelke/fashion-hack-2024/internal/config"
	"github.com/engelke/fashion-hack-2024/internal/logger"
)

func main() {
	logCfg := logger.LoadFromEnv()
	logCfg.ServiceName = "fashion-hack-api"
	log := logger.New(logCfg)
	logger.SetDefaultLogger(log)
	defer logger.Sync()

	// CONFIG_PATH selects the config file in deployments
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.WithError(err).Fatal("Failed to load config")
	}

	ctx := context.Background()
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize application")
	}
	defer a.Close()

	router := api.SetupRouter(&api.Services{
		Ingest:          a.Ingest,
		Search:          a.Search,
		Outfit:          a.Outfit,
		AnalysisEnabled: a.AnalysisEnabled,
	}, api.RouterConfig{
		Mode:           cfg.Server.Mode,
		CORS:           cfg.Server.CORS,
		MaxUploadBytes: cfg.Ingest.MaxUploadBytes,
	}, log)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithFields(logger.Fields{
			"port":     cfg.Server.Port,
			"mode":     cfg.Server.Mode,
			"storage":  cfg.Storage.Type,
			"database": cfg.Database.Driver,
			"analysis": a.AnalysisEnabled,
			"search":   a.Search.SearchEnabled(),
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}

	log.Info("Server exited")
}
