package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/autoapply-be/internal/api/handler"
	"github.com/cuongbtq/autoapply-be/internal/api/router"
	"github.com/cuongbtq/autoapply-be/internal/config"
	"github.com/cuongbtq/autoapply-be/internal/engine"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, appLogger, err := engine.Bootstrap("API_SERVICE_CONFIG_PATH", "configs/api-service/config.yaml", (*config.Config).ValidateAPIConfig)
	if err != nil {
		return err
	}
	logger := appLogger.Logger

	logger.Info("Starting API service", slog.String("version", cfg.App.Version))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng, err := engine.New(ctx, cfg, logger)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      newRouter(cfg.App.Environment, eng),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", slog.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case runErr = <-serverErr:
		logger.Error("HTTP server failed", slog.String("error", runErr.Error()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", slog.String("error", err.Error()))
		runErr = errors.Join(runErr, err)
	}
	// runs triggered by this process stop at their next listing before the pool closes
	if err := eng.Close(shutdownCtx); err != nil {
		logger.Error("Failed to release resources", slog.String("error", err.Error()))
	}

	logger.Info("API service stopped")
	return runErr
}

func newRouter(environment string, eng *engine.Engine) *gin.Engine {
	if environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	return router.SetupRouter(&handler.Dependencies{
		Logger:    eng.Logger,
		Sessions:  eng.Sessions,
		Jobs:      eng.Jobs,
		AutoApply: eng.AutoApply,
		Canceller: eng.Canceller,
		History:   eng.History,
	}, eng.DB)
}
