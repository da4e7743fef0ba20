package router

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/autoapply-be/internal/api/handler"
)

// HealthChecker reports whether a backing dependency is reachable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// SetupRouter configures and returns the Gin router with all routes.
// health may be nil, in which case /health only reports liveness.
func SetupRouter(deps *handler.Dependencies, health HealthChecker) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	r.GET("/health", healthHandler(deps.Logger, health))

	sessionHandler := handler.NewSessionHandler(deps)
	jobHandler := handler.NewJobHandler(deps)
	autoApplyHandler := handler.NewAutoApplyHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		sessions := v1.Group("/sessions")
		{
			sessions.POST("/login", sessionHandler.Login)
			sessions.POST("", sessionHandler.ImportSession)
			sessions.GET("/:user_id/:platform", sessionHandler.GetActiveSession)
			sessions.DELETE("/:session_id", sessionHandler.InvalidateSession)
		}

		jobs := v1.Group("/jobs")
		{
			jobs.POST("", jobHandler.CreateJob)
			jobs.GET("/:job_id", jobHandler.GetJob)
			jobs.POST("/:job_id/retry", jobHandler.RetryJob)
		}

		autoApply := v1.Group("/autoapply/:user_id")
		{
			autoApply.POST("/run", autoApplyHandler.RunAutoApply)
			autoApply.POST("/cancel", autoApplyHandler.CancelAutoApply)
			autoApply.GET("/history", autoApplyHandler.ListHistory)
		}
	}

	return r
}

func healthHandler(logger *slog.Logger, health HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		if health != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := health.HealthCheck(ctx); err != nil {
				logger.Error("Health check failed", slog.String("error", err.Error()))
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":  "unhealthy",
					"service": "autoapply-api-service",
				})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "autoapply-api-service",
		})
	}
}
