package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/autoapply-be/internal/domain"
)

// respondError maps engine errors onto HTTP statuses. Unknown errors are logged and reported as 500.
func respondError(c *gin.Context, logger *slog.Logger, msg string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrJobNotFound),
		errors.Is(err, domain.ErrConfigNotFound),
		errors.Is(err, domain.ErrUserNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrJobNotFailed), errors.Is(err, domain.ErrJobAlreadyClaimed):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrInvalidPayload),
		errors.Is(err, domain.ErrUnknownPlatform),
		errors.Is(err, domain.ErrNoAdapter):
		status = http.StatusBadRequest
	case domain.IsKind(err, domain.KindLoginFailed):
		status = http.StatusUnauthorized
	}

	if status == http.StatusInternalServerError {
		logger.Error(msg, slog.String("error", err.Error()))
		c.JSON(status, gin.H{"error": msg})
		return
	}

	logger.Warn(msg, slog.Int("status", status), slog.String("error", err.Error()))
	c.JSON(status, gin.H{
		"error":   msg,
		"details": err.Error(),
	})
}

func parsePlatform(c *gin.Context, raw string) (domain.Platform, bool) {
	p, err := domain.ParsePlatform(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "platform must be one of LINKEDIN, INFOJOBS, CATHO, INDEED",
		})
		return "", false
	}
	return p, true
}
