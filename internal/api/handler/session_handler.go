package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cuongbtq/autoapply-be/internal/api/dto"
	"github.com/cuongbtq/autoapply-be/internal/domain"
)

// Login handles POST /api/v1/sessions/login
// Runs the interactive platform login and stores the resulting session
func (h *SessionHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	platform, ok := parsePlatform(c, req.Platform)
	if !ok {
		return
	}

	h.logger.Info("Login called",
		slog.String("user_id", req.UserID),
		slog.String("platform", platform.String()),
	)

	sess, err := h.sessions.Login(c.Request.Context(), req.UserID, platform, domain.LoginCredentials{
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		respondError(c, h.logger, "Login failed", err)
		return
	}

	c.JSON(http.StatusCreated, toSessionDTO(sess))
}

// ImportSession handles POST /api/v1/sessions
// Stores credentials captured client side. Client-side sessions never get a proxy.
func (h *SessionHandler) ImportSession(c *gin.Context) {
	var req dto.ImportSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	platform, ok := parsePlatform(c, req.Platform)
	if !ok {
		return
	}

	sess, err := h.sessions.CreateOrRefresh(c.Request.Context(), req.UserID, platform, domain.CredentialBundle{
		Cookies:   req.Cookies,
		Headers:   req.Headers,
		UserAgent: req.UserAgent,
	}, true)
	if err != nil {
		respondError(c, h.logger, "Failed to store session", err)
		return
	}

	c.JSON(http.StatusCreated, toSessionDTO(sess))
}

// GetActiveSession handles GET /api/v1/sessions/:user_id/:platform
func (h *SessionHandler) GetActiveSession(c *gin.Context) {
	platform, ok := parsePlatform(c, c.Param("platform"))
	if !ok {
		return
	}

	sess, err := h.sessions.GetActive(c.Request.Context(), c.Param("user_id"), platform)
	if err != nil {
		respondError(c, h.logger, "No active session", err)
		return
	}

	c.JSON(http.StatusOK, toSessionDTO(sess))
}

// InvalidateSession handles DELETE /api/v1/sessions/:session_id
// The row is kept as INVALID until retention cleanup removes it
func (h *SessionHandler) InvalidateSession(c *gin.Context) {
	sessionID := c.Param("session_id")
	if _, err := uuid.Parse(sessionID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "session_id must be a valid UUID",
		})
		return
	}

	if err := h.sessions.Invalidate(c.Request.Context(), sessionID, "revoked by user"); err != nil {
		respondError(c, h.logger, "Failed to invalidate session", err)
		return
	}

	c.Status(http.StatusNoContent)
}

func toSessionDTO(s *domain.Session) dto.SessionDTO {
	return dto.SessionDTO{
		SessionID:     s.ID,
		UserID:        s.UserID,
		Platform:      s.Platform.String(),
		Status:        string(s.Status),
		Proxied:       s.ProxyURL != "",
		RequestCount:  s.RequestCount,
		LastRequestAt: s.LastRequestAt,
		ExpiresAt:     s.ExpiresAt.Format(time.RFC3339),
		ErrorMessage:  s.ErrorMessage,
		CreatedAt:     s.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     s.UpdatedAt.Format(time.RFC3339),
	}
}
