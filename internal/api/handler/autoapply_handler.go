package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/autoapply-be/internal/api/dto"
	"github.com/cuongbtq/autoapply-be/internal/autoapply"
	"github.com/cuongbtq/autoapply-be/internal/domain"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// RunAutoApply handles POST /api/v1/autoapply/:user_id/run
// Starts a background run and answers 202 without waiting for it
func (h *AutoApplyHandler) RunAutoApply(c *gin.Context) {
	userID := c.Param("user_id")

	h.logger.Info("RunAutoApply called", slog.String("user_id", userID))

	if err := h.runner.Trigger(c.Request.Context(), userID); err != nil {
		if errors.Is(err, autoapply.ErrRunInProgress) {
			c.JSON(http.StatusConflict, gin.H{
				"error": "Auto-apply run already in progress",
			})
			return
		}
		if errors.Is(err, autoapply.ErrShuttingDown) {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error": "Auto-apply is shutting down",
			})
			return
		}
		respondError(c, h.logger, "Failed to start auto-apply run", err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"user_id": userID,
		"status":  "started",
	})
}

// CancelAutoApply handles POST /api/v1/autoapply/:user_id/cancel
// The run stops before its next listing
func (h *AutoApplyHandler) CancelAutoApply(c *gin.Context) {
	userID := c.Param("user_id")

	if err := h.canceller.Cancel(c.Request.Context(), userID); err != nil {
		respondError(c, h.logger, "Failed to cancel auto-apply run", err)
		return
	}

	h.logger.Info("Auto-apply cancel requested", slog.String("user_id", userID))
	c.JSON(http.StatusAccepted, gin.H{
		"user_id": userID,
		"status":  "cancelling",
	})
}

// ListHistory handles GET /api/v1/autoapply/:user_id/history
// Lists decisions newest first with cursor pagination
func (h *AutoApplyHandler) ListHistory(c *gin.Context) {
	userID := c.Param("user_id")

	var req dto.ListHistoryRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = defaultPageSize
	}
	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}

	cursor, err := DecodeHistoryCursor(req.Cursor)
	if err != nil {
		h.logger.Error("Invalid cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	// one extra row tells whether another page exists
	entries, err := h.history.ListByUser(c.Request.Context(), userID, cursor, req.PageSize+1)
	if err != nil {
		respondError(c, h.logger, "Failed to list history", err)
		return
	}

	hasMore := len(entries) > req.PageSize
	if hasMore {
		entries = entries[:req.PageSize]
	}

	resp := dto.ListHistoryResponse{Entries: make([]dto.HistoryEntryDTO, len(entries))}
	for i, e := range entries {
		resp.Entries[i] = dto.HistoryEntryDTO{
			ID:         e.ID,
			UserID:     e.UserID,
			JobID:      e.JobID,
			Platform:   e.Platform.String(),
			ListingID:  e.ListingID,
			Status:     string(e.Status),
			Reason:     string(e.Reason),
			Message:    e.Message,
			MatchScore: e.MatchScore,
			CreatedAt:  e.CreatedAt.Format(time.RFC3339Nano),
		}
	}

	if hasMore {
		last := entries[len(entries)-1]
		resp.NextCursor = EncodeHistoryCursor(&domain.PageCursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}

	c.JSON(http.StatusOK, resp)
}
