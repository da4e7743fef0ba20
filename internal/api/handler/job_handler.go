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

// CreateJob handles POST /api/v1/jobs
// Records an interactive search, detail or apply request for the worker
func (h *JobHandler) CreateJob(c *gin.Context) {
	h.logger.Info("CreateJob called",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
	)

	var req dto.CreateJobRequest
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

	action, err := domain.DecodeAction(req.Action)
	if err != nil {
		respondError(c, h.logger, "Invalid action", err)
		return
	}

	job, err := h.jobs.Enqueue(c.Request.Context(), req.UserID, platform, action, false)
	if err != nil {
		respondError(c, h.logger, "Failed to create job", err)
		return
	}

	c.JSON(http.StatusCreated, toJobDTO(job))
}

// GetJob handles GET /api/v1/jobs/:job_id
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID, ok := h.jobID(c)
	if !ok {
		return
	}

	job, err := h.jobs.Get(c.Request.Context(), jobID)
	if err != nil {
		respondError(c, h.logger, "Failed to get job", err)
		return
	}

	c.JSON(http.StatusOK, toJobDTO(job))
}

// RetryJob handles POST /api/v1/jobs/:job_id/retry
// Resets a FAILED job to PENDING regardless of its backoff timer
func (h *JobHandler) RetryJob(c *gin.Context) {
	jobID, ok := h.jobID(c)
	if !ok {
		return
	}

	h.logger.Info("RetryJob called", slog.String("job_id", jobID))

	job, err := h.jobs.Retry(c.Request.Context(), jobID)
	if err != nil {
		respondError(c, h.logger, "Failed to retry job", err)
		return
	}

	c.JSON(http.StatusOK, toJobDTO(job))
}

func (h *JobHandler) jobID(c *gin.Context) (string, bool) {
	jobID := c.Param("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		h.logger.Error("Invalid job_id format", slog.String("job_id", jobID), slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return "", false
	}
	return jobID, true
}

func toJobDTO(job *domain.ScraperJob) dto.JobDTO {
	return dto.JobDTO{
		JobID:        job.ID,
		UserID:       job.UserID,
		Platform:     job.Platform.String(),
		IsAutoApply:  job.IsAutoApply,
		Status:       string(job.Status),
		RetryCount:   job.RetryCount,
		NextRetryAt:  job.NextRetryAt,
		Parameters:   job.Parameters,
		Result:       job.Result,
		ErrorMessage: job.ErrorMessage,
		CreatedAt:    job.CreatedAt.Format(time.RFC3339),
		StartedAt:    job.StartedAt,
		CompletedAt:  job.CompletedAt,
	}
}
