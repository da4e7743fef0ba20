// Package memory holds mutex-guarded in-process repositories.
// They back the service tests and single-process local runs.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/cuongbtq/autoapply-be/internal/domain"
)

// JobStore is an in-memory scraper job repository
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*domain.ScraperJob
}

func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]*domain.ScraperJob)}
}

func cloneJob(j *domain.ScraperJob) *domain.ScraperJob {
	c := *j
	return &c
}

func (s *JobStore) Create(ctx context.Context, job *domain.ScraperJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

func (s *JobStore) Get(ctx context.Context, id string) (*domain.ScraperJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return cloneJob(job), nil
}

func (s *JobStore) ListClaimable(ctx context.Context, now time.Time, maxRetries, limit int) ([]*domain.ScraperJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.ScraperJob
	for _, job := range s.jobs {
		if job.IsClaimable(now, maxRetries) {
			out = append(out, cloneJob(job))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *JobStore) MarkProcessing(ctx context.Context, id string, now time.Time, maxRetries int) (*domain.ScraperJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	// a failed job waits for its backoff; Retry resets it to PENDING to skip the wait
	if !job.IsClaimable(now, maxRetries) {
		return nil, domain.ErrJobAlreadyClaimed
	}
	job.Status = domain.JobStatusProcessing
	job.StartedAt = &now
	job.LastHeartbeatAt = &now
	job.NextRetryAt = nil
	job.UpdatedAt = now
	return cloneJob(job), nil
}

func (s *JobStore) MarkCompleted(ctx context.Context, id string, result json.RawMessage, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return domain.ErrJobNotFound
	}
	if job.Status != domain.JobStatusProcessing {
		return domain.ErrJobAlreadyClaimed
	}
	job.Status = domain.JobStatusCompleted
	job.Result = result
	job.ErrorMessage = ""
	job.CompletedAt = &now
	job.UpdatedAt = now
	return nil
}

func (s *JobStore) MarkFailed(ctx context.Context, id string, expected domain.JobStatus, expectedRetry int, f domain.JobFailure) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return domain.ErrJobNotFound
	}
	if job.Status != expected || job.RetryCount != expectedRetry {
		return domain.ErrJobAlreadyClaimed
	}
	job.Status = domain.JobStatusFailed
	job.RetryCount = f.RetryCount
	job.NextRetryAt = f.NextRetryAt
	job.ErrorMessage = f.Message
	job.Result = nil
	job.CompletedAt = &f.FailedAt
	job.UpdatedAt = f.FailedAt
	return nil
}

func (s *JobStore) ResetToPending(ctx context.Context, id string, now time.Time) (*domain.ScraperJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	if job.Status != domain.JobStatusFailed {
		return nil, domain.ErrJobNotFailed
	}
	job.Status = domain.JobStatusPending
	job.NextRetryAt = nil
	job.ErrorMessage = ""
	job.StartedAt = nil
	job.CompletedAt = nil
	job.UpdatedAt = now
	return cloneJob(job), nil
}

func (s *JobStore) Heartbeat(ctx context.Context, id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return domain.ErrJobNotFound
	}
	if job.Status == domain.JobStatusProcessing {
		job.LastHeartbeatAt = &now
	}
	return nil
}

func (s *JobStore) ListStaleProcessing(ctx context.Context, before time.Time) ([]*domain.ScraperJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.ScraperJob
	for _, job := range s.jobs {
		if job.Status != domain.JobStatusProcessing {
			continue
		}
		seen := job.UpdatedAt
		if job.LastHeartbeatAt != nil {
			seen = *job.LastHeartbeatAt
		}
		if seen.Before(before) {
			out = append(out, cloneJob(job))
		}
	}
	return out, nil
}

func (s *JobStore) DeleteCompletedBefore(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, job := range s.jobs {
		if job.Status == domain.JobStatusCompleted && job.CreatedAt.Before(before) {
			delete(s.jobs, id)
			deleted++
		}
	}
	return deleted, nil
}

// All returns every job ordered by creation time
func (s *JobStore) All() []*domain.ScraperJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.ScraperJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, cloneJob(j))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
