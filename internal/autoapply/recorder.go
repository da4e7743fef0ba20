package autoapply

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/autoapply-be/internal/domain"
	"github.com/google/uuid"
)

type HistoryRepository interface {
	Append(ctx context.Context, entry *domain.HistoryEntry) error
}

// Publisher fans history entries out to other services
type Publisher interface {
	PublishHistory(ctx context.Context, entry *domain.HistoryEntry) error
}

// Recorder persists history entries and then publishes them.
// A publish failure is logged and never fails the record.
type Recorder struct {
	repo      HistoryRepository
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewRecorder creates a recorder. publisher may be nil.
func NewRecorder(repo HistoryRepository, publisher Publisher, logger *slog.Logger) *Recorder {
	return &Recorder{repo: repo, publisher: publisher, logger: logger, now: time.Now}
}

func (r *Recorder) Record(ctx context.Context, entry *domain.HistoryEntry) error {
	// the decision already happened, persist it even if the run is being torn down
	ctx = context.WithoutCancel(ctx)

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.now().UTC()
	}

	if err := r.repo.Append(ctx, entry); err != nil {
		return fmt.Errorf("failed to append history entry: %w", err)
	}

	r.logger.Info("Auto-apply decision recorded",
		slog.String("user_id", entry.UserID),
		slog.String("platform", entry.Platform.String()),
		slog.String("listing_id", entry.ListingID),
		slog.String("status", string(entry.Status)),
		slog.String("reason", string(entry.Reason)),
	)

	if r.publisher != nil {
		if err := r.publisher.PublishHistory(ctx, entry); err != nil {
			r.logger.Warn("Failed to publish history entry",
				slog.String("entry_id", entry.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}
