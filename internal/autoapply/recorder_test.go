package autoapply

import (
	"context"
	"errors"
	"testing"

	"github.com/cuongbtq/autoapply-be/internal/domain"
	"github.com/cuongbtq/autoapply-be/internal/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingPublisher struct{ calls int }

func (p *failingPublisher) PublishHistory(ctx context.Context, entry *domain.HistoryEntry) error {
	p.calls++
	return errors.New("nats: no servers available")
}

func TestRecorder_PublishFailureIsNotFatal(t *testing.T) {
	history := memory.NewHistoryStore()
	pub := &failingPublisher{}
	rec := NewRecorder(history, pub, discard)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	entry := &domain.HistoryEntry{UserID: "user-1", Status: domain.HistorySkipped, Reason: domain.ReasonLowMatch}
	require.NoError(t, rec.Record(ctx, entry))

	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.CreatedAt.IsZero())
	assert.Equal(t, 1, pub.calls)
	assert.Len(t, history.Entries(), 1)
}
