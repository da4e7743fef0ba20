package autoapply

import (
	"context"
	"errors"
	"time"

	"github.com/cuongbtq/autoapply-be/internal/cache"
)

const cancelKeyPrefix = "autoapply:cancel:"

// Canceller flags runs to stop between listings. The flag lives in the shared
// cache so a cancel request reaches runs on any instance.
type Canceller struct {
	cache cache.Cache
	ttl   time.Duration
}

func NewCanceller(c cache.Cache, ttl time.Duration) *Canceller {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Canceller{cache: c, ttl: ttl}
}

func (c *Canceller) Cancel(ctx context.Context, userID string) error {
	return c.cache.Set(ctx, cancelKeyPrefix+userID, []byte("1"), c.ttl)
}

func (c *Canceller) Clear(ctx context.Context, userID string) error {
	return c.cache.Delete(ctx, cancelKeyPrefix+userID)
}

// Cancelled reports whether a cancel was requested. Cache errors read as not cancelled.
func (c *Canceller) Cancelled(ctx context.Context, userID string) (bool, error) {
	_, err := c.cache.Get(ctx, cancelKeyPrefix+userID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, cache.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}
