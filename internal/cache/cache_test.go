package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemory()
	m.now = func() time.Time { return now }

	_, err := m.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.Set(ctx, "forever", []byte("a"), 0))
	require.NoError(t, m.Set(ctx, "short", []byte("b"), time.Minute))

	val, err := m.Get(ctx, "short")
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), val)

	now = now.Add(time.Minute)
	_, err = m.Get(ctx, "short")
	assert.ErrorIs(t, err, ErrNotFound)

	val, err = m.Get(ctx, "forever")
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), val)

	require.NoError(t, m.Delete(ctx, "forever"))
	_, err = m.Get(ctx, "forever")
	assert.ErrorIs(t, err, ErrNotFound)
}
