package handler

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/autoapply-be/internal/domain"
)

func TestHistoryCursor(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 30, 0, 123456789, time.UTC)
	encoded := EncodeHistoryCursor(&domain.PageCursor{CreatedAt: at, ID: "entry-7"})

	got, err := DecodeHistoryCursor(encoded)
	require.NoError(t, err)
	assert.True(t, at.Equal(got.CreatedAt))
	assert.Equal(t, "entry-7", got.ID)

	first, err := DecodeHistoryCursor("")
	require.NoError(t, err)
	assert.Nil(t, first)

	tests := []struct {
		name string
		raw  string
	}{
		{"not base64", "***"},
		{"no separator", base64.URLEncoding.EncodeToString([]byte("12345"))},
		{"empty id", base64.URLEncoding.EncodeToString([]byte("12345|"))},
		{"bad timestamp", base64.URLEncoding.EncodeToString([]byte("yesterday|entry-1"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeHistoryCursor(tt.raw)
			assert.ErrorIs(t, err, errInvalidCursor)
		})
	}
}
