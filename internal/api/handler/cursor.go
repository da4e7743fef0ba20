package handler

import (
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/cuongbtq/autoapply-be/internal/domain"
)

var errInvalidCursor = errors.New("invalid cursor")

// DecodeHistoryCursor parses an opaque "unix_nanos|entry_id" cursor.
// An empty string means the first page.
func DecodeHistoryCursor(raw string) (*domain.PageCursor, error) {
	if raw == "" {
		return nil, nil
	}

	decoded, err := base64.URLEncoding.DecodeString(raw)
	if err != nil {
		return nil, errInvalidCursor
	}

	nanos, id, ok := strings.Cut(string(decoded), "|")
	if !ok || id == "" {
		return nil, errInvalidCursor
	}
	n, err := strconv.ParseInt(nanos, 10, 64)
	if err != nil {
		return nil, errInvalidCursor
	}

	return &domain.PageCursor{CreatedAt: time.Unix(0, n).UTC(), ID: id}, nil
}

// EncodeHistoryCursor is the inverse of DecodeHistoryCursor
func EncodeHistoryCursor(c *domain.PageCursor) string {
	raw := strconv.FormatInt(c.CreatedAt.UnixNano(), 10) + "|" + c.ID
	return base64.URLEncoding.EncodeToString([]byte(raw))
}
