package platform

import (
	"strings"
	"time"

	"github.com/cuongbtq/autoapply-be/internal/domain"
)

// OrUnknown substitutes the unknown placeholder for an empty parsed field
func OrUnknown(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return domain.UnknownField
	}
	return s
}

// MillisToTime converts an epoch-millisecond timestamp, nil when unset
func MillisToTime(ms int64) *time.Time {
	if ms <= 0 {
		return nil
	}
	t := time.UnixMilli(ms).UTC()
	return &t
}

// NormalizeToken upper-cases a raw enum value and unifies separators
func NormalizeToken(raw string) string {
	r := strings.NewReplacer("-", "_", " ", "_")
	return r.Replace(strings.ToUpper(strings.TrimSpace(raw)))
}

// PageLimit applies the adapter default when a search has no limit
func PageLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	return limit
}
