package domain

import (
	"fmt"
	"strings"
)

// Platform identifies an external job portal
type Platform string

const (
	PlatformLinkedIn Platform = "LINKEDIN"
	PlatformInfoJobs Platform = "INFOJOBS"
	PlatformCatho    Platform = "CATHO"
	PlatformIndeed   Platform = "INDEED"
)

// AllPlatforms lists every supported platform in a stable order
var AllPlatforms = []Platform{
	PlatformLinkedIn,
	PlatformInfoJobs,
	PlatformCatho,
	PlatformIndeed,
}

// ParsePlatform converts a raw (case-insensitive) string to a Platform
func ParsePlatform(s string) (Platform, error) {
	p := Platform(strings.ToUpper(strings.TrimSpace(s)))
	switch p {
	case PlatformLinkedIn, PlatformInfoJobs, PlatformCatho, PlatformIndeed:
		return p, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPlatform, s)
}

func (p Platform) String() string { return string(p) }
