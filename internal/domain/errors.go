package domain

import (
	"errors"
	"fmt"
	"net/http"

	goerrors "github.com/go-errors/errors"
)

var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrJobNotFound       = errors.New("job not found")
	ErrJobAlreadyClaimed = errors.New("job already claimed by another worker")
	ErrJobNotFailed      = errors.New("job is not in FAILED status")
	ErrInvalidPayload    = errors.New("invalid job payload")
	ErrConfigNotFound    = errors.New("auto-apply config not found")
	ErrUserNotFound      = errors.New("user not found")
	ErrDocumentNotFound  = errors.New("document not found")
	ErrUnknownPlatform   = errors.New("unknown platform")
	ErrNoAdapter         = errors.New("no adapter registered for platform")
)

// ErrorKind classifies failures reported by platform adapters
type ErrorKind string

const (
	KindLoginFailed       ErrorKind = "LOGIN_FAILED"
	KindSessionInvalid    ErrorKind = "SESSION_INVALID"
	KindRateLimited       ErrorKind = "RATE_LIMITED"
	KindApplyNotSupported ErrorKind = "APPLY_NOT_SUPPORTED"
	KindParse             ErrorKind = "PARSE"
	KindTransient         ErrorKind = "TRANSIENT"
	KindRejected          ErrorKind = "REQUEST_REJECTED"
)

// PlatformError is returned by adapters for every site-level failure
type PlatformError struct {
	Kind       ErrorKind
	Platform   Platform
	Message    string
	StatusCode int
	Err        error
	Stack      string
}

func (e *PlatformError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %s: %v", e.Platform, e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s %s: %s", e.Platform, e.Kind, e.Message)
}

func (e *PlatformError) Unwrap() error {
	return e.Err
}

// Retryable reports whether backoff may help
func (e *PlatformError) Retryable() bool {
	switch e.Kind {
	case KindRateLimited, KindParse, KindTransient:
		return true
	case KindLoginFailed, KindSessionInvalid, KindApplyNotSupported, KindRejected:
		return false
	default:
		return false
	}
}

func newPlatformError(kind ErrorKind, platform Platform, message string, err error) *PlatformError {
	return &PlatformError{
		Kind:     kind,
		Platform: platform,
		Message:  message,
		Err:      err,
		Stack:    string(goerrors.Wrap(fmt.Errorf("%s", message), 2).Stack()),
	}
}

func LoginFailed(platform Platform, message string, err error) *PlatformError {
	return newPlatformError(KindLoginFailed, platform, message, err)
}

func SessionInvalid(platform Platform, status int) *PlatformError {
	e := newPlatformError(KindSessionInvalid, platform, "session rejected by platform", nil)
	e.StatusCode = status
	return e
}

func RateLimited(platform Platform) *PlatformError {
	e := newPlatformError(KindRateLimited, platform, "platform rate limit hit", nil)
	e.StatusCode = http.StatusTooManyRequests
	return e
}

func ApplyNotSupported(platform Platform, listingID string) *PlatformError {
	return newPlatformError(KindApplyNotSupported, platform, fmt.Sprintf("listing %s has no direct apply", listingID), nil)
}

func ParseError(platform Platform, message string, err error) *PlatformError {
	return newPlatformError(KindParse, platform, message, err)
}

func TransientError(platform Platform, message string, err error) *PlatformError {
	return newPlatformError(KindTransient, platform, message, err)
}

func RequestRejected(platform Platform, status int, message string) *PlatformError {
	e := newPlatformError(KindRejected, platform, message, nil)
	e.StatusCode = status
	return e
}

// IsKind reports whether err carries a PlatformError of the given kind
func IsKind(err error, kind ErrorKind) bool {
	var pe *PlatformError
	if errors.As(err, &pe) {
		return pe.Kind == kind
	}
	return false
}

// IsRetryable decides whether a failed job should go through backoff or become terminal
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrInvalidPayload) || errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrUnknownPlatform) || errors.Is(err, ErrNoAdapter) {
		return false
	}
	var pe *PlatformError
	if errors.As(err, &pe) {
		return pe.Retryable()
	}
	return true
}
