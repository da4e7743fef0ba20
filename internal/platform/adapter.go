// Package platform defines the uniform contract every job portal adapter implements
// and the HTTP plumbing they share.
package platform

import (
	"context"
	"fmt"

	"github.com/cuongbtq/autoapply-be/internal/domain"
)

// Adapter drives one job portal. Implementations are stateless: every call
// receives the session to act with.
type Adapter interface {
	Platform() domain.Platform

	// Login performs the interactive authentication flow. Wrong credentials or an
	// unresolved challenge are reported as a LOGIN_FAILED PlatformError.
	Login(ctx context.Context, creds domain.LoginCredentials, userID string) (*domain.CredentialBundle, error)

	Search(ctx context.Context, sess *domain.Session, action domain.SearchAction) ([]domain.Listing, error)
	GetDetails(ctx context.Context, sess *domain.Session, listingID string) (*domain.Listing, error)

	// Apply returns an APPLY_NOT_SUPPORTED PlatformError when the listing cannot be applied to in-site.
	Apply(ctx context.Context, sess *domain.Session, action domain.ApplyAction) (*domain.ApplyResult, error)

	// BuildSearch translates platform-neutral criteria into this platform's query vocabulary.
	BuildSearch(criteria domain.SearchCriteria) domain.SearchAction

	// CanonicalJobType maps a raw employment type reported by the platform.
	CanonicalJobType(raw string) domain.JobType

	// RequiresDirectApply reports whether auto-apply is only possible on listings with a direct-apply mechanism.
	RequiresDirectApply() bool
}

// SearchResult is the job result of a search action
type SearchResult struct {
	Listings []domain.Listing `json:"listings"`
}

// Execute runs an action against the adapter and returns its JSON-encodable result
func Execute(ctx context.Context, a Adapter, sess *domain.Session, action domain.Action) (any, error) {
	switch act := action.(type) {
	case domain.SearchAction:
		listings, err := a.Search(ctx, sess, act)
		if err != nil {
			return nil, err
		}
		return SearchResult{Listings: listings}, nil
	case domain.DetailAction:
		return a.GetDetails(ctx, sess, act.ListingID)
	case domain.ApplyAction:
		return a.Apply(ctx, sess, act)
	default:
		return nil, fmt.Errorf("%w: unsupported action %T", domain.ErrInvalidPayload, action)
	}
}
