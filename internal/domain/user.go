package domain

// SubscriptionTier of a product user
type SubscriptionTier string

const (
	TierFree       SubscriptionTier = "FREE"
	TierBasic      SubscriptionTier = "BASIC"
	TierPro        SubscriptionTier = "PRO"
	TierEnterprise SubscriptionTier = "ENTERPRISE"
)

// User is the slice of the product user record the engine needs
type User struct {
	ID               string
	SubscriptionTier SubscriptionTier
}

// DocumentType of a stored user document
type DocumentType string

const (
	DocumentResume      DocumentType = "RESUME"
	DocumentCoverLetter DocumentType = "COVER_LETTER"
)

// Document is a résumé or cover letter owned by a user
type Document struct {
	ID         string
	UserID     string
	Type       DocumentType
	Name       string
	URL        string
	Content    string
	UsageCount int
	IsDefault  bool
}
