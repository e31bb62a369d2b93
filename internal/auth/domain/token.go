package domain

import "time"

// TokenPair is what a completed authentication returns: the short-lived
// access token (JWT) and the signed refresh token destined for the cookie.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// RefreshToken models a stored refresh-token ledger row. Rows are keyed by
// jti and linked into a family: the chain of tokens minted by successive
// rotations from one login. A row is mutated only to flip Revoked.
type RefreshToken struct {
	JTI      string
	UserID   string
	FamilyID string
	// ParentJTI links to the predecessor in the rotation chain; empty for
	// the first token of a family.
	ParentJTI       string
	RotationCounter int
	Revoked         bool
	ExpiresAt       time.Time
	// FamilyCreatedAt is inherited unchanged through rotations and bounds
	// the absolute age of the whole session.
	FamilyCreatedAt time.Time

	// Forensic metadata, recorded but not security-enforced.
	UserAgent string
	IPAddress string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// BlacklistedToken is an access-token jti rejected before its natural expiry.
// Entries self-expire with the token they shadow, so the table stays small.
type BlacklistedToken struct {
	JTI       string
	Reason    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Session is the device-management view over a live refresh-token row.
type Session struct {
	JTI             string    `json:"id"`
	FamilyID        string    `json:"familyId"`
	RotationCounter int       `json:"rotationCounter"`
	UserAgent       string    `json:"userAgent,omitempty"`
	IPAddress       string    `json:"ipAddress,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	ExpiresAt       time.Time `json:"expiresAt"`
	FamilyCreatedAt time.Time `json:"signedInAt"`
}

// ClientMeta carries per-request forensic context into the ledger.
type ClientMeta struct {
	UserAgent string
	IPAddress string
}
