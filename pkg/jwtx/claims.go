package jwtx

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Default token TTL constants. Short-lived access tokens limit the blast
// radius of a leak; the refresh TTL only bounds a single link in a rotation
// chain, the chain itself is bounded separately by the session ledger.
const (
	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// AccessClaims are the claims embedded in a short-lived access token.
// The jti is the handle the blacklist keys on, so it must always be set.
type AccessClaims struct {
	jwt.RegisteredClaims
}

// RefreshClaims are the claims embedded in a refresh token. The jti is the
// primary key of the corresponding ledger row; fid and rot are carried in the
// token purely as forensic hints, the ledger row is authoritative for both.
type RefreshClaims struct {
	jwt.RegisteredClaims

	// FamilyID groups the rotation chain this token belongs to.
	FamilyID string `json:"fid,omitempty"`

	// Rotation is how many times this chain has been rotated.
	Rotation int `json:"rot,omitempty"`
}

func newRegisteredClaims(issuer, subject, jti string, now time.Time, expiresAt time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   subject,
		ID:        jti,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
}
