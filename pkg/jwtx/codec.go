package jwtx

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformed   = errors.New("jwtx: malformed token")
	ErrAlgMismatch = errors.New("jwtx: algorithm mismatch")
	ErrInvalidSig  = errors.New("jwtx: invalid signature")
	ErrExpired     = errors.New("jwtx: token expired")
	ErrNotYetValid = errors.New("jwtx: token not yet valid")
	ErrIssuer      = errors.New("jwtx: issuer mismatch")
)

// Codec signs and verifies both token classes with HS256. Access and refresh
// tokens use independent secrets so a leaked access secret cannot be used to
// mint refresh tokens.
type Codec struct {
	AccessSecret  []byte
	RefreshSecret []byte
	Issuer        string
}

// SignAccess produces a signed access token for the given subject and jti.
func (c *Codec) SignAccess(subject, jti string, ttl time.Duration, now time.Time) (string, time.Time, error) {
	expiresAt := now.Add(ttl)
	claims := AccessClaims{
		RegisteredClaims: newRegisteredClaims(c.Issuer, subject, jti, now, expiresAt),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.AccessSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// VerifyAccess parses and validates an access token, returning its claims.
func (c *Codec) VerifyAccess(token string) (AccessClaims, error) {
	var claims AccessClaims
	if err := c.verify(token, &claims, c.AccessSecret); err != nil {
		return AccessClaims{}, err
	}
	return claims, nil
}

// SignRefresh produces a signed refresh token. The jti must match the ledger
// row persisted alongside it.
func (c *Codec) SignRefresh(subject, jti, familyID string, rotation int, expiresAt, now time.Time) (string, error) {
	claims := RefreshClaims{
		RegisteredClaims: newRegisteredClaims(c.Issuer, subject, jti, now, expiresAt),
		FamilyID:         familyID,
		Rotation:         rotation,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.RefreshSecret)
}

// VerifyRefresh parses and validates a refresh token, returning its claims.
func (c *Codec) VerifyRefresh(token string) (RefreshClaims, error) {
	var claims RefreshClaims
	if err := c.verify(token, &claims, c.RefreshSecret); err != nil {
		return RefreshClaims{}, err
	}
	return claims, nil
}

func (c *Codec) verify(token string, claims jwt.Claims, secret []byte) error {
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrAlgMismatch
		}
		return secret, nil
	}, jwt.WithIssuer(c.Issuer), jwt.WithIssuedAt())
	if err != nil {
		return mapJWTError(err)
	}
	if !parsed.Valid {
		return ErrMalformed
	}
	return nil
}

func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return ErrNotYetValid
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return ErrIssuer
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrInvalidSig
	case errors.Is(err, ErrAlgMismatch):
		return ErrAlgMismatch
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformed
	default:
		return ErrMalformed
	}
}
