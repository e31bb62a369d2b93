package service

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCredentials deliberately covers both unknown email and wrong
	// password so responses never reveal whether an account exists.
	ErrInvalidCredentials = errors.New("invalid_credentials")

	// ErrEmailNotVerified gates login below everything else.
	ErrEmailNotVerified = errors.New("email_not_verified")

	// ErrInvalidToken covers refresh tokens that are unknown, expired or
	// fail verification. The caller must require full re-authentication.
	ErrInvalidToken = errors.New("invalid_token")

	// ErrReplayDetected reports a refresh token presented after it was
	// already rotated. The whole family has been revoked by the time the
	// caller sees this.
	ErrReplayDetected = errors.New("token_replay_detected")

	// ErrSessionExpired reports a family past its absolute age or rotation
	// ceiling. Silent refresh cannot extend a session forever.
	ErrSessionExpired = errors.New("session_expired")

	// ErrInvalidTwoFactorCode covers a wrong TOTP code or a missing/expired
	// pending challenge.
	ErrInvalidTwoFactorCode = errors.New("invalid_two_factor_code")

	// ErrTooManyAttempts reports an exhausted 2FA challenge.
	ErrTooManyAttempts = errors.New("too_many_attempts")

	// ErrNotFound is returned for session/user lookups, including sessions
	// that exist but belong to someone else.
	ErrNotFound = errors.New("not_found")

	// ErrPasswordReused rejects a new password matching the current hash or
	// any history entry.
	ErrPasswordReused = errors.New("password_recently_used")
)

// AccountLockedError carries the lockout details the user needs to act on.
// Lockout is one of the few deliberately specific login failures: the caller
// already knows the account exists once it is locked.
type AccountLockedError struct {
	Until               time.Time
	Remaining           time.Duration
	RequiresAdminUnlock bool
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account_locked: %s remaining", e.Remaining.Round(time.Second))
}
