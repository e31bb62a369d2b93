package domain

import "time"

// MaxTwoFactorAttempts caps code guesses against one pending challenge.
const MaxTwoFactorAttempts = 5

// TwoFactorChallenge marks a login that passed the password check on an
// account with 2FA enabled and is now waiting for the second factor. One
// pending challenge per user; token issuance is deferred until it completes.
type TwoFactorChallenge struct {
	UserID    string
	Attempts  int
	ExpiresAt time.Time
	CreatedAt time.Time
}
