package domain

import "time"

// PasswordHistorySize bounds how many previous hashes are kept per user.
// A new password must not match any entry.
const PasswordHistorySize = 5

// User is the credential record for a journal account. The session subsystem
// owns the lockout counters and reads the credential fields; profile data
// lives elsewhere.
type User struct {
	ID    string
	Email string

	PasswordHash    string   // argon2id encoded
	PasswordHistory []string // previous hashes, most recent first, capped at PasswordHistorySize

	// IsVerified gates login entirely: an unverified account cannot
	// authenticate regardless of lockout state.
	IsVerified bool

	TwoFactorEnabled bool
	TwoFactorSecret  *string // TOTP secret (nullable, base32 encoded)

	FailedLoginAttempts int
	AccountLocked       bool
	AccountLockedUntil  *time.Time
	// PreviousLockouts is permanent history. It only ever grows; successful
	// logins and expired locks leave it alone.
	PreviousLockouts int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// LockState reads the two stored lock fields as one tagged state so callers
// never have to reason about the fields disagreeing.
func (u User) LockState() LockState {
	if !u.AccountLocked || u.AccountLockedUntil == nil {
		return LockState{}
	}
	return LockState{Locked: true, Until: *u.AccountLockedUntil}
}
