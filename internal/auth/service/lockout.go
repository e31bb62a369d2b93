package service

import (
	"time"

	"github.com/fairmarketlabs/tradejournal/internal/auth/domain"
)

// Lockout defaults. Durations escalate per completed lockout and cap at the
// maximum, so repeated offenders see 15m, 30m, 60m, 60m, ...
const (
	DefaultMaxLoginAttempts    = 5
	DefaultLockoutBaseDuration = 15 * time.Minute
	DefaultLockoutMultiplier   = 2
	DefaultLockoutMaxDuration  = time.Hour

	// adminUnlockThreshold is the lockout count at which automatic expiry
	// stops being enough and an operator has to step in.
	adminUnlockThreshold = 3
)

// LockoutPolicy decides when failed logins lock an account and for how long.
// It is pure: callers persist the transitions it yields.
type LockoutPolicy struct {
	MaxAttempts  int
	BaseDuration time.Duration
	Multiplier   int
	MaxDuration  time.Duration
}

func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{
		MaxAttempts:  DefaultMaxLoginAttempts,
		BaseDuration: DefaultLockoutBaseDuration,
		Multiplier:   DefaultLockoutMultiplier,
		MaxDuration:  DefaultLockoutMaxDuration,
	}
}

// ShouldLock reports whether the given post-increment failure count crosses
// the lockout threshold. Counts above the threshold still lock: an account
// whose lock lapsed mid-streak re-locks on the next failure.
func (p LockoutPolicy) ShouldLock(failedAttempts int) bool {
	return failedAttempts >= p.MaxAttempts
}

// Duration returns how long the next lockout lasts given how many lockouts
// the account has already served.
func (p LockoutPolicy) Duration(previousLockouts int) time.Duration {
	d := p.BaseDuration
	for i := 0; i < previousLockouts; i++ {
		d *= time.Duration(p.Multiplier)
		if d >= p.MaxDuration {
			return p.MaxDuration
		}
	}
	if d > p.MaxDuration {
		return p.MaxDuration
	}
	return d
}

// RequiresAdminUnlock reports whether an account with the given lockout count
// is past self-service recovery. Derived, never stored.
func (p LockoutPolicy) RequiresAdminUnlock(previousLockouts int) bool {
	return previousLockouts >= adminUnlockThreshold
}

// NextLock describes the lock an account enters on its next threshold breach.
func (p LockoutPolicy) NextLock(previousLockouts int, now time.Time) domain.LockState {
	return domain.LockState{
		Locked: true,
		Until:  now.Add(p.Duration(previousLockouts)),
	}
}
