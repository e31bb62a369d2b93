package domain

import "time"

// LockState is the tagged lockout state of an account: either open or locked
// until a deadline. The zero value is open.
type LockState struct {
	Locked bool
	Until  time.Time
}

// ExpiredAt reports whether a lock exists but its window has passed, meaning
// the account should lazily transition back to open on the next attempt.
func (s LockState) ExpiredAt(now time.Time) bool {
	return s.Locked && !now.Before(s.Until)
}

// ActiveAt reports whether the lock is currently in force.
func (s LockState) ActiveAt(now time.Time) bool {
	return s.Locked && now.Before(s.Until)
}

// Remaining returns how long the lock has left, zero if not active.
func (s LockState) Remaining(now time.Time) time.Duration {
	if !s.ActiveAt(now) {
		return 0
	}
	return s.Until.Sub(now)
}
