package store

import (
	"context"
	"errors"
	"time"

	"github.com/fairmarketlabs/tradejournal/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite today)
// implement this. It exposes sub-repositories to keep concerns tidy and
// testable. The store is the only synchronization point in the service, so
// anything that must be atomic under concurrent requests is expressed as a
// single conditional statement inside a repository, never as read-then-write
// in a service.
type Store interface {
	Users() Users
	RefreshTokens() RefreshTokens
	BlacklistedTokens() BlacklistedTokens
	TwoFactorChallenges() TwoFactorChallenges

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction. If fn returns an error, the
	// transaction is rolled back; otherwise it is committed. This is the
	// recommended way to handle multi-step operations (e.g. password change
	// plus family revocation).
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	// GetUserByID returns a user by id.
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByEmail is used during login.
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)

	// CreateUser inserts a new user with zeroed lockout counters
	// (id is provided by the app via ULID).
	CreateUser(ctx context.Context, u domain.User) error

	// UpdatePassword replaces the hash and the full history list in one
	// statement and bumps updated_at.
	UpdatePassword(ctx context.Context, userID, newHash string, history []string) error

	// MarkVerified flips is_verified.
	MarkVerified(ctx context.Context, userID string) error

	// SetTwoFactor enables or disables 2FA and stores/clears the TOTP secret.
	SetTwoFactor(ctx context.Context, userID string, enabled bool, secret *string) error

	// IncrementFailedLogins atomically adds one to failed_login_attempts and
	// returns the new value. Two concurrent wrong-password attempts must
	// both count, so this is a single UPDATE ... RETURNING, never a
	// read-modify-write.
	IncrementFailedLogins(ctx context.Context, userID string) (int, error)

	// LockAccount transitions an open account to locked until the given
	// deadline and bumps previous_lockouts by one. The update is conditional
	// on the account not already being locked; the return value reports
	// whether this call performed the transition.
	LockAccount(ctx context.Context, userID string, until time.Time) (bool, error)

	// ClearExpiredLock lazily reopens an account whose lock window has
	// passed. It touches only account_locked/account_locked_until;
	// failed_login_attempts and previous_lockouts are left as they are.
	ClearExpiredLock(ctx context.Context, userID string) error

	// ResetLoginCounters is the successful-login (and admin-unlock) reset:
	// failed_login_attempts to zero and lock fields cleared.
	// previous_lockouts is never reset.
	ResetLoginCounters(ctx context.Context, userID string) error
}

type RefreshTokens interface {
	// Create stores a new refresh token ledger row.
	Create(ctx context.Context, t domain.RefreshToken) error

	// GetByJTI returns the row for a jti whether or not it is revoked.
	GetByJTI(ctx context.Context, jti string) (domain.RefreshToken, error)

	// Consume flips revoked on the row iff it is not already revoked.
	// Returns true when this call won the row. Under a double-refresh race
	// exactly one caller sees true; the loser observes the revoked row and
	// treats it as a replay.
	Consume(ctx context.Context, jti string) (bool, error)

	// RevokeFamily revokes every row in a rotation chain.
	RevokeFamily(ctx context.Context, familyID string) error

	// RevokeAllForUser revokes every row for a user (password change,
	// administrative action).
	RevokeAllForUser(ctx context.Context, userID string) error

	// RevokeOwned revokes a single non-revoked row only when it belongs to
	// userID. Returns false when no such row exists, which the caller maps
	// to not-found; ownership is enforced in the statement itself.
	RevokeOwned(ctx context.Context, jti, userID string) (bool, error)

	// ListActiveForUser returns non-revoked, non-expired rows, newest first.
	ListActiveForUser(ctx context.Context, userID string, now time.Time) ([]domain.RefreshToken, error)

	// DeleteExpired removes rows past expires_at and reports how many.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type BlacklistedTokens interface {
	// Blacklist records an access-token jti to reject until it would have
	// expired anyway.
	Blacklist(ctx context.Context, t domain.BlacklistedToken) error

	// IsBlacklisted reports whether the jti has a live blacklist entry.
	IsBlacklisted(ctx context.Context, jti string) (bool, error)

	// DeleteExpired removes entries whose mirrored expiry has passed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type TwoFactorChallenges interface {
	// Upsert creates or replaces the single pending challenge for a user.
	Upsert(ctx context.Context, c domain.TwoFactorChallenge) error

	// Get returns the pending challenge if one exists and has not expired.
	Get(ctx context.Context, userID string, now time.Time) (domain.TwoFactorChallenge, error)

	// IncrementAttempts bumps the failed-attempt counter and returns the
	// new value.
	IncrementAttempts(ctx context.Context, userID string) (int, error)

	// Delete removes the pending challenge.
	Delete(ctx context.Context, userID string) error

	// DeleteExpired removes stale challenges and reports how many.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
