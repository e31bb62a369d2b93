package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/fairmarketlabs/tradejournal/internal/auth/domain"
)

type usersRepo struct {
	db dbtx
}

const userColumns = `id, email, password_hash, password_history, is_verified,
	two_factor_enabled, two_factor_secret, failed_login_attempts,
	account_locked, account_locked_until, previous_lockouts, created_at, updated_at`

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	return scanUser(row)
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	history, err := marshalHistory(u.PasswordHistory)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO users (
			id, email, password_hash, password_history, is_verified,
			two_factor_enabled, two_factor_secret
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.PasswordHash, history, u.IsVerified,
		u.TwoFactorEnabled, mapOptionalString(u.TwoFactorSecret),
	)
	return err
}

func (r *usersRepo) UpdatePassword(ctx context.Context, userID, newHash string, history []string) error {
	raw, err := marshalHistory(history)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET password_hash = ?, password_history = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		newHash, raw, userID,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *usersRepo) MarkVerified(ctx context.Context, userID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET is_verified = 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *usersRepo) SetTwoFactor(ctx context.Context, userID string, enabled bool, secret *string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET two_factor_enabled = ?, two_factor_secret = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		enabled, mapOptionalString(secret), userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// IncrementFailedLogins is a single statement so concurrent wrong-password
// attempts cannot lose updates.
func (r *usersRepo) IncrementFailedLogins(ctx context.Context, userID string) (int, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE users
		SET failed_login_attempts = failed_login_attempts + 1,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
		RETURNING failed_login_attempts`, userID)

	var attempts int
	if err := row.Scan(&attempts); err != nil {
		return 0, mapNotFound(err)
	}
	return attempts, nil
}

// LockAccount is conditional on the account being open so that two requests
// crossing the threshold together produce exactly one lockout transition
// (and exactly one previous_lockouts increment).
func (r *usersRepo) LockAccount(ctx context.Context, userID string, until time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET account_locked = 1,
		    account_locked_until = ?,
		    previous_lockouts = previous_lockouts + 1,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND account_locked = 0`,
		until, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ClearExpiredLock deliberately leaves failed_login_attempts and
// previous_lockouts alone; only the lock fields are reset.
func (r *usersRepo) ClearExpiredLock(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET account_locked = 0, account_locked_until = NULL,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND account_locked = 1`, userID)
	return err
}

func (r *usersRepo) ResetLoginCounters(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET failed_login_attempts = 0,
		    account_locked = 0,
		    account_locked_until = NULL,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, userID)
	return err
}

func scanUser(row *sql.Row) (domain.User, error) {
	var (
		u           domain.User
		history     string
		secret      sql.NullString
		lockedUntil sql.NullTime
	)
	err := row.Scan(
		&u.ID, &u.Email, &u.PasswordHash, &history, &u.IsVerified,
		&u.TwoFactorEnabled, &secret, &u.FailedLoginAttempts,
		&u.AccountLocked, &lockedUntil, &u.PreviousLockouts,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}

	u.PasswordHistory, err = unmarshalHistory(history)
	if err != nil {
		return domain.User{}, err
	}
	u.TwoFactorSecret = mapNullStringPtr(secret)
	u.AccountLockedUntil = mapNullTimePtr(lockedUntil)
	return u, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sqlNoRows()
	}
	return nil
}

func sqlNoRows() error { return mapNotFound(sql.ErrNoRows) }
