package sqlite

import (
	"context"
	"time"

	"github.com/fairmarketlabs/tradejournal/internal/auth/domain"
)

type challengesRepo struct {
	db dbtx
}

// Upsert replaces any prior pending challenge: a fresh password-verified
// login restarts the 2FA window and attempt counter.
func (r *challengesRepo) Upsert(ctx context.Context, c domain.TwoFactorChallenge) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO twofactor_challenges (user_id, attempts, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			attempts = excluded.attempts,
			expires_at = excluded.expires_at,
			created_at = CURRENT_TIMESTAMP`,
		c.UserID, c.Attempts, c.ExpiresAt)
	return err
}

func (r *challengesRepo) Get(
	ctx context.Context,
	userID string,
	now time.Time,
) (domain.TwoFactorChallenge, error) {
	var c domain.TwoFactorChallenge
	err := r.db.QueryRowContext(ctx, `
		SELECT user_id, attempts, expires_at, created_at
		FROM twofactor_challenges
		WHERE user_id = ? AND expires_at > ?`, userID, now).
		Scan(&c.UserID, &c.Attempts, &c.ExpiresAt, &c.CreatedAt)
	if err != nil {
		return domain.TwoFactorChallenge{}, mapNotFound(err)
	}
	return c, nil
}

func (r *challengesRepo) IncrementAttempts(ctx context.Context, userID string) (int, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE twofactor_challenges
		SET attempts = attempts + 1
		WHERE user_id = ?
		RETURNING attempts`, userID)

	var attempts int
	if err := row.Scan(&attempts); err != nil {
		return 0, mapNotFound(err)
	}
	return attempts, nil
}

func (r *challengesRepo) Delete(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM twofactor_challenges WHERE user_id = ?`, userID)
	return err
}

func (r *challengesRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM twofactor_challenges WHERE expires_at <= ?`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
