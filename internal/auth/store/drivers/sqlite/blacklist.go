package sqlite

import (
	"context"
	"time"

	"github.com/fairmarketlabs/tradejournal/internal/auth/domain"
)

type blacklistRepo struct {
	db dbtx
}

// Blacklist inserts are idempotent: logging out twice with the same access
// token should not error.
func (r *blacklistRepo) Blacklist(ctx context.Context, t domain.BlacklistedToken) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO blacklisted_tokens (jti, reason, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT (jti) DO NOTHING`,
		t.JTI, t.Reason, t.ExpiresAt)
	return err
}

func (r *blacklistRepo) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM blacklisted_tokens WHERE jti = ?`, jti).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *blacklistRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM blacklisted_tokens WHERE expires_at <= ?`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
