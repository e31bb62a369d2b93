package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/fairmarketlabs/tradejournal/internal/auth/domain"
)

type refreshTokensRepo struct {
	db dbtx
}

const refreshColumns = `jti, user_id, family_id, parent_jti, rotation_counter,
	revoked, expires_at, family_created_at, user_agent, ip_address,
	created_at, updated_at`

func (r *refreshTokensRepo) Create(ctx context.Context, t domain.RefreshToken) error {
	var parent sql.NullString
	if t.ParentJTI != "" {
		parent = sql.NullString{String: t.ParentJTI, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (
			jti, user_id, family_id, parent_jti, rotation_counter,
			revoked, expires_at, family_created_at, user_agent, ip_address
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.JTI, t.UserID, t.FamilyID, parent, t.RotationCounter,
		t.Revoked, t.ExpiresAt, t.FamilyCreatedAt, t.UserAgent, t.IPAddress,
	)
	return err
}

func (r *refreshTokensRepo) GetByJTI(ctx context.Context, jti string) (domain.RefreshToken, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+refreshColumns+` FROM refresh_tokens WHERE jti = ?`, jti)
	return scanRefreshToken(row)
}

// Consume is the one-time-use gate. The revoked check lives in the WHERE
// clause so that of two concurrent redemptions exactly one sees an affected
// row; the other finds the row already revoked and follows the replay path.
func (r *refreshTokensRepo) Consume(ctx context.Context, jti string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET revoked = 1, updated_at = CURRENT_TIMESTAMP
		WHERE jti = ? AND revoked = 0`, jti)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *refreshTokensRepo) RevokeFamily(ctx context.Context, familyID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET revoked = 1, updated_at = CURRENT_TIMESTAMP
		WHERE family_id = ? AND revoked = 0`, familyID)
	return err
}

func (r *refreshTokensRepo) RevokeAllForUser(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET revoked = 1, updated_at = CURRENT_TIMESTAMP
		WHERE user_id = ? AND revoked = 0`, userID)
	return err
}

func (r *refreshTokensRepo) RevokeOwned(ctx context.Context, jti, userID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET revoked = 1, updated_at = CURRENT_TIMESTAMP
		WHERE jti = ? AND user_id = ? AND revoked = 0`, jti, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *refreshTokensRepo) ListActiveForUser(
	ctx context.Context,
	userID string,
	now time.Time,
) ([]domain.RefreshToken, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+refreshColumns+`
		FROM refresh_tokens
		WHERE user_id = ? AND revoked = 0 AND expires_at > ?
		ORDER BY created_at DESC`, userID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []domain.RefreshToken
	for rows.Next() {
		t, err := scanRefreshTokenRows(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

func (r *refreshTokensRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE expires_at <= ?`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanRefreshToken(row *sql.Row) (domain.RefreshToken, error) {
	var (
		t      domain.RefreshToken
		parent sql.NullString
	)
	err := row.Scan(
		&t.JTI, &t.UserID, &t.FamilyID, &parent, &t.RotationCounter,
		&t.Revoked, &t.ExpiresAt, &t.FamilyCreatedAt, &t.UserAgent,
		&t.IPAddress, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return domain.RefreshToken{}, mapNotFound(err)
	}
	if parent.Valid {
		t.ParentJTI = parent.String
	}
	return t, nil
}

func scanRefreshTokenRows(rows *sql.Rows) (domain.RefreshToken, error) {
	var (
		t      domain.RefreshToken
		parent sql.NullString
	)
	err := rows.Scan(
		&t.JTI, &t.UserID, &t.FamilyID, &parent, &t.RotationCounter,
		&t.Revoked, &t.ExpiresAt, &t.FamilyCreatedAt, &t.UserAgent,
		&t.IPAddress, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return domain.RefreshToken{}, err
	}
	if parent.Valid {
		t.ParentJTI = parent.String
	}
	return t, nil
}
