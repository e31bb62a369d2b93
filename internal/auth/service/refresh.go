package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fairmarketlabs/tradejournal/internal/auth/domain"
	"github.com/fairmarketlabs/tradejournal/internal/auth/store"
	"github.com/fairmarketlabs/tradejournal/pkg/idx"
	"github.com/fairmarketlabs/tradejournal/pkg/jwtx"
)

// Refresh ledger defaults. A family lives at most MaxFamilyAge regardless of
// how diligently the client rotates, and MaxRotations caps the chain length
// as a second ceiling.
const (
	DefaultSessionMaxAge = 30 * 24 * time.Hour
	DefaultMaxRotations  = 96
)

// RefreshLedger owns refresh-token issuance, rotation and revocation. The
// signed JWT is the bearer credential; the ledger row keyed by its jti is the
// authority on whether it is still live. Verification alone never grants a
// rotation.
type RefreshLedger struct {
	Store store.Store
	Codec *jwtx.Codec

	// TokenTTL bounds a single token; MaxFamilyAge bounds the whole chain
	// from first login.
	TokenTTL     time.Duration
	MaxFamilyAge time.Duration
	MaxRotations int

	// Now is overridable in tests; nil means time.Now.
	Now func() time.Time
}

func (l *RefreshLedger) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

// familyDeadline is the hard end of a session started at familyCreatedAt.
func (l *RefreshLedger) familyDeadline(familyCreatedAt time.Time) time.Time {
	return familyCreatedAt.Add(l.MaxFamilyAge)
}

// Issue mints the first refresh token of a brand new family after a completed
// authentication. The ledger row is persisted before the signed token is
// returned.
func (l *RefreshLedger) Issue(ctx context.Context, userID string, meta domain.ClientMeta) (string, domain.RefreshToken, error) {
	now := l.now()
	row := domain.RefreshToken{
		JTI:             idx.New().String(),
		UserID:          userID,
		FamilyID:        uuid.NewString(),
		RotationCounter: 0,
		ExpiresAt:       now.Add(l.TokenTTL),
		FamilyCreatedAt: now,
		UserAgent:       meta.UserAgent,
		IPAddress:       meta.IPAddress,
	}
	if deadline := l.familyDeadline(row.FamilyCreatedAt); row.ExpiresAt.After(deadline) {
		row.ExpiresAt = deadline
	}

	if err := l.Store.RefreshTokens().Create(ctx, row); err != nil {
		return "", domain.RefreshToken{}, fmt.Errorf("create refresh token: %w", err)
	}

	signed, err := l.Codec.SignRefresh(userID, row.JTI, row.FamilyID, row.RotationCounter, row.ExpiresAt, now)
	if err != nil {
		return "", domain.RefreshToken{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return signed, row, nil
}

// Redeem performs one rotation: the presented token is verified, consumed and
// replaced by its successor in the same family. A token that was already
// consumed is treated as a replay and takes the whole family down with it.
func (l *RefreshLedger) Redeem(ctx context.Context, presented string, meta domain.ClientMeta) (string, domain.RefreshToken, error) {
	claims, err := l.Codec.VerifyRefresh(presented)
	if err != nil {
		return "", domain.RefreshToken{}, ErrInvalidToken
	}

	tokens := l.Store.RefreshTokens()
	row, err := tokens.GetByJTI(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", domain.RefreshToken{}, ErrInvalidToken
		}
		return "", domain.RefreshToken{}, fmt.Errorf("lookup refresh token: %w", err)
	}

	// A row that is already revoked means this token was spent (or its
	// family was torn down) and someone is presenting it again.
	if row.Revoked {
		if err := tokens.RevokeFamily(ctx, row.FamilyID); err != nil {
			return "", domain.RefreshToken{}, fmt.Errorf("revoke family: %w", err)
		}
		return "", domain.RefreshToken{}, ErrReplayDetected
	}

	now := l.now()
	if !now.Before(l.familyDeadline(row.FamilyCreatedAt)) || row.RotationCounter+1 > l.MaxRotations {
		if err := tokens.RevokeFamily(ctx, row.FamilyID); err != nil {
			return "", domain.RefreshToken{}, fmt.Errorf("revoke family: %w", err)
		}
		return "", domain.RefreshToken{}, ErrSessionExpired
	}

	// Consume is conditional on the row being live, so under a double-spend
	// race exactly one caller rotates and the rest land here as replays.
	won, err := tokens.Consume(ctx, row.JTI)
	if err != nil {
		return "", domain.RefreshToken{}, fmt.Errorf("consume refresh token: %w", err)
	}
	if !won {
		if err := tokens.RevokeFamily(ctx, row.FamilyID); err != nil {
			return "", domain.RefreshToken{}, fmt.Errorf("revoke family: %w", err)
		}
		return "", domain.RefreshToken{}, ErrReplayDetected
	}

	next := domain.RefreshToken{
		JTI:             idx.New().String(),
		UserID:          row.UserID,
		FamilyID:        row.FamilyID,
		ParentJTI:       row.JTI,
		RotationCounter: row.RotationCounter + 1,
		ExpiresAt:       now.Add(l.TokenTTL),
		FamilyCreatedAt: row.FamilyCreatedAt,
		UserAgent:       meta.UserAgent,
		IPAddress:       meta.IPAddress,
	}
	if deadline := l.familyDeadline(row.FamilyCreatedAt); next.ExpiresAt.After(deadline) {
		next.ExpiresAt = deadline
	}

	if err := tokens.Create(ctx, next); err != nil {
		return "", domain.RefreshToken{}, fmt.Errorf("create rotated token: %w", err)
	}

	signed, err := l.Codec.SignRefresh(next.UserID, next.JTI, next.FamilyID, next.RotationCounter, next.ExpiresAt, now)
	if err != nil {
		return "", domain.RefreshToken{}, fmt.Errorf("sign rotated token: %w", err)
	}
	return signed, next, nil
}

// RevokeByToken tears down the family behind a presented refresh token. Used
// by logout; best-effort, so a token that fails verification or is unknown is
// simply ignored.
func (l *RefreshLedger) RevokeByToken(ctx context.Context, presented string) error {
	claims, err := l.Codec.VerifyRefresh(presented)
	if err != nil {
		return nil
	}
	row, err := l.Store.RefreshTokens().GetByJTI(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("lookup refresh token: %w", err)
	}
	return l.Store.RefreshTokens().RevokeFamily(ctx, row.FamilyID)
}

// RevokeAllForUser ends every session a user has, across all devices.
func (l *RefreshLedger) RevokeAllForUser(ctx context.Context, userID string) error {
	return l.Store.RefreshTokens().RevokeAllForUser(ctx, userID)
}

// ListActive returns the user's live sessions for device management.
func (l *RefreshLedger) ListActive(ctx context.Context, userID string) ([]domain.Session, error) {
	rows, err := l.Store.RefreshTokens().ListActiveForUser(ctx, userID, l.now())
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	sessions := make([]domain.Session, 0, len(rows))
	for _, r := range rows {
		sessions = append(sessions, domain.Session{
			JTI:             r.JTI,
			FamilyID:        r.FamilyID,
			RotationCounter: r.RotationCounter,
			UserAgent:       r.UserAgent,
			IPAddress:       r.IPAddress,
			CreatedAt:       r.CreatedAt,
			ExpiresAt:       r.ExpiresAt,
			FamilyCreatedAt: r.FamilyCreatedAt,
		})
	}
	return sessions, nil
}

// RevokeSession revokes one session by jti, but only when it belongs to
// userID. Unknown and unowned look identical to the caller.
func (l *RefreshLedger) RevokeSession(ctx context.Context, jti, userID string) error {
	ok, err := l.Store.RefreshTokens().RevokeOwned(ctx, jti, userID)
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// SweepExpired deletes ledger rows past their expiry. Revocation history for
// a family only matters while some token in it could still be presented, so
// expired rows carry no security value.
func (l *RefreshLedger) SweepExpired(ctx context.Context) (int64, error) {
	return l.Store.RefreshTokens().DeleteExpired(ctx, l.now())
}
