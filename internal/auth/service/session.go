package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp/totp"

	"github.com/fairmarketlabs/tradejournal/internal/auth/domain"
	"github.com/fairmarketlabs/tradejournal/internal/auth/store"
	"github.com/fairmarketlabs/tradejournal/pkg/cryptox"
	"github.com/fairmarketlabs/tradejournal/pkg/idx"
	"github.com/fairmarketlabs/tradejournal/pkg/jwtx"
)

// DefaultTwoFactorChallengeTTL bounds how long a password-passed login may
// wait for its TOTP code.
const DefaultTwoFactorChallengeTTL = 5 * time.Minute

// SessionService is the authentication front door: login, the 2FA second
// step, silent refresh, logout and device management all live here. It leans
// on LockoutPolicy for the lockout maths and RefreshLedger for everything
// refresh-token shaped.
type SessionService struct {
	Store    store.Store
	Codec    *jwtx.Codec
	Ledger   *RefreshLedger
	Lockout  LockoutPolicy
	Notifier Notifier

	AccessTokenTTL        time.Duration
	TwoFactorChallengeTTL time.Duration

	// Now is overridable in tests; nil means time.Now.
	Now func() time.Time
}

func (s *SessionService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// LoginResult is either a completed authentication carrying tokens, or a
// pending one waiting on the second factor.
type LoginResult struct {
	TwoFactorRequired bool
	UserID            string
	Tokens            domain.TokenPair
	RefreshRow        domain.RefreshToken
}

// Login authenticates an email/password pair. Unknown accounts and wrong
// passwords are indistinguishable to the caller; lockout is the only state
// reported specifically, and only because it presumes a known account.
func (s *SessionService) Login(ctx context.Context, email, password string, meta domain.ClientMeta) (LoginResult, error) {
	users := s.Store.Users()
	now := s.now()
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Burn the hash cost anyway so timing stays flat.
			cryptox.DummyVerify(password)
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, fmt.Errorf("lookup user: %w", err)
	}

	lock := user.LockState()
	switch {
	case lock.ActiveAt(now):
		return LoginResult{}, &AccountLockedError{
			Until:               lock.Until,
			Remaining:           lock.Remaining(now),
			RequiresAdminUnlock: s.Lockout.RequiresAdminUnlock(user.PreviousLockouts),
		}
	case lock.ExpiredAt(now):
		// Lazy reopen: only the lock fields clear, the failure streak and
		// lockout history stand.
		if err := users.ClearExpiredLock(ctx, user.ID); err != nil {
			return LoginResult{}, fmt.Errorf("clear expired lock: %w", err)
		}
	}

	if !user.IsVerified {
		return LoginResult{}, ErrEmailNotVerified
	}

	if err := cryptox.VerifyPassword(password, user.PasswordHash); err != nil {
		if errors.Is(err, cryptox.ErrMismatch) {
			return LoginResult{}, s.recordFailedAttempt(ctx, user, now)
		}
		return LoginResult{}, fmt.Errorf("verify password: %w", err)
	}

	if user.TwoFactorEnabled {
		challenge := domain.TwoFactorChallenge{
			UserID:    user.ID,
			ExpiresAt: now.Add(s.challengeTTL()),
		}
		if err := s.Store.TwoFactorChallenges().Upsert(ctx, challenge); err != nil {
			return LoginResult{}, fmt.Errorf("create 2fa challenge: %w", err)
		}
		return LoginResult{TwoFactorRequired: true, UserID: user.ID}, nil
	}

	return s.completeLogin(ctx, user.ID, meta)
}

// CompleteTwoFactor finishes a login whose password step already passed. The
// pending challenge is the proof of that step; without one the code is
// rejected regardless of validity.
func (s *SessionService) CompleteTwoFactor(ctx context.Context, userID, code string, meta domain.ClientMeta) (LoginResult, error) {
	now := s.now()
	challenges := s.Store.TwoFactorChallenges()

	if _, err := challenges.Get(ctx, userID, now); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return LoginResult{}, ErrInvalidTwoFactorCode
		}
		return LoginResult{}, fmt.Errorf("lookup 2fa challenge: %w", err)
	}

	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return LoginResult{}, ErrInvalidTwoFactorCode
		}
		return LoginResult{}, fmt.Errorf("lookup user: %w", err)
	}
	if !user.TwoFactorEnabled || user.TwoFactorSecret == nil {
		return LoginResult{}, ErrInvalidTwoFactorCode
	}

	if !totp.Validate(code, *user.TwoFactorSecret) {
		attempts, err := challenges.IncrementAttempts(ctx, userID)
		if err != nil {
			return LoginResult{}, fmt.Errorf("count 2fa attempt: %w", err)
		}
		if attempts >= domain.MaxTwoFactorAttempts {
			// Exhausted: back to square one, password and all.
			if err := challenges.Delete(ctx, userID); err != nil {
				return LoginResult{}, fmt.Errorf("delete 2fa challenge: %w", err)
			}
			return LoginResult{}, ErrTooManyAttempts
		}
		return LoginResult{}, ErrInvalidTwoFactorCode
	}

	if err := challenges.Delete(ctx, userID); err != nil {
		return LoginResult{}, fmt.Errorf("delete 2fa challenge: %w", err)
	}

	return s.completeLogin(ctx, userID, meta)
}

// Refresh rotates the presented refresh token and mints a fresh access token
// against the successor.
func (s *SessionService) Refresh(ctx context.Context, presented string, meta domain.ClientMeta) (domain.TokenPair, error) {
	signed, row, err := s.Ledger.Redeem(ctx, presented, meta)
	if err != nil {
		return domain.TokenPair{}, err
	}

	access, accessExpiry, err := s.Codec.SignAccess(row.UserID, idx.New().String(), s.AccessTokenTTL, s.now())
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}

	return domain.TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExpiry,
		RefreshToken:     signed,
		RefreshExpiresAt: row.ExpiresAt,
	}, nil
}

// Logout ends the session behind the presented refresh token and blacklists
// the caller's access token so it dies now instead of at natural expiry.
// Both halves are best-effort and independent: a failure on one side never
// stops the other, and the caller gets whatever went wrong joined together.
// accessExpiresAt is the token's natural expiry; zero falls back to the
// longest an access token could possibly live.
func (s *SessionService) Logout(ctx context.Context, presentedRefresh, accessJTI string, accessExpiresAt time.Time) error {
	var errs []error
	if presentedRefresh != "" {
		if err := s.Ledger.RevokeByToken(ctx, presentedRefresh); err != nil {
			errs = append(errs, fmt.Errorf("revoke refresh family: %w", err))
		}
	}
	if accessJTI != "" {
		if accessExpiresAt.IsZero() {
			accessExpiresAt = s.now().Add(s.AccessTokenTTL)
		}
		entry := domain.BlacklistedToken{
			JTI:       accessJTI,
			Reason:    "logout",
			ExpiresAt: accessExpiresAt,
		}
		if err := s.Store.BlacklistedTokens().Blacklist(ctx, entry); err != nil {
			errs = append(errs, fmt.Errorf("blacklist access token: %w", err))
		}
	}
	return errors.Join(errs...)
}

// ListSessions returns the caller's live sessions across devices.
func (s *SessionService) ListSessions(ctx context.Context, userID string) ([]domain.Session, error) {
	return s.Ledger.ListActive(ctx, userID)
}

// RevokeSession ends one of the caller's sessions by id. Sessions owned by
// others report ErrNotFound.
func (s *SessionService) RevokeSession(ctx context.Context, sessionID, userID string) error {
	return s.Ledger.RevokeSession(ctx, sessionID, userID)
}

// AdminUnlock is the operator override for accounts past self-service
// recovery. It clears the lock and the failure streak; the lockout history
// stays on the record.
func (s *SessionService) AdminUnlock(ctx context.Context, userID string) error {
	if _, err := s.Store.Users().GetUserByID(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("lookup user: %w", err)
	}
	return s.Store.Users().ResetLoginCounters(ctx, userID)
}

// IsBlacklisted satisfies the authn middleware's blacklist check.
func (s *SessionService) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	return s.Store.BlacklistedTokens().IsBlacklisted(ctx, jti)
}

// completeLogin is the fully-authenticated tail shared by password-only and
// 2FA logins: reset the failure counters, then issue the pair.
func (s *SessionService) completeLogin(ctx context.Context, userID string, meta domain.ClientMeta) (LoginResult, error) {
	if err := s.Store.Users().ResetLoginCounters(ctx, userID); err != nil {
		return LoginResult{}, fmt.Errorf("reset login counters: %w", err)
	}

	refresh, row, err := s.Ledger.Issue(ctx, userID, meta)
	if err != nil {
		return LoginResult{}, err
	}

	access, accessExpiry, err := s.Codec.SignAccess(userID, idx.New().String(), s.AccessTokenTTL, s.now())
	if err != nil {
		return LoginResult{}, fmt.Errorf("sign access token: %w", err)
	}

	return LoginResult{
		UserID: userID,
		Tokens: domain.TokenPair{
			AccessToken:      access,
			AccessExpiresAt:  accessExpiry,
			RefreshToken:     refresh,
			RefreshExpiresAt: row.ExpiresAt,
		},
		RefreshRow: row,
	}, nil
}

// recordFailedAttempt counts a wrong password and locks the account when the
// streak crosses the threshold. The increment and the lock transition are
// both single conditional statements, so concurrent failures all count and
// exactly one of them performs the lock.
func (s *SessionService) recordFailedAttempt(ctx context.Context, user domain.User, now time.Time) error {
	users := s.Store.Users()

	attempts, err := users.IncrementFailedLogins(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("count failed login: %w", err)
	}
	if !s.Lockout.ShouldLock(attempts) {
		return ErrInvalidCredentials
	}

	lock := s.Lockout.NextLock(user.PreviousLockouts, now)
	didLock, err := users.LockAccount(ctx, user.ID, lock.Until)
	if err != nil {
		return fmt.Errorf("lock account: %w", err)
	}

	requiresAdmin := s.Lockout.RequiresAdminUnlock(user.PreviousLockouts + 1)
	if didLock && s.Notifier != nil {
		// Notification must not hold up the response.
		go s.Notifier.AccountLocked(context.WithoutCancel(ctx), user.Email, lock.Until, requiresAdmin)
	}

	return &AccountLockedError{
		Until:               lock.Until,
		Remaining:           lock.Remaining(now),
		RequiresAdminUnlock: requiresAdmin,
	}
}

func (s *SessionService) challengeTTL() time.Duration {
	if s.TwoFactorChallengeTTL > 0 {
		return s.TwoFactorChallengeTTL
	}
	return DefaultTwoFactorChallengeTTL
}
