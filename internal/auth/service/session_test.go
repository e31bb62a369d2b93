package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"

	"github.com/fairmarketlabs/tradejournal/internal/auth/store"
	"github.com/fairmarketlabs/tradejournal/pkg/jwtx"
)

func newTestSession(t *testing.T) (*SessionService, store.Store) {
	t.Helper()
	ledger, s := newTestLedger(t)
	svc := &SessionService{
		Store:          s,
		Codec:          ledger.Codec,
		Ledger:         ledger,
		Lockout:        DefaultLockoutPolicy(),
		AccessTokenTTL: jwtx.DefaultAccessTokenTTL,
	}
	return svc, s
}

func TestSessionService_LoginSuccess(t *testing.T) {
	svc, s := newTestSession(t)
	ctx := context.Background()
	user := seedUser(t, s, "trader@example.com", "correct horse battery")

	res, err := svc.Login(ctx, "trader@example.com", "correct horse battery", testMeta)
	require.NoError(t, err)
	require.False(t, res.TwoFactorRequired)
	require.Equal(t, user.ID, res.UserID)
	require.NotEmpty(t, res.Tokens.AccessToken)
	require.NotEmpty(t, res.Tokens.RefreshToken)

	claims, err := svc.Codec.VerifyAccess(res.Tokens.AccessToken)
	require.NoError(t, err)
	require.Equal(t, user.ID, claims.Subject)
}

func TestSessionService_LoginRejections(t *testing.T) {
	svc, s := newTestSession(t)
	ctx := context.Background()
	seedUser(t, s, "trader@example.com", "correct horse battery")

	// Unknown email and wrong password are the same error.
	_, err := svc.Login(ctx, "nobody@example.com", "whatever", testMeta)
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(ctx, "trader@example.com", "wrong password", testMeta)
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestSessionService_LoginUnverified(t *testing.T) {
	svc, s := newTestSession(t)
	ctx := context.Background()

	unverified := seedUnverifiedUser(t, s, "fresh@example.com", "correct horse battery")

	_, err := svc.Login(ctx, unverified.Email, "correct horse battery", testMeta)
	require.ErrorIs(t, err, ErrEmailNotVerified)

	// Even with the right password no counters move.
	got, err := s.Users().GetUserByID(ctx, unverified.ID)
	require.NoError(t, err)
	require.Zero(t, got.FailedLoginAttempts)
}

func TestSessionService_LockoutProgression(t *testing.T) {
	svc, s := newTestSession(t)
	ctx := context.Background()
	user := seedUser(t, s, "trader@example.com", "correct horse battery")

	now, advance := advanceClock(time.Now().UTC())
	svc.Now = now
	svc.Ledger.Now = now

	failOnce := func() error {
		_, err := svc.Login(ctx, user.Email, "wrong password", testMeta)
		return err
	}

	// Four strikes are free.
	for i := 0; i < 4; i++ {
		require.ErrorIs(t, failOnce(), ErrInvalidCredentials)
	}

	// The fifth locks for the base duration.
	var locked *AccountLockedError
	require.ErrorAs(t, failOnce(), &locked)
	require.Equal(t, 15*time.Minute, locked.Remaining)
	require.False(t, locked.RequiresAdminUnlock)

	// While locked, even the right password is refused.
	_, err := svc.Login(ctx, user.Email, "correct horse battery", testMeta)
	require.ErrorAs(t, err, &locked)

	// Second lockout doubles the window.
	advance(16 * time.Minute)
	require.ErrorAs(t, failOnce(), &locked)
	require.Equal(t, 30*time.Minute, locked.Remaining)
	require.False(t, locked.RequiresAdminUnlock)

	// Third hits the cap and flips the admin-unlock flag.
	advance(31 * time.Minute)
	require.ErrorAs(t, failOnce(), &locked)
	require.Equal(t, time.Hour, locked.Remaining)
	require.True(t, locked.RequiresAdminUnlock)

	got, err := s.Users().GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, 3, got.PreviousLockouts)
}

func TestSessionService_SuccessResetsStreakNotHistory(t *testing.T) {
	svc, s := newTestSession(t)
	ctx := context.Background()
	user := seedUser(t, s, "trader@example.com", "correct horse battery")

	now, advance := advanceClock(time.Now().UTC())
	svc.Now = now
	svc.Ledger.Now = now

	for i := 0; i < 5; i++ {
		_, _ = svc.Login(ctx, user.Email, "wrong password", testMeta)
	}
	advance(16 * time.Minute)

	_, err := svc.Login(ctx, user.Email, "correct horse battery", testMeta)
	require.NoError(t, err)

	got, err := s.Users().GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	require.Zero(t, got.FailedLoginAttempts)
	require.False(t, got.AccountLocked)
	require.Equal(t, 1, got.PreviousLockouts)
}

func TestSessionService_AdminUnlock(t *testing.T) {
	svc, s := newTestSession(t)
	ctx := context.Background()
	user := seedUser(t, s, "trader@example.com", "correct horse battery")

	for i := 0; i < 5; i++ {
		_, _ = svc.Login(ctx, user.Email, "wrong password", testMeta)
	}

	require.NoError(t, svc.AdminUnlock(ctx, user.ID))

	res, err := svc.Login(ctx, user.Email, "correct horse battery", testMeta)
	require.NoError(t, err)
	require.NotEmpty(t, res.Tokens.AccessToken)

	require.ErrorIs(t, svc.AdminUnlock(ctx, "no-such-user"), ErrNotFound)
}

func TestSessionService_TwoFactorFlow(t *testing.T) {
	svc, s := newTestSession(t)
	ctx := context.Background()
	user := seedUser(t, s, "trader@example.com", "correct horse battery")

	key, err := totp.Generate(totp.GenerateOpts{Issuer: "tradejournal-test", AccountName: user.Email})
	require.NoError(t, err)
	secret := key.Secret()
	require.NoError(t, s.Users().SetTwoFactor(ctx, user.ID, true, &secret))

	res, err := svc.Login(ctx, user.Email, "correct horse battery", testMeta)
	require.NoError(t, err)
	require.True(t, res.TwoFactorRequired)
	require.Empty(t, res.Tokens.AccessToken)

	// Wrong codes count against the challenge.
	_, err = svc.CompleteTwoFactor(ctx, user.ID, "000000", testMeta)
	require.ErrorIs(t, err, ErrInvalidTwoFactorCode)

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)

	done, err := svc.CompleteTwoFactor(ctx, user.ID, code, testMeta)
	require.NoError(t, err)
	require.NotEmpty(t, done.Tokens.AccessToken)
	require.NotEmpty(t, done.Tokens.RefreshToken)

	// The challenge is single-use.
	_, err = svc.CompleteTwoFactor(ctx, user.ID, code, testMeta)
	require.ErrorIs(t, err, ErrInvalidTwoFactorCode)
}

func TestSessionService_TwoFactorAttemptCap(t *testing.T) {
	svc, s := newTestSession(t)
	ctx := context.Background()
	user := seedUser(t, s, "trader@example.com", "correct horse battery")

	key, err := totp.Generate(totp.GenerateOpts{Issuer: "tradejournal-test", AccountName: user.Email})
	require.NoError(t, err)
	secret := key.Secret()
	require.NoError(t, s.Users().SetTwoFactor(ctx, user.ID, true, &secret))

	_, err = svc.Login(ctx, user.Email, "correct horse battery", testMeta)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		_, err = svc.CompleteTwoFactor(ctx, user.ID, "000000", testMeta)
		require.ErrorIs(t, err, ErrInvalidTwoFactorCode)
	}
	_, err = svc.CompleteTwoFactor(ctx, user.ID, "000000", testMeta)
	require.ErrorIs(t, err, ErrTooManyAttempts)

	// The exhausted challenge is gone; even a valid code needs a new login.
	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	_, err = svc.CompleteTwoFactor(ctx, user.ID, code, testMeta)
	require.ErrorIs(t, err, ErrInvalidTwoFactorCode)
}

func TestSessionService_TwoFactorWithoutChallenge(t *testing.T) {
	svc, s := newTestSession(t)
	ctx := context.Background()
	user := seedUser(t, s, "trader@example.com", "correct horse battery")

	key, err := totp.Generate(totp.GenerateOpts{Issuer: "tradejournal-test", AccountName: user.Email})
	require.NoError(t, err)
	secret := key.Secret()
	require.NoError(t, s.Users().SetTwoFactor(ctx, user.ID, true, &secret))

	// No password step happened, so even a valid code is refused.
	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	_, err = svc.CompleteTwoFactor(ctx, user.ID, code, testMeta)
	require.ErrorIs(t, err, ErrInvalidTwoFactorCode)
}

func TestSessionService_RefreshAndLogout(t *testing.T) {
	svc, s := newTestSession(t)
	ctx := context.Background()
	user := seedUser(t, s, "trader@example.com", "correct horse battery")

	res, err := svc.Login(ctx, user.Email, "correct horse battery", testMeta)
	require.NoError(t, err)

	pair, err := svc.Refresh(ctx, res.Tokens.RefreshToken, testMeta)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEqual(t, res.Tokens.RefreshToken, pair.RefreshToken)

	claims, err := svc.Codec.VerifyAccess(pair.AccessToken)
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, pair.RefreshToken, claims.ID, claims.ExpiresAt.Time))

	// Access token is blacklisted, refresh family is dead.
	blacklisted, err := svc.IsBlacklisted(ctx, claims.ID)
	require.NoError(t, err)
	require.True(t, blacklisted)

	_, err = svc.Refresh(ctx, pair.RefreshToken, testMeta)
	require.ErrorIs(t, err, ErrReplayDetected)

	// Logout is idempotent.
	require.NoError(t, svc.Logout(ctx, pair.RefreshToken, claims.ID, claims.ExpiresAt.Time))
}

func TestSessionService_ConcurrentFailedLoginsAllCount(t *testing.T) {
	svc, s := newTestSession(t)
	ctx := context.Background()
	user := seedUser(t, s, "trader@example.com", "correct horse battery")

	// Simultaneous wrong passwords must all land on the counter; a lost
	// increment would let an attacker stretch the lockout threshold.
	const attempts = 4
	errs := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Login(ctx, "trader@example.com", "wrong password", testMeta)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}

	got, err := s.Users().GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, attempts, got.FailedLoginAttempts)
	require.False(t, got.AccountLocked)
}

// revokeFailStore serves everything from the real store except family
// revocation, which always fails.
type revokeFailStore struct{ store.Store }

func (s revokeFailStore) RefreshTokens() store.RefreshTokens {
	return revokeFailRepo{s.Store.RefreshTokens()}
}

type revokeFailRepo struct{ store.RefreshTokens }

func (revokeFailRepo) RevokeFamily(ctx context.Context, familyID string) error {
	return errors.New("refresh store unavailable")
}

func TestSessionService_LogoutBlacklistsDespiteRevokeFailure(t *testing.T) {
	svc, s := newTestSession(t)
	ctx := context.Background()
	seedUser(t, s, "trader@example.com", "correct horse battery")

	res, err := svc.Login(ctx, "trader@example.com", "correct horse battery", testMeta)
	require.NoError(t, err)
	claims, err := svc.Codec.VerifyAccess(res.Tokens.AccessToken)
	require.NoError(t, err)

	// Family revocation hits a broken store. The access token must still be
	// blacklisted and the failure reported.
	svc.Ledger.Store = revokeFailStore{Store: s}
	err = svc.Logout(ctx, res.Tokens.RefreshToken, claims.ID, claims.ExpiresAt.Time)
	require.Error(t, err)

	blacklisted, err := svc.IsBlacklisted(ctx, claims.ID)
	require.NoError(t, err)
	require.True(t, blacklisted)
}

func TestSessionService_LogoutBlacklistMirrorsAccessExpiry(t *testing.T) {
	svc, s := newTestSession(t)
	ctx := context.Background()
	seedUser(t, s, "trader@example.com", "correct horse battery")

	res, err := svc.Login(ctx, "trader@example.com", "correct horse battery", testMeta)
	require.NoError(t, err)
	claims, err := svc.Codec.VerifyAccess(res.Tokens.AccessToken)
	require.NoError(t, err)

	expiry := time.Now().Add(time.Minute)
	require.NoError(t, svc.Logout(ctx, "", claims.ID, expiry))

	// The entry dies with the token itself, not at the TTL upper bound.
	deleted, err := s.BlacklistedTokens().DeleteExpired(ctx, expiry.Add(time.Second))
	require.NoError(t, err)
	require.EqualValues(t, 1, deleted)

	blacklisted, err := svc.IsBlacklisted(ctx, claims.ID)
	require.NoError(t, err)
	require.False(t, blacklisted)
}
