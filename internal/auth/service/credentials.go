package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pquerna/otp/totp"

	"github.com/fairmarketlabs/tradejournal/internal/auth/domain"
	"github.com/fairmarketlabs/tradejournal/internal/auth/store"
	"github.com/fairmarketlabs/tradejournal/pkg/cryptox"
	"github.com/fairmarketlabs/tradejournal/pkg/idx"
)

// CredentialService manages the stored credential itself: registration,
// verification, password changes and TOTP enrolment. Session issuance stays
// in SessionService.
type CredentialService struct {
	Store store.Store

	// Issuer labels TOTP enrolments in authenticator apps.
	Issuer string
}

var ErrEmailTaken = errors.New("email_taken")

// Register creates an unverified account. Login is refused until the email
// is confirmed out of band and MarkVerified runs.
func (s *CredentialService) Register(ctx context.Context, email, password string) (domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	if _, err := s.Store.Users().GetUserByEmail(ctx, email); err == nil {
		return domain.User{}, ErrEmailTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.User{}, fmt.Errorf("lookup user: %w", err)
	}

	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}

	user := domain.User{
		ID:           idx.New().String(),
		Email:        email,
		PasswordHash: hash,
	}
	if err := s.Store.Users().CreateUser(ctx, user); err != nil {
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// MarkVerified flips the verification gate once the email round trip is done.
func (s *CredentialService) MarkVerified(ctx context.Context, userID string) error {
	if err := s.Store.Users().MarkVerified(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// ChangePassword rotates the credential. The new password must differ from
// the current one and the last few before it, and every existing session dies
// with the old password in the same transaction.
func (s *CredentialService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("lookup user: %w", err)
	}

	if err := cryptox.VerifyPassword(currentPassword, user.PasswordHash); err != nil {
		if errors.Is(err, cryptox.ErrMismatch) {
			return ErrInvalidCredentials
		}
		return fmt.Errorf("verify password: %w", err)
	}

	for _, previous := range append([]string{user.PasswordHash}, user.PasswordHistory...) {
		if err := cryptox.VerifyPassword(newPassword, previous); err == nil {
			return ErrPasswordReused
		} else if !errors.Is(err, cryptox.ErrMismatch) {
			return fmt.Errorf("check password history: %w", err)
		}
	}

	newHash, err := cryptox.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	history := append([]string{user.PasswordHash}, user.PasswordHistory...)
	if len(history) > domain.PasswordHistorySize {
		history = history[:domain.PasswordHistorySize]
	}

	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().UpdatePassword(ctx, userID, newHash, history); err != nil {
			return fmt.Errorf("update password: %w", err)
		}
		if err := tx.RefreshTokens().RevokeAllForUser(ctx, userID); err != nil {
			return fmt.Errorf("revoke sessions: %w", err)
		}
		return nil
	})
}

// EnrollTwoFactor provisions a TOTP secret for the account and returns the
// otpauth URL for the authenticator app. 2FA stays off until the user proves
// possession via ConfirmTwoFactor.
func (s *CredentialService) EnrollTwoFactor(ctx context.Context, userID string) (secret, url string, err error) {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", "", ErrNotFound
		}
		return "", "", fmt.Errorf("lookup user: %w", err)
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.Issuer,
		AccountName: user.Email,
	})
	if err != nil {
		return "", "", fmt.Errorf("generate totp secret: %w", err)
	}

	secret = key.Secret()
	if err := s.Store.Users().SetTwoFactor(ctx, userID, false, &secret); err != nil {
		return "", "", fmt.Errorf("store totp secret: %w", err)
	}
	return secret, key.URL(), nil
}

// ConfirmTwoFactor turns 2FA on once the user produces a valid code from the
// enrolled secret.
func (s *CredentialService) ConfirmTwoFactor(ctx context.Context, userID, code string) error {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("lookup user: %w", err)
	}
	if user.TwoFactorSecret == nil {
		return ErrInvalidTwoFactorCode
	}
	if !totp.Validate(code, *user.TwoFactorSecret) {
		return ErrInvalidTwoFactorCode
	}
	return s.Store.Users().SetTwoFactor(ctx, userID, true, user.TwoFactorSecret)
}

// DisableTwoFactor turns 2FA off. A valid current code is required so a
// hijacked session cannot silently weaken the account.
func (s *CredentialService) DisableTwoFactor(ctx context.Context, userID, code string) error {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("lookup user: %w", err)
	}
	if !user.TwoFactorEnabled || user.TwoFactorSecret == nil {
		return ErrInvalidTwoFactorCode
	}
	if !totp.Validate(code, *user.TwoFactorSecret) {
		return ErrInvalidTwoFactorCode
	}
	return s.Store.Users().SetTwoFactor(ctx, userID, false, nil)
}
