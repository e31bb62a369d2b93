package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fairmarketlabs/tradejournal/internal/auth/domain"
	"github.com/fairmarketlabs/tradejournal/internal/auth/store"
	"github.com/fairmarketlabs/tradejournal/internal/auth/store/drivers/sqlite"
	"github.com/fairmarketlabs/tradejournal/pkg/cryptox"
	"github.com/fairmarketlabs/tradejournal/pkg/idx"
	"github.com/fairmarketlabs/tradejournal/pkg/jwtx"
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "service-test-*")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cryptox.SetPepperPath(filepath.Join(dir, "pepper.key"))

	code := m.Run()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

// newTestStore opens a private in-memory database per test, with migrations
// applied.
func newTestStore(t *testing.T) store.Store {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	s, err := sqlite.NewStore(fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.ApplyMigrations())
	return s
}

func newTestCodec() *jwtx.Codec {
	return &jwtx.Codec{
		AccessSecret:  []byte("access-secret-for-tests-only!!"),
		RefreshSecret: []byte("refresh-secret-for-tests-only!"),
		Issuer:        "tradejournal-test",
	}
}

func newTestLedger(t *testing.T) (*RefreshLedger, store.Store) {
	t.Helper()
	s := newTestStore(t)
	return &RefreshLedger{
		Store:        s,
		Codec:        newTestCodec(),
		TokenTTL:     jwtx.DefaultRefreshTokenTTL,
		MaxFamilyAge: DefaultSessionMaxAge,
		MaxRotations: DefaultMaxRotations,
	}, s
}

// seedUser inserts a verified user with the given password hashed for real,
// so login paths exercise the same argon2 verification as production.
func seedUser(t *testing.T, s store.Store, email, password string) domain.User {
	t.Helper()

	hash, err := cryptox.HashPassword(password)
	require.NoError(t, err)

	u := domain.User{
		ID:           idx.New().String(),
		Email:        email,
		PasswordHash: hash,
		IsVerified:   true,
	}
	require.NoError(t, s.Users().CreateUser(context.Background(), u))
	return u
}

func seedUnverifiedUser(t *testing.T, s store.Store, email, password string) domain.User {
	t.Helper()

	hash, err := cryptox.HashPassword(password)
	require.NoError(t, err)

	u := domain.User{
		ID:           idx.New().String(),
		Email:        email,
		PasswordHash: hash,
	}
	require.NoError(t, s.Users().CreateUser(context.Background(), u))
	return u
}

var testMeta = domain.ClientMeta{UserAgent: "go-test", IPAddress: "203.0.113.7"}

func advanceClock(base time.Time) (func() time.Time, func(d time.Duration)) {
	now := base
	return func() time.Time { return now }, func(d time.Duration) { now = now.Add(d) }
}
