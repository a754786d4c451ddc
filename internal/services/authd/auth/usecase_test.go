package auth

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	domainauth "github.com/NordCoder/authd/internal/domain/auth"
	"github.com/NordCoder/authd/internal/domain/user"
	"github.com/NordCoder/authd/internal/obs/retry"
	"github.com/NordCoder/authd/internal/repository/memory"
	"github.com/NordCoder/authd/internal/tokens"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

// outageStore fails the first n Create calls as if the backend were down.
type outageStore struct {
	domainauth.RefreshStore
	failCreates atomic.Int32
}

func (s *outageStore) Create(ctx context.Context, rec *domainauth.RefreshRecord) error {
	if s.failCreates.Add(-1) >= 0 {
		return fmt.Errorf("%w: connection refused", domainauth.ErrStoreUnavailable)
	}
	return s.RefreshStore.Create(ctx, rec)
}

type fixture struct {
	uc     *Usecase
	users  *memory.UserRepo
	store  *outageStore
	tokens *tokens.Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	users := memory.NewUserRepo()
	store := &outageStore{RefreshStore: memory.NewRefreshStore()}
	tm, err := tokens.New(tokens.Config{
		Secret:       testSecret,
		Issuer:       "authd-test",
		AccessTTL:    time.Minute,
		RefreshTTL:   time.Hour,
		StoreTimeout: time.Second,
	}, store, nil)
	require.NoError(t, err)
	creds, err := NewPasswordVerifier(users, bcrypt.MinCost)
	require.NoError(t, err)
	uc := NewUseCase(users, creds, tm, Config{IssueAttempts: 3, IssueBackoff: retry.ExpoJitter{Base: time.Millisecond, Max: time.Millisecond}}, nil)
	return &fixture{uc: uc, users: users, store: store, tokens: tm}
}

func (f *fixture) register(t *testing.T, email string) (*user.User, *domainauth.TokenPair) {
	t.Helper()
	u, pair, err := f.uc.SignUp(context.Background(), email, "correct-horse", "Test User")
	require.NoError(t, err)
	return u, pair
}

func TestSignUp(t *testing.T) {
	f := newFixture(t)
	u, pair := f.register(t, "  Alice@Example.com ")

	assert.Equal(t, "alice@example.com", u.Email)
	assert.NotEmpty(t, u.ID)
	assert.NotEqual(t, "correct-horse", u.Password)

	uid, err := f.uc.Validate(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, u.ID, uid)

	_, _, err = f.uc.SignUp(context.Background(), "alice@example.com", "another-pass", "Alice")
	assert.ErrorIs(t, err, user.ErrEmailExists)
}

func TestSignUp_InvalidInput(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		name, email, password, fullName string
	}{
		{"bad email", "not-an-email", "correct-horse", "A"},
		{"display name email", "Alice <a@example.com>", "correct-horse", "A"},
		{"short password", "a@example.com", "short", "A"},
		{"missing name", "a@example.com", "correct-horse", "  "},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := f.uc.SignUp(context.Background(), tc.email, tc.password, tc.fullName)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestSignIn(t *testing.T) {
	f := newFixture(t)
	u, _ := f.register(t, "bob@example.com")

	pair, err := f.uc.SignIn(context.Background(), "BOB@example.com", "correct-horse")
	require.NoError(t, err)
	uid, err := f.uc.Validate(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, u.ID, uid)

	_, err = f.uc.SignIn(context.Background(), "bob@example.com", "wrong-password")
	assert.ErrorIs(t, err, domainauth.ErrInvalidCredentials)

	_, err = f.uc.SignIn(context.Background(), "nobody@example.com", "correct-horse")
	assert.ErrorIs(t, err, domainauth.ErrInvalidCredentials)
}

func TestSignIn_RetriesStoreOutage(t *testing.T) {
	f := newFixture(t)
	f.register(t, "carol@example.com")

	f.store.failCreates.Store(2)
	pair, err := f.uc.SignIn(context.Background(), "carol@example.com", "correct-horse")
	require.NoError(t, err)
	assert.NotEmpty(t, pair.RefreshToken)

	f.store.failCreates.Store(10)
	_, err = f.uc.SignIn(context.Background(), "carol@example.com", "correct-horse")
	assert.ErrorIs(t, err, domainauth.ErrStoreUnavailable)
}

func TestRefreshAndLogout(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u, p1 := f.register(t, "dave@example.com")

	_, err := f.uc.Refresh(ctx, "")
	assert.ErrorIs(t, err, domainauth.ErrInvalid)

	p2, err := f.uc.Refresh(ctx, p1.RefreshToken)
	require.NoError(t, err)
	uid, err := f.uc.Validate(p2.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, u.ID, uid)

	_, err = f.uc.Refresh(ctx, p1.RefreshToken)
	assert.ErrorIs(t, err, domainauth.ErrReused)

	require.NoError(t, f.uc.Logout(ctx, p2.RefreshToken))
	_, err = f.uc.Refresh(ctx, p2.RefreshToken)
	assert.ErrorIs(t, err, domainauth.ErrReused)

	require.NoError(t, f.uc.Logout(ctx, ""))
	assert.True(t, errors.Is(f.uc.Logout(ctx, p2.AccessToken), domainauth.ErrWrongKind))
}
