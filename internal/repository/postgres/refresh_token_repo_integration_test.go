//go:build integration

package postgres

import (
	"context"
	"database/sql"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/NordCoder/authd/internal/domain/auth"
	"github.com/NordCoder/authd/internal/domain/outbox"
	"github.com/NordCoder/authd/internal/domain/user"
)

func testDB(t *testing.T) (*DB, *sql.DB) {
	t.Helper()
	dsn := os.Getenv("AUTHD_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("AUTHD_TEST_PG_DSN is not set")
	}
	ctx := context.Background()
	db, err := New(ctx, Config{URL: dsn, QueryTimeout: 5 * time.Second})
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, Migrate(ctx, db))

	raw, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = raw.Close() })
	return db, raw
}

func newRecord(family string) *auth.RefreshRecord {
	now := time.Now().UTC().Truncate(time.Microsecond)
	id := uuid.NewString()
	if family == "" {
		family = id
	}
	return &auth.RefreshRecord{
		TokenID:   id,
		UserID:    uuid.NewString(),
		Status:    auth.StatusActive,
		FamilyID:  family,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
		UpdatedAt: now,
	}
}

func rawStatus(t *testing.T, raw *sql.DB, id string) string {
	t.Helper()
	var st string
	require.NoError(t, raw.QueryRow(`SELECT status FROM refresh_tokens WHERE token_id = $1`, id).Scan(&st))
	return st
}

func TestRefreshTokenRepo_Transitions(t *testing.T) {
	ctx := context.Background()
	db, raw := testDB(t)
	repo := NewRefreshTokenRepo(db)

	rec := newRecord("")
	require.NoError(t, repo.Create(ctx, rec))
	assert.ErrorIs(t, repo.Create(ctx, rec), auth.ErrRecordExists)

	got, err := repo.Get(ctx, rec.TokenID)
	require.NoError(t, err)
	assert.Equal(t, rec.UserID, got.UserID)
	assert.True(t, got.ExpiresAt.Equal(rec.ExpiresAt))

	require.NoError(t, repo.MarkRotated(ctx, rec.TokenID))
	assert.ErrorIs(t, repo.MarkRotated(ctx, rec.TokenID), auth.ErrNotActive)
	assert.Equal(t, "rotated", rawStatus(t, raw, rec.TokenID))

	require.NoError(t, repo.Revoke(ctx, rec.TokenID))
	require.NoError(t, repo.Revoke(ctx, rec.TokenID))
	assert.Equal(t, "revoked", rawStatus(t, raw, rec.TokenID))

	_, err = repo.Get(ctx, uuid.NewString())
	assert.ErrorIs(t, err, auth.ErrNotFound)
	assert.ErrorIs(t, repo.MarkRotated(ctx, uuid.NewString()), auth.ErrNotFound)
}

func TestRefreshTokenRepo_ConcurrentMarkRotated(t *testing.T) {
	ctx := context.Background()
	db, _ := testDB(t)
	repo := NewRefreshTokenRepo(db)
	rec := newRecord("")
	require.NoError(t, repo.Create(ctx, rec))

	var (
		wg  sync.WaitGroup
		won atomic.Int32
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if repo.MarkRotated(ctx, rec.TokenID) == nil {
				won.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, won.Load())
}

func TestRefreshTokenRepo_RevokeFamilyWithOutboxTx(t *testing.T) {
	ctx := context.Background()
	db, raw := testDB(t)
	repo := NewRefreshTokenRepo(db)
	ob := NewOutboxRepo(db)
	tx := NewTransactor(db, zap.NewNop())

	first := newRecord("")
	second := newRecord(first.FamilyID)
	require.NoError(t, repo.Create(ctx, first))
	require.NoError(t, repo.Create(ctx, second))

	key := "reuse:" + first.TokenID
	err := tx.WithTx(ctx, func(ctx context.Context) error {
		n, err := repo.RevokeFamily(ctx, first.FamilyID)
		if err != nil {
			return err
		}
		assert.Equal(t, 2, n)
		return ob.Enqueue(ctx, key, outbox.KindRefreshReuse, []byte(`{}`))
	})
	require.NoError(t, err)
	assert.Equal(t, "revoked", rawStatus(t, raw, second.TokenID))

	var cnt int
	require.NoError(t, raw.QueryRow(`SELECT COUNT(*) FROM outbox WHERE idempotency_key = $1`, key).Scan(&cnt))
	assert.Equal(t, 1, cnt)
}

func TestRefreshTokenRepo_RollbackKeepsState(t *testing.T) {
	ctx := context.Background()
	db, raw := testDB(t)
	repo := NewRefreshTokenRepo(db)
	tx := NewTransactor(db, zap.NewNop())

	rec := newRecord("")
	require.NoError(t, repo.Create(ctx, rec))

	err := tx.WithTx(ctx, func(ctx context.Context) error {
		require.NoError(t, repo.Revoke(ctx, rec.TokenID))
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, "active", rawStatus(t, raw, rec.TokenID))
}

func TestUserRepo_Integration(t *testing.T) {
	ctx := context.Background()
	db, _ := testDB(t)
	repo := NewUserRepo(db)

	email := "it-" + uuid.NewString() + "@example.com"
	u := &user.User{Email: email, FullName: "IT", Password: "hash"}
	require.NoError(t, repo.Create(ctx, u))
	assert.NotEmpty(t, u.ID)
	assert.ErrorIs(t, repo.Create(ctx, &user.User{Email: email, Password: "x"}), user.ErrEmailExists)

	got, err := repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, email, got.Email)

	_, err = repo.GetByID(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, user.ErrNotFound)
}
