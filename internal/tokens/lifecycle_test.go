package tokens

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/NordCoder/authd/internal/domain/auth"
	"github.com/NordCoder/authd/internal/repository/memory"
)

const (
	accessTTL  = 15 * time.Minute
	refreshTTL = 7 * 24 * time.Hour
)

func newManager(t *testing.T, clk *fakeClock, store domainauth.RefreshStore, family bool, opts ...RotatorOption) *Manager {
	t.Helper()
	m, err := New(Config{
		Secret:              testSecret,
		Issuer:              "authd-test",
		AccessTTL:           accessTTL,
		RefreshTTL:          refreshTTL,
		StoreTimeout:        time.Second,
		RevokeFamilyOnReuse: family,
		Now:                 clk.Now,
	}, store, nil, opts...)
	require.NoError(t, err)
	return m
}

func tokenID(t *testing.T, m *Manager, refresh string) string {
	t.Helper()
	cl, err := m.Codec.VerifySignature(refresh)
	require.NoError(t, err)
	return cl.TokenID
}

func status(t *testing.T, store domainauth.RefreshStore, id string) domainauth.Status {
	t.Helper()
	rec, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	return rec.Status
}

func TestLifecycle_IssueRotateReuse(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	store := memory.NewRefreshStore()
	m := newManager(t, clk, store, false)

	p1, err := m.Issue(ctx, "u1")
	require.NoError(t, err)
	r1 := tokenID(t, m, p1.RefreshToken)
	assert.Equal(t, domainauth.StatusActive, status(t, store, r1))

	uid, err := m.Validate(p1.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", uid)

	clk.Advance(time.Minute)
	p2, err := m.Rotate(ctx, p1.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, p1.RefreshToken, p2.RefreshToken)
	r2 := tokenID(t, m, p2.RefreshToken)
	assert.Equal(t, domainauth.StatusRotated, status(t, store, r1))
	assert.Equal(t, domainauth.StatusActive, status(t, store, r2))

	rec2, err := store.Get(ctx, r2)
	require.NoError(t, err)
	assert.Equal(t, r1, rec2.ParentID)
	assert.Equal(t, r1, rec2.FamilyID)

	_, err = m.Rotate(ctx, p1.RefreshToken)
	assert.ErrorIs(t, err, domainauth.ErrReused)
	assert.Equal(t, domainauth.StatusRevoked, status(t, store, r1))
	// family revocation is off, the legitimate successor survives
	assert.Equal(t, domainauth.StatusActive, status(t, store, r2))

	_, err = m.Rotate(ctx, p1.RefreshToken)
	assert.ErrorIs(t, err, domainauth.ErrReused)

	_, err = m.Rotate(ctx, p2.RefreshToken)
	assert.NoError(t, err)

	// access tokens are not tied to refresh state
	_, err = m.Validate(p1.AccessToken)
	assert.NoError(t, err)
}

func TestLifecycle_ReuseRevokesFamily(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	store := memory.NewRefreshStore()
	sink := &recordingSink{}
	m := newManager(t, clk, store, true, WithEvents(sink, nil))

	p1, err := m.Issue(ctx, "u1")
	require.NoError(t, err)
	p2, err := m.Rotate(ctx, p1.RefreshToken)
	require.NoError(t, err)
	p3, err := m.Rotate(ctx, p2.RefreshToken)
	require.NoError(t, err)

	other, err := m.Issue(ctx, "u1")
	require.NoError(t, err)

	_, err = m.Rotate(ctx, p1.RefreshToken)
	assert.ErrorIs(t, err, domainauth.ErrReused)

	_, err = m.Rotate(ctx, p3.RefreshToken)
	assert.ErrorIs(t, err, domainauth.ErrReused)
	assert.Equal(t, domainauth.StatusActive, status(t, store, tokenID(t, m, other.RefreshToken)))

	evs := sink.events()
	require.Len(t, evs, 2)
	assert.Equal(t, tokenID(t, m, p1.RefreshToken), evs[0].TokenID)
	assert.Equal(t, domainauth.StatusRotated, evs[0].PrevStatus)
	assert.Equal(t, "u1", evs[0].UserID)
	assert.Equal(t, 3, evs[0].Revoked)
	assert.Equal(t, domainauth.StatusRevoked, evs[1].PrevStatus)
}

func TestRotate_Failures(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	store := memory.NewRefreshStore()
	m := newManager(t, clk, store, false)

	p, err := m.Issue(ctx, "u1")
	require.NoError(t, err)

	t.Run("access token", func(t *testing.T) {
		_, err := m.Rotate(ctx, p.AccessToken)
		assert.ErrorIs(t, err, domainauth.ErrWrongKind)
		assert.ErrorIs(t, err, domainauth.ErrInvalid)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := m.Rotate(ctx, "not-a-token")
		assert.ErrorIs(t, err, domainauth.ErrMalformed)
	})

	t.Run("unknown id", func(t *testing.T) {
		tok, err := m.Codec.Sign(domainauth.Claims{Subject: "u1", Kind: domainauth.KindRefresh, TokenID: "never-stored"}, time.Hour)
		require.NoError(t, err)
		_, err = m.Rotate(ctx, tok)
		assert.ErrorIs(t, err, domainauth.ErrUnknown)
	})

	t.Run("foreign subject", func(t *testing.T) {
		tok, err := m.Codec.Sign(domainauth.Claims{Subject: "u2", Kind: domainauth.KindRefresh, TokenID: tokenID(t, m, p.RefreshToken)}, time.Hour)
		require.NoError(t, err)
		_, err = m.Rotate(ctx, tok)
		assert.ErrorIs(t, err, domainauth.ErrUnknown)
		assert.Equal(t, domainauth.StatusActive, status(t, store, tokenID(t, m, p.RefreshToken)))
	})

	t.Run("expired", func(t *testing.T) {
		clk.Advance(refreshTTL + time.Second)
		_, err := m.Rotate(ctx, p.RefreshToken)
		assert.ErrorIs(t, err, domainauth.ErrExpired)
		assert.Equal(t, domainauth.StatusActive, status(t, store, tokenID(t, m, p.RefreshToken)))
	})
}

func TestValidate_RejectsRefreshAndExpired(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	m := newManager(t, clk, memory.NewRefreshStore(), false)

	p, err := m.Issue(ctx, "u1")
	require.NoError(t, err)

	_, err = m.Validate(p.RefreshToken)
	assert.ErrorIs(t, err, domainauth.ErrWrongKind)

	clk.Advance(accessTTL + time.Second)
	_, err = m.Validate(p.AccessToken)
	assert.ErrorIs(t, err, domainauth.ErrExpired)
}

func TestRotate_ConcurrentSingleWinner(t *testing.T) {
	ctx := context.Background()
	store := memory.NewRefreshStore()
	m := newManager(t, newClock(), store, false)

	p, err := m.Issue(ctx, "u1")
	require.NoError(t, err)

	const n = 32
	var (
		wg      sync.WaitGroup
		start   = make(chan struct{})
		results = make([]error, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, results[i] = m.Rotate(ctx, p.RefreshToken)
		}(i)
	}
	close(start)
	wg.Wait()

	var ok, reused int
	for _, err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domainauth.ErrReused):
			reused++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, reused)
	assert.Equal(t, domainauth.StatusRevoked, status(t, store, tokenID(t, m, p.RefreshToken)))
	assert.Equal(t, 2, store.Len())
}

func TestIssue_StoreFailureReturnsNoPair(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{RefreshStore: memory.NewRefreshStore(), createErr: domainauth.ErrStoreUnavailable}
	m := newManager(t, newClock(), store, false)

	p, err := m.Issue(ctx, "u1")
	assert.Nil(t, p)
	assert.ErrorIs(t, err, domainauth.ErrStoreUnavailable)

	_, err = m.Issue(ctx, "")
	assert.Error(t, err)
}

func TestIssue_StoreTimeout(t *testing.T) {
	store := &flakyStore{RefreshStore: memory.NewRefreshStore(), block: true}
	m, err := New(Config{
		Secret:       testSecret,
		AccessTTL:    accessTTL,
		RefreshTTL:   refreshTTL,
		StoreTimeout: 20 * time.Millisecond,
	}, store, nil)
	require.NoError(t, err)

	p, err := m.Issue(context.Background(), "u1")
	assert.Nil(t, p)
	assert.ErrorIs(t, err, domainauth.ErrStoreUnavailable)
}

func TestIssue_CallerCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := &flakyStore{RefreshStore: memory.NewRefreshStore(), block: true}
	m := newManager(t, newClock(), store, false)

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	p, err := m.Issue(ctx, "u1")
	assert.Nil(t, p)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, domainauth.ErrStoreUnavailable)

	folded := &flakyStore{
		RefreshStore: memory.NewRefreshStore(),
		createErr:    fmt.Errorf("%w: bolt create: %w", domainauth.ErrStoreUnavailable, context.Canceled),
	}
	m = newManager(t, newClock(), folded, false)
	_, err = m.Issue(context.Background(), "u1")
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, domainauth.ErrStoreUnavailable)
	assert.Equal(t, "canceled", resultLabel(err))
}

func TestRotate_ReuseRevokeFailure(t *testing.T) {
	ctx := context.Background()
	mem := memory.NewRefreshStore()
	store := &flakyStore{RefreshStore: mem}
	m := newManager(t, newClock(), store, false)

	p, err := m.Issue(ctx, "u1")
	require.NoError(t, err)
	_, err = m.Rotate(ctx, p.RefreshToken)
	require.NoError(t, err)

	store.revokeErr = domainauth.ErrStoreUnavailable
	_, err = m.Rotate(ctx, p.RefreshToken)
	assert.ErrorIs(t, err, domainauth.ErrReused)
	assert.ErrorIs(t, err, domainauth.ErrStoreUnavailable)
}

func TestRotate_SinkFailureStillRevokes(t *testing.T) {
	ctx := context.Background()
	store := memory.NewRefreshStore()
	sink := &recordingSink{err: errors.New("broker down")}
	m := newManager(t, newClock(), store, false, WithEvents(sink, nil))

	p, err := m.Issue(ctx, "u1")
	require.NoError(t, err)
	_, err = m.Rotate(ctx, p.RefreshToken)
	require.NoError(t, err)

	_, err = m.Rotate(ctx, p.RefreshToken)
	assert.ErrorIs(t, err, domainauth.ErrReused)
	assert.NotErrorIs(t, err, domainauth.ErrStoreUnavailable)
	assert.Equal(t, domainauth.StatusRevoked, status(t, store, tokenID(t, m, p.RefreshToken)))
}

func TestRevoke_Logout(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	store := memory.NewRefreshStore()
	m := newManager(t, clk, store, false)

	p, err := m.Issue(ctx, "u1")
	require.NoError(t, err)
	require.NoError(t, m.Revoke(ctx, p.RefreshToken))
	assert.Equal(t, domainauth.StatusRevoked, status(t, store, tokenID(t, m, p.RefreshToken)))

	_, err = m.Rotate(ctx, p.RefreshToken)
	assert.ErrorIs(t, err, domainauth.ErrReused)

	// logout works after expiry and is idempotent
	expired, err := m.Issue(ctx, "u1")
	require.NoError(t, err)
	clk.Advance(refreshTTL + time.Hour)
	assert.NoError(t, m.Revoke(ctx, expired.RefreshToken))
	assert.NoError(t, m.Revoke(ctx, expired.RefreshToken))

	assert.ErrorIs(t, m.Revoke(ctx, p.AccessToken), domainauth.ErrWrongKind)

	stray, err := m.Codec.Sign(domainauth.Claims{Subject: "u1", Kind: domainauth.KindRefresh, TokenID: "gone"}, time.Hour)
	require.NoError(t, err)
	assert.NoError(t, m.Revoke(ctx, stray))
}

type flakyStore struct {
	domainauth.RefreshStore
	createErr error
	revokeErr error
	block     bool
}

func (s *flakyStore) Create(ctx context.Context, rec *domainauth.RefreshRecord) error {
	if s.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if s.createErr != nil {
		return s.createErr
	}
	return s.RefreshStore.Create(ctx, rec)
}

func (s *flakyStore) Revoke(ctx context.Context, id string) error {
	if s.revokeErr != nil {
		return s.revokeErr
	}
	return s.RefreshStore.Revoke(ctx, id)
}

type recordingSink struct {
	mu  sync.Mutex
	evs []domainauth.ReuseEvent
	err error
}

func (s *recordingSink) ReuseDetected(_ context.Context, ev domainauth.ReuseEvent) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evs = append(s.evs, ev)
	return nil
}

func (s *recordingSink) events() []domainauth.ReuseEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domainauth.ReuseEvent(nil), s.evs...)
}
