package tokens

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	domainauth "github.com/NordCoder/authd/internal/domain/auth"
)

type RotatorConfig struct {
	StoreTimeout time.Duration
	// RevokeFamilyOnReuse extends reuse handling from the presented token to every token
	// descended from the same sign-in.
	RevokeFamilyOnReuse bool
}

// Rotator exchanges a refresh token for a fresh pair, at most once per token.
type Rotator struct {
	codec  *Codec
	store  domainauth.RefreshStore
	issuer *Issuer
	tx     domainauth.Transactor
	events domainauth.EventSink
	cfg    RotatorConfig
	log    *zap.Logger
}

type RotatorOption func(*Rotator)

// WithEvents reports reuse detections to sink. tx, when not nil, wraps the revoke and the
// event write so both commit together.
func WithEvents(sink domainauth.EventSink, tx domainauth.Transactor) RotatorOption {
	return func(r *Rotator) {
		r.events = sink
		if tx != nil {
			r.tx = tx
		}
	}
}

func NewRotator(codec *Codec, store domainauth.RefreshStore, issuer *Issuer, cfg RotatorConfig, log *zap.Logger, opts ...RotatorOption) *Rotator {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Rotator{codec: codec, store: store, issuer: issuer, tx: noTx{}, cfg: cfg, log: log}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Rotator) Rotate(ctx context.Context, refreshToken string) (*domainauth.TokenPair, error) {
	pair, err := r.rotate(ctx, refreshToken)
	rotationsTotal.WithLabelValues(resultLabel(err)).Inc()
	return pair, err
}

func (r *Rotator) rotate(ctx context.Context, refreshToken string) (*domainauth.TokenPair, error) {
	cl, err := r.codec.Verify(refreshToken)
	if err != nil {
		return nil, err
	}
	if cl.Kind != domainauth.KindRefresh {
		return nil, domainauth.ErrWrongKind
	}

	rec, err := r.lookup(ctx, cl)
	if err != nil {
		return nil, err
	}
	if !rec.Active() {
		return nil, r.reuse(ctx, rec, rec.Status)
	}

	err = callStore(ctx, r.cfg.StoreTimeout, func(ctx context.Context) error {
		return r.store.MarkRotated(ctx, rec.TokenID)
	})
	switch {
	case errors.Is(err, domainauth.ErrNotActive):
		// another presenter of the same token won the exchange
		return nil, r.reuse(ctx, rec, domainauth.StatusRotated)
	case errors.Is(err, domainauth.ErrNotFound):
		return nil, domainauth.ErrUnknown
	case err != nil:
		return nil, err
	}

	// The presented token is spent from here on. If issuing fails the client has to sign in again.
	pair, err := r.issuer.issue(ctx, rec.UserID, rec.FamilyID, rec.TokenID)
	if err != nil {
		r.log.Error("rotation issue failed after mark", zap.String("token_id", rec.TokenID), zap.Error(err))
		return nil, err
	}
	r.log.Info("refresh token rotated", zap.String("token_id", rec.TokenID), zap.String("user_id", rec.UserID))
	return pair, nil
}

// Revoke ends the session bound to refreshToken. Expired tokens are accepted as long as the
// signature holds, so that clients can always log out; a token the store no longer knows is
// already gone and counts as success.
func (r *Rotator) Revoke(ctx context.Context, refreshToken string) error {
	cl, err := r.codec.VerifySignature(refreshToken)
	if err != nil {
		return err
	}
	if cl.Kind != domainauth.KindRefresh {
		return domainauth.ErrWrongKind
	}
	rec, err := r.lookup(ctx, cl)
	if errors.Is(err, domainauth.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	err = callStore(ctx, r.cfg.StoreTimeout, func(ctx context.Context) error {
		return r.store.Revoke(ctx, rec.TokenID)
	})
	if err != nil && !errors.Is(err, domainauth.ErrNotFound) {
		return err
	}
	r.log.Info("refresh token revoked", zap.String("token_id", rec.TokenID), zap.String("user_id", rec.UserID))
	return nil
}

func (r *Rotator) lookup(ctx context.Context, cl *domainauth.Claims) (*domainauth.RefreshRecord, error) {
	var rec *domainauth.RefreshRecord
	err := callStore(ctx, r.cfg.StoreTimeout, func(ctx context.Context) error {
		var err error
		rec, err = r.store.Get(ctx, cl.TokenID)
		return err
	})
	if errors.Is(err, domainauth.ErrNotFound) {
		return nil, fmt.Errorf("%w: %w", domainauth.ErrUnknown, err)
	}
	if err != nil {
		return nil, err
	}
	if rec.UserID != cl.Subject {
		return nil, fmt.Errorf("%w: subject does not own token", domainauth.ErrUnknown)
	}
	return rec, nil
}

// reuse revokes a token presented outside the active state and always yields ErrReused.
// When the revoke itself cannot be persisted the store error is joined in.
func (r *Rotator) reuse(ctx context.Context, rec *domainauth.RefreshRecord, prev domainauth.Status) error {
	reuseTotal.Inc()
	ev := domainauth.ReuseEvent{
		TokenID:    rec.TokenID,
		FamilyID:   rec.FamilyID,
		UserID:     rec.UserID,
		PrevStatus: prev,
		DetectedAt: r.codec.Now(),
	}
	log := r.log.With(
		zap.String("token_id", rec.TokenID),
		zap.String("family_id", rec.FamilyID),
		zap.String("user_id", rec.UserID),
		zap.String("prev_status", string(prev)),
	)

	err := r.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := r.revokeReused(ctx, rec, &ev); err != nil {
			return err
		}
		if r.events == nil {
			return nil
		}
		return r.events.ReuseDetected(ctx, ev)
	})
	if err == nil {
		log.Warn("refresh token reuse", zap.Int("revoked", ev.Revoked))
		return domainauth.ErrReused
	}

	// The event write may have rolled the revoke back; the revoke must still happen.
	log.Error("reuse handling failed, revoking without event", zap.Error(err))
	ev.Revoked = 0
	if rerr := r.revokeReused(ctx, rec, &ev); rerr != nil {
		log.Error("reuse revoke failed", zap.Error(rerr))
		return errors.Join(domainauth.ErrReused, rerr)
	}
	return domainauth.ErrReused
}

func (r *Rotator) revokeReused(ctx context.Context, rec *domainauth.RefreshRecord, ev *domainauth.ReuseEvent) error {
	err := callStore(ctx, r.cfg.StoreTimeout, func(ctx context.Context) error {
		return r.store.Revoke(ctx, rec.TokenID)
	})
	if err != nil && !errors.Is(err, domainauth.ErrNotFound) {
		return err
	}
	if err == nil {
		ev.Revoked = 1
	}
	if !r.cfg.RevokeFamilyOnReuse || rec.FamilyID == "" {
		return nil
	}
	var n int
	err = callStore(ctx, r.cfg.StoreTimeout, func(ctx context.Context) error {
		var err error
		n, err = r.store.RevokeFamily(ctx, rec.FamilyID)
		return err
	})
	if err != nil {
		return err
	}
	ev.Revoked += n
	return nil
}
