// Package tokens implements the token lifecycle: signing, issuing, rotating with reuse
// detection, and stateless access validation.
package tokens

import (
	"time"

	"go.uber.org/zap"

	domainauth "github.com/NordCoder/authd/internal/domain/auth"
)

type Config struct {
	Secret              []byte
	Issuer              string
	AccessTTL           time.Duration
	RefreshTTL          time.Duration
	Leeway              time.Duration
	StoreTimeout        time.Duration
	RevokeFamilyOnReuse bool
	Now                 func() time.Time
}

// Manager bundles the lifecycle components over one codec and store.
type Manager struct {
	*Issuer
	*Rotator
	*Validator
	Codec *Codec
}

func New(cfg Config, store domainauth.RefreshStore, log *zap.Logger, opts ...RotatorOption) (*Manager, error) {
	codec, err := NewCodec(CodecConfig{Secret: cfg.Secret, Issuer: cfg.Issuer, Leeway: cfg.Leeway, Now: cfg.Now})
	if err != nil {
		return nil, err
	}
	issuer, err := NewIssuer(codec, store, IssuerConfig{
		AccessTTL:    cfg.AccessTTL,
		RefreshTTL:   cfg.RefreshTTL,
		StoreTimeout: cfg.StoreTimeout,
	}, log)
	if err != nil {
		return nil, err
	}
	rotator := NewRotator(codec, store, issuer, RotatorConfig{
		StoreTimeout:        cfg.StoreTimeout,
		RevokeFamilyOnReuse: cfg.RevokeFamilyOnReuse,
	}, log, opts...)
	return &Manager{Issuer: issuer, Rotator: rotator, Validator: NewValidator(codec), Codec: codec}, nil
}
