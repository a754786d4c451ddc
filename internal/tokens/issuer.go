package tokens

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	domainauth "github.com/NordCoder/authd/internal/domain/auth"
)

var errEmptyUserID = errors.New("empty user id")

type IssuerConfig struct {
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
	StoreTimeout time.Duration
}

// Issuer mints access/refresh pairs. The refresh record is persisted before the pair is returned;
// a failed write returns no pair at all.
type Issuer struct {
	codec *Codec
	store domainauth.RefreshStore
	cfg   IssuerConfig
	newID func() (string, error)
	log   *zap.Logger
}

func NewIssuer(codec *Codec, store domainauth.RefreshStore, cfg IssuerConfig, log *zap.Logger) (*Issuer, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("token ttls must be positive")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Issuer{codec: codec, store: store, cfg: cfg, newID: randomID, log: log}, nil
}

func randomID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Issue starts a new token family for userID.
func (i *Issuer) Issue(ctx context.Context, userID string) (*domainauth.TokenPair, error) {
	return i.issue(ctx, userID, "", "")
}

func (i *Issuer) issue(ctx context.Context, userID, familyID, parentID string) (*domainauth.TokenPair, error) {
	if userID == "" {
		return nil, errEmptyUserID
	}
	tokenID, err := i.newID()
	if err != nil {
		return nil, fmt.Errorf("generate token id: %w", err)
	}
	if familyID == "" {
		familyID = tokenID
	}

	access, err := i.codec.Sign(domainauth.Claims{Subject: userID, Kind: domainauth.KindAccess}, i.cfg.AccessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := i.codec.Sign(domainauth.Claims{
		Subject: userID,
		Kind:    domainauth.KindRefresh,
		TokenID: tokenID,
	}, i.cfg.RefreshTTL)
	if err != nil {
		return nil, err
	}

	now := i.codec.Now()
	rec := &domainauth.RefreshRecord{
		TokenID:   tokenID,
		UserID:    userID,
		Status:    domainauth.StatusActive,
		FamilyID:  familyID,
		ParentID:  parentID,
		CreatedAt: now,
		ExpiresAt: now.Add(i.cfg.RefreshTTL),
		UpdatedAt: now,
	}
	err = callStore(ctx, i.cfg.StoreTimeout, func(ctx context.Context) error {
		return i.store.Create(ctx, rec)
	})
	if err != nil {
		i.log.Warn("refresh record not saved", zap.String("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("save refresh record: %w", err)
	}

	issuedTotal.Inc()
	i.log.Debug("token pair issued", zap.String("user_id", userID), zap.String("token_id", tokenID), zap.String("family_id", familyID))
	return &domainauth.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
