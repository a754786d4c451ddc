package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	domainauth "github.com/NordCoder/authd/internal/domain/auth"
	"github.com/NordCoder/authd/internal/domain/user"
	"github.com/NordCoder/authd/internal/obs"
	"github.com/NordCoder/authd/internal/obs/retry"
	"github.com/NordCoder/authd/internal/tokens"
)

var ErrInvalidInput = errors.New("invalid input")

const minPasswordLen = 8

type Config struct {
	// IssueAttempts bounds how often issuing is tried while the store is unavailable.
	IssueAttempts int
	IssueBackoff  retry.Backoff
}

// Usecase is the transport-neutral auth API: registration, sign-in, rotation, logout and
// access token validation.
type Usecase struct {
	users  user.Repo
	creds  *PasswordVerifier
	tokens *tokens.Manager
	issue  retry.Policy
	log    *zap.Logger
}

func NewUseCase(users user.Repo, creds *PasswordVerifier, tm *tokens.Manager, cfg Config, log *zap.Logger) *Usecase {
	if log == nil {
		log = zap.NewNop()
	}
	return &Usecase{
		users:  users,
		creds:  creds,
		tokens: tm,
		issue:  retry.StorePolicy("issue_tokens", cfg.IssueAttempts, cfg.IssueBackoff, log),
		log:    log,
	}
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func validateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return fmt.Errorf("%w: please enter a valid email", ErrInvalidInput)
	}
	return nil
}

func (u *Usecase) SignUp(ctx context.Context, email, password, fullName string) (*user.User, *domainauth.TokenPair, error) {
	ctx, span := otel.Tracer("auth.usecase").Start(ctx, "auth.SignUp")
	defer span.End()

	email = normalizeEmail(email)
	fullName = strings.TrimSpace(fullName)
	if err := validateEmail(email); err != nil {
		return nil, nil, err
	}
	if len(password) < minPasswordLen {
		return nil, nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLen)
	}
	if fullName == "" {
		return nil, nil, fmt.Errorf("%w: please enter a valid full_name", ErrInvalidInput)
	}

	hash, err := u.creds.Hash(password)
	if err != nil {
		return nil, nil, err
	}
	now := time.Now().UTC()
	newUser := &user.User{Email: email, FullName: fullName, Password: hash, CreatedAt: now, UpdatedAt: now}
	if err := u.users.Create(ctx, newUser); err != nil {
		span.RecordError(err)
		return nil, nil, err
	}
	span.SetAttributes(attribute.String("user.id", newUser.ID))

	pair, err := u.issuePair(ctx, newUser.ID)
	if err != nil {
		return nil, nil, err
	}
	obs.WithTrace(ctx, u.log).Info("user registered", zap.String("user_id", newUser.ID))
	return newUser, pair, nil
}

func (u *Usecase) SignIn(ctx context.Context, email, password string) (*domainauth.TokenPair, error) {
	ctx, span := otel.Tracer("auth.usecase").Start(ctx, "auth.SignIn")
	defer span.End()

	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if password == "" {
		return nil, fmt.Errorf("%w: please enter a valid password", ErrInvalidInput)
	}
	uid, err := u.creds.Verify(ctx, email, password)
	if err != nil {
		span.SetStatus(codes.Error, "credentials rejected")
		return nil, err
	}
	return u.issuePair(ctx, uid)
}

func (u *Usecase) issuePair(ctx context.Context, userID string) (*domainauth.TokenPair, error) {
	var pair *domainauth.TokenPair
	err := retry.Do(ctx, func() error {
		var err error
		pair, err = u.tokens.Issue(ctx, userID)
		return err
	}, u.issue)
	if err != nil {
		obs.WithTrace(ctx, u.log).Error("issue tokens", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}
	return pair, nil
}

// Refresh is never retried: a second attempt with the same token would be reported as reuse.
func (u *Usecase) Refresh(ctx context.Context, refreshToken string) (*domainauth.TokenPair, error) {
	ctx, span := otel.Tracer("auth.usecase").Start(ctx, "auth.Refresh")
	defer span.End()

	if refreshToken == "" {
		return nil, fmt.Errorf("%w: missing refresh token", domainauth.ErrMalformed)
	}
	pair, err := u.tokens.Rotate(ctx, refreshToken)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rotation failed")
		l := obs.WithTrace(ctx, u.log)
		if errors.Is(err, domainauth.ErrReused) {
			l.Warn("refresh rejected", zap.Error(err))
		} else {
			l.Debug("refresh rejected", zap.Error(err))
		}
		return nil, err
	}
	return pair, nil
}

func (u *Usecase) Logout(ctx context.Context, refreshToken string) error {
	ctx, span := otel.Tracer("auth.usecase").Start(ctx, "auth.Logout")
	defer span.End()

	if refreshToken == "" {
		return nil
	}
	if err := u.tokens.Revoke(ctx, refreshToken); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

func (u *Usecase) Validate(accessToken string) (string, error) {
	return u.tokens.Validate(accessToken)
}

func (u *Usecase) Me(ctx context.Context, userID string) (*user.User, error) {
	return u.users.GetByID(ctx, userID)
}
