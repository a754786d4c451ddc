package auth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	domainauth "github.com/NordCoder/authd/internal/domain/auth"
	"github.com/NordCoder/authd/internal/domain/user"
)

var _ domainauth.CredentialVerifier = (*PasswordVerifier)(nil)

// PasswordVerifier checks bcrypt hashes. Unknown emails still cost one hash comparison so that
// response time does not reveal which addresses are registered.
type PasswordVerifier struct {
	users     user.Repo
	cost      int
	dummyHash []byte
}

func NewPasswordVerifier(users user.Repo, cost int) (*PasswordVerifier, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d out of range", cost)
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("authd-dummy-password"), cost)
	if err != nil {
		return nil, fmt.Errorf("dummy hash: %w", err)
	}
	return &PasswordVerifier{users: users, cost: cost, dummyHash: dummy}, nil
}

func (v *PasswordVerifier) Hash(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), v.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

func (v *PasswordVerifier) Verify(ctx context.Context, email, password string) (string, error) {
	u, err := v.users.GetByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, user.ErrNotFound) {
		_ = bcrypt.CompareHashAndPassword(v.dummyHash, []byte(password))
		return "", domainauth.ErrInvalidCredentials
	}
	if err != nil {
		return "", fmt.Errorf("lookup user: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)) != nil {
		return "", domainauth.ErrInvalidCredentials
	}
	return u.ID, nil
}
