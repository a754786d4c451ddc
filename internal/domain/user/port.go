package user

import "context"

type Repo interface {
	// Create fails with ErrEmailExists on a duplicate email.
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
}
