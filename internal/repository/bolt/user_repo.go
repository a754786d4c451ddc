package bolt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/NordCoder/authd/internal/domain/user"
)

var _ user.Repo = (*UserRepo)(nil)

type UserRepo struct {
	db *DB
}

func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

type storedUser struct {
	Email        string    `json:"email"`
	FullName     string    `json:"full_name"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (r *UserRepo) Create(ctx context.Context, u *user.User) error {
	id := uuid.NewString()
	now := time.Now().UTC()
	err := r.db.update(ctx, func(tx *bolt.Tx) error {
		emails := tx.Bucket(bktEmails)
		email := []byte(strings.ToLower(u.Email))
		if emails.Get(email) != nil {
			return user.ErrEmailExists
		}
		raw, err := json.Marshal(storedUser{
			Email:        u.Email,
			FullName:     u.FullName,
			PasswordHash: u.Password,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
		if err != nil {
			return err
		}
		if err := tx.Bucket(bktUsers).Put([]byte(id), raw); err != nil {
			return err
		}
		return emails.Put(email, []byte(id))
	})
	if err != nil {
		if errors.Is(err, user.ErrEmailExists) {
			return err
		}
		return fmt.Errorf("user insert: %w", err)
	}
	u.ID, u.CreatedAt, u.UpdatedAt = id, now, now
	return nil
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*user.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out *user.User
	err := r.db.db.View(func(tx *bolt.Tx) error {
		var err error
		out, err = loadUser(tx, id)
		return err
	})
	return out, err
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out *user.User
	err := r.db.db.View(func(tx *bolt.Tx) error {
		id := tx.Bucket(bktEmails).Get([]byte(strings.ToLower(email)))
		if id == nil {
			return user.ErrNotFound
		}
		var err error
		out, err = loadUser(tx, string(id))
		return err
	})
	return out, err
}

func loadUser(tx *bolt.Tx, id string) (*user.User, error) {
	raw := tx.Bucket(bktUsers).Get([]byte(id))
	if raw == nil {
		return nil, user.ErrNotFound
	}
	var su storedUser
	if err := json.Unmarshal(raw, &su); err != nil {
		return nil, fmt.Errorf("decode user %s: %w", id, err)
	}
	return &user.User{
		ID:        id,
		Email:     su.Email,
		FullName:  su.FullName,
		Password:  su.PasswordHash,
		CreatedAt: su.CreatedAt,
		UpdatedAt: su.UpdatedAt,
	}, nil
}
