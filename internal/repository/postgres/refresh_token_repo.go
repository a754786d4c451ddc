package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/NordCoder/authd/internal/domain/auth"
)

var _ auth.RefreshStore = (*RefreshTokenRepo)(nil)

type RefreshTokenRepo struct {
	db  *DB
	now func() time.Time
}

func NewRefreshTokenRepo(db *DB) *RefreshTokenRepo {
	return &RefreshTokenRepo{db: db, now: func() time.Time { return time.Now().UTC() }}
}

const (
	qRTCreate = `
INSERT INTO refresh_tokens (token_id, user_id, status, family_id, parent_id, created_at, expires_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8);`

	qRTGet = `
SELECT user_id, status, family_id, parent_id, created_at, expires_at, updated_at
FROM refresh_tokens
WHERE token_id = $1;`

	qRTMarkRotated = `
UPDATE refresh_tokens
SET status = 'rotated', updated_at = $2
WHERE token_id = $1 AND status = 'active';`

	qRTRevoke = `
UPDATE refresh_tokens
SET status = 'revoked', updated_at = $2
WHERE token_id = $1 AND status <> 'revoked';`

	qRTRevokeFamily = `
UPDATE refresh_tokens
SET status = 'revoked', updated_at = $2
WHERE family_id = $1 AND status <> 'revoked';`

	qRTExists = `
SELECT EXISTS (SELECT 1 FROM refresh_tokens WHERE token_id = $1);`
)

func (r *RefreshTokenRepo) Create(ctx context.Context, t *auth.RefreshRecord) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	_, err := r.db.execQueryer(ctx).Exec(ctx, qRTCreate,
		t.TokenID, t.UserID, string(t.Status), t.FamilyID, t.ParentID, t.CreatedAt, t.ExpiresAt, t.UpdatedAt)
	return refreshErr("create refresh", err)
}

func (r *RefreshTokenRepo) Get(ctx context.Context, tokenID string) (*auth.RefreshRecord, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	t := auth.RefreshRecord{TokenID: tokenID}
	var status string
	err := r.db.execQueryer(ctx).QueryRow(ctx, qRTGet, tokenID).
		Scan(&t.UserID, &status, &t.FamilyID, &t.ParentID, &t.CreatedAt, &t.ExpiresAt, &t.UpdatedAt)
	if err != nil {
		return nil, refreshErr("get refresh", err)
	}
	t.Status = auth.Status(status)
	return &t, nil
}

// MarkRotated relies on the status predicate of a single UPDATE for compare-and-set; of two
// concurrent callers only one sees a changed row.
func (r *RefreshTokenRepo) MarkRotated(ctx context.Context, tokenID string) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.execQueryer(ctx).Exec(ctx, qRTMarkRotated, tokenID, r.now())
	if err != nil {
		return refreshErr("mark rotated", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	ok, err := r.exists(ctx, tokenID)
	if err != nil {
		return err
	}
	if !ok {
		return auth.ErrNotFound
	}
	return auth.ErrNotActive
}

func (r *RefreshTokenRepo) Revoke(ctx context.Context, tokenID string) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.execQueryer(ctx).Exec(ctx, qRTRevoke, tokenID, r.now())
	if err != nil {
		return refreshErr("revoke refresh", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	ok, err := r.exists(ctx, tokenID)
	if err != nil {
		return err
	}
	if !ok {
		return auth.ErrNotFound
	}
	return nil
}

func (r *RefreshTokenRepo) RevokeFamily(ctx context.Context, familyID string) (int, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.execQueryer(ctx).Exec(ctx, qRTRevokeFamily, familyID, r.now())
	if err != nil {
		return 0, refreshErr("revoke family", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *RefreshTokenRepo) exists(ctx context.Context, tokenID string) (bool, error) {
	var ok bool
	if err := r.db.execQueryer(ctx).QueryRow(ctx, qRTExists, tokenID).Scan(&ok); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, refreshErr("refresh exists", err)
	}
	return ok, nil
}
