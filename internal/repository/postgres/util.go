package postgres

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/NordCoder/authd/internal/domain/auth"
)

var ErrConstraint = errors.New("constraint violation")

const (
	pgUniqueViolation    = "23505"
	pgIntegrityViolation = "23"
)

// refreshErr maps driver errors onto the refresh store contract. Anything that is not a
// row-level outcome counts as the store being unavailable.
func refreshErr(op string, err error) error {
	var pgErr *pgconn.PgError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return auth.ErrNotFound
	case errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation:
		return auth.ErrRecordExists
	case errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, pgIntegrityViolation):
		return fmt.Errorf("%s: %w: %s", op, ErrConstraint, pgErr.Message)
	default:
		return fmt.Errorf("%w: postgres %s: %w", auth.ErrStoreUnavailable, op, err)
	}
}
