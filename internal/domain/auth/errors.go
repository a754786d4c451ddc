package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalid is the umbrella for tokens that can never become valid.
	ErrInvalid = errors.New("invalid token")

	ErrMalformed        = fmt.Errorf("%w: malformed", ErrInvalid)
	ErrInvalidSignature = fmt.Errorf("%w: signature mismatch", ErrInvalid)
	ErrWrongKind        = fmt.Errorf("%w: unexpected token kind", ErrInvalid)

	ErrExpired = errors.New("token expired")
	ErrUnknown = errors.New("unknown refresh token")
	ErrReused  = errors.New("refresh token reused")

	// ErrStoreUnavailable is the only retryable failure.
	ErrStoreUnavailable = errors.New("refresh store unavailable")

	ErrNotFound     = errors.New("refresh record not found")
	ErrNotActive    = errors.New("refresh record not active")
	ErrRecordExists = errors.New("refresh record already exists")

	ErrInvalidCredentials = errors.New("email or password is wrong")
)
