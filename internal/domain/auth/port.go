package auth

import "context"

// RefreshStore persists refresh records keyed by token id.
//
// Implementations map their native failures onto ErrNotFound, ErrNotActive, ErrRecordExists
// and ErrStoreUnavailable.
type RefreshStore interface {
	// Create fails with ErrRecordExists when the token id is already known.
	Create(ctx context.Context, rec *RefreshRecord) error
	Get(ctx context.Context, tokenID string) (*RefreshRecord, error)
	// MarkRotated atomically moves an active record to rotated. Exactly one concurrent caller succeeds,
	// the rest get ErrNotActive.
	MarkRotated(ctx context.Context, tokenID string) error
	Revoke(ctx context.Context, tokenID string) error
	// RevokeFamily revokes every record sharing familyID and reports how many changed.
	RevokeFamily(ctx context.Context, familyID string) (int, error)
}

// CredentialVerifier resolves an email/password pair to a user id.
// Unknown email and wrong password both yield ErrInvalidCredentials.
type CredentialVerifier interface {
	Verify(ctx context.Context, email, password string) (string, error)
}

type EventSink interface {
	ReuseDetected(ctx context.Context, ev ReuseEvent) error
}

// Transactor runs fn so that store writes and event writes made through ctx commit together
// when the backend supports it.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}
