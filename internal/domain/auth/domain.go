package auth

import (
	"time"
)

// Kind separates access tokens from refresh tokens; one must never be accepted in place of the other.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

type Claims struct {
	Subject   string // user id
	Kind      Kind
	TokenID   string // empty for access tokens
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type Status string

const (
	StatusActive  Status = "active"
	StatusRotated Status = "rotated"
	StatusRevoked Status = "revoked"
)

// RefreshRecord is the persisted state of one refresh token.
// A record leaves StatusActive at most once and never comes back.
type RefreshRecord struct {
	TokenID   string
	UserID    string
	Status    Status
	FamilyID  string
	ParentID  string
	CreatedAt time.Time
	ExpiresAt time.Time
	UpdatedAt time.Time
}

func (r *RefreshRecord) Active() bool { return r.Status == StatusActive }

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// ReuseEvent is emitted when an already exchanged or revoked refresh token is presented again.
type ReuseEvent struct {
	TokenID    string    `json:"token_id"`
	FamilyID   string    `json:"family_id"`
	UserID     string    `json:"user_id"`
	PrevStatus Status    `json:"prev_status"`
	Revoked    int       `json:"revoked"`
	DetectedAt time.Time `json:"detected_at"`
}
