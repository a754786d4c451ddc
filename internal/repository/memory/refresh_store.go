// Package memory keeps refresh records and users in process memory. It backs tests and
// single-instance deployments where sessions need not survive a restart.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/NordCoder/authd/internal/domain/auth"
)

var _ auth.RefreshStore = (*RefreshStore)(nil)

type RefreshStore struct {
	mu      sync.Mutex
	records map[string]auth.RefreshRecord
	now     func() time.Time
}

func NewRefreshStore() *RefreshStore {
	return &RefreshStore{
		records: make(map[string]auth.RefreshRecord),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *RefreshStore) Create(ctx context.Context, rec *auth.RefreshRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[rec.TokenID]; ok {
		return auth.ErrRecordExists
	}
	s.records[rec.TokenID] = *rec
	return nil
}

func (s *RefreshStore) Get(ctx context.Context, tokenID string) (*auth.RefreshRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[tokenID]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return &rec, nil
}

func (s *RefreshStore) MarkRotated(ctx context.Context, tokenID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[tokenID]
	if !ok {
		return auth.ErrNotFound
	}
	if rec.Status != auth.StatusActive {
		return auth.ErrNotActive
	}
	rec.Status = auth.StatusRotated
	rec.UpdatedAt = s.now()
	s.records[tokenID] = rec
	return nil
}

func (s *RefreshStore) Revoke(ctx context.Context, tokenID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[tokenID]
	if !ok {
		return auth.ErrNotFound
	}
	if rec.Status != auth.StatusRevoked {
		rec.Status = auth.StatusRevoked
		rec.UpdatedAt = s.now()
		s.records[tokenID] = rec
	}
	return nil
}

func (s *RefreshStore) RevokeFamily(ctx context.Context, familyID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	now := s.now()
	for id, rec := range s.records {
		if rec.FamilyID != familyID || rec.Status == auth.StatusRevoked {
			continue
		}
		rec.Status = auth.StatusRevoked
		rec.UpdatedAt = now
		s.records[id] = rec
		n++
	}
	return n, nil
}

// Len reports how many records are held, for tests.
func (s *RefreshStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
