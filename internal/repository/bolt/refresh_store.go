package bolt

import (
	"context"
	"encoding/json"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/NordCoder/authd/internal/domain/auth"
)

var _ auth.RefreshStore = (*RefreshStore)(nil)

type RefreshStore struct {
	db  *DB
	now func() time.Time
}

func NewRefreshStore(db *DB) *RefreshStore {
	return &RefreshStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

type storedRecord struct {
	UserID    string      `json:"user_id"`
	Status    auth.Status `json:"status"`
	FamilyID  string      `json:"family_id"`
	ParentID  string      `json:"parent_id,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	ExpiresAt time.Time   `json:"expires_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

func (s *RefreshStore) Create(ctx context.Context, rec *auth.RefreshRecord) error {
	err := s.db.update(ctx, func(tx *bolt.Tx) error {
		b := tx.Bucket(bktRecords)
		id := []byte(rec.TokenID)
		if b.Get(id) != nil {
			return auth.ErrRecordExists
		}
		if err := putRecord(b, id, storedRecord{
			UserID:    rec.UserID,
			Status:    rec.Status,
			FamilyID:  rec.FamilyID,
			ParentID:  rec.ParentID,
			CreatedAt: rec.CreatedAt,
			ExpiresAt: rec.ExpiresAt,
			UpdatedAt: rec.UpdatedAt,
		}); err != nil {
			return err
		}
		fam, err := tx.Bucket(bktFamilies).CreateBucketIfNotExists([]byte(rec.FamilyID))
		if err != nil {
			return err
		}
		return fam.Put(id, nil)
	})
	return storeErr("create", err)
}

func (s *RefreshStore) Get(ctx context.Context, tokenID string) (*auth.RefreshRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, storeErr("get", err)
	}
	var out *auth.RefreshRecord
	err := s.db.db.View(func(tx *bolt.Tx) error {
		sr, err := getRecord(tx.Bucket(bktRecords), []byte(tokenID))
		if err != nil {
			return err
		}
		out = &auth.RefreshRecord{
			TokenID:   tokenID,
			UserID:    sr.UserID,
			Status:    sr.Status,
			FamilyID:  sr.FamilyID,
			ParentID:  sr.ParentID,
			CreatedAt: sr.CreatedAt,
			ExpiresAt: sr.ExpiresAt,
			UpdatedAt: sr.UpdatedAt,
		}
		return nil
	})
	if err != nil {
		return nil, storeErr("get", err)
	}
	return out, nil
}

func (s *RefreshStore) MarkRotated(ctx context.Context, tokenID string) error {
	return s.update(ctx, "mark rotated", tokenID, func(sr *storedRecord) (bool, error) {
		if sr.Status != auth.StatusActive {
			return false, auth.ErrNotActive
		}
		sr.Status = auth.StatusRotated
		return true, nil
	})
}

func (s *RefreshStore) Revoke(ctx context.Context, tokenID string) error {
	return s.update(ctx, "revoke", tokenID, func(sr *storedRecord) (bool, error) {
		if sr.Status == auth.StatusRevoked {
			return false, nil
		}
		sr.Status = auth.StatusRevoked
		return true, nil
	})
}

func (s *RefreshStore) RevokeFamily(ctx context.Context, familyID string) (int, error) {
	n := 0
	now := s.now()
	err := s.db.update(ctx, func(tx *bolt.Tx) error {
		fam := tx.Bucket(bktFamilies).Bucket([]byte(familyID))
		if fam == nil {
			return nil
		}
		records := tx.Bucket(bktRecords)
		return fam.ForEach(func(id, _ []byte) error {
			sr, err := getRecord(records, id)
			if err != nil {
				return err
			}
			if sr.Status == auth.StatusRevoked {
				return nil
			}
			sr.Status = auth.StatusRevoked
			sr.UpdatedAt = now
			n++
			return putRecord(records, id, sr)
		})
	})
	if err != nil {
		return 0, storeErr("revoke family", err)
	}
	return n, nil
}

func (s *RefreshStore) update(ctx context.Context, op, tokenID string, fn func(*storedRecord) (bool, error)) error {
	err := s.db.update(ctx, func(tx *bolt.Tx) error {
		b := tx.Bucket(bktRecords)
		id := []byte(tokenID)
		sr, err := getRecord(b, id)
		if err != nil {
			return err
		}
		changed, err := fn(&sr)
		if err != nil || !changed {
			return err
		}
		sr.UpdatedAt = s.now()
		return putRecord(b, id, sr)
	})
	return storeErr(op, err)
}

func getRecord(b *bolt.Bucket, id []byte) (storedRecord, error) {
	var sr storedRecord
	raw := b.Get(id)
	if raw == nil {
		return sr, auth.ErrNotFound
	}
	err := json.Unmarshal(raw, &sr)
	return sr, err
}

func putRecord(b *bolt.Bucket, id []byte, sr storedRecord) error {
	raw, err := json.Marshal(sr)
	if err != nil {
		return err
	}
	return b.Put(id, raw)
}
