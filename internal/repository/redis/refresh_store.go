// Package redis stores refresh records as hashes with a TTL. Every state change runs as a Lua
// script, so the active->rotated transition is atomic across replicas of the service.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/NordCoder/authd/internal/domain/auth"
)

var _ auth.RefreshStore = (*RefreshStore)(nil)

const (
	fUserID    = "user_id"
	fStatus    = "status"
	fFamilyID  = "family_id"
	fParentID  = "parent_id"
	fCreatedAt = "created_at"
	fExpiresAt = "expires_at"
	fUpdatedAt = "updated_at"
)

// Records outlive their expiry by the codec leeway plus this margin, so a token the codec still
// accepts always finds its record and replay is recognised.
const retainMargin = time.Minute

const createScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("HSET", KEYS[1],
  "user_id", ARGV[1], "status", ARGV[2], "family_id", ARGV[3], "parent_id", ARGV[4],
  "created_at", ARGV[5], "expires_at", ARGV[6], "updated_at", ARGV[5])
redis.call("PEXPIRE", KEYS[1], ARGV[7])
redis.call("SADD", KEYS[2], ARGV[8])
if redis.call("PTTL", KEYS[2]) < tonumber(ARGV[7]) then
  redis.call("PEXPIRE", KEYS[2], ARGV[7])
end
return 1
`

const markRotatedScript = `
local st = redis.call("HGET", KEYS[1], "status")
if not st then
  return 0
end
if st ~= "active" then
  return 1
end
redis.call("HSET", KEYS[1], "status", "rotated", "updated_at", ARGV[1])
return 2
`

const revokeScript = `
local st = redis.call("HGET", KEYS[1], "status")
if not st then
  return 0
end
if st ~= "revoked" then
  redis.call("HSET", KEYS[1], "status", "revoked", "updated_at", ARGV[1])
end
return 1
`

// Family members are addressed by prefix inside the script, which ties a family to one node.
const revokeFamilyScript = `
local ids = redis.call("SMEMBERS", KEYS[1])
local n = 0
for _, id in ipairs(ids) do
  local key = ARGV[1] .. id
  local st = redis.call("HGET", key, "status")
  if st and st ~= "revoked" then
    redis.call("HSET", key, "status", "revoked", "updated_at", ARGV[2])
    n = n + 1
  end
end
return n
`

var (
	createLua       = redis.NewScript(createScript)
	markRotatedLua  = redis.NewScript(markRotatedScript)
	revokeLua       = redis.NewScript(revokeScript)
	revokeFamilyLua = redis.NewScript(revokeFamilyScript)
)

type RefreshStore struct {
	rdb    redis.UniversalClient
	prefix string
	retain time.Duration
	now    func() time.Time
}

// NewRefreshStore keeps each record for leeway plus a minute past its expiry.
func NewRefreshStore(rdb redis.UniversalClient, prefix string, leeway time.Duration) *RefreshStore {
	if prefix == "" {
		prefix = "authd"
	}
	if leeway < 0 {
		leeway = 0
	}
	return &RefreshStore{rdb: rdb, prefix: prefix, retain: leeway + retainMargin, now: time.Now}
}

func (s *RefreshStore) recordPrefix() string       { return s.prefix + ":rt:" }
func (s *RefreshStore) recordKey(id string) string { return s.recordPrefix() + id }
func (s *RefreshStore) familyKey(id string) string { return s.prefix + ":rtf:" + id }
func millis(t time.Time) string                    { return strconv.FormatInt(t.UnixMilli(), 10) }

func (s *RefreshStore) Create(ctx context.Context, rec *auth.RefreshRecord) error {
	ttl := rec.ExpiresAt.Sub(s.now()) + s.retain
	if ttl < time.Second {
		ttl = time.Second
	}
	res, err := createLua.Run(ctx, s.rdb,
		[]string{s.recordKey(rec.TokenID), s.familyKey(rec.FamilyID)},
		rec.UserID, string(rec.Status), rec.FamilyID, rec.ParentID,
		millis(rec.CreatedAt), millis(rec.ExpiresAt), ttl.Milliseconds(), rec.TokenID,
	).Int()
	if err != nil {
		return unavailable("create", err)
	}
	if res == 0 {
		return auth.ErrRecordExists
	}
	return nil
}

func (s *RefreshStore) Get(ctx context.Context, tokenID string) (*auth.RefreshRecord, error) {
	m, err := s.rdb.HGetAll(ctx, s.recordKey(tokenID)).Result()
	if err != nil {
		return nil, unavailable("get", err)
	}
	if len(m) == 0 {
		return nil, auth.ErrNotFound
	}
	return decodeRecord(tokenID, m)
}

func (s *RefreshStore) MarkRotated(ctx context.Context, tokenID string) error {
	res, err := markRotatedLua.Run(ctx, s.rdb, []string{s.recordKey(tokenID)}, millis(s.now())).Int()
	if err != nil {
		return unavailable("mark rotated", err)
	}
	switch res {
	case 0:
		return auth.ErrNotFound
	case 1:
		return auth.ErrNotActive
	}
	return nil
}

func (s *RefreshStore) Revoke(ctx context.Context, tokenID string) error {
	res, err := revokeLua.Run(ctx, s.rdb, []string{s.recordKey(tokenID)}, millis(s.now())).Int()
	if err != nil {
		return unavailable("revoke", err)
	}
	if res == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *RefreshStore) RevokeFamily(ctx context.Context, familyID string) (int, error) {
	n, err := revokeFamilyLua.Run(ctx, s.rdb, []string{s.familyKey(familyID)}, s.recordPrefix(), millis(s.now())).Int()
	if err != nil {
		return 0, unavailable("revoke family", err)
	}
	return n, nil
}

func (s *RefreshStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func decodeRecord(tokenID string, m map[string]string) (*auth.RefreshRecord, error) {
	rec := &auth.RefreshRecord{
		TokenID:  tokenID,
		UserID:   m[fUserID],
		Status:   auth.Status(m[fStatus]),
		FamilyID: m[fFamilyID],
		ParentID: m[fParentID],
	}
	var err error
	if rec.CreatedAt, err = parseMillis(m[fCreatedAt]); err != nil {
		return nil, err
	}
	if rec.ExpiresAt, err = parseMillis(m[fExpiresAt]); err != nil {
		return nil, err
	}
	if rec.UpdatedAt, err = parseMillis(m[fUpdatedAt]); err != nil {
		return nil, err
	}
	return rec, nil
}

func parseMillis(v string) (time.Time, error) {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("corrupt refresh record timestamp %q: %w", v, err)
	}
	return time.UnixMilli(ms).UTC(), nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: redis %s: %w", auth.ErrStoreUnavailable, op, err)
}
