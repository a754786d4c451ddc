package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/NordCoder/authd/internal/domain/auth"
	"github.com/NordCoder/authd/internal/domain/outbox"
)

var _ auth.EventSink = (*ReuseSink)(nil)

// ReuseSink records reuse events in the outbox. Called with a transactional context it commits
// together with the revocation.
type ReuseSink struct {
	repo outbox.Repository
}

func NewReuseSink(repo outbox.Repository) *ReuseSink { return &ReuseSink{repo: repo} }

func (s *ReuseSink) ReuseDetected(ctx context.Context, ev auth.ReuseEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal reuse event: %w", err)
	}
	key := fmt.Sprintf("reuse:%s:%d", ev.TokenID, ev.DetectedAt.UnixNano())
	return s.repo.Enqueue(ctx, key, outbox.KindRefreshReuse, data)
}
