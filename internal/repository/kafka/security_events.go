package kafka

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/NordCoder/authd/internal/domain/auth"
	"github.com/NordCoder/authd/internal/domain/kafka"
)

const EventRefreshReuse = "refresh_reuse"

// SecurityEventsKafka encodes events as google.protobuf.Struct keyed by user id, so one
// user's incidents stay ordered within a partition.
type SecurityEventsKafka struct {
	p *Producer
}

func NewSecurityEventsKafka(p *Producer) *SecurityEventsKafka { return &SecurityEventsKafka{p: p} }

var (
	_ kafka.SecurityEvents = (*SecurityEventsKafka)(nil)
	_ auth.EventSink       = (*SecurityEventsKafka)(nil)
)

func (e *SecurityEventsKafka) PublishRefreshReuse(ctx context.Context, ev auth.ReuseEvent) error {
	msg, err := structpb.NewStruct(map[string]any{
		"type":        EventRefreshReuse,
		"token_id":    ev.TokenID,
		"family_id":   ev.FamilyID,
		"user_id":     ev.UserID,
		"prev_status": string(ev.PrevStatus),
		"revoked":     ev.Revoked,
		"detected_at": ev.DetectedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("build reuse event: %w", err)
	}
	return e.p.PublishProto(ctx, []byte(ev.UserID), msg)
}

// ReuseDetected publishes straight to the broker, for stores without an outbox.
func (e *SecurityEventsKafka) ReuseDetected(ctx context.Context, ev auth.ReuseEvent) error {
	return e.PublishRefreshReuse(ctx, ev)
}
