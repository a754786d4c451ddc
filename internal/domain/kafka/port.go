package kafka

import (
	"context"

	"github.com/NordCoder/authd/internal/domain/auth"
)

// SecurityEvents publishes token lifecycle incidents for downstream alerting.
type SecurityEvents interface {
	PublishRefreshReuse(ctx context.Context, ev auth.ReuseEvent) error
}
