package tokens

import (
	"context"

	"go.uber.org/zap"

	domainauth "github.com/NordCoder/authd/internal/domain/auth"
	"github.com/NordCoder/authd/internal/obs"
)

// LogSink reports reuse detections to the log only. It is the sink used when no broker is configured.
type LogSink struct {
	log *zap.Logger
}

func NewLogSink(log *zap.Logger) *LogSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogSink{log: log.With(zap.String("component", "security_events"))}
}

func (s *LogSink) ReuseDetected(ctx context.Context, ev domainauth.ReuseEvent) error {
	obs.WithTrace(ctx, s.log).Warn("refresh token reuse detected",
		zap.String("token_id", ev.TokenID),
		zap.String("family_id", ev.FamilyID),
		zap.String("user_id", ev.UserID),
		zap.String("prev_status", string(ev.PrevStatus)),
		zap.Int("revoked", ev.Revoked),
		zap.Time("detected_at", ev.DetectedAt),
	)
	return nil
}
