package retry

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// RelayPolicy retries broker writes of outbox messages. Any error is retryable; a message that
// still fails is left for the next outbox pass.
func RelayPolicy(log *zap.Logger) Policy {
	if log == nil {
		log = zap.NewNop()
	}
	return Policy{
		Name:     "outbox_relay",
		Attempts: 5,
		Backoff:  ExpoJitter{Base: 200 * time.Millisecond, Max: 10 * time.Second, Jitter: 0.2},
		OnAttempt: func(i int, err error) {
			log.Warn("relay retry", zap.Int("attempt", i+1), zap.Error(err))
		},
		OnExhaust: func(err error) {
			if !errors.Is(err, context.Canceled) {
				log.Error("relay retries exhausted, message stays in outbox", zap.Error(err))
			}
		},
	}
}
