package retry

import (
	"errors"
	"time"

	"go.uber.org/zap"

	domainauth "github.com/NordCoder/authd/internal/domain/auth"
)

// StorePolicy retries only ErrStoreUnavailable. Token and credential failures are final.
func StorePolicy(name string, attempts int, backoff Backoff, log *zap.Logger) Policy {
	if attempts <= 0 {
		attempts = 3
	}
	if backoff == nil {
		backoff = ExpoJitter{Base: 50 * time.Millisecond, Max: time.Second, Jitter: 0.2}
	}
	return Policy{
		Name:     name,
		Attempts: attempts,
		Backoff:  backoff,
		Retryable: func(err error) bool {
			return errors.Is(err, domainauth.ErrStoreUnavailable)
		},
		OnAttempt: func(i int, err error) {
			if log != nil && errors.Is(err, domainauth.ErrStoreUnavailable) {
				log.Warn("store retry", zap.String("op", name), zap.Int("attempt", i+1), zap.Error(err))
			}
		},
	}
}
