package tokens

import (
	"context"
	"errors"
	"fmt"
	"time"

	domainauth "github.com/NordCoder/authd/internal/domain/auth"
)

// callStore bounds one store operation by timeout. An expired deadline is reported as
// ErrStoreUnavailable. A canceled caller is not an outage and comes back as context.Canceled,
// even when the backend already folded it into ErrStoreUnavailable.
func callStore(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	parent := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	err := fn(ctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled),
		errors.Is(parent.Err(), context.Canceled) && errors.Is(err, domainauth.ErrStoreUnavailable):
		return fmt.Errorf("store call abandoned: %w", context.Canceled)
	case errors.Is(err, domainauth.ErrStoreUnavailable):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", domainauth.ErrStoreUnavailable, err)
	}
	return err
}

type noTx struct{}

func (noTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }
