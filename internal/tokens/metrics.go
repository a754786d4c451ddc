package tokens

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	domainauth "github.com/NordCoder/authd/internal/domain/auth"
)

var (
	issuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "authd_token_pairs_issued_total",
		Help: "Token pairs handed out, by sign-in or rotation.",
	})
	rotationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authd_refresh_rotations_total",
		Help: "Refresh rotation attempts by outcome.",
	}, []string{"result"})
	reuseTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "authd_refresh_reuse_detected_total",
		Help: "Refresh tokens presented after leaving the active state.",
	})
	validationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authd_access_validations_total",
		Help: "Access token checks by outcome.",
	}, []string{"result"})
)

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domainauth.ErrReused):
		return "reused"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, domainauth.ErrStoreUnavailable):
		return "unavailable"
	case errors.Is(err, domainauth.ErrExpired):
		return "expired"
	case errors.Is(err, domainauth.ErrUnknown):
		return "unknown"
	case errors.Is(err, domainauth.ErrInvalid):
		return "invalid"
	default:
		return "error"
	}
}
