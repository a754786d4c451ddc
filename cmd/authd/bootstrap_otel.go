package main

import (
	"context"

	"go.uber.org/zap"

	config "github.com/NordCoder/authd/internal/config/authd"
	"github.com/NordCoder/authd/internal/obs"
)

func initOTel(ctx context.Context, cfg *config.Config, logger *zap.Logger) (func(context.Context) error, error) {
	o, err := obs.SetupOTel(ctx, cfg.AsOTELConfig())
	if err != nil {
		return nil, err
	}
	if cfg.OTEL.Enable {
		logger.Info("otel tracing enabled", zap.String("endpoint", cfg.OTEL.OTLPEndpoint))
	}
	return o.Shutdown, nil
}
