package main

import (
	"go.uber.org/zap"

	config "github.com/NordCoder/authd/internal/config/authd"
	"github.com/NordCoder/authd/internal/obs"
)

func initLogger(cfg *config.Config) (*zap.Logger, error) {
	return obs.NewLogger(*cfg.AsLoggerConfig())
}
