package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	config "github.com/NordCoder/authd/internal/config/authd"
	"github.com/NordCoder/authd/internal/obs"
	"github.com/NordCoder/authd/internal/services/authd/auth"
	"github.com/NordCoder/authd/internal/tokens"
)

func main() {
	configPath := flag.String("config", os.Getenv("AUTHD_CONFIG"), "path to the YAML config file")
	flag.Parse()

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	logger, err := initLogger(cfg)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting authd", zap.String("env", cfg.App.Env), zap.String("ver", cfg.App.Version),
		zap.String("store", cfg.Store.Driver))

	otelShutdown, err := initOTel(rootCtx, cfg, logger)
	if err != nil {
		logger.Fatal("otel init", zap.Error(err))
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	st, err := initStore(rootCtx, cfg, logger)
	if err != nil {
		logger.Fatal("store init", zap.Error(err))
	}
	defer st.close()

	ev := initEvents(rootCtx, cfg, st, logger)
	defer ev.close()

	tm, err := tokens.New(cfg.Auth.AsTokensConfig(), st.refresh, logger, ev.opts...)
	if err != nil {
		logger.Fatal("tokens init", zap.Error(err))
	}
	creds, err := auth.NewPasswordVerifier(st.users, cfg.Auth.BcryptCost)
	if err != nil {
		logger.Fatal("credentials init", zap.Error(err))
	}
	uc := auth.NewUseCase(st.users, creds, tm, auth.Config{IssueAttempts: cfg.Auth.IssueRetryAttempts}, logger)

	workersCtx, stopWorkers := context.WithCancel(rootCtx)
	defer stopWorkers()
	ev.start(workersCtx)

	metricsSrv := obs.BootstrapMetricsServer(cfg.Server.MetricsAddr, st.health, logger)

	grpcServer, grpcLn, err := buildGRPCServer(cfg, logger, uc)
	if err != nil {
		logger.Fatal("build grpc", zap.Error(err))
	}
	grpcErrCh := make(chan error, 1)
	go func() { grpcErrCh <- serveGRPC(grpcServer, grpcLn, cfg, logger) }()

	httpSrv, err := buildHTTPServer(cfg, logger, uc)
	if err != nil {
		logger.Fatal("build http", zap.Error(err))
	}
	httpErrCh := make(chan error, 1)
	go func() { httpErrCh <- serveHTTP(httpSrv, cfg, logger) }()

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal")
	case err := <-grpcErrCh:
		if err != nil {
			logger.Error("grpc serve", zap.Error(err))
		}
	case err := <-httpErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http serve", zap.Error(err))
		}
	}

	shCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()

	_ = httpSrv.Shutdown(shCtx)
	grpcServer.GracefulStop()
	_ = metricsSrv.Shutdown(shCtx)
	stopWorkers()
	logger.Info("bye")
}
