package main

import (
	"context"

	"go.uber.org/zap"

	config "github.com/NordCoder/authd/internal/config/authd"
	"github.com/NordCoder/authd/internal/obs/retry"
	"github.com/NordCoder/authd/internal/outbox"
	"github.com/NordCoder/authd/internal/repository/kafka"
	pg "github.com/NordCoder/authd/internal/repository/postgres"
	"github.com/NordCoder/authd/internal/tokens"
)

type events struct {
	opts  []tokens.RotatorOption
	start func(ctx context.Context)
	close func()
}

// initEvents picks where reuse detections go: the postgres outbox relayed to kafka, kafka
// directly, or the log when no broker is configured.
func initEvents(ctx context.Context, cfg *config.Config, st *storage, logger *zap.Logger) *events {
	if !cfg.Kafka.Enable {
		return &events{
			opts:  []tokens.RotatorOption{tokens.WithEvents(tokens.NewLogSink(logger), nil)},
			start: func(context.Context) {},
			close: func() {},
		}
	}

	if err := kafka.EnsureTopic(ctx, cfg.Kafka.Brokers, kafka.TopicSpec{Name: cfg.Kafka.Topic}, logger); err != nil {
		logger.Warn("ensure topic failed, relying on auto creation", zap.Error(err))
	}
	producer := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:      cfg.Kafka.Brokers,
		Topic:        cfg.Kafka.Topic,
		WriteTimeout: cfg.Kafka.WriteTimeout,
	}).WithLogger(logger)
	pub := kafka.NewSecurityEventsKafka(producer)
	closeProducer := func() {
		if err := producer.Close(); err != nil {
			logger.Warn("kafka producer close", zap.Error(err))
		}
	}

	if st.db == nil {
		return &events{
			opts:  []tokens.RotatorOption{tokens.WithEvents(pub, nil)},
			start: func(context.Context) {},
			close: closeProducer,
		}
	}

	repo := pg.NewOutboxRepo(st.db)
	runner := outbox.NewOutboxRunner(logger.With(zap.String("component", "outbox")), repo,
		outbox.MakeGlobalOutboxHandler(pub, retry.RelayPolicy(logger)),
		outbox.RunnerConfig{
			Workers:       cfg.Outbox.Workers,
			BatchSize:     cfg.Outbox.BatchSize,
			WaitTime:      cfg.Outbox.WaitTime,
			InProgressTTL: cfg.Outbox.InProgressTTL,
		})
	return &events{
		opts:  []tokens.RotatorOption{tokens.WithEvents(outbox.NewReuseSink(repo), pg.NewTransactor(st.db, logger))},
		start: runner.Start,
		close: func() {
			runner.Wait()
			closeProducer()
		},
	}
}
