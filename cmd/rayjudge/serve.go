package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/programme-lv/rayjudge/internal/broker"
	"github.com/programme-lv/rayjudge/internal/broker/rmq"
	"github.com/programme-lv/rayjudge/internal/broker/sqsq"
	"github.com/programme-lv/rayjudge/internal/environment"
	"github.com/programme-lv/rayjudge/internal/judge"
	"github.com/programme-lv/rayjudge/internal/logging"
	"github.com/programme-lv/rayjudge/internal/pipeline"
	"github.com/programme-lv/rayjudge/internal/resultsink/natssink"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

func openBroker(cfg environment.Config, logger *slog.Logger) broker.Broker {
	if cfg.Broker == environment.BrokerSQS {
		return sqsq.New(sqsq.Config{
			QueueURL:      cfg.SQS.QueueURL,
			Region:        cfg.SQS.Region,
			DeadLetterURL: cfg.SQS.DeadLetterURL,
			WaitSeconds:   cfg.SQS.WaitSeconds,
		}, logger)
	}
	return rmq.New(rmq.Config{
		URL:                cfg.AMQP.URL,
		Queue:              cfg.AMQP.Queue,
		Exchange:           cfg.AMQP.Exchange,
		RoutingKey:         cfg.AMQP.RoutingKey,
		Prefetch:           cfg.AMQP.Prefetch,
		DeadLetterExchange: cfg.AMQP.DeadLetterExchange,
		DeadLetterQueue:    cfg.AMQP.DeadLetterQueue,
		QueueType:          cfg.AMQPQueueType(),
	}, logger)
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := logging.Setup(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger.Info("initializing rayjudge",
		slog.String("broker", cfg.Broker),
		slog.Int("workers", cfg.Workers),
		slog.String("executor", judge.Describe(cfg.Executor)))

	newExecutor, err := judge.New(cfg.Executor)
	if err != nil {
		return err
	}

	b := openBroker(cfg, logger)
	if err := b.Connect(ctx); err != nil {
		return err
	}
	defer func() {
		if err := b.Close(); err != nil {
			logger.Error("failed to close broker connection", slog.String("error", err.Error()))
		}
	}()
	if err := b.DeclareTopology(ctx); err != nil {
		return err
	}

	opts := []pipeline.PoolOption{
		pipeline.WithPoolLogger(logger),
		pipeline.WithMaxDeliveries(cfg.MaxDeliveries),
	}
	if cfg.NATS.URL != "" {
		sink, err := natssink.Connect(cfg.NATS.URL, cfg.NATS.Subject)
		if err != nil {
			return err
		}
		defer func() {
			if err := sink.Close(); err != nil {
				logger.Warn("failed to drain nats connection", slog.String("error", err.Error()))
			}
		}()
		opts = append(opts, pipeline.WithResultSink(sink))
		logger.Info("streaming judge results", slog.String("subject", cfg.NATS.Subject))
	}

	p := pipeline.New(logger)
	pool, err := pipeline.NewPool(p, cfg.Workers, newExecutor, opts...)
	if err != nil {
		return err
	}
	router := pipeline.NewRouter(p, logger)

	return run(ctx, b, p, pool, router, logger)
}

// run consumes until ctx is cancelled or the broker subscription breaks,
// then lets the workers finish in-flight jobs and requeues what is left.
func run(ctx context.Context, b broker.Broker, p *pipeline.Pipeline, pool *pipeline.Pool, router *pipeline.Router, logger *slog.Logger) error {
	poolCtx, stopPool := context.WithCancel(context.WithoutCancel(ctx))
	defer stopPool()

	var g errgroup.Group
	g.Go(func() error { return pool.Run(poolCtx) })

	consumeErr := b.Consume(ctx, router.Route)
	if consumeErr != nil {
		logger.Error("consumer stopped", slog.String("error", consumeErr.Error()))
	}

	logger.Info("shutting down, waiting for in-flight jobs", slog.Int("busy", pool.Busy()))
	stopPool()
	if err := g.Wait(); err != nil {
		return fmt.Errorf("worker pool failed: %w", err)
	}

	requeued := p.Drain()
	logger.Info("rayjudge stopped",
		slog.Int("requeued", requeued),
		slog.Int("unresolved", p.Pending()),
		slog.Any("stats", p.Stats().Snapshot()))
	return consumeErr
}
