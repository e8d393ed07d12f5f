package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-co-op/gocron/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/mayowaagbi/CampusHealthSystem-sub000/internal/config"
	"github.com/mayowaagbi/CampusHealthSystem-sub000/internal/logging"
	"github.com/mayowaagbi/CampusHealthSystem-sub000/internal/observability"
	"github.com/mayowaagbi/CampusHealthSystem-sub000/internal/outbox"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		logrus.WithError(err).Fatal("failed to load .env")
	}
	cfg := config.Load()
	logger := logging.NewWithOutput("campus-health-dlqmanager", os.Stdout, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Fatal("dlq manager stopped")
	}
	logger.Info("dlq manager stopped")
}

// run replays the dead-letter queue on a fixed interval until ctx ends.
func run(ctx context.Context, cfg config.Config, logger *logrus.Entry) error {
	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	manager := outbox.NewDLQManager(pool, cfg.DLQMaxRetries, cfg.DLQBaseDelay, logger.WithField("component", "dlq"))
	go observability.ServeMetrics(ctx, cfg.MetricsAddress, cfg.ShutdownTimeout, logger)

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	// Reschedule mode drops a tick instead of overlapping a slow pass.
	_, err = scheduler.NewJob(
		gocron.DurationJob(cfg.DLQPollInterval),
		gocron.NewTask(replay, ctx, manager, cfg.DLQBatchSize, logger),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return err
	}

	scheduler.Start()
	logger.WithFields(logrus.Fields{
		"interval":    cfg.DLQPollInterval.String(),
		"max_retries": cfg.DLQMaxRetries,
		"batch":       cfg.DLQBatchSize,
	}).Info("dlq manager started")

	<-ctx.Done()
	return scheduler.Shutdown()
}

func replay(ctx context.Context, manager *outbox.DLQManager, batch int, logger logrus.FieldLogger) {
	requeued, err := manager.RunOnce(ctx, batch)
	if err != nil {
		logger.WithError(err).Error("dlq pass failed")
	}
	if requeued > 0 {
		logger.WithField("requeued", requeued).Info("dlq pass requeued events")
	}
}
