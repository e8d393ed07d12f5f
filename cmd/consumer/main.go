package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/mayowaagbi/CampusHealthSystem-sub000/internal/config"
	"github.com/mayowaagbi/CampusHealthSystem-sub000/internal/consumer"
	"github.com/mayowaagbi/CampusHealthSystem-sub000/internal/logging"
	"github.com/mayowaagbi/CampusHealthSystem-sub000/internal/observability"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		logrus.WithError(err).Fatal("failed to load .env")
	}
	cfg := config.Load()
	logger := logging.NewWithOutput("campus-health-consumer", os.Stdout, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Fatal("consumer stopped")
	}
	logger.Info("consumer stopped")
}

// run consumes every configured topic until ctx ends. A processor that gives
// up on a record cancels its siblings so the process exits and restarts from
// the last committed offsets.
func run(ctx context.Context, cfg config.Config, logger *logrus.Entry) error {
	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	router := consumer.StatsHandler{}.Register(consumer.NewRouter(consumer.NewAuditHandler(pool)))

	go observability.ServeMetrics(ctx, cfg.MetricsAddress, cfg.ShutdownTimeout, logger)

	group, groupCtx := errgroup.WithContext(ctx)
	for _, topic := range cfg.ConsumerTopics {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:         cfg.KafkaBrokers,
			GroupID:         cfg.ConsumerGroupID,
			Topic:           topic,
			MinBytes:        1,
			MaxBytes:        4 << 20,
			MaxWait:         500 * time.Millisecond,
			CommitInterval:  time.Second,
			StartOffset:     kafka.FirstOffset,
			ReadLagInterval: -1,
		})
		log := logger.WithFields(logrus.Fields{"topic": topic, "group": cfg.ConsumerGroupID})
		proc := consumer.NewProcessor(reader, router,
			consumer.WithLogger(log),
			consumer.WithRetry(cfg.ConsumerAttempts, cfg.ConsumerBackoff),
		)

		group.Go(func() error {
			defer reader.Close()
			log.Info("consuming")
			err := proc.Run(groupCtx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	return group.Wait()
}
