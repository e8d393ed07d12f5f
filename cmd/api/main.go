package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/mayowaagbi/CampusHealthSystem-sub000/internal/api"
	"github.com/mayowaagbi/CampusHealthSystem-sub000/internal/auth"
	"github.com/mayowaagbi/CampusHealthSystem-sub000/internal/config"
	"github.com/mayowaagbi/CampusHealthSystem-sub000/internal/domain"
	"github.com/mayowaagbi/CampusHealthSystem-sub000/internal/logging"
	"github.com/mayowaagbi/CampusHealthSystem-sub000/internal/notify"
	"github.com/mayowaagbi/CampusHealthSystem-sub000/internal/outbox"
	"github.com/mayowaagbi/CampusHealthSystem-sub000/internal/persistence/memory"
	persistence "github.com/mayowaagbi/CampusHealthSystem-sub000/internal/persistence/postgres"
	"github.com/mayowaagbi/CampusHealthSystem-sub000/internal/realtime"
	httptransport "github.com/mayowaagbi/CampusHealthSystem-sub000/internal/transport/http"
)

// store is satisfied by both backends.
type store interface {
	domain.LocationStore
	domain.StepLedger
	domain.ProfileStore
	domain.RecipientDirectory
	domain.AlertRepository
}

func main() {
	if err := config.LoadDotEnv(); err != nil {
		logrus.WithError(err).Fatal("failed to load .env")
	}
	cfg := config.Load()
	logger := logging.NewWithOutput("campus-health-api", os.Stdout, cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		backend    store
		goalOpts   = []domain.GoalOption{domain.WithDefaultGoal(cfg.DefaultStepGoal)}
		dispatcher *outbox.Dispatcher
	)

	switch cfg.StoreBackend {
	case config.BackendMemory:
		logger.Warn("using in-memory store; data is lost on restart")
		backend = memory.NewStore()
	default:
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			logger.WithError(err).Fatal("failed to connect to postgres")
		}
		defer pool.Close()

		repo := persistence.NewRepository(pool)
		if err := repo.Ping(ctx); err != nil {
			logger.WithError(err).Warn("postgres not reachable yet")
		}
		backend = repo
		goalOpts = append(goalOpts, domain.WithGoalEvents(repo))

		if cfg.OutboxEnabled {
			producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
			defer producer.Close()

			schemas := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
			dispatcher = outbox.NewDispatcher(pool, producer, schemas, cfg.OutboxPollInterval, cfg.OutboxBatchSize,
				outbox.WithLogger(logger.WithField("component", "outbox")))
			go dispatcher.Start(ctx)
		}
	}

	registry := realtime.NewRegistry(logger.WithField("component", "registry"))
	var fanout domain.Fanout = registry
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.WithError(err).Fatal("invalid REDIS_URL")
		}
		client := redis.NewClient(opts)
		defer client.Close()

		relay := realtime.NewRedisRelay(client, cfg.RealtimeTopic, registry, logger.WithField("component", "relay"))
		fanout = relay
		go func() {
			if err := relay.Run(ctx); err != nil && ctx.Err() == nil {
				logger.WithError(err).Error("realtime relay stopped")
			}
		}()
	}

	sms := notify.NewSMSSender(cfg.SMSProvider, cfg.SMSAPIKey, cfg.SMSSender, logger.WithField("component", "sms"))
	goals := domain.NewGoalNotifier(backend, sms, logger.WithField("component", "goals"), goalOpts...)
	tracker := domain.NewTracker(backend, backend, logger.WithField("component", "tracker"), domain.WithGoalNotifier(goals))
	alerts := domain.NewAlertService(backend, backend, fanout, logger.WithField("component", "alerts"))

	handler := api.NewHandler(tracker, alerts, registry,
		api.WithLogger(logger.WithField("component", "api")),
		api.WithWSOptions(realtime.WSOptions{SendBuffer: cfg.WSSendBuffer, WriteTimeout: cfg.WSWriteTimeout}),
		api.WithCheckOrigin(func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || origin == cfg.CORSOrigin
		}),
	)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer})

	server := httptransport.NewServer(httptransport.DefaultServerConfig(cfg.HTTPAddress),
		httptransport.Chain(mux,
			httptransport.CORS(cfg.CORSOrigin),
			logging.Middleware(logger),
			authMiddleware.Wrap,
		))

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.WithField("address", cfg.HTTPAddress).Info("campus-health-api listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("server error")
		}
	}()

	<-shutdownCh
	logger.Info("shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	// Shutdown does not wait for hijacked connections, so live channels are closed explicitly.
	registry.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("graceful shutdown failed")
	}

	if dispatcher != nil {
		dispatcher.Wait()
	}
}
