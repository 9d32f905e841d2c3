package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ayo6706/custody-engine/internal/api"
	"github.com/ayo6706/custody-engine/internal/api/handler"
	"github.com/ayo6706/custody-engine/internal/api/middleware"
	"github.com/ayo6706/custody-engine/internal/auth"
	"github.com/ayo6706/custody-engine/internal/config"
	"github.com/ayo6706/custody-engine/internal/db"
	"github.com/ayo6706/custody-engine/internal/domain"
	"github.com/ayo6706/custody-engine/internal/events"
	"github.com/ayo6706/custody-engine/internal/gateway"
	"github.com/ayo6706/custody-engine/internal/idempotency"
	"github.com/ayo6706/custody-engine/internal/observability"
	"github.com/ayo6706/custody-engine/internal/repository"
	"github.com/ayo6706/custody-engine/internal/service"
	"github.com/ayo6706/custody-engine/internal/worker"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Run bootstraps the HTTP server and background workers, blocking until shutdown.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	observability.Init()
	middleware.SetJWTSecret(cfg.JWTSecret)
	middleware.SetJWTValidation(cfg.JWTIssuer, cfg.JWTAudience)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var redisClient *redis.Client
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisClient, err = newRedisClient(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer redisClient.Close()
	}

	store, pool, err := openStore(ctx, cfg, redisClient)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.StoreBackend, err)
	}
	defer store.Close()
	if pool != nil {
		defer pool.Close()
	}
	logger.Info("record store ready", zap.String("backend", cfg.StoreBackend), zap.Duration("record_ttl", cfg.RecordTTL))

	sink, closeSink, err := newEventSink(cfg, logger)
	if err != nil {
		return fmt.Errorf("init event sink: %w", err)
	}
	defer closeSink()

	engine := service.NewEngine(store, auth.ContextGate{}, sink, gateway.NewMockGateway())
	engine.SetRecordLifetime(repository.Lifetime{Extend: cfg.RecordTTL, Max: cfg.RecordMaxLifetime})
	engine.Payouts.WithMaxAttempts(cfg.PayoutMaxAttempts)
	feeCfg, err := engine.Fees.Initialize(ctx, domain.FeeConfig{
		Admin:        domain.Identity(cfg.AdminIdentity),
		Arbitrator:   domain.Identity(cfg.ArbitratorIdentity),
		FeeCollector: domain.Identity(cfg.FeeCollectorOrAdmin()),
		BaseFeeBps:   cfg.BaseFeeBps,
	})
	if err != nil {
		return fmt.Errorf("initialize fee config: %w", err)
	}
	logger.Info("fee configuration loaded", zap.Uint64("version", feeCfg.Version), zap.Uint32("base_fee_bps", feeCfg.BaseFeeBps))

	webhookSvc := service.NewWebhookService(engine, cfg.WebhookHMACKey, cfg.WebhookSkipSignature)
	var idemCache redis.Cmdable
	if redisClient != nil {
		idemCache = redisClient
	}
	idemStore := idempotency.NewStore(idemCache, store, cfg.IdempotencyTTL)

	payoutWorker := worker.NewPayoutWorker(engine.Payouts).
		WithPollInterval(cfg.PayoutPollInterval).
		WithBatchSize(cfg.PayoutBatchSize)
	stopPayouts := payoutWorker.Run(ctx)
	stopExpiry := worker.NewExpiryWorker(store).WithInterval(cfg.SweepInterval).Run(ctx)
	stopReconciliation := worker.NewReconciliationWorker(service.NewReconciliationService(engine)).
		WithInterval(cfg.ReconciliationInterval).
		Run(ctx)

	var healthRedis redis.Cmdable
	if redisClient != nil {
		healthRedis = redisClient
	}
	health := handler.NewHealthHandler(store, pool, healthRedis)
	router := api.NewRouter(cfg, logger, engine, webhookSvc, idemStore, health)

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("port", cfg.HTTPPort))
		serverErr <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}

	logger.Info("stopping workers")
	stopPayouts()
	stopExpiry()
	stopReconciliation()

	logger.Info("shutdown complete")
	return nil
}

// openStore opens the configured backend. The pool is returned for readiness
// checks when the backend is postgres.
func openStore(ctx context.Context, cfg *config.Config, redisClient *redis.Client) (repository.Store, *pgxpool.Pool, error) {
	lifetime := repository.Lifetime{Extend: cfg.RecordTTL, Max: cfg.RecordMaxLifetime}
	if err := lifetime.Validate(); err != nil {
		return nil, nil, err
	}

	switch cfg.StoreBackend {
	case config.BackendBolt:
		s, err := repository.NewBoltStore(cfg.BoltPath, lifetime)
		return s, nil, err
	case config.BackendPostgres:
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := db.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return repository.NewPostgresStore(pool, lifetime), pool, nil
	case config.BackendRedis:
		if redisClient == nil {
			return nil, nil, errors.New("redis client not configured")
		}
		return repository.NewRedisStore(redisClient, lifetime), nil, nil
	default:
		return repository.NewMemoryStore(lifetime), nil, nil
	}
}

func newEventSink(cfg *config.Config, logger *zap.Logger) (events.Sink, func(), error) {
	sinks := events.Multi{events.NewLogSink(logger)}
	if len(cfg.KafkaBrokers) == 0 {
		return sinks, func() {}, nil
	}
	kafkaSink, err := events.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("kafka event sink enabled", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	closeFn := func() {
		if err := kafkaSink.Close(); err != nil {
			logger.Warn("close kafka sink failed", zap.Error(err))
		}
	}
	return append(sinks, kafkaSink), closeFn, nil
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zap.DebugLevel
	case "warn":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

// newLogger builds the production JSON logger. When logFile is set, output is
// also written to a size-rotated file.
func newLogger(level, logFile string) (*zap.Logger, error) {
	lvl := zap.NewAtomicLevelAt(parseLevel(level))
	if logFile == "" {
		cfg := zap.NewProductionConfig()
		cfg.Level = lvl
		return cfg.Build()
	}

	encoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	rotator := &lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     28,
		Compress:   true,
	}
	core := zapcore.NewTee(
		zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), lvl),
		zapcore.NewCore(encoder, zapcore.AddSync(rotator), lvl),
	)
	return zap.New(core, zap.AddCaller()), nil
}

func newRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}
