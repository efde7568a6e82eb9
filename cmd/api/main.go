package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/credential-service/internal/api/http"
	"github.com/spec-kit/credential-service/internal/api/http/handlers"
	"github.com/spec-kit/credential-service/internal/auth"
	"github.com/spec-kit/credential-service/internal/config"
	"github.com/spec-kit/credential-service/internal/domain"
	"github.com/spec-kit/credential-service/internal/events"
	"github.com/spec-kit/credential-service/internal/keys"
	"github.com/spec-kit/credential-service/internal/observability"
	"github.com/spec-kit/credential-service/internal/persistence"
	"github.com/spec-kit/credential-service/internal/repository"
	"github.com/spec-kit/credential-service/internal/repository/memory"
	"github.com/spec-kit/credential-service/internal/service"
	"github.com/spec-kit/credential-service/internal/vc"
	"github.com/spec-kit/credential-service/internal/worker"
	"github.com/spec-kit/credential-service/migrations"
)

type stores struct {
	credentials repository.CredentialStore
	tokens      repository.ReferenceTokenStore
	usage       repository.UsageLog
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	km, err := keys.LoadFromFiles(cfg.Keys.PrivateKeyPath, cfg.Keys.PublicKeyPath, cfg.Keys.IssuerDID)
	if err != nil {
		logger.Fatal("failed to load issuer keys", zap.Error(err))
	}
	logger.Info("issuer keys loaded", zap.String("issuer", km.IssuerDID()), zap.String("kid", km.KeyID()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if pg.Enabled() && cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.Pool, migrations.FS, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	var redis *persistence.Redis
	if cfg.Tokens.Store == config.TokenStoreRedis {
		redis, err = persistence.NewRedis(ctx, cfg.Redis, true, logger)
		if err != nil {
			logger.Fatal("failed to connect redis", zap.Error(err))
		}
		defer redis.Close()
	}

	st := buildStores(cfg, pg, redis, logger)
	clock := clockwork.NewRealClock()
	metrics := observability.NewMetrics()

	dispatcher := events.NewInMemoryDispatcher()
	worker.StartAuditWorker(service.NewAuditService(dispatcher, logger))
	if cfg.Kafka.Enabled() {
		publisher, err := events.NewKafkaPublisher(cfg.Kafka, logger)
		if err != nil {
			logger.Fatal("failed to create kafka publisher", zap.Error(err))
		}
		publisher.Register(dispatcher)
		defer func() {
			flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer flushCancel()
			publisher.Close(flushCtx)
		}()
	}

	codec := vc.NewCodec(km)
	broker := service.NewTokenBroker(service.TokenBrokerDependencies{
		Store:   st.tokens,
		Clock:   clock,
		Logger:  logger,
		Metrics: metrics,
		Config: service.TokenBrokerConfig{
			CheckInTTL:    cfg.Tokens.CheckInTTL,
			CheckInLength: cfg.Tokens.CheckInLength,
			ShareLength:   cfg.Tokens.ShareLength,
			SingleUse:     cfg.Tokens.CheckInSingleUse,
			StoreTimeout:  cfg.Verification.StoreTimeout,
		},
	})
	issuer := service.NewIssuerService(service.IssuerDependencies{
		Credentials:  st.credentials,
		Tokens:       broker,
		Codec:        codec,
		Dispatcher:   dispatcher,
		Clock:        clock,
		Logger:       logger,
		StoreTimeout: cfg.Verification.StoreTimeout,
	})
	verifier := service.NewVerificationService(service.VerificationDependencies{
		Credentials: st.credentials,
		Usage:       st.usage,
		Tokens:      broker,
		Codec:       codec,
		Dispatcher:  dispatcher,
		Clock:       clock,
		Logger:      logger,
		Metrics:     metrics,
		Config: service.VerificationConfig{
			CheckInTimeout: cfg.Verification.CheckInTimeout,
			StoreTimeout:   cfg.Verification.StoreTimeout,
			BundlePolicy:   domain.BundlePolicy(cfg.Verification.BundlePolicy),
		},
	})
	shares := service.NewShareService(service.ShareDependencies{
		Credentials:  st.credentials,
		Tokens:       broker,
		Verifier:     verifier,
		Logger:       logger,
		MaxHours:     cfg.Tokens.MaxShareHours,
		StoreTimeout: cfg.Verification.StoreTimeout,
	})

	cleanup := worker.NewTokenCleanupWorker(st.tokens, clock, logger, metrics, worker.TokenCleanupConfig{
		Interval:  cfg.Tokens.CleanupInterval,
		Retention: cfg.Tokens.Retention,
	})
	go cleanup.Run(ctx)

	deps := map[string]handlers.Pinger{}
	if pg.Enabled() {
		deps["postgres"] = pg
	}
	if redis != nil {
		deps["redis"] = redis
	}

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, httptransport.MiddlewareConfig{
		Timeout:          cfg.App.RequestTimeout(),
		CORSAllowOrigins: cfg.App.CORSAllowOrigins,
	})
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:      handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, deps),
		CheckIn:     handlers.NewCheckInHandler(verifier, broker),
		Verify:      handlers.NewVerifyHandler(verifier),
		Credentials: handlers.NewCredentialsHandler(issuer, verifier, clock),
		Shares:      handlers.NewSharesHandler(shares, clock),
		Issuer:      handlers.NewIssuerHandler(km),
		AdminGuard:  auth.NewAdminGuard(cfg.Admin.APIKeyHash, logger),
		RateLimiter: httptransport.NewIPRateLimiter(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst, clock),
		Metrics:     metrics,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	_ = app.ShutdownWithTimeout(10 * time.Second)
}

func buildStores(cfg *config.Config, pg *persistence.Postgres, redis *persistence.Redis, logger *zap.Logger) stores {
	var st stores
	if pg.Enabled() {
		pool := pg.Pool
		st.credentials = repository.NewCredentialRepository(pool)
		st.usage = repository.NewUsageRepository(pool)
	} else {
		logger.Warn("running on in-memory credential and usage stores; data is lost on restart")
		st.credentials = memory.NewCredentialStore()
		st.usage = memory.NewUsageLog()
	}

	switch cfg.Tokens.Store {
	case config.TokenStoreRedis:
		st.tokens = repository.NewRedisReferenceTokenRepository(redis.Client, cfg.Tokens.Retention)
	case config.TokenStorePostgres:
		st.tokens = repository.NewReferenceTokenRepository(pg.Pool)
	default:
		st.tokens = memory.NewTokenStore()
	}
	logger.Info("reference token store selected", zap.String("store", cfg.Tokens.Store))
	return st
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
