package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/token-bridge/internal/api/http"
	"github.com/spec-kit/token-bridge/internal/api/http/handlers"
	"github.com/spec-kit/token-bridge/internal/audit"
	"github.com/spec-kit/token-bridge/internal/auth"
	"github.com/spec-kit/token-bridge/internal/config"
	"github.com/spec-kit/token-bridge/internal/keys"
	"github.com/spec-kit/token-bridge/internal/observability"
	"github.com/spec-kit/token-bridge/internal/persistence"
	"github.com/spec-kit/token-bridge/internal/ratelimit"
	"github.com/spec-kit/token-bridge/internal/repository"
	"github.com/spec-kit/token-bridge/internal/service"
	"github.com/spec-kit/token-bridge/internal/servicetoken"
	"github.com/spec-kit/token-bridge/internal/session"
	"github.com/spec-kit/token-bridge/internal/worker"
	"github.com/spec-kit/token-bridge/migrations"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.App, cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), migrations.FS, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	provider, err := keys.NewProvider(cfg, keys.NewKeySource(cfg.Auth, redis.Client), logger)
	if err != nil {
		logger.Fatal("failed to init key provider", zap.Error(err))
	}
	if _, err := provider.ResolveSessionSecret(); err != nil {
		logger.Error("session secret unavailable; exchanges will fail", zap.Error(err))
	} else {
		logger.Info("session secret resolved", zap.String("source", provider.SecretSource()))
	}
	warmCtx, warmCancel := context.WithTimeout(ctx, cfg.Auth.KeyFetchTimeout())
	if err := provider.Warm(warmCtx); err != nil {
		logger.Error("signing key unavailable; exchanges will fail until it loads", zap.Error(err))
	} else {
		logger.Info("signing key loaded", zap.String("kid", provider.CurrentKeyID()))
	}
	warmCancel()

	metrics := observability.NewMetrics()

	recorder := audit.NewRecorder(logger, cfg.Audit.SinkTimeout(), audit.NewLogSink(logger))
	if pg.Enabled() && cfg.Audit.PersistEvents {
		recorder.AddSink(audit.NewStoreSink(repository.NewSecurityEventRepository(pg.PoolHandle())))
	}

	memoryLimiter := ratelimit.NewMemoryLimiter(nil)
	var limiter ratelimit.Limiter = memoryLimiter
	if cfg.RateLimit.Backend == "redis" {
		limiter = &ratelimit.Fallback{
			Primary:   ratelimit.NewRedisLimiter(redis.Client, nil),
			Secondary: memoryLimiter,
			Logger:    logger,
		}
	}

	var directory repository.UserDirectory = repository.NewMemoryDirectory()
	if pg.Enabled() {
		directory = repository.NewUserDirectory(pg.PoolHandle())
	} else {
		logger.Warn("no user directory configured; password logins will be rejected")
	}

	verifier := session.NewVerifier(provider, cfg.Auth.SessionLeeway(), logger, nil)

	exchangeService := service.NewExchangeService(cfg, service.ExchangeDependencies{
		Limiter:  limiter,
		Verifier: verifier,
		Keys:     provider,
		Minter:   servicetoken.NewMinter(cfg.Auth.ServiceNamespace, cfg.Auth.ServiceAudience, cfg.Auth.SigningTimeout(), nil),
		Recorder: recorder,
		Metrics:  metrics,
		Logger:   logger,
	})
	loginService, err := service.NewLoginService(cfg, service.LoginDependencies{
		Limiter:   limiter,
		Directory: directory,
		Issuer:    session.NewIssuer(provider, cfg.Auth.SessionTTL(), nil),
		Recorder:  recorder,
		Metrics:   metrics,
		Logger:    logger,
	})
	if err != nil {
		logger.Fatal("failed to init login service", zap.Error(err))
	}

	sweeperDone := worker.StartLimiterSweeper(ctx, memoryLimiter, cfg.RateLimit.SweepInterval(), logger)

	deps := map[string]handlers.Pinger{}
	if pg.Enabled() {
		deps["postgres"] = pg
	}
	if cfg.RateLimit.Backend == "redis" || cfg.Auth.SigningKeyRedisKey != "" {
		deps["redis"] = redis
	}

	app := httptransport.NewApp(cfg.App, logger, metrics)
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, deps),
		Token:  handlers.NewTokenHandler(exchangeService, cfg.Auth.SessionCookieName),
		Session: handlers.NewSessionHandler(loginService, handlers.CookieSettings{
			Name:   cfg.Auth.SessionCookieName,
			Secure: cfg.App.ProductionLike(),
		}),
		JWKS:    handlers.NewJWKSHandler(provider),
		Metrics: adaptor.HTTPHandler(promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{})),
		Auth:    auth.NewSessionMiddleware(verifier, cfg.Auth.SessionCookieName),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()
	logger.Info("token bridge listening", zap.String("addr", cfg.App.Addr()), zap.String("base_url", cfg.App.BaseURL))

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
	cancel()
	<-sweeperDone
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
