package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/leasehold/leasehold/pkg/async"
	"github.com/leasehold/leasehold/pkg/audit"
	"github.com/leasehold/leasehold/pkg/config"
	"github.com/leasehold/leasehold/pkg/database"
	"github.com/leasehold/leasehold/pkg/httputil"
	"github.com/leasehold/leasehold/pkg/middleware"
	"github.com/leasehold/leasehold/pkg/observability"
	"github.com/leasehold/leasehold/pkg/orgs"
	"github.com/leasehold/leasehold/pkg/rbac"
)

var version = "dev"

var (
	configFile  = flag.String("config", os.Getenv("LEASEHOLD_CONFIG_FILE"), "Path to the YAML configuration file")
	migrateOnly = flag.Bool("migrate-only", false, "Apply database migrations and exit")
	issueToken  = flag.String("issue-token", "", "Print a bearer token for the given user id and exit")
	tokenRole   = flag.String("token-role", "", "Role claim for -issue-token")
	tokenTTL    = flag.Duration("token-ttl", time.Hour, "Lifetime of the token printed by -issue-token")
)

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "leasehold: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(*configFile)
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.Observability.Level(), os.Stdout)
	auth := middleware.NewAuthMiddleware(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, false)

	if *issueToken != "" {
		token, err := auth.IssueToken(*issueToken, *tokenRole, *tokenTTL)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, database.Config{
		URL:         cfg.Database.URL,
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		Timeout:     cfg.Database.Timeout,
		MaxLifetime: cfg.Database.MaxLifetime,
		MaxIdleTime: cfg.Database.MaxIdleTime,
	})
	if err != nil {
		return err
	}

	if err := database.MigrateAll(ctx, db, orgs.Schema(), rbac.Schema(), audit.Schema()); err != nil {
		db.Close()
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	if *migrateOnly {
		logger.Info("Migrations applied")
		return db.Close()
	}

	store := rbac.NewStore(db)
	if err := rbac.ValidateStoredRoles(ctx, store); err != nil {
		db.Close()
		return err
	}

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		redisClient, err = database.OpenRedis(ctx, database.RedisConfig{
			URL:        cfg.Redis.URL,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			MaxRetries: cfg.Redis.MaxRetries,
			PoolSize:   cfg.Redis.PoolSize,
		})
		if err != nil {
			db.Close()
			return err
		}
	}

	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
		SampleRatio:    cfg.Observability.OTelSampleRatio,
		MetricInterval: cfg.Observability.OTelMetricInterval,
	}, logger)
	if err != nil {
		logger.WithError(err).Warn("OpenTelemetry unavailable, continuing without tracing")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	// Decision cache and rate limiter share Redis across replicas when it
	// is configured
	var decisionCache rbac.Cache
	var limiter middleware.Limiter
	limitConfig := &middleware.RateLimitConfig{
		RequestsPerWindow: cfg.RateLimit.RequestsPerMinute,
		WindowDuration:    time.Minute,
		BurstSize:         cfg.RateLimit.Burst,
	}
	if redisClient != nil {
		decisionCache = rbac.NewRedisCache(redisClient, "")
		limiter = middleware.NewDistributedRateLimiter(redisClient, limitConfig, "")
	} else {
		decisionCache = rbac.NewMemoryCache(cfg.Authz.CacheSize, cfg.Authz.CacheTTL)
		local := middleware.NewRateLimiter(limitConfig)
		local.StartCleanup(ctx)
		limiter = local
	}

	resolver := rbac.NewResolver(store,
		rbac.WithCache(decisionCache, cfg.Authz.CacheTTL),
		rbac.WithMetrics(metrics),
		rbac.WithLogger(logger.WithField("component", "resolver")),
		rbac.WithParallelism(cfg.Authz.FilterParallel),
	)

	auditLogger, err := audit.NewDBLogger(db)
	if err != nil {
		db.Close()
		return err
	}

	orgService := orgs.NewService(db,
		orgs.WithInvalidator(resolver),
		orgs.WithMetrics(metrics),
		orgs.WithAuditLogger(auditLogger),
		orgs.WithInvitationTTL(cfg.Jobs.InvitationTTL),
	)

	router := mux.NewRouter()
	router.Use(observability.RecoveryMiddleware(logger))
	router.Use(httputil.RequestIDMiddleware)
	router.Use(httputil.LoggingMiddleware(logger))
	router.Use(observability.HTTPMetricsMiddleware(metrics))

	var healthRedis redis.UniversalClient
	if redisClient != nil {
		healthRedis = redisClient
	}
	observability.RegisterHealthRoutes(router, observability.NewHealthChecker(db, healthRedis, version))
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(router, registry)
	}

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(httputil.ContentTypeMiddleware)
	api.Use(httputil.MaxBytesMiddleware(1 << 20))
	api.Use(auth.Handler)
	if cfg.RateLimit.Enabled {
		api.Use(middleware.NewRateLimitMiddleware(limiter, logger, metrics).Handler)
	}
	api.Use(middleware.AuditMiddleware(auditLogger))

	orgHandlers := orgs.NewHandlers(orgService, resolver)
	rbacHandlers := rbac.NewHandlers(store, resolver)
	orgHandlers.RegisterRoutes(api)
	rbacHandlers.RegisterRoutes(api)

	orgRouter := api.PathPrefix("/orgs/{org_id}").Subrouter()
	orgRouter.Use(middleware.OrgContextMiddleware(orgService))
	orgHandlers.RegisterOrgRoutes(orgRouter)
	rbacHandlers.RegisterOrgRoutes(orgRouter)

	handler := otelhttp.NewHandler(router, "leasehold",
		otelhttp.WithTracerProvider(otelProviders.HTTPTracerProvider()),
		otelhttp.WithMeterProvider(otelProviders.HTTPMeterProvider()),
	)
	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Jobs.InvitationCleanupSchedule, func() {
		_ = async.Run(ctx, logger, time.Minute, "invitation cleanup", func(ctx context.Context) error {
			n, err := orgService.CleanupExpiredInvitations(ctx)
			if err != nil {
				return err
			}
			logger.WithField("expired", n).Info("Invitation cleanup complete")
			return nil
		})
	}); err != nil {
		db.Close()
		return fmt.Errorf("failed to schedule invitation cleanup: %w", err)
	}
	if _, err := scheduler.AddFunc("@every 15s", func() {
		metrics.UpdateDBStats(db.Stats())
	}); err != nil {
		db.Close()
		return fmt.Errorf("failed to schedule pool stats: %w", err)
	}
	scheduler.Start()

	if *configFile != "" {
		async.SafeGo(ctx, logger, 0, "config watcher", func(ctx context.Context) error {
			return config.Watch(ctx, *configFile, func(next *config.Config) {
				logger.SetLevel(next.Observability.Level())
				resolver.SetCacheTTL(next.Authz.CacheTTL)
				logger.WithFields(map[string]interface{}{
					"log_level": next.Observability.LogLevel,
					"cache_ttl": next.Authz.CacheTTL.String(),
				}).Info("Configuration reloaded")
			}, func(err error) {
				logger.WithError(err).Warn("Configuration reload failed, keeping previous settings")
			})
		})
	}

	shutdown := observability.NewShutdownManager(logger, server, cfg.Server.ShutdownTimeout)
	shutdown.Register("database", func(ctx context.Context) error { return db.Close() })
	if redisClient != nil {
		shutdown.Register("redis", func(ctx context.Context) error { return redisClient.Close() })
	}
	shutdown.Register("scheduler", func(ctx context.Context) error {
		select {
		case <-scheduler.Stop().Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	shutdown.Register("otel", func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, otelProviders, logger)
	})

	serverErr := make(chan error, 1)
	go func() {
		logger.Infof("Starting leasehold %s on %s", version, server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			logger.WithError(err).Error("HTTP server failed")
			_ = shutdown.Shutdown()
			return err
		}
	case <-ctx.Done():
	}
	return shutdown.Wait(ctx)
}
