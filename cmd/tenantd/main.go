package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/tenantd/pkg/api"
	"github.com/platinummonkey/tenantd/pkg/audit"
	"github.com/platinummonkey/tenantd/pkg/config"
	"github.com/platinummonkey/tenantd/pkg/identity"
	"github.com/platinummonkey/tenantd/pkg/middleware"
	"github.com/platinummonkey/tenantd/pkg/observability"
	"github.com/platinummonkey/tenantd/pkg/provisioning"
	"github.com/platinummonkey/tenantd/pkg/rbac"
	"github.com/platinummonkey/tenantd/pkg/tenants"
)

var version = "dev"

func main() {
	migrate := flag.Bool("migrate", true, "Apply the database schema on startup")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(observability.ParseLogLevel(cfg.Observability.LogLevel), os.Stdout)
	ctx := context.Background()

	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
		SampleRatio:    cfg.Observability.OTelSampleRatio,
	}, logger)
	if err != nil {
		log.Fatalf("Failed to initialize OpenTelemetry: %v", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if *migrate {
		if err := tenants.ApplySchema(ctx, db); err != nil {
			log.Fatalf("Failed to apply schema: %v", err)
		}
	}
	logger.Info("Connected to database")

	var rdb *redis.Client
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Fatalf("Invalid redis URL: %v", err)
		}
		if cfg.Redis.Password != "" {
			opts.Password = cfg.Redis.Password
		}
		if cfg.Redis.DB != 0 {
			opts.DB = cfg.Redis.DB
		}
		rdb = redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			// the cache degrades to L1 only; health reports the outage
			logger.WithError(err).Warn("Redis ping failed")
		}
	}

	var cache rbac.Cache = rbac.NewMemoryCache(cfg.Redis.L1Size, cfg.Redis.L1TTL)
	if rdb != nil {
		cache = rbac.NewTieredCache(cache, rbac.NewRedisCache(rdb, cfg.Redis.CacheTTL))
	}
	store := tenants.NewPostgresStore(db)
	evaluator := rbac.NewEvaluator(store, rbac.WithCache(cache))

	identities, inviter, authenticator, err := buildIdentity(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to configure identity: %v", err)
	}

	var auditLogger audit.Logger = audit.NewLogLogger(logger)
	if cfg.Database.AuditToDB {
		dbAudit, err := audit.NewDBLogger(ctx, db)
		if err != nil {
			log.Fatalf("Failed to initialize audit log: %v", err)
		}
		auditLogger = audit.NewMultiLogger(auditLogger, dbAudit)
	}

	managerOpts := []tenants.Option{
		tenants.WithAudit(auditLogger),
		tenants.WithLogger(logger),
		tenants.WithInviteRedirectURL(cfg.Identity.InviteRedirectURL),
		tenants.WithIdentityTimeout(cfg.Identity.Timeout),
		tenants.WithSystemAdmins(cfg.Auth.SystemAdmins...),
	}
	if inviter != nil {
		managerOpts = append(managerOpts, tenants.WithInviter(inviter))
	}
	if cfg.Observability.MetricsEnabled {
		managerOpts = append(managerOpts, tenants.WithMetrics(metrics))
	}
	manager := tenants.NewManager(store, evaluator, identities, managerOpts...)

	provOpts := []provisioning.Option{
		provisioning.WithMaxBatchSize(cfg.Provisioning.MaxBatchSize),
		provisioning.WithConcurrency(cfg.Provisioning.Concurrency),
		provisioning.WithAudit(auditLogger),
		provisioning.WithLogger(logger),
	}
	if cfg.Observability.MetricsEnabled {
		provOpts = append(provOpts, provisioning.WithMetrics(metrics))
	}
	orchestrator := provisioning.New(manager, provOpts...)

	var bulkLimiter *middleware.RateLimitMiddleware
	if cfg.Provisioning.RequestsPerMinute > 0 {
		limit := middleware.BulkRateLimit(cfg.Provisioning.RequestsPerMinute)
		var limiter middleware.Limiter
		if rdb != nil {
			limiter = middleware.NewRedisLimiter(rdb, limit, "")
		} else {
			limiter = middleware.NewMemoryLimiter(limit)
		}
		bulkLimiter = middleware.NewRateLimitMiddleware(limiter, logger)
	}

	// a typed nil *redis.Client must not reach the interface
	var healthRedis redis.UniversalClient
	if rdb != nil {
		healthRedis = rdb
	}

	serverCfg := api.ServerConfig{
		Tenants: api.NewTenantHandlers(manager, logger),
		Bulk:    api.NewBulkHandlers(orchestrator, bulkLimiter, logger),
		Auth:    middleware.NewAuthMiddleware(authenticator, logger),
		Health:  observability.NewHealthChecker(db, healthRedis, version),
		Logger:  logger,
	}
	if cfg.Observability.MetricsEnabled {
		serverCfg.Metrics = metrics
		serverCfg.Registry = registry
	}
	server := api.NewServer(serverCfg)

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      otelhttp.NewHandler(server, "tenantd"),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	shutdown.Register("database", func(context.Context) error { return db.Close() })
	if rdb != nil {
		shutdown.Register("redis", func(context.Context) error { return rdb.Close() })
	}
	if otelProviders != nil {
		shutdown.Register("otel", func(ctx context.Context) error {
			return observability.ShutdownOTel(ctx, otelProviders, logger)
		})
	}

	go func() {
		logger.Infof("Starting tenantd %s on %s", version, httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	if err := shutdown.WaitForSignal(ctx); err != nil {
		logger.WithError(err).Error("Shutdown finished with errors")
		os.Exit(1)
	}
}

// buildIdentity wires the identity provider, the invitation sender and the
// bearer token authenticator from configuration.
func buildIdentity(ctx context.Context, cfg *config.Config) (identity.Provider, identity.Inviter, identity.Authenticator, error) {
	var (
		provider identity.Provider
		inviter  identity.Inviter
		memory   *identity.MemoryProvider
	)
	base := logrus.New()
	base.SetFormatter(&logrus.JSONFormatter{})

	switch cfg.Identity.Mode {
	case "memory":
		memory = identity.NewMemoryProvider()
		provider = memory
		inviter = memory
	default:
		client, err := identity.NewAdminClient(ctx, identity.AdminConfig{
			BaseURL:      cfg.Identity.AdminURL,
			ServiceKey:   cfg.Identity.ServiceKey,
			ClientID:     cfg.Identity.ClientID,
			ClientSecret: cfg.Identity.ClientSecret,
			TokenURL:     cfg.Identity.TokenURL,
			Timeout:      cfg.Identity.Timeout,
		}, base.WithField("component", "identity"))
		if err != nil {
			return nil, nil, nil, err
		}
		provider = client
		inviter = client
	}

	if cfg.SMTP.Enabled {
		inviter = identity.NewSMTPInviter(identity.SMTPConfig{
			Host:      cfg.SMTP.Host,
			Port:      cfg.SMTP.Port,
			Username:  cfg.SMTP.Username,
			Password:  cfg.SMTP.Password,
			FromEmail: cfg.SMTP.FromEmail,
			FromName:  cfg.SMTP.FromName,
		}, base.WithField("component", "smtp"))
	}

	var authenticator identity.Authenticator
	switch cfg.Auth.Mode {
	case "oidc":
		oidcAuth, err := identity.NewOIDCAuthenticator(ctx, cfg.Auth.OIDCIssuer, cfg.Auth.OIDCClientID)
		if err != nil {
			return nil, nil, nil, err
		}
		authenticator = oidcAuth
	case "memory":
		dev := memory.AddUser(cfg.Auth.DevEmail, "Developer")
		memory.IssueToken(cfg.Auth.DevToken, dev.ID)
		authenticator = memory
	default:
		jwtAuth, err := identity.NewJWTAuthenticator([]byte(cfg.Auth.JWTSecret), cfg.Auth.JWTAudience)
		if err != nil {
			return nil, nil, nil, err
		}
		authenticator = jwtAuth
	}

	return provider, inviter, authenticator, nil
}
