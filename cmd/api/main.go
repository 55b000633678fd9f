package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/roshita-planner/internal/config"
	"github.com/jwalitptl/roshita-planner/internal/email"
	appointmentHandler "github.com/jwalitptl/roshita-planner/internal/handler/appointment"
	auditHandler "github.com/jwalitptl/roshita-planner/internal/handler/audit"
	catalogHandler "github.com/jwalitptl/roshita-planner/internal/handler/catalog"
	"github.com/jwalitptl/roshita-planner/internal/handler/health"
	plannerHandler "github.com/jwalitptl/roshita-planner/internal/handler/planner"
	promHandler "github.com/jwalitptl/roshita-planner/internal/handler/prometheus"
	sessionHandler "github.com/jwalitptl/roshita-planner/internal/handler/session"
	wizardHandler "github.com/jwalitptl/roshita-planner/internal/handler/wizard"
	"github.com/jwalitptl/roshita-planner/internal/middleware"
	"github.com/jwalitptl/roshita-planner/internal/repository"
	"github.com/jwalitptl/roshita-planner/internal/repository/postgres"
	"github.com/jwalitptl/roshita-planner/internal/router"
	"github.com/jwalitptl/roshita-planner/internal/service/appointment"
	"github.com/jwalitptl/roshita-planner/internal/service/audit"
	"github.com/jwalitptl/roshita-planner/internal/service/planner"
	"github.com/jwalitptl/roshita-planner/internal/session"
	"github.com/jwalitptl/roshita-planner/pkg/logger"
	"github.com/jwalitptl/roshita-planner/pkg/messaging"
	"github.com/jwalitptl/roshita-planner/pkg/messaging/redis"
	"github.com/jwalitptl/roshita-planner/pkg/metrics"
	"github.com/jwalitptl/roshita-planner/pkg/roshita"
	"github.com/jwalitptl/roshita-planner/pkg/security"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig(os.Getenv("PLANNER_CONFIG"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLog := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		JSON:       cfg.Log.JSON,
	})
	log.Logger = appLog.ZL

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(registry, cfg.Metrics.Namespace, "api")

	// Initialize Redis when sessions or the audit relay need it
	var redisClient *goredis.Client
	if cfg.UsesRedis() {
		redisClient, err = redis.NewClient(ctx, redis.Config{
			URL:          cfg.Redis.URL,
			MaxRetries:   cfg.Redis.MaxRetries,
			RetryBackoff: cfg.Redis.RetryBackoff,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to Redis")
		}
	}

	// Initialize database
	var (
		db        *sqlx.DB
		auditRepo repository.AuditRepository
	)
	if cfg.Database.Enabled {
		db, err = postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		auditRepo = postgres.NewAuditRepository(postgres.NewBaseRepository(db))
	}

	// Sessions
	sealer, err := security.FromKey(cfg.Session.EncryptionKey)
	if err != nil {
		appLog.Fatal(err, "invalid session encryption key")
	}
	var store session.Store
	if cfg.Session.Store == "redis" {
		redisStore := session.NewRedisStore(redisClient, cfg.Session.TTL, cfg.Session.DefaultLanguage, m, appLog)
		redisStore.WithSealer(sealer)
		store = redisStore
	} else {
		store = session.NewMemoryStore(cfg.Session.TTL, cfg.Session.CleanupInterval, cfg.Session.DefaultLanguage)
	}

	client := roshita.NewClient(cfg.Roshita, m, appLog)
	manager := session.NewManager(store, client, cfg.Session.RefreshLeeway, appLog)

	// Audit
	var (
		sinks  []audit.Sink
		broker messaging.Broker
	)
	switch {
	case cfg.Audit.Broker:
		// the worker relays to the remote log and the mirror
		broker = redis.NewRedisBroker(redisClient, m, appLog)
		sinks = append(sinks, audit.NewBrokerSink(broker, cfg.Audit.Channel).WithSealer(sealer))
	default:
		if cfg.Audit.Remote {
			sinks = append(sinks, audit.NewRemoteSink(client))
		}
		if cfg.Audit.Database {
			sinks = append(sinks, audit.NewRepositorySink(auditRepo))
		}
	}
	auditSvc := audit.NewService(auditRepo, m, appLog, sinks...)
	auditLogger := audit.NewAuditLogger(auditSvc)

	// Initialize services
	lister := appointment.NewLister(client, cfg.Planner.ListCacheTTL, cfg.Planner.MaxPages, m, appLog).
		WithPageSize(cfg.Planner.PageSize)
	manager.OnUserSwitch(lister.Invalidate)
	appointmentSvc := appointment.NewService(client, lister, auditLogger, appLog)

	notifier := email.NewNoopService()
	if cfg.Email.Enabled {
		notifier = email.NewSMTPService(cfg.Email)
	}

	runner := planner.NewRunner(planner.RunnerConfig{
		WizardTTL:        cfg.Planner.WizardTTL,
		HospitalCacheTTL: cfg.Planner.HospitalCacheTTL,
		MaxPages:         cfg.Planner.MaxPages,
	}, lister, appointmentSvc, client, notifier, m, appLog)
	board := planner.NewBoard(lister, store, cfg.Session.DefaultLanguage, appLog)

	// Initialize handlers
	healthH := health.NewHandler()
	if db != nil {
		healthH.WithCheck("database", db.PingContext)
	}
	if redisClient != nil {
		healthH.WithCheck("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}

	handlers := router.Handlers{
		Health:      healthH,
		Session:     sessionHandler.NewHandler(manager),
		Appointment: appointmentHandler.NewHandler(appointmentSvc),
		Wizard:      wizardHandler.NewHandler(runner, cfg.Session.DefaultLanguage),
		Catalog:     catalogHandler.NewHandler(runner),
		Planner:     plannerHandler.NewHandler(board),
		Audit:       auditHandler.NewHandler(auditSvc),
	}
	if cfg.Metrics.Enabled {
		handlers.Metrics = promHandler.New(registry)
	}

	cors := middleware.DefaultCORSConfig()
	cors.AllowOrigins = cfg.Security.AllowedOrigins

	routerConfig := router.RouterConfig{
		Mode:           cfg.Server.Mode,
		RequestTimeout: cfg.Server.RequestTimeout,
		CORSConfig:     cors,
		MetricsPath:    cfg.Metrics.Path,
	}
	if cfg.RateLimit.Enabled {
		routerConfig.RateLimit = rate.Limit(cfg.RateLimit.RequestsPerSecond)
		routerConfig.RateBurst = cfg.RateLimit.Burst
	}

	// Setup router
	r := router.NewRouter(middleware.NewSessionMiddleware(manager), handlers, routerConfig)
	r.Setup()

	// Create server. WriteTimeout stays 0 unless configured so board streams
	// are not cut.
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		log.Info().Int("port", cfg.Server.Port).Str("backend", client.BaseURL()).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	<-ctx.Done()
	log.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	// Let queued audit writes finish before their sinks go away
	auditLogger.Wait()

	if broker != nil {
		if err := broker.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close broker")
		}
	} else if redisClient != nil {
		_ = redisClient.Close()
	}
	if db != nil {
		_ = db.Close()
	}

	log.Info().Msg("server exited properly")
}
