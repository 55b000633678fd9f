package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/roshita-planner/internal/config"
	"github.com/jwalitptl/roshita-planner/internal/repository"
	"github.com/jwalitptl/roshita-planner/internal/repository/postgres"
	"github.com/jwalitptl/roshita-planner/internal/service/audit"
	internalworker "github.com/jwalitptl/roshita-planner/internal/worker"
	"github.com/jwalitptl/roshita-planner/pkg/logger"
	"github.com/jwalitptl/roshita-planner/pkg/messaging/redis"
	"github.com/jwalitptl/roshita-planner/pkg/metrics"
	"github.com/jwalitptl/roshita-planner/pkg/roshita"
	"github.com/jwalitptl/roshita-planner/pkg/security"
	"github.com/jwalitptl/roshita-planner/pkg/worker"
)

const healthAddr = ":8081"

func setupHealthCheck(registry *prometheus.Registry, ready func(context.Context) error, logger *logger.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := ready(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: healthAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal(err, "Health check server failed")
		}
	}()
	return srv
}

func main() {
	// Load config
	cfg, err := config.LoadConfig(os.Getenv("PLANNER_CONFIG"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	// Initialize logger
	appLog := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		JSON:       cfg.Log.JSON,
	}).With("service", "worker")
	log.Logger = appLog.ZL

	if !cfg.Audit.Broker && !cfg.Database.Enabled {
		appLog.Fatal(fmt.Errorf("nothing to do"), "Worker needs audit.broker or database.enabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(registry, cfg.Metrics.Namespace, "worker")

	// Initialize database
	var (
		db        *sqlx.DB
		auditRepo repository.AuditRepository
	)
	if cfg.Database.Enabled {
		db, err = postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			appLog.Fatal(err, "Failed to connect to database")
		}
		defer db.Close()
		auditRepo = postgres.NewAuditRepository(postgres.NewBaseRepository(db))
	}

	checks := []func(context.Context) error{}
	if db != nil {
		checks = append(checks, db.PingContext)
	}

	var wg sync.WaitGroup

	if cfg.Audit.Broker {
		client, err := redis.NewClient(ctx, redis.Config{
			URL:          cfg.Redis.URL,
			MaxRetries:   cfg.Redis.MaxRetries,
			RetryBackoff: cfg.Redis.RetryBackoff,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
		})
		if err != nil {
			appLog.Fatal(err, "Failed to connect to Redis")
		}
		broker := redis.NewRedisBroker(client, m, appLog)
		defer broker.Close()
		checks = append(checks, func(ctx context.Context) error { return client.Ping(ctx).Err() })

		var sinks []audit.Sink
		if cfg.Audit.Remote {
			sinks = append(sinks, audit.NewRemoteSink(roshita.NewClient(cfg.Roshita, m, appLog)))
		}
		if auditRepo != nil {
			sinks = append(sinks, audit.NewRepositorySink(auditRepo))
		}

		sealer, err := security.FromKey(cfg.Session.EncryptionKey)
		if err != nil {
			appLog.Fatal(err, "invalid session encryption key")
		}
		relay := worker.NewAuditRelay(
			broker,
			audit.NewService(auditRepo, m, appLog, sinks...),
			worker.AuditRelayConfig{
				Channel:       cfg.Audit.Channel,
				RetryAttempts: cfg.Audit.RetryAttempts,
				RetryDelay:    cfg.Audit.RetryDelay,
			},
			appLog,
			m,
		).WithSealer(sealer)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := relay.Start(ctx); err != nil {
				appLog.Error(err, "Audit relay stopped")
				stop()
			}
		}()
	}

	if auditRepo != nil {
		cleaner := internalworker.NewAuditCleanupWorker(auditRepo, cfg.Audit.RetentionDays, cfg.Audit.CleanupInterval, appLog)
		wg.Add(1)
		go func() {
			defer wg.Done()
			cleaner.Start(ctx)
		}()
	}

	// Setup health check endpoints
	health := setupHealthCheck(registry, func(ctx context.Context) error {
		for _, check := range checks {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}, appLog)

	appLog.Info("Worker started", "relay", fmt.Sprint(cfg.Audit.Broker), "cleanup", fmt.Sprint(auditRepo != nil))

	<-ctx.Done()
	appLog.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	_ = health.Shutdown(shutdownCtx)

	wg.Wait()
}
