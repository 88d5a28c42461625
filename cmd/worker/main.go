// Package main - точка входа для фоновых процессов (Worker) сервиса поступления.
//
// Worker отвечает за:
// - Плановые прогоны распределения мест (по cron)
// - Обновление критериев программ из каталога open data
// - Письма студентам о предложениях и автоматических отзывах заявок
//
// API и worker делят PostgreSQL и Redis: блокировка прогона общая,
// события API приходят сюда через Redis Pub/Sub.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/admissions-hub/admissions-hub/config"

	// Application layer
	"github.com/admissions-hub/admissions-hub/internal/application/command"
	"github.com/admissions-hub/admissions-hub/internal/application/eventhandler"

	// Domain layer
	"github.com/admissions-hub/admissions-hub/internal/domain/admission"
	"github.com/admissions-hub/admissions-hub/internal/domain/shared"

	// Infrastructure layer
	"github.com/admissions-hub/admissions-hub/internal/infrastructure/external/catalog"
	"github.com/admissions-hub/admissions-hub/internal/infrastructure/external/mail"
	"github.com/admissions-hub/admissions-hub/internal/infrastructure/messaging"
	"github.com/admissions-hub/admissions-hub/internal/infrastructure/persistence/postgres"
	"github.com/admissions-hub/admissions-hub/internal/infrastructure/persistence/redis"
	"github.com/admissions-hub/admissions-hub/internal/infrastructure/scheduler"
	"github.com/admissions-hub/admissions-hub/internal/infrastructure/scheduler/jobs"

	// Packages
	"github.com/admissions-hub/admissions-hub/pkg/circuitbreaker"
	"github.com/admissions-hub/admissions-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. ЗАГРУЗКА КОНФИГУРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	// В отличие от API, worker без общей базы бесполезен
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL is required for the worker")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. НАСТРОЙКА ЛОГИРОВАНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	log.Info("starting admissions worker",
		"env", cfg.App.Environment,
		"version", cfg.App.Version,
		"timezone", cfg.App.Timezone,
	)

	if err := timeutil.SetZone(cfg.App.Timezone); err != nil {
		log.Warn("unknown timezone, keeping default", "timezone", cfg.App.Timezone, "error", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ПОДКЛЮЧЕНИЕ К БАЗЕ ДАННЫХ
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("connecting to database...")
	dbConn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL,
		int32(cfg.Database.MaxOpenConns), int32(cfg.Database.MaxIdleConns))
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		log.Info("closing database connection...")
		dbConn.Close()
	}()

	if err := dbConn.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. ЗАПУСК МИГРАЦИЙ (Worker также должен иметь актуальную схему)
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.Database.AutoMigrate {
		log.Info("checking database migrations...")
		if err := postgres.NewMigrator(dbConn).Migrate(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("database schema is up to date")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ИНИЦИАЛИЗАЦИЯ РЕПОЗИТОРИЕВ
	// ─────────────────────────────────────────────────────────────────────────
	applications := postgres.NewApplicationRepository(dbConn)
	programs := postgres.NewProgramRepository(dbConn)
	runs := postgres.NewRunRepository(dbConn)
	students := postgres.NewStudentRepository(dbConn)
	var lock admission.RunLock = postgres.NewRunLock(dbConn, cfg.Matching.LockTTL)

	catalogClient := newCatalogClient(cfg, log)
	var catalogLookup admission.CatalogLookup = catalogClient

	// ─────────────────────────────────────────────────────────────────────────
	// 6. ИНИЦИАЛИЗАЦИЯ REDIS И EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	var bus interface {
		shared.EventPublisher
		shared.EventSubscriber
		Close() error
	}

	if !cfg.Redis.Disabled {
		log.Info("connecting to Redis...")
		redisCache, err := redis.NewCache(redisConfig(cfg.Redis))
		if err != nil {
			log.Warn("failed to connect to Redis, events stay local", "error", err)
		} else {
			defer redisCache.Close()
			lock = redis.NewRunLock(redisCache, cfg.Matching.LockTTL)
			catalogLookup = redis.NewCachedCatalog(catalogClient, redisCache, cfg.Catalog.Dataset, cfg.Catalog.CriteriaCacheTTL, log)

			redisBus, err := messaging.NewRedisEventBus(ctx, redisCache.Client(), messaging.RedisEventBusConfig{
				LocalBusConfig: eventBusConfig(log),
				Logger:         log,
			})
			if err != nil {
				log.Warn("failed to subscribe to Redis events, events stay local", "error", err)
			} else {
				bus = redisBus
			}
		}
	}
	if bus == nil {
		bus = messaging.NewInMemoryEventBus(eventBusConfig(log))
	}
	defer func() {
		log.Info("closing event bus...")
		_ = bus.Close()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 7. РЕГИСТРАЦИЯ EVENT HANDLERS
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.Mail.Host == "" {
		log.Info("SMTP_HOST is empty, mail notifications disabled")
	} else {
		notifier := mail.NewNotifier(mail.NewMailer(mailConfig(cfg), log))
		offered := eventhandler.NewOnOfferMadeHandler(
			students, programs, catalogLookup, notifier,
			featureGate(cfg.Features, config.FeatureNotifyOfferMail), log,
		)
		withdrawn := eventhandler.NewOnAutoWithdrawnHandler(
			students, applications, programs, notifier,
			featureGate(cfg.Features, config.FeatureNotifyWithdrawalMail), log,
		)
		if err := bus.Subscribe(shared.EventApplicationOffered, offered.Handle); err != nil {
			return fmt.Errorf("failed to subscribe offer handler: %w", err)
		}
		if err := bus.Subscribe(shared.EventApplicationAutoWithdrawn, withdrawn.Handle); err != nil {
			return fmt.Errorf("failed to subscribe withdrawal handler: %w", err)
		}
		log.Info("event handlers registered")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. ПЛАНИРОВЩИК
	// ─────────────────────────────────────────────────────────────────────────
	schedCfg := scheduler.DefaultSchedulerConfig()
	schedCfg.Logger = log
	schedCfg.Timezone = timeutil.Zone()
	schedCfg.MaxConcurrentJobs = cfg.Scheduler.MaxConcurrentJobs
	schedCfg.JobTimeout = cfg.Scheduler.JobTimeout
	sched := scheduler.NewScheduler(schedCfg)

	if err := registerJobs(sched, cfg, log, jobDeps{
		applications: applications,
		programs:     programs,
		runs:         runs,
		lock:         lock,
		catalog:      catalogLookup,
		bus:          bus,
	}); err != nil {
		return err
	}

	if cfg.Scheduler.Enabled {
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		log.Info("scheduler started")
	} else {
		log.Info("scheduler disabled, serving events only")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 9. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("admissions worker is running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
	}

	log.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())
	if sched.IsRunning() {
		if err := sched.Stop(); err != nil {
			log.Error("failed to stop scheduler gracefully", "error", err)
		}
	}

	log.Info("shutdown completed successfully")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// JOBS
// ══════════════════════════════════════════════════════════════════════════════

type jobDeps struct {
	applications admission.ApplicationRepository
	programs     admission.ProgramRepository
	runs         admission.RunRepository
	lock         admission.RunLock
	catalog      admission.CatalogLookup
	bus          shared.EventPublisher
}

func registerJobs(sched *scheduler.Scheduler, cfg *config.Config, log *slog.Logger, d jobDeps) error {
	interval, err := scheduler.NewIntervalSchedule(cfg.Scheduler.SyncCatalogInterval)
	if err != nil {
		return fmt.Errorf("invalid catalog sync interval: %w", err)
	}
	syncJob := jobs.NewSyncCatalogJob(d.catalog, d.programs, d.bus, log.With("job", "sync_catalog"))
	if err := sched.Register(syncJob, interval); err != nil {
		return fmt.Errorf("failed to register %s: %w", syncJob.Name(), err)
	}

	if !cfg.Scheduler.ScheduledMatching {
		log.Info("scheduled matching disabled")
		return nil
	}

	cron, err := scheduler.ParseCron(cfg.Matching.Cron)
	if err != nil {
		return fmt.Errorf("invalid MATCHING_CRON: %w", err)
	}

	handler := command.NewRunMatchingHandler(
		d.applications, d.programs, d.runs, d.lock, d.bus,
		admission.NewMatcher(admission.MatcherConfig{MaxRounds: cfg.Matching.MaxRounds}),
		log,
	)
	matchJob := jobs.NewRunMatchingJob(func(ctx context.Context, trigger string) (*admission.Run, error) {
		res, err := handler.Handle(ctx, command.RunMatchingCommand{Trigger: trigger})
		if res == nil {
			return nil, err
		}
		return res.Run, err
	}, log.With("job", "run_matching"))

	if err := sched.Register(matchJob, cron); err != nil {
		return fmt.Errorf("failed to register %s: %w", matchJob.Name(), err)
	}
	log.Info("scheduled matching enabled", "cron", cfg.Matching.Cron)
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// setupLogger настраивает структурированное логирование.
func setupLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Observability.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	if cfg.App.Debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.IsProduction() || cfg.Observability.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)
	return log
}

func redisConfig(c config.RedisConfig) redis.Config {
	rc := redis.DefaultConfig()
	rc.URL = c.URL
	rc.Host = c.Host
	rc.Port = c.Port
	rc.Password = c.Password
	rc.DB = c.DB
	rc.PoolSize = c.PoolSize
	rc.MinIdleConns = c.MinIdleConns
	rc.DialTimeout = c.DialTimeout
	rc.ReadTimeout = c.ReadTimeout
	rc.WriteTimeout = c.WriteTimeout
	return rc
}

func eventBusConfig(log *slog.Logger) messaging.InMemoryEventBusConfig {
	c := messaging.DefaultInMemoryEventBusConfig()
	c.Logger = log
	c.AsyncMode = true
	return c
}

func newCatalogClient(cfg *config.Config, log *slog.Logger) *catalog.Client {
	c := cfg.Catalog
	clientCfg := catalog.DefaultClientConfig()
	clientCfg.BaseURL = c.BaseURL
	clientCfg.Dataset = c.Dataset
	clientCfg.PageSize = c.PageSize
	clientCfg.Timeout = c.RequestTimeout
	clientCfg.RateLimiterConfig.RequestsPerMinute = c.RateLimit
	clientCfg.RateLimiterConfig.BurstSize = c.RateLimitBurst
	clientCfg.MaxRetries = c.MaxRetries
	clientCfg.RetryBaseDelay = c.RetryBaseDelay
	clientCfg.RetryMaxDelay = c.RetryMaxDelay
	clientCfg.Breaker = circuitbreaker.New("catalog",
		circuitbreaker.WithFailureThreshold(c.CircuitBreakerThreshold),
		circuitbreaker.WithTimeout(c.CircuitBreakerTimeout),
		circuitbreaker.WithMaxHalfOpenRequests(c.CircuitBreakerHalfOpenMax),
	)
	clientCfg.Logger = log
	return catalog.NewClient(clientCfg)
}

func mailConfig(cfg *config.Config) mail.Config {
	return mail.Config{
		Host:     cfg.Mail.Host,
		Port:     cfg.Mail.Port,
		Username: cfg.Mail.Username,
		Password: cfg.Mail.Password,
		From:     cfg.Mail.From,
		FromName: "Admissions",
	}
}

func featureGate(ff *config.FeatureFlags, name string) eventhandler.FeatureGate {
	return func(studentID string) bool {
		return ff.IsEnabled(name, &config.FeatureContext{StudentID: studentID})
	}
}
