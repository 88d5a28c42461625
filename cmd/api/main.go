// Package main - точка входа HTTP API сервиса поступления.
//
// API принимает профили и заявки студентов, отдаёт каталог программ,
// оценку шансов и результаты прогонов распределения. Прогон по запросу
// администратора выполняется здесь же; плановые прогоны и рассылка писем
// живут в worker.
//
// Архитектура:
// - Domain: правила ранжирования и распределения мест
// - Application: команды, запросы и обработчики событий
// - Infrastructure: PostgreSQL, Redis, каталог open data, SMTP
// - Interface: HTTP API
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
	"github.com/admissions-hub/admissions-hub/internal/application/query"

	// Domain layer
	"github.com/admissions-hub/admissions-hub/internal/domain/admission"
	"github.com/admissions-hub/admissions-hub/internal/domain/shared"
	"github.com/admissions-hub/admissions-hub/internal/domain/student"

	// Infrastructure layer
	"github.com/admissions-hub/admissions-hub/internal/infrastructure/external/catalog"
	"github.com/admissions-hub/admissions-hub/internal/infrastructure/external/mail"
	"github.com/admissions-hub/admissions-hub/internal/infrastructure/messaging"
	"github.com/admissions-hub/admissions-hub/internal/infrastructure/persistence/memory"
	"github.com/admissions-hub/admissions-hub/internal/infrastructure/persistence/postgres"
	"github.com/admissions-hub/admissions-hub/internal/infrastructure/persistence/redis"

	// Interface layer
	httpserver "github.com/admissions-hub/admissions-hub/internal/interface/http"
	"github.com/admissions-hub/admissions-hub/internal/interface/http/handlers"

	// Packages
	"github.com/admissions-hub/admissions-hub/pkg/circuitbreaker"
	"github.com/admissions-hub/admissions-hub/pkg/logger"
	"github.com/admissions-hub/admissions-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	// Создаём корневой контекст с возможностью отмены
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

// storage - набор репозиториев, за которыми стоит PostgreSQL или память.
type storage struct {
	applications admission.ApplicationRepository
	programs     admission.ProgramRepository
	runs         admission.RunRepository
	students     student.Repository
	lock         admission.RunLock
	criteria     admission.CriteriaCache
	ping         func(ctx context.Context) error
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. ЗАГРУЗКА КОНФИГУРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. НАСТРОЙКА ЛОГИРОВАНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	log.Info("starting admissions API",
		"env", cfg.App.Environment,
		"version", cfg.App.Version,
		"timezone", cfg.App.Timezone,
	)

	if err := timeutil.SetZone(cfg.App.Timezone); err != nil {
		log.Warn("unknown timezone, keeping default", "timezone", cfg.App.Timezone, "error", err)
	}

	httpLog := logger.New(logger.Options{
		Output:    os.Stdout,
		Level:     logger.ParseLevel(cfg.Observability.LogLevel),
		AddCaller: cfg.App.Debug,
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ХРАНИЛИЩЕ (PostgreSQL или память в development)
	// ─────────────────────────────────────────────────────────────────────────
	var store storage

	if cfg.Database.URL != "" {
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
		log.Info("database connection established")

		if cfg.Database.AutoMigrate {
			log.Info("running database migrations...")
			migrator := postgres.NewMigrator(dbConn)
			if err := migrator.Migrate(ctx); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
			if status, err := migrator.Status(ctx); err != nil {
				log.Warn("failed to get migration status", "error", err)
			} else {
				applied := 0
				for _, m := range status {
					if m.IsApplied {
						applied++
					}
				}
				log.Info("migrations completed", "applied", applied, "total", len(status))
			}
		}

		store = storage{
			applications: postgres.NewApplicationRepository(dbConn),
			programs:     postgres.NewProgramRepository(dbConn),
			runs:         postgres.NewRunRepository(dbConn),
			students:     postgres.NewStudentRepository(dbConn),
			lock:         postgres.NewRunLock(dbConn, cfg.Matching.LockTTL),
			ping:         dbConn.Ping,
		}
	} else {
		// Validate пропускает пустой DATABASE_URL только в development
		log.Warn("DATABASE_URL is empty, using in-memory storage")
		mem := memory.NewStore()
		store = storage{
			applications: mem.Applications(),
			programs:     mem.Programs(),
			runs:         mem.Runs(),
			students:     mem.Students(),
			lock:         mem.Lock(),
			criteria:     mem.Criteria(),
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. КАТАЛОГ ПРОГРАММ (open data)
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing catalog client...")
	catalogClient := newCatalogClient(cfg, log)
	var catalogLookup admission.CatalogLookup = catalogClient

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ИНИЦИАЛИЗАЦИЯ REDIS (опционально)
	// ─────────────────────────────────────────────────────────────────────────
	var redisCache *redis.Cache
	var publisher interface {
		shared.EventPublisher
		shared.EventSubscriber
		Close() error
	}

	if !cfg.Redis.Disabled {
		log.Info("connecting to Redis...")
		redisCache, err = redis.NewCache(redisConfig(cfg.Redis))
		if err != nil {
			log.Warn("failed to connect to Redis, caching disabled", "error", err)
			redisCache = nil
		} else {
			defer redisCache.Close()
			log.Info("Redis connection established")

			store.criteria = redis.NewCriteriaCache(redisCache, cfg.Catalog.CriteriaCacheTTL, log)
			// Блокировка в Redis общая для API и worker
			store.lock = redis.NewRunLock(redisCache, cfg.Matching.LockTTL)
			catalogLookup = redis.NewCachedCatalog(catalogClient, redisCache, cfg.Catalog.Dataset, cfg.Catalog.CriteriaCacheTTL, log)

			bus, err := messaging.NewRedisEventBus(ctx, redisCache.Client(), messaging.RedisEventBusConfig{
				LocalBusConfig: eventBusConfig(log),
				Logger:         log,
			})
			if err != nil {
				log.Warn("failed to subscribe to Redis events, using local bus", "error", err)
			} else {
				publisher = bus
			}
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. ИНИЦИАЛИЗАЦИЯ EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	distributed := publisher != nil
	if !distributed {
		publisher = messaging.NewInMemoryEventBus(eventBusConfig(log))
	}
	defer func() {
		log.Info("closing event bus...")
		_ = publisher.Close()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 7. ИНИЦИАЛИЗАЦИЯ APPLICATION LAYER (Commands, Queries)
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing application layer...")

	criteria := admission.NewCriteriaResolver(store.criteria)
	matcher := admission.NewMatcher(admission.MatcherConfig{MaxRounds: cfg.Matching.MaxRounds})

	submitCmd := command.NewSubmitApplicationHandler(
		store.students, store.applications, store.programs,
		catalogLookup, criteria, cfg.DefaultReservedSeats, publisher, log,
	)
	reorderCmd := command.NewReorderWishesHandler(store.applications, log)
	profileCmd := command.NewUpdateProfileHandler(store.students, publisher, log)
	runMatchingCmd := command.NewRunMatchingHandler(
		store.applications, store.programs, store.runs, store.lock,
		publisher, matcher, log,
	)

	features := cfg.Features
	estimateQuery := query.NewEstimateScoreHandler(
		store.programs, store.students, catalogLookup, criteria,
		func() bool { return features.IsEnabled(config.FeatureCatalogLiveLookup, nil) },
	)
	listQuery := query.NewListApplicationsHandler(store.applications, store.programs)
	searchQuery := query.NewSearchCatalogHandler(catalogLookup)
	compareQuery := query.NewCompareProgramsHandler(catalogLookup)
	latestRunQuery := query.NewLatestRunHandler(store.runs)

	// ─────────────────────────────────────────────────────────────────────────
	// 8. РЕГИСТРАЦИЯ EVENT HANDLERS
	// ─────────────────────────────────────────────────────────────────────────
	// С Redis письма отправляет worker, иначе каждое событие ушло бы дважды.
	if distributed {
		log.Info("event handlers are served by the worker")
	} else if cfg.Mail.Host == "" {
		log.Info("SMTP_HOST is empty, mail notifications disabled")
	} else {
		notifier := mail.NewNotifier(mail.NewMailer(mailConfig(cfg), log))
		offered := eventhandler.NewOnOfferMadeHandler(
			store.students, store.programs, catalogLookup, notifier,
			featureGate(features, config.FeatureNotifyOfferMail), log,
		)
		withdrawn := eventhandler.NewOnAutoWithdrawnHandler(
			store.students, store.applications, store.programs, notifier,
			featureGate(features, config.FeatureNotifyWithdrawalMail), log,
		)
		if err := publisher.Subscribe(shared.EventApplicationOffered, offered.Handle); err != nil {
			return fmt.Errorf("failed to subscribe offer handler: %w", err)
		}
		if err := publisher.Subscribe(shared.EventApplicationAutoWithdrawn, withdrawn.Handle); err != nil {
			return fmt.Errorf("failed to subscribe withdrawal handler: %w", err)
		}
		log.Info("event handlers registered")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 9. HEALTH CHECKS
	// ─────────────────────────────────────────────────────────────────────────
	health := handlers.NewCompositeHealthChecker(cfg.App.Version)
	if store.ping != nil {
		health.AddCheck("database", store.ping)
	}
	if redisCache != nil {
		health.AddCheck("cache", handlers.NewCacheCheck(redisCache))
	}
	// Недоступный каталог не должен перезапускать под
	health.AddReadinessCheck("catalog", handlers.NewCatalogCheck(catalogClient))

	// ─────────────────────────────────────────────────────────────────────────
	// 10. СОЗДАНИЕ HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.HTTP.JWTSecret == "" {
		log.Warn("JWT_SECRET is empty, tokens are signed with an empty key")
	}

	httpServer := httpserver.NewServer(httpserver.FromAppConfig(cfg.HTTP), httpserver.Dependencies{
		SubmitApplication: submitCmd,
		ReorderWishes:     reorderCmd,
		UpdateProfile:     profileCmd,
		RunMatching:       runMatchingCmd,
		EstimateScore:     estimateQuery,
		ListApplications:  listQuery,
		SearchCatalog:     searchQuery,
		ComparePrograms:   compareQuery,
		LatestRun:         latestRunQuery,
		Auth:              handlers.NewAuthenticator(cfg.HTTP.JWTSecret),
		Features:          features,
		Logger:            httpLog,
		HealthChecker:     health,
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 11. ЗАПУСК И GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	errCh := httpServer.StartAsync()
	log.Info("admissions API is running", "address", cfg.HTTP.Addr, "distributed_events", distributed)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig.String())
	case err, ok := <-errCh:
		if ok && err != nil {
			log.Error("http server error", "error", err)
			return err
		}
	case <-ctx.Done():
	}

	log.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("failed to stop HTTP server gracefully", "error", err)
		return err
	}

	// Event bus, Redis и база закроются через defer
	log.Info("shutdown completed successfully")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// setupLogger настраивает структурированное логирование.
func setupLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slogLevel(cfg.Observability.LogLevel)}
	if cfg.App.Debug {
		opts.Level = slog.LevelDebug
	}

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

func slogLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
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

// newCatalogClient собирает клиент каталога с ограничителем и автоматом защиты.
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

// featureGate привязывает флаг к студенту: учитываются раскатка и
// персональные переопределения.
func featureGate(ff *config.FeatureFlags, name string) eventhandler.FeatureGate {
	return func(studentID string) bool {
		return ff.IsEnabled(name, &config.FeatureContext{StudentID: studentID})
	}
}
