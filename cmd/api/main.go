package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/concern-service/internal/api/http"
	"github.com/spec-kit/concern-service/internal/api/http/handlers"
	"github.com/spec-kit/concern-service/internal/auth"
	"github.com/spec-kit/concern-service/internal/config"
	"github.com/spec-kit/concern-service/internal/events"
	"github.com/spec-kit/concern-service/internal/observability"
	"github.com/spec-kit/concern-service/internal/persistence"
	"github.com/spec-kit/concern-service/internal/repository"
	"github.com/spec-kit/concern-service/internal/service"
	"github.com/spec-kit/concern-service/internal/worker"
)

type repositories struct {
	concerns    repository.ConcernRepository
	handlers    repository.HandlerRepository
	students    repository.StudentRepository
	departments repository.DepartmentRepository
	crossDept   repository.CrossDepartmentRepository
	history     repository.HistoryRepository
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Without a Postgres DSN the service runs entirely in memory, which is
	// enough for local development and demos.
	var pg *persistence.Postgres
	var repos repositories
	if cfg.Postgres.DSN != "" {
		pg, err = persistence.NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			logger.Fatal("failed to connect postgres", zap.Error(err))
		}
		defer pg.Close()

		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
				logger.Fatal("failed to run migrations", zap.Error(err))
			}
		}

		pool := pg.PoolHandle()
		repos = repositories{
			concerns:    repository.NewConcernRepository(pool),
			handlers:    repository.NewHandlerRepository(pool),
			students:    repository.NewStudentRepository(pool),
			departments: repository.NewDepartmentRepository(pool),
			crossDept:   repository.NewCrossDepartmentRepository(pool),
			history:     repository.NewHistoryRepository(pool),
		}
	} else {
		logger.Warn("POSTGRES_DSN not set, using in-memory repositories")
		repos = repositories{
			concerns:    repository.NewMemoryConcernRepository(),
			handlers:    repository.NewMemoryHandlerRepository(),
			students:    repository.NewMemoryStudentRepository(),
			departments: repository.NewMemoryDepartmentRepository(),
			crossDept:   repository.NewMemoryCrossDepartmentRepository(),
			history:     repository.NewMemoryHistoryRepository(),
		}
	}

	var sequencer persistence.ReferenceSequencer
	var redis *persistence.Redis
	if cfg.Redis.Addr != "" {
		redis = persistence.NewRedis(cfg.Redis, logger)
		defer redis.Close()
		sequencer = persistence.NewRedisSequencer(redis.Client)
	} else {
		logger.Warn("REDIS_ADDR not set, using in-memory reference sequencer")
		sequencer = persistence.NewMemorySequencer()
	}

	dispatcher := events.NewInMemoryDispatcher()
	metrics := observability.NewMetrics()
	subscribeMetrics(dispatcher, metrics)

	concernService := service.NewConcernService(service.ConcernDependencies{
		ConcernRepo:    repos.concerns,
		HandlerRepo:    repos.handlers,
		StudentRepo:    repos.students,
		DepartmentRepo: repos.departments,
		CrossDeptRepo:  repos.crossDept,
		HistoryRepo:    repos.history,
		Sequencer:      sequencer,
		Chat:           service.NewLoggingChatGateway(logger),
		Dispatcher:     dispatcher,
		Logger:         logger,
		CapacityCap:    cfg.Escalation.CapacityCap,
	})
	escalationService := service.NewEscalationService(service.EscalationDependencies{
		ConcernRepo:    repos.concerns,
		HandlerRepo:    repos.handlers,
		DepartmentRepo: repos.departments,
		ConcernService: concernService,
		Dispatcher:     dispatcher,
		Logger:         logger,
		Config:         cfg.Escalation,
	})
	balanceService := service.NewBalanceService(service.BalanceDependencies{
		ConcernRepo:    repos.concerns,
		HandlerRepo:    repos.handlers,
		DepartmentRepo: repos.departments,
		ConcernService: concernService,
		Dispatcher:     dispatcher,
		Logger:         logger,
		Config:         cfg.Escalation,
	})
	authService := service.NewAuthService(*cfg, service.AuthDependencies{
		StudentRepo: repos.students,
		HandlerRepo: repos.handlers,
	})
	notificationService := service.NewNotificationService(dispatcher, logger, cfg.Notification)

	worker.StartNotificationWorker(notificationService)
	worker.StartEscalationWorker(ctx, escalationService, cfg.Escalation.SweepInterval(), logger)

	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), repos.students, repos.handlers)

	app := fiber.New(fiber.Config{DisableStartupMessage: cfg.App.Env == "production"})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Auth:           handlers.NewAuthHandler(authService),
		Concerns:       handlers.NewConcernsHandler(concernService),
		Orchestrator:   handlers.NewOrchestratorHandler(concernService, escalationService, balanceService),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)
	cancel()

	_ = app.Shutdown()
}

func subscribeMetrics(dispatcher events.Dispatcher, metrics *observability.Metrics) {
	count := func(name string) events.EventHandler {
		return func(context.Context, events.Event) error {
			metrics.IncDomain(name)
			return nil
		}
	}
	dispatcher.Subscribe(events.EventConcernSubmitted, count("concerns_submitted"))
	dispatcher.Subscribe(events.EventConcernAssigned, count("concerns_assigned"))
	dispatcher.Subscribe(events.EventConcernEscalated, count("concerns_escalated"))
	dispatcher.Subscribe(events.EventConcernReminderSent, count("reminders_sent"))
	dispatcher.Subscribe(events.EventResolutionConfirmed, count("resolutions_confirmed"))
	dispatcher.Subscribe(events.EventResolutionDisputed, count("resolutions_disputed"))
	dispatcher.Subscribe(events.EventEmergencyActivated, count("emergencies_activated"))
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
