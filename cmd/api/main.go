package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/ticket-approval/internal/api/http"
	"github.com/spec-kit/ticket-approval/internal/api/http/handlers"
	"github.com/spec-kit/ticket-approval/internal/auth"
	"github.com/spec-kit/ticket-approval/internal/config"
	"github.com/spec-kit/ticket-approval/internal/domain"
	"github.com/spec-kit/ticket-approval/internal/events"
	"github.com/spec-kit/ticket-approval/internal/flow"
	"github.com/spec-kit/ticket-approval/internal/handler"
	"github.com/spec-kit/ticket-approval/internal/observability"
	"github.com/spec-kit/ticket-approval/internal/persistence"
	"github.com/spec-kit/ticket-approval/internal/repository"
	"github.com/spec-kit/ticket-approval/internal/service"
	"github.com/spec-kit/ticket-approval/internal/worker"
	"github.com/spec-kit/ticket-approval/internal/workflow"
	"github.com/spec-kit/ticket-approval/migrations"
)

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

	location, err := cfg.Workflow.Location()
	if err != nil {
		logger.Fatal("invalid workflow config", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, cfg.App.Name, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()
	pool := pg.PoolHandle()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	readiness := map[string]handlers.Pinger{"postgres": pg, "redis": nil}
	var locker workflow.Locker
	if err := redis.Ping(ctx); err != nil {
		logger.Warn("redis unavailable; serial numbers are only serialized within this process", zap.Error(err))
		locker = workflow.NewLocalLocker(cfg.Workflow.SerialLockWait)
	} else {
		locker = persistence.NewRedisLocker(redis.Client, cfg.Workflow.SerialLockTTL, cfg.Workflow.SerialLockWait, logger)
		readiness["redis"] = redis
	}

	ticketRepo := repository.NewTicketRepository(pool)
	userRepo := repository.NewUserRepository(pool)
	flowRepo := repository.NewFlowRepository(pool)
	commentRepo := repository.NewCommentRepository(pool)
	historyRepo := repository.NewTicketHistoryRepository(pool)

	dispatcher := events.NewInMemoryDispatcher()
	notificationService := service.NewNotificationService(dispatcher, logger, cfg.Notification)
	notifications := worker.StartNotificationWorker(ctx, notificationService, cfg.Notification, logger)

	payloads := domain.NewPayloadRegistry()
	controller := workflow.NewController(workflow.Dependencies{
		Store:     repository.NewStore(pool),
		Serials:   workflow.NewSerialAllocator(locker, location),
		Flows:     flow.NewSource(flowRepo, userRepo),
		Handlers:  handler.NewDefaultRegistry(handler.NewBase(historyRepo, dispatcher, logger), payloads),
		Directory: userRepo,
		Logger:    logger,
	})

	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:        ticketRepo,
		FlowRepo:          flowRepo,
		UserRepo:          userRepo,
		CommentRepo:       commentRepo,
		HistoryRepo:       historyRepo,
		Workflow:          controller,
		Payloads:          payloads,
		Dispatcher:        dispatcher,
		Logger:            logger,
		OpenRetryAttempts: cfg.Workflow.OpenRetryAttempts,
	})

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes, cfg.Auth.Issuer)
	authMiddleware := auth.NewAuthMiddleware(tokens, userRepo, cfg.Auth.SystemToken)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, observability.NewMetrics(), cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, readiness),
		Tickets:        handlers.NewTicketsHandler(ticketService, validator.New()),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if notifications != nil {
		notifications.Stop()
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
