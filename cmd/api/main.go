package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/livechat-service/internal/api/http"
	"github.com/spec-kit/livechat-service/internal/api/http/handlers"
	"github.com/spec-kit/livechat-service/internal/auth"
	"github.com/spec-kit/livechat-service/internal/config"
	"github.com/spec-kit/livechat-service/internal/events"
	"github.com/spec-kit/livechat-service/internal/observability"
	"github.com/spec-kit/livechat-service/internal/persistence"
	"github.com/spec-kit/livechat-service/internal/presence"
	"github.com/spec-kit/livechat-service/internal/realtime"
	"github.com/spec-kit/livechat-service/internal/repository"
	"github.com/spec-kit/livechat-service/internal/service"
	"github.com/spec-kit/livechat-service/internal/storage"
	"github.com/spec-kit/livechat-service/internal/worker"
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	pool := pg.PoolHandle()
	businessRepo := repository.NewBusinessRepository(pool)
	agentRepo := repository.NewAgentRepository(pool)
	sessionRepo := repository.NewSessionRepository(pool)
	messageRepo := repository.NewMessageRepository(pool)
	triggerRepo := repository.NewTriggerRepository(pool)

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()

	mirror := presence.NewRedisMirror(redis.Client, cfg.Widget.PresenceTTL(), logger)
	registry := presence.NewRegistry(mirror)

	hub := realtime.NewHub(registry, dispatcher, logger, cfg.Widget.SendBufferSize)
	fanout := service.NewFanout(registry, hub, metrics, logger)

	store, err := storage.NewLocalStore(cfg.Storage.UploadDir, cfg.Storage.PublicPathPrefix)
	if err != nil {
		logger.Fatal("failed to init upload store", zap.Error(err))
	}

	sessionService := service.NewSessionService(service.SessionDependencies{
		SessionRepo: sessionRepo,
		Dispatcher:  dispatcher,
	})
	messageService := service.NewMessageService(service.MessageDependencies{
		Sessions:        sessionService,
		SessionRepo:     sessionRepo,
		MessageRepo:     messageRepo,
		BusinessRepo:    businessRepo,
		AgentRepo:       agentRepo,
		Store:           store,
		Fanout:          fanout,
		Dispatcher:      dispatcher,
		Logger:          logger,
		EmailPromptText: cfg.Widget.EmailPromptText,
	})
	triggerService := service.NewTriggerService(service.TriggerDependencies{
		TriggerRepo:  triggerRepo,
		SessionRepo:  sessionRepo,
		MessageRepo:  messageRepo,
		BusinessRepo: businessRepo,
		AgentRepo:    agentRepo,
		Fanout:       fanout,
		Dispatcher:   dispatcher,
		Logger:       logger,
	})
	hub.Bind(triggerService, sessionService)

	notificationService := service.NewNotificationService(dispatcher, logger, cfg.Notification)
	worker.StartNotificationWorker(notificationService)

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret)
	authMiddleware := auth.NewAuthMiddleware(tokens, agentRepo)
	connectionHandler := realtime.NewConnectionHandler(hub, tokens, businessRepo, logger)

	app := fiber.New(fiber.Config{
		AppName:   cfg.App.Name,
		BodyLimit: int(cfg.Widget.MaxUploadSizeBytes) + 1<<20,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	healthHandler := handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis)
	widgetHandler := handlers.NewWidgetHandler(messageService, sessionService, triggerService, businessRepo, cfg.Widget.MaxUploadSizeBytes)
	conversationsHandler := handlers.NewConversationsHandler(messageService, sessionService, registry)
	triggersHandler := handlers.NewTriggersHandler(triggerService)

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         healthHandler,
		Widget:         widgetHandler,
		Conversations:  conversationsHandler,
		Triggers:       triggersHandler,
		Realtime:       connectionHandler,
		AuthMiddleware: authMiddleware,
		UploadDir:      cfg.Storage.UploadDir,
		UploadPrefix:   cfg.Storage.PublicPathPrefix,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
