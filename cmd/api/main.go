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
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-realtime-api/internal/config"
	"github.com/noah-isme/gema-realtime-api/internal/database"
	"github.com/noah-isme/gema-realtime-api/internal/handler"
	"github.com/noah-isme/gema-realtime-api/internal/middleware"
	"github.com/noah-isme/gema-realtime-api/internal/models"
	"github.com/noah-isme/gema-realtime-api/internal/realtime"
	"github.com/noah-isme/gema-realtime-api/internal/repository"
	"github.com/noah-isme/gema-realtime-api/internal/router"
	"github.com/noah-isme/gema-realtime-api/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.AppName).Logger()
	if cfg.AppEnv == "production" {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(models.All()...); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(rootCtx, cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	natsConn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName, logger)
	if err != nil {
		log.Fatalf("failed to connect to nats: %v", err)
	}
	if natsConn != nil {
		defer natsConn.Drain()
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	messageRepo := repository.NewMessageRepository(db)
	callRepo := repository.NewCallRecordRepository(db)
	userRepo := repository.NewUserRepository(db)
	relationshipRepo := repository.NewRelationshipRepository(db)
	groupRepo := repository.NewGroupRepository(db)

	registry := realtime.NewRegistry()
	hub := realtime.NewHub(registry, realtime.NewRooms(), logger)
	bus := service.NewEventBus(hub, redisClient, natsConn, cfg.RealtimeChannel, logger)
	hub.SetRelay(bus)
	bus.Start(rootCtx)

	dispatcher := service.NewDispatcher(hub, logger)
	presenceService := service.NewPresenceService(userRepo, dispatcher, logger)
	messageService := service.NewMessageService(messageRepo, userRepo, relationshipRepo, groupRepo, dispatcher, validate, logger, service.MessageOptions{
		MaxContentLength: cfg.MessageMaxLength,
	})
	signalService := service.NewSignalService(dispatcher, logger)
	callLogService := service.NewCallLogService(callRepo, relationshipRepo, groupRepo, redisClient, validate, logger, cfg.CallDedupeWindow)
	callService := service.NewCallService(relationshipRepo, groupRepo, callLogService, dispatcher, validate, logger)
	realtimeService := service.NewRealtimeService(dispatcher, presenceService, messageService, signalService, callService, relationshipRepo, groupRepo, logger, service.RealtimeOptions{
		OperationTimeout: cfg.OperationTimeout,
		WriteBuffer:      cfg.WriteBuffer,
		PingInterval:     cfg.PingInterval,
	})

	realtimeHandler := handler.NewRealtimeHandler(realtimeService, logger)
	messageHandler := handler.NewMessageHandler(messageService, logger, handler.MessageHandlerOptions{
		SendsPerMinute: cfg.MessagesPerMinute,
	})
	callHandler := handler.NewCallHandler(callLogService, logger)
	presenceHandler := handler.NewPresenceHandler(presenceService, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		RealtimeHandler: realtimeHandler,
		MessageHandler:  messageHandler,
		CallHandler:     callHandler,
		PresenceHandler: presenceHandler,
		JWTMiddleware:   middleware.JWTProtected(middleware.NewTokenVerifier(cfg.JWTSecret)),
		Registry:        registry,
		NodeID:          bus.NodeID(),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(rootCtx, app, logger)
}

func waitForShutdown(ctx context.Context, app *fiber.App, logger zerolog.Logger) {
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server stopped")
}
