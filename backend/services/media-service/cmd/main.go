package main

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/fathima-sithara/social-platform/backend/services/media-service/internal/config"
	"github.com/fathima-sithara/social-platform/backend/services/media-service/internal/handlers"
	"github.com/fathima-sithara/social-platform/backend/services/media-service/internal/repository"
	service "github.com/fathima-sithara/social-platform/backend/services/media-service/internal/services"
	"github.com/fathima-sithara/social-platform/backend/services/media-service/internal/storage"
	sharedcfg "github.com/fathima-sithara/social-platform/backend/shared/config"
	"github.com/fathima-sithara/social-platform/backend/shared/database"
	"github.com/fathima-sithara/social-platform/backend/shared/eventbus"
	"github.com/fathima-sithara/social-platform/backend/shared/logger"
	"github.com/fathima-sithara/social-platform/backend/shared/metrics"
	"github.com/fathima-sithara/social-platform/backend/shared/middleware"
)

const serviceName = "media-service"

func main() {
	configPath := flag.String("config", sharedcfg.Path("config/config.yaml"), "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	log, err := logger.New(logger.Config{Development: cfg.Log.Development(), Level: cfg.Log.Level})
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()
	log = log.With(zap.String("service", serviceName))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mc, err := database.ConnectMongo(ctx, cfg.Mongo.MongoCfg, 10*time.Second)
	if err != nil {
		log.Fatal("mongo connect", zap.Error(err))
	}
	repo := repository.NewMediaRepo(mc.Database(cfg.Mongo.Database).Collection(cfg.Mongo.Collection))
	if err := repo.EnsureIndexes(ctx); err != nil {
		log.Warn("ensure indexes", zap.Error(err))
	}

	store, err := storage.NewS3Store(ctx, cfg.AWS.Region, cfg.AWS.Bucket, cfg.AWS.Endpoint, cfg.S3.PublicRead)
	if err != nil {
		log.Fatal("s3 init", zap.Error(err))
	}
	svc := service.NewMediaService(repo, store, cfg.PresignTTL(), log)

	broker, err := eventbus.New(cfg.Bus, serviceName, log)
	if err != nil {
		log.Fatal("bus init", zap.Error(err))
	}
	if err := broker.Connect(ctx); err != nil {
		log.Fatal("bus connect", zap.Error(err))
	}
	dispatcher := eventbus.NewDispatcher(broker, eventbus.RetryPolicyFrom(cfg.Bus), log)
	if err := svc.Bind(ctx, dispatcher); err != nil {
		log.Fatal("subscribe", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:           cfg.Server.ReadTimeout(),
		WriteTimeout:          cfg.Server.WriteTimeout(),
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(middleware.RequestLog(log))
	app.Get("/healthz", func(c *fiber.Ctx) error { return c.SendString("ok") })
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	handlers.NewHandler(svc, log).Register(app)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		log.Info("starting media service", zap.String("addr", addr))
		if err := app.Listen(addr); err != nil {
			log.Error("listen failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutdown requested")
	timeoutCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout())
	defer cancel()

	_ = app.ShutdownWithContext(timeoutCtx)
	dispatcher.Wait()
	if err := broker.Close(); err != nil {
		log.Warn("bus close", zap.Error(err))
	}
	_ = mc.Disconnect(timeoutCtx)
	log.Info("shutdown completed")
}
