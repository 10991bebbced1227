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

	"github.com/fathima-sithara/social-platform/backend/services/search-service/internal/cache"
	"github.com/fathima-sithara/social-platform/backend/services/search-service/internal/config"
	"github.com/fathima-sithara/social-platform/backend/services/search-service/internal/handlers"
	"github.com/fathima-sithara/social-platform/backend/services/search-service/internal/projector"
	"github.com/fathima-sithara/social-platform/backend/services/search-service/internal/repository"
	"github.com/fathima-sithara/social-platform/backend/services/search-service/internal/services"
	sharedcfg "github.com/fathima-sithara/social-platform/backend/shared/config"
	"github.com/fathima-sithara/social-platform/backend/shared/database"
	"github.com/fathima-sithara/social-platform/backend/shared/eventbus"
	"github.com/fathima-sithara/social-platform/backend/shared/logger"
	"github.com/fathima-sithara/social-platform/backend/shared/metrics"
	"github.com/fathima-sithara/social-platform/backend/shared/middleware"
)

const serviceName = "search-service"

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
	repo := repository.NewSearchRepo(mc.Database(cfg.Mongo.Database).Collection(cfg.Mongo.Collection))
	if err := repo.EnsureIndexes(ctx); err != nil {
		// projection upserts rely on the unique postId index
		log.Fatal("ensure indexes", zap.Error(err))
	}

	rdb, err := database.ConnectRedis(ctx, cfg.Redis, 5*time.Second)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	searchCache := cache.NewSearchCache(rdb, log)

	broker, err := eventbus.New(cfg.Bus, serviceName, log)
	if err != nil {
		log.Fatal("bus init", zap.Error(err))
	}
	if err := broker.Connect(ctx); err != nil {
		log.Fatal("bus connect", zap.Error(err))
	}
	dispatcher := eventbus.NewDispatcher(broker, eventbus.RetryPolicyFrom(cfg.Bus), log)
	if err := projector.New(repo, searchCache, log).Bind(ctx, dispatcher); err != nil {
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
	handlers.NewHandler(services.NewSearchService(repo, searchCache), log).Register(app)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		log.Info("starting search service", zap.String("addr", addr))
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
	_ = rdb.Close()
	_ = mc.Disconnect(timeoutCtx)
	log.Info("shutdown completed")
}
