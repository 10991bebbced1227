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

	"github.com/fathima-sithara/social-platform/backend/api-gateway/internal/config"
	"github.com/fathima-sithara/social-platform/backend/api-gateway/internal/discovery"
	"github.com/fathima-sithara/social-platform/backend/api-gateway/internal/proxy"
	"github.com/fathima-sithara/social-platform/backend/api-gateway/internal/router"
	sharedcfg "github.com/fathima-sithara/social-platform/backend/shared/config"
	"github.com/fathima-sithara/social-platform/backend/shared/database"
	"github.com/fathima-sithara/social-platform/backend/shared/httpclient"
	jwtv "github.com/fathima-sithara/social-platform/backend/shared/jwt"
	"github.com/fathima-sithara/social-platform/backend/shared/logger"
	"github.com/fathima-sithara/social-platform/backend/shared/metrics"
	"github.com/fathima-sithara/social-platform/backend/shared/middleware"
)

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
	log = log.With(zap.String("service", "api-gateway"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	verifier, err := jwtv.NewVerifier(cfg.JWT.PublicKeyPath, cfg.JWT.Secret)
	if err != nil {
		log.Fatal("failed to init jwt verifier", zap.Error(err))
	}

	var limiter middleware.Limiter
	if cfg.Redis.Addr != "" {
		rdb, err := database.ConnectRedis(ctx, cfg.Redis, 5*time.Second)
		if err != nil {
			log.Fatal("redis connect", zap.Error(err))
		}
		defer rdb.Close()
		limiter = middleware.NewRedisLimiter(rdb, "ratelimit", cfg.RateLimit.Requests, cfg.RateLimit.Window())
	} else {
		log.Info("no redis configured, rate limiting per instance")
		limiter = middleware.NewMemoryLimiter(ctx, cfg.RateLimit.Requests, cfg.RateLimit.Window())
	}

	disc, err := discovery.New(cfg.Discovery, log)
	if err != nil {
		log.Fatal("discovery init failed", zap.Error(err))
	}
	client := httpclient.NewClient(httpclient.ClientConfig{
		Timeout:         cfg.Upstream.Timeout(),
		RetryMaxElapsed: cfg.Upstream.RetryMaxElapsed(),
		MaxIdleConns:    100,
		IdleConnTimeout: 90 * time.Second,
	})
	prox := proxy.New(disc, client, cfg.CircuitBreaker, log)

	app := fiber.New(fiber.Config{
		ReadTimeout:           cfg.Server.ReadTimeout(),
		WriteTimeout:          cfg.Server.WriteTimeout(),
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(middleware.RequestLog(log))
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	router.RegisterRoutes(app, prox, verifier, limiter, log)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		log.Info("starting gateway", zap.String("addr", addr))
		if err := app.Listen(addr); err != nil {
			log.Error("server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutdown requested")
	timeoutCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout())
	defer cancel()
	_ = app.ShutdownWithContext(timeoutCtx)
	log.Info("gateway stopped")
}
