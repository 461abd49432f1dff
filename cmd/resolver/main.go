package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"agenthub/internal/config"
	cronrunner "agenthub/internal/cron"
	"agenthub/internal/handler"
	"agenthub/internal/logger"
	"agenthub/internal/notify"
	"agenthub/internal/oracle"
	"agenthub/internal/resolver"
	"agenthub/internal/service"
	"agenthub/internal/stats"
	"agenthub/internal/storage"
)

func main() {
	cfgPath := os.Getenv("AH_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("AH_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	log, err := logger.New("agenthub-resolver", cfg.Log)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	backend, err := storage.Open(cfg, log)
	if err != nil {
		log.Fatal("store open failed", zap.Error(err))
	}
	defer func() { _ = backend.Close() }()
	store := backend.Repo

	redisClient := initRedis(cfg.Redis, log)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	var lastKnown oracle.LastKnown
	if redisClient != nil {
		lastKnown = &oracle.RedisLastKnown{Client: redisClient, Prefix: cfg.Redis.KeyPrefix}
	}
	priceOracle, err := oracle.FromConfig(cfg.Oracle, lastKnown, log)
	if err != nil {
		log.Fatal("oracle init failed", zap.Error(err))
	}

	aggregator := &stats.Aggregator{Repo: store, Logger: log}
	engine := &resolver.Engine{
		Repo:        store,
		Oracle:      priceOracle,
		Stats:       aggregator,
		Sink:        buildSinks(cfg.Notify, redisClient, log),
		Logger:      log,
		BatchLimit:  cfg.Resolver.BatchLimit,
		Concurrency: cfg.Resolver.Concurrency,
	}
	hub := &service.HubService{
		Repo:   store,
		Engine: engine,
		Oracle: priceOracle,
		Stats:  aggregator,
		Logger: log,
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(handler.WriteLogger(log))

	healthHandler := &handler.HealthHandler{Store: store, Driver: backend.Driver}
	healthHandler.Register(router)
	hubHandler := &handler.HubHandler{Service: hub, Repo: store}
	hubHandler.Register(router)
	resolverHandler := &handler.ResolverHandler{Engine: engine, Stats: aggregator}
	resolverHandler.Register(router)
	oracleHandler := &handler.OracleHandler{Oracle: priceOracle}
	oracleHandler.Register(router)

	srv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Resolver.HealOnStart {
		n, err := aggregator.RecomputeAll(ctx)
		if err != nil {
			log.Warn("initial stats recompute failed (continuing)", zap.Error(err))
		} else {
			log.Info("initial stats recompute complete", zap.Int("strategies", n))
		}
	}

	cronRunner := cronrunner.New(log, ctx)
	if cfg.Resolver.Enabled {
		if cfg.Resolver.EagerRun {
			if err := engine.RunOnce(ctx); err != nil {
				log.Warn("initial sweep failed (continuing)", zap.Error(err))
			}
		}
		_, err := cronRunner.Every(cfg.Resolver.SweepInterval, func(ctx context.Context) {
			if err := engine.RunOnce(ctx); err != nil {
				log.Warn("resolver sweep failed", zap.Error(err))
			}
		})
		if err != nil {
			log.Fatal("cron register resolver sweep failed", zap.Error(err))
		}
		log.Info("resolver scheduled", zap.Duration("interval", cfg.Resolver.SweepInterval))
	} else {
		log.Info("resolver disabled, sweeps only via api")
	}
	cronRunner.Start()
	defer cronRunner.Stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr), zap.String("store", backend.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown requested")
	case err := <-errCh:
		log.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func initRedis(cfg config.RedisConfig, log *zap.Logger) *redis.Client {
	if !cfg.Enabled || strings.TrimSpace(cfg.Addr) == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn("redis ping failed (last-known prices and pubsub disabled)", zap.Error(err))
		_ = client.Close()
		return nil
	}
	log.Info("redis connected", zap.String("addr", cfg.Addr))
	return client
}

func buildSinks(cfg config.NotifyConfig, redisClient *redis.Client, log *zap.Logger) notify.Sink {
	var sinks notify.Fanout
	if cfg.Log {
		sinks = append(sinks, notify.LogSink{Logger: log})
	}
	if url := strings.TrimSpace(cfg.WebhookURL); url != "" {
		sinks = append(sinks, notify.WebhookSink{HTTP: &http.Client{Timeout: cfg.Timeout}, URL: url})
	}
	if redisClient != nil && strings.TrimSpace(cfg.RedisChannel) != "" {
		sinks = append(sinks, notify.RedisSink{Client: redisClient, Channel: cfg.RedisChannel})
	}
	if strings.TrimSpace(cfg.AuditBaseURL) != "" && strings.TrimSpace(cfg.AuditAPIKey) != "" {
		sinks = append(sinks, &notify.AuditLogSink{
			BaseURL: cfg.AuditBaseURL,
			APIKey:  cfg.AuditAPIKey,
			HTTP:    &http.Client{Timeout: cfg.Timeout},
		})
	}
	return sinks
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,X-Owner,X-Request-Id")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
