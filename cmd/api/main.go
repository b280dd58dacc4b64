package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/botdesk/internal/api/router"
	"github.com/wolfman30/botdesk/internal/app/bootstrap"
	"github.com/wolfman30/botdesk/internal/bot"
	"github.com/wolfman30/botdesk/internal/chat"
	appconfig "github.com/wolfman30/botdesk/internal/config"
	"github.com/wolfman30/botdesk/internal/events"
	"github.com/wolfman30/botdesk/internal/leads"
	"github.com/wolfman30/botdesk/internal/llm"
	"github.com/wolfman30/botdesk/internal/observability/metrics"
	"github.com/wolfman30/botdesk/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger, closeLog, err := logging.OpenWithFile(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		logger.Warn("log file unavailable; logging to stdout only", "path", cfg.LogFile, "error", err)
	}
	defer func() { _ = closeLog() }()

	logger.Info("starting botdesk API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"llm_provider", cfg.LLMProvider,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	fmt.Println("Server exited gracefully")
}

func run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) error {
	pool, err := bootstrap.ConnectPostgres(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return err
	}
	if pool != nil {
		defer pool.Close()
	}
	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	bots := bootstrap.BuildBotRepository(pool, redisClient, cfg, logger)
	client, model, err := bootstrap.BuildLLMClient(ctx, cfg, logger)
	if err != nil {
		return err
	}
	embedder, err := bootstrap.BuildEmbedder(ctx, cfg, logger)
	if err != nil {
		return err
	}

	metricsHandler, chatMetrics := setupMetrics()
	services, err := bootstrap.BuildChatServices(cfg, bootstrap.ChatDeps{
		Pool:     pool,
		Redis:    redisClient,
		Bots:     bots,
		LLM:      client,
		Model:    model,
		Embedder: embedder,
		Metrics:  chatMetrics,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	handler := router.New(&router.Config{
		Logger:             logger,
		ChatHandler:        chat.NewHandler(services.Orchestrator, logger),
		BotHandler:         bot.NewHandler(bots, services.Reindexer, logger),
		LeadsHandler:       leads.NewHandler(services.Leads, logger),
		Bots:               bots,
		LeadLimiter:        services.LeadLimiter,
		AdminAuthSecret:    cfg.AdminJWTSecret,
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		HealthCheck:        healthCheck(pool, redisClient),
	})
	if cfg.AdminJWTSecret == "" {
		logger.Warn("ADMIN_JWT_SECRET not set; admin routes are disabled")
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.LLMTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	if services.Outbox != nil {
		webhooks := events.NewWebhookDeliverer(bots, cfg.WebhookSecret, &http.Client{Timeout: cfg.WebhookTimeout}, logger)
		deliverer := events.NewDeliverer(services.Outbox, webhooks, logger).
			WithInterval(cfg.OutboxInterval).
			WithBatchSize(int32(cfg.OutboxBatchSize))
		g.Go(func() error {
			deliverer.Start(gctx)
			return nil
		})
	} else {
		logger.Warn("no database configured; webhooks are disabled")
	}
	g.Go(func() error {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	logger.Info("server stopped")
	return err
}

// setupMetrics builds a registry holding the process, LLM and chat collectors.
func setupMetrics() (http.Handler, *metrics.ChatMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	llm.RegisterMetrics(reg)
	chatMetrics := metrics.NewChatMetrics(reg)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), chatMetrics
}

func healthCheck(pool *pgxpool.Pool, redisClient *redis.Client) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if pool != nil {
			if err := pool.Ping(ctx); err != nil {
				return fmt.Errorf("postgres: %w", err)
			}
		}
		if redisClient != nil {
			if err := redisClient.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("redis: %w", err)
			}
		}
		return nil
	}
}
