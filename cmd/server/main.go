package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"slotforge/internal/api"
	"slotforge/internal/config"
	"slotforge/internal/db"
	"slotforge/internal/dispatch"
	"slotforge/internal/jobs"
	"slotforge/internal/metrics"
	"slotforge/internal/report"
	"slotforge/internal/template"
)

func main() {
	_ = godotenv.Load()

	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	cfg, err := config.Load(os.Getenv("SLOTFORGE_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	database, err := db.NewDB(cfg.Database.Path)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer database.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		cancel()
		logger.Fatal().Err(err).Str("addr", cfg.Redis.Address).Msg("redis unreachable")
	}
	cancel()

	orch := jobs.NewOrchestrator(rdb, &logger)
	applier := template.NewApplier(database, &logger)
	snapshots := jobs.NewSnapshotCache(rdb, cfg.SnapshotTTL(), &logger)
	executor := jobs.NewExecutor(database, applier, snapshots, jobs.ExecutorConfig{
		HorizonDays:      cfg.Generation.HorizonDays,
		ChunkDays:        cfg.Generation.ChunkDays,
		FallbackDuration: cfg.Generation.FallbackDurationMinute,
	}, &logger)

	pool := jobs.NewPool(orch, executor, jobs.PoolConfig{
		Workers:     cfg.Workers.Count,
		JobTimeout:  cfg.JobTimeout(),
		MaxRetries:  cfg.Workers.MaxRetries,
		BackoffBase: cfg.BackoffBase(),
		PollTimeout: time.Second,
	}, &logger)

	checkInterval := time.Duration(cfg.Dispatch.CheckIntervalSeconds) * time.Second
	fullHorizon, err := dispatch.NewFullHorizonDispatcher(dispatch.FullHorizonConfig{
		Timezone:      cfg.Dispatch.ReferenceTimezone,
		DailyHour:     cfg.Dispatch.FullHorizonHour,
		DailyMinute:   cfg.Dispatch.FullHorizonMinute,
		CheckInterval: checkInterval,
		SubmitRate:    cfg.Dispatch.SubmitRatePerSecond,
		SubmitBurst:   cfg.Dispatch.SubmitBurst,
	}, database, orch, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("create full-horizon dispatcher error")
	}

	hourly, err := dispatch.NewHourlyDispatcher(dispatch.HourlyConfig{
		Timezone:      cfg.Dispatch.ReferenceTimezone,
		CheckInterval: checkInterval,
		SubmitRate:    cfg.Dispatch.SubmitRatePerSecond,
		SubmitBurst:   cfg.Dispatch.SubmitBurst,
	}, database, orch, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("create hourly dispatcher error")
	}

	exporter := report.NewExporter(database)
	server := api.NewHTTPServer(cfg.API.Port, cfg.API.APIKey, orch, exporter, &logger)

	if cfg.Monitoring.HealthCheckPort == 0 {
		cfg.Monitoring.HealthCheckPort = 8090
	}
	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, database, rdb, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	go fullHorizon.Start(ctx)
	go hourly.Start(ctx)
	go pool.Run(ctx)

	logger.Info().Int("port", cfg.API.Port).Msg("availability engine started")
	if err := server.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("api server error")
	}
}

func startHealthServer(ctx context.Context, port int, database *db.DB, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := database.PingContext(ctxPing); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if err := rdb.Ping(ctxPing).Err(); err != nil {
			http.Error(w, "redis not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
