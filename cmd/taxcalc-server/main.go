// Command taxcalc-server serves the tax calculator over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"taxcalc/internal/amqp"
	"taxcalc/internal/cache"
	"taxcalc/internal/cli"
	apphttp "taxcalc/internal/http"
	"taxcalc/internal/log"
	"taxcalc/internal/services"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cli.LoadEnvFile()

	bootLogger := log.New(log.DefaultConfig())
	cfg := cli.LoadAndValidateConfig(bootLogger)

	logger, err := cli.SetupLogger(cfg.LogLevel, log.ComponentApp, os.Stdout)
	if err != nil {
		bootLogger.Error("Invalid log level", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Starting taxcalc-server", log.FieldOperation, log.OpStartup)

	table, err := cli.LoadSchedules(cfg.SchedulesFile)
	if err != nil {
		logger.Error("Failed to load tax schedules", log.FieldError, err)
		os.Exit(1)
	}

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	readiness := map[string]apphttp.ReadinessCheck{"sqlite": repo.Ping}
	opts := []services.Option{
		services.WithCache(cfg.CacheSize, cfg.CacheTTL),
		services.WithHistory(repo),
	}

	// The queue is optional; without it /api/calculations/queue answers 503.
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err)
			os.Exit(1)
		}
		defer client.Close()
		opts = append(opts, services.WithPublisher(client))
		logger.Info("AMQP publishing enabled", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	} else {
		logger.Info("AMQP disabled - no AMQP_URL provided")
	}

	calc := services.NewCalculator(table, logger, opts...)

	ctx, cancel := cli.ShutdownContext(logger)
	defer cancel()

	cacheManager := cache.NewManager(logger)
	if rc := calc.ResultCache(); rc != nil {
		cacheManager.Register(rc)
	}
	go cacheManager.Run(ctx, cfg.CacheTTL)

	srv := apphttp.NewServer(apphttp.Config{
		Addr:              ":" + cfg.Port,
		RequestsPerMinute: cfg.RateLimitPerMinute,
		ReadinessChecks:   readiness,
	}, calc, logger)

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		logger.Error("Failed to listen", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	logger.Info("Listening", "port", cfg.Port, "years", table.Years())
	if err := serve(ctx, srv, ln, logger); err != nil {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		cancel()
		os.Exit(1)
	}

	<-cacheManager.Done()
	stats := calc.CacheStats()
	limits := srv.RateLimitMetrics()
	logger.Info("Server stopped gracefully",
		"cache_hits", stats.Hits,
		"cache_misses", stats.Misses,
		"rate_limited", limits.Rejected,
		"rate_limit_clients", limits.ClientCount)
}

// serve handles requests on ln until ctx is cancelled. It returns only
// after in-flight requests have drained, so the caller may close the
// history and queue afterwards.
func serve(ctx context.Context, srv *apphttp.Server, ln net.Listener, logger *log.Logger) error {
	drained := make(chan error, 1)
	go func() {
		<-ctx.Done()
		logger.Info("Draining in-flight requests", log.FieldOperation, log.OpShutdown)
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		drained <- srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	if err := <-drained; err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
