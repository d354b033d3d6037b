// Command taxcalc-worker records queued calculation requests.
package main

import (
	"context"
	"errors"
	"os"

	"taxcalc/internal/amqp"
	"taxcalc/internal/cli"
	"taxcalc/internal/log"
	"taxcalc/internal/services"
	"taxcalc/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	bootLogger := log.New(log.DefaultConfig())
	cfg := cli.LoadAndValidateConfig(bootLogger)

	logger, err := cli.SetupLogger(cfg.LogLevel, log.ComponentWorker, os.Stdout)
	if err != nil {
		bootLogger.Error("Invalid log level", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Starting taxcalc-worker", log.FieldOperation, log.OpStartup)

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the worker")
		os.Exit(1)
	}

	table, err := cli.LoadSchedules(cfg.SchedulesFile)
	if err != nil {
		logger.Error("Failed to load tax schedules", log.FieldError, err)
		os.Exit(1)
	}

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer client.Close()

	calc := services.NewCalculator(table, logger,
		services.WithCache(cfg.CacheSize, cfg.CacheTTL),
		services.WithHistory(repo))
	w := worker.NewCalculationWorker(calc, logger)

	ctx, cancel := cli.ShutdownContext(logger)
	defer cancel()

	err = client.ConsumeCalculationRequests(ctx, w.HandleRequest)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", log.FieldError, err)
		os.Exit(1)
	}

	stats := w.Stats()
	logger.Info("Worker stopped",
		"processed", stats.Processed,
		"rejected", stats.Rejected,
		"retried", stats.Retried)
}
