package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"bookkeep/internal/amqp"
	"bookkeep/internal/budget"
	"bookkeep/internal/config"
	"bookkeep/internal/log"
	"bookkeep/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logCfg := log.DefaultConfig()
	logCfg.Component = log.ComponentBudget
	logger := log.New(logCfg)
	log.SetDefault(logger)

	logger.Info("Starting alert-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	repo, err := storage.Open(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to open repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPEventsQueue, cfg.AMQPAlertsQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	checker := budget.NewChecker(repo, amqpClient, logger.Logger.With(log.FieldComponent, log.ComponentBudget))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// React to committed and reversed transactions as they happen.
	g.Go(func() error {
		return amqpClient.ConsumeTransactionEvents(ctx, func(event *amqp.TransactionEvent) error {
			alert, err := checker.CheckThresholds(ctx, event.UserID, time.Now().UTC())
			if err != nil {
				logger.Error("Threshold check failed", log.FieldError, err, log.FieldUserID, event.UserID)
				return err
			}
			if alert != nil {
				logger.Info("Budget alert fired",
					log.FieldUserID, alert.UserID,
					"period", alert.Period,
					"threshold", alert.Threshold)
			}
			return nil
		})
	})

	// Periodic sweep covers users whose spending crossed a threshold
	// while the worker was down.
	g.Go(func() error {
		ticker := time.NewTicker(cfg.AlertCheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case now := <-ticker.C:
				userIDs, err := repo.ListBudgetUserIDs(ctx)
				if err != nil {
					logger.Error("Listing budget users failed", "error", err)
					continue
				}
				for _, userID := range userIDs {
					if _, err := checker.CheckThresholds(ctx, userID, now.UTC()); err != nil {
						logger.Error("Sweep threshold check failed", log.FieldError, err, log.FieldUserID, userID)
					}
				}
			}
		}
	})

	logger.Info("Alert-worker running",
		"events_queue", cfg.AMQPEventsQueue,
		"sweep_interval", cfg.AlertCheckInterval)

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logger.Error("Alert-worker stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Alert-worker shutdown complete")
}
