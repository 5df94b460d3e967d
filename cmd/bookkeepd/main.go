package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"bookkeep/internal/amqp"
	"bookkeep/internal/budget"
	"bookkeep/internal/config"
	"bookkeep/internal/extract"
	apphttp "bookkeep/internal/http"
	"bookkeep/internal/ledger"
	"bookkeep/internal/log"
	"bookkeep/internal/money"
	"bookkeep/internal/rates"
	"bookkeep/internal/report"
	"bookkeep/internal/services"
	"bookkeep/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := log.New(log.DefaultConfig())
	log.SetDefault(logger)

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

	// AMQP is optional: without it transactions commit locally and no
	// events are published.
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPEventsQueue, cfg.AMQPAlertsQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without event publishing", "error", err)
			amqpClient = nil
		} else {
			defer amqpClient.Close()
			logger.Info("AMQP client initialized", "exchange", cfg.AMQPExchange)
		}
	} else {
		logger.Info("AMQP disabled - transaction events will not be published")
	}

	var eventPublisher ledger.EventPublisher
	var alertPublisher budget.AlertPublisher
	if amqpClient != nil {
		eventPublisher = amqpClient
		alertPublisher = amqpClient
	}

	// Currency conversion is only available when an API key is configured.
	var converter *money.Converter
	if cfg.CurrencyAPIKey != "" {
		converter = money.NewConverter(rates.NewClient(cfg.CurrencyAPIURL, cfg.CurrencyAPIKey, logger.Logger.With(log.FieldComponent, log.ComponentRates)))
		logger.Info("Currency rate provider initialized", "url", cfg.CurrencyAPIURL)
	} else {
		logger.Info("Currency conversion disabled - no CURRENCY_API_KEY provided")
	}

	var extractor extract.Extractor
	if cfg.ExtractorURL != "" {
		extractor = extract.NewHTTPExtractor(cfg.ExtractorURL)
		logger.Info("Document extractor initialized", "url", cfg.ExtractorURL)
	}

	ledgerSvc := ledger.New(repo, eventPublisher)
	txnService := services.NewTransactionService(repo, ledgerSvc, converter)
	budgetChecker := budget.NewChecker(repo, alertPublisher, logger.Logger.With(log.FieldComponent, log.ComponentBudget))
	reporter := report.New(repo)

	srv := apphttp.NewServer(":"+cfg.Port, repo, txnService, budgetChecker, reporter, extractor, logger)

	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cancel()
	}()

	logger.Info("Starting bookkeep server", "port", cfg.Port, "db", cfg.SQLiteDBPath)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}
