package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ecoscore-finance/ecoscore-backend/config"
	httpapi "github.com/ecoscore-finance/ecoscore-backend/internal/api/http"
	"github.com/ecoscore-finance/ecoscore-backend/internal/bootstrap"
	"github.com/ecoscore-finance/ecoscore-backend/internal/ecoscore/domain"
	ecohttp "github.com/ecoscore-finance/ecoscore-backend/internal/ecoscore/http"
	"github.com/ecoscore-finance/ecoscore-backend/internal/ecoscore/ledger"
	"github.com/ecoscore-finance/ecoscore-backend/internal/ecoscore/realtime"
	"github.com/ecoscore-finance/ecoscore-backend/internal/ecoscore/repository"
	"github.com/ecoscore-finance/ecoscore-backend/internal/ecoscore/scoring"
	"github.com/ecoscore-finance/ecoscore-backend/internal/ecoscore/service"
	"github.com/ecoscore-finance/ecoscore-backend/internal/ecoscore/telemetry"
	"github.com/ecoscore-finance/ecoscore-backend/internal/logging"
	"github.com/ecoscore-finance/ecoscore-backend/internal/storage/postgres"
	"golang.org/x/sync/errgroup"
)

const serviceName = "ecoscore-backend"

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.New(cfg.App.LogLevel)
	slog.SetDefault(logger)
	bootstrap.SetGinMode(cfg.App.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := bootstrap.OpenDB(ctx, bootstrap.DBOptions{
		DSN:      postgres.DSN(&cfg.Database),
		MaxConns: int32(cfg.Database.MaxConns),
	})
	if err != nil {
		return err
	}
	defer pool.Close()

	db := postgres.NewConnection(pool)
	defer db.Close()
	logger.Info("database connected", "db", cfg.Database.Name)

	model, err := scoring.LoadModel(cfg.Scoring.ModelPath)
	if err != nil {
		return err
	}
	logger.Info("scoring model loaded", "path", cfg.Scoring.ModelPath)

	ledgerClient, closeLedger := openLedger(cfg.Ledger, logger)
	defer closeLedger()

	redisClient := bootstrap.OpenRedis(cfg.Redis)
	defer redisClient.Close()

	loans := repository.NewLoanRepository(db)
	hub := realtime.NewHub(0, logger)
	dispatcher := ledger.NewDispatcher(ledgerClient, ledger.DispatcherConfig{
		Threshold: cfg.Ledger.Threshold,
		Timeout:   cfg.Ledger.Timeout,
		Recertify: cfg.Ledger.Recertify,
	}, logger)
	engine := scoring.NewEngine(model, cfg.Scoring.RawMin, cfg.Scoring.RawMax)
	pipeline := service.NewPipeline(loans, engine, dispatcher, hub, logger)

	runner := service.NewRunner(pipeline, service.RunnerConfig{
		Workers:          cfg.Pipeline.Workers,
		SerializePerLoan: cfg.Pipeline.SerializePerLoan,
	}, logger)

	events := make(chan domain.TelemetryEvent, cfg.Telemetry.QueueSize)
	subscriber := telemetry.NewSubscriber(redisClient, telemetry.SubscriberConfig{Topic: cfg.Telemetry.Topic}, events, logger)

	router := bootstrap.BuildRouter(bootstrap.RouterDeps{
		ServiceName:     serviceName,
		Version:         cfg.App.Version,
		Logger:          logger,
		CORSOrigins:     cfg.Server.CORSAllowedOrigins,
		ManualRateLimit: cfg.Server.ManualRateLimit,
		ManualRateBurst: cfg.Server.ManualRateBurst,
		Health: httpapi.HealthDeps{
			DB:         pool.Ping,
			Broker:     bootstrap.RedisPing(redisClient),
			Subscriber: subscriber,
			Runner:     runner,
			Realtime:   hub,
		},
		Loans: ecohttp.New(runner, loans, hub, cfg.Ledger.Timeout+15*time.Second, logger),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return runner.Run(gctx, events)
	})

	g.Go(func() error {
		subscriber.Run(gctx)
		return nil
	})

	g.Go(func() error {
		logger.Info("http server starting", "addr", srv.Addr, "env", cfg.App.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		hub.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
		return nil
	})

	logger.Info("ecoscore pipeline started",
		"topic", cfg.Telemetry.Topic,
		"workers", cfg.Pipeline.Workers,
		"threshold", dispatcher.Threshold(),
		"ledger_enabled", cfg.Ledger.Enabled(),
	)

	err = g.Wait()
	logger.Info("shutdown complete")
	return err
}

// openLedger returns the Hedera client, or a disabled one when credentials are
// missing or invalid. A disabled ledger only means nothing gets certified.
func openLedger(cfg config.LedgerConfig, logger *slog.Logger) (ledger.Client, func()) {
	if !cfg.Enabled() {
		logger.Warn("ledger credentials not configured, certification disabled")
		return ledger.Disabled{}, func() {}
	}

	client, err := ledger.NewHederaClient(ledger.HederaConfig{
		Network:     cfg.Network,
		OperatorID:  cfg.OperatorID,
		OperatorKey: cfg.OperatorKey,
		ContractID:  cfg.ContractID,
		Gas:         cfg.Gas,
		Timeout:     cfg.Timeout,
		Logger:      logger,
	})
	if err != nil {
		logger.Error("ledger client unavailable, certification disabled", "network", cfg.Network, "error", err)
		return ledger.Disabled{}, func() {}
	}

	logger.Info("ledger client ready", "network", cfg.Network, "contract_id", cfg.ContractID)
	return client, func() {
		if err := client.Close(); err != nil {
			logger.Error("error closing ledger client", "error", err)
		}
	}
}
