package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"

	"github.com/ecoscore-finance/ecoscore-backend/config"
	"github.com/ecoscore-finance/ecoscore-backend/internal/bootstrap"
	"github.com/ecoscore-finance/ecoscore-backend/internal/ecoscore/telemetry"
	"github.com/ecoscore-finance/ecoscore-backend/internal/logging"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	loanID := flag.String("loan", "test-loan", "loan id to publish readings for")
	schedule := flag.String("schedule", "@every 10s", "cron schedule for readings")
	once := flag.Bool("once", false, "publish a single reading and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.New(cfg.App.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := bootstrap.OpenRedis(cfg.Redis)
	defer client.Close()

	pub := &publisher{client: client, topic: cfg.Telemetry.Topic, loanID: *loanID, logger: logger}

	if *once {
		return pub.publish(ctx)
	}

	c := cron.New()
	if _, err := c.AddFunc(*schedule, func() {
		if err := pub.publish(ctx); err != nil {
			logger.Error("failed to publish reading", "topic", pub.topic, "error", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule %q: %w", *schedule, err)
	}

	logger.Info("telemetry simulator started", "topic", pub.topic, "loan_id", pub.loanID, "schedule", *schedule)
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	logger.Info("telemetry simulator stopped")
	return nil
}

type publisher struct {
	client *redis.Client
	topic  string
	loanID string
	logger *slog.Logger
}

func (p *publisher) publish(ctx context.Context) error {
	body, err := json.Marshal(reading(p.loanID))
	if err != nil {
		return err
	}

	receivers, err := p.client.Publish(ctx, p.topic, body).Result()
	if err != nil {
		return err
	}

	p.logger.Info("reading published", "topic", p.topic, "payload", string(body), "receivers", receivers)
	return nil
}

// reading draws a carbon estimate in [5,50] and a predicted reduction in [1000,2000].
func reading(loanID string) telemetry.Payload {
	carbon := round2(5 + rand.Float64()*45)
	predicted := round2(1000 + rand.Float64()*1000)
	return telemetry.Payload{
		LoanID:                   &loanID,
		CarbonEst:                &carbon,
		PredictedCarbonReduction: &predicted,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
