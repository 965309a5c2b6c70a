// Package telemetry holds the broker-facing side of the pipeline: a long-lived
// subscription that decodes messages and hands validated events to the runner
// over a channel. It never calls pipeline logic directly.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ecoscore-finance/ecoscore-backend/internal/ecoscore/domain"
	"github.com/redis/go-redis/v9"
)

// DefaultTopic is the channel field devices publish on.
const DefaultTopic = "ecoscore/iot/updates"

// State of the broker connection.
type State string

const (
	StateInactive   State = "inactive"
	StateConnecting State = "connecting"
	StateActive     State = "active"
)

type SubscriberConfig struct {
	Topic      string
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

// Subscriber holds one subscription and restarts it with exponential backoff
// whenever the connection drops.
type Subscriber struct {
	client *redis.Client
	cfg    SubscriberConfig
	out    chan<- domain.TelemetryEvent
	logger *slog.Logger

	state     atomic.Value // State
	mu        sync.Mutex
	lastErr   error
	received  atomic.Int64
	malformed atomic.Int64
}

// NewSubscriber creates a Subscriber that writes validated events to out.
func NewSubscriber(client *redis.Client, cfg SubscriberConfig, out chan<- domain.TelemetryEvent, logger *slog.Logger) *Subscriber {
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Subscriber{client: client, cfg: cfg, out: out, logger: logger}
	s.state.Store(StateInactive)
	return s
}

// Run blocks until ctx is cancelled. Connection failures, including the first
// one, are logged and retried; they never end the loop.
func (s *Subscriber) Run(ctx context.Context) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.MinBackoff
	b.MaxInterval = s.cfg.MaxBackoff
	b.MaxElapsedTime = 0
	b.Reset()

	for {
		err := s.listen(ctx, b)
		if ctx.Err() != nil {
			s.state.Store(StateInactive)
			s.logger.Info("telemetry subscriber stopped", "topic", s.cfg.Topic)
			return
		}

		s.setErr(err)
		s.state.Store(StateInactive)

		wait := b.NextBackOff()
		s.logger.Warn("telemetry subscription lost, retrying",
			"topic", s.cfg.Topic, "retry_in", wait.Round(time.Millisecond), "error", err)

		select {
		case <-ctx.Done():
			s.logger.Info("telemetry subscriber stopped", "topic", s.cfg.Topic)
			return
		case <-time.After(wait):
		}
	}
}

func (s *Subscriber) listen(ctx context.Context, b backoff.BackOff) error {
	s.state.Store(StateConnecting)

	ps := s.client.Subscribe(ctx, s.cfg.Topic)
	defer ps.Close()

	// Blocked pub/sub reads only observe deadlines, so closing is what ends them.
	stop := context.AfterFunc(ctx, func() { _ = ps.Close() })
	defer stop()

	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", s.cfg.Topic, err)
	}

	s.state.Store(StateActive)
	s.setErr(nil)
	b.Reset()
	s.logger.Info("telemetry subscriber listening", "topic", s.cfg.Topic)

	for {
		msg, err := ps.ReceiveMessage(ctx)
		if err != nil {
			return fmt.Errorf("receive on %s: %w", s.cfg.Topic, err)
		}
		s.handle(ctx, msg.Payload)
	}
}

// handle processes one message. Nothing it does can end the receive loop.
func (s *Subscriber) handle(ctx context.Context, payload string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("telemetry message handler panic", "panic", r)
		}
	}()

	s.received.Add(1)

	ev, err := Decode([]byte(payload), time.Now().UTC())
	if err != nil {
		s.malformed.Add(1)
		s.logger.Warn("dropping telemetry message",
			"topic", s.cfg.Topic, "kind", domain.KindName(err), "error", err, "payload_bytes", len(payload))
		return
	}

	select {
	case s.out <- ev:
		s.logger.Debug("telemetry event queued", "loan_id", ev.LoanID)
	case <-ctx.Done():
	}
}

func (s *Subscriber) setErr(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

// State returns the current connection state.
func (s *Subscriber) State() State {
	return s.state.Load().(State)
}

// Active reports whether the subscription is currently established.
func (s *Subscriber) Active() bool {
	return s.State() == StateActive
}

// LastError returns the most recent connection error, if any.
func (s *Subscriber) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Stats returns received and malformed message counts.
func (s *Subscriber) Stats() (received, malformed int64) {
	return s.received.Load(), s.malformed.Load()
}
