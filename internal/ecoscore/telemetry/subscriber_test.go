package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ecoscore-finance/ecoscore-backend/internal/ecoscore/domain"
	"github.com/ecoscore-finance/ecoscore-backend/internal/logging"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{
		Addr:       mr.Addr(),
		MaxRetries: -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	return client, mr
}

func startSubscriber(t *testing.T, client *redis.Client, out chan domain.TelemetryEvent) *Subscriber {
	sub := NewSubscriber(client, SubscriberConfig{
		Topic:      DefaultTopic,
		MinBackoff: 10 * time.Millisecond,
		MaxBackoff: 50 * time.Millisecond,
	}, out, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sub.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return sub
}

func receive(t *testing.T, out <-chan domain.TelemetryEvent) domain.TelemetryEvent {
	t.Helper()
	select {
	case ev := <-out:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for telemetry event")
		return domain.TelemetryEvent{}
	}
}

func TestSubscriber_DeliversEvents(t *testing.T) {
	client, mr := setupTestRedis(t)
	out := make(chan domain.TelemetryEvent, 4)
	sub := startSubscriber(t, client, out)

	require.Eventually(t, sub.Active, 2*time.Second, 10*time.Millisecond)

	mr.Publish(DefaultTopic, `{"loan_id":"X","predicted_carbon_reduction":1500}`)

	ev := receive(t, out)
	assert.Equal(t, "X", ev.LoanID)
	require.NotNil(t, ev.PredictedCarbonReduction)
	assert.Equal(t, 1500.0, *ev.PredictedCarbonReduction)
}

func TestSubscriber_MalformedMessagesDoNotStopLoop(t *testing.T) {
	client, mr := setupTestRedis(t)
	out := make(chan domain.TelemetryEvent, 4)
	sub := startSubscriber(t, client, out)

	require.Eventually(t, sub.Active, 2*time.Second, 10*time.Millisecond)

	mr.Publish(DefaultTopic, `{"predicted_carbon_reduction":1500}`)
	mr.Publish(DefaultTopic, `garbage`)
	mr.Publish(DefaultTopic, `{"loan_id":"next","predicted_carbon_reduction":50}`)

	ev := receive(t, out)
	assert.Equal(t, "next", ev.LoanID)
	assert.True(t, sub.Active())

	received, malformed := sub.Stats()
	assert.Equal(t, int64(3), received)
	assert.Equal(t, int64(2), malformed)
	assert.Empty(t, out)
}

func TestSubscriber_IgnoresOtherTopics(t *testing.T) {
	client, mr := setupTestRedis(t)
	out := make(chan domain.TelemetryEvent, 4)
	sub := startSubscriber(t, client, out)

	require.Eventually(t, sub.Active, 2*time.Second, 10*time.Millisecond)

	mr.Publish("ecoscore/other", `{"loan_id":"other"}`)
	mr.Publish(DefaultTopic, `{"loan_id":"mine"}`)

	assert.Equal(t, "mine", receive(t, out).LoanID)
}

func TestSubscriber_StartupFailureIsNotFatal(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	out := make(chan domain.TelemetryEvent, 1)
	sub := startSubscriber(t, client, out)

	require.Eventually(t, func() bool { return sub.LastError() != nil }, 2*time.Second, 10*time.Millisecond)
	assert.False(t, sub.Active())
}

func TestSubscriber_ResubscribesAfterBrokerRestart(t *testing.T) {
	client, mr := setupTestRedis(t)
	out := make(chan domain.TelemetryEvent, 4)
	sub := startSubscriber(t, client, out)

	require.Eventually(t, sub.Active, 2*time.Second, 10*time.Millisecond)

	mr.Close()
	require.Eventually(t, func() bool { return !sub.Active() }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, mr.Restart())
	require.Eventually(t, sub.Active, 3*time.Second, 10*time.Millisecond)

	mr.Publish(DefaultTopic, `{"loan_id":"after-restart"}`)
	assert.Equal(t, "after-restart", receive(t, out).LoanID)
}

func TestSubscriber_StopsPromptlyWhenIdle(t *testing.T) {
	client, _ := setupTestRedis(t)
	out := make(chan domain.TelemetryEvent, 1)
	sub := NewSubscriber(client, SubscriberConfig{Topic: DefaultTopic}, out, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		sub.Run(ctx)
		close(done)
	}()

	require.Eventually(t, sub.Active, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, StateInactive, sub.State())
}
