package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSubscriber struct {
	active bool
	err    error
}

func (p fakeSubscriber) Active() bool     { return p.active }
func (p fakeSubscriber) LastError() error { return p.err }

type fakeRunner bool

func (r fakeRunner) Running() bool { return bool(r) }

type fakeRealtime struct {
	clients int
	dropped int64
}

func (r fakeRealtime) Subscribers() int { return r.clients }
func (r fakeRealtime) Dropped() int64   { return r.dropped }

func up(context.Context) error   { return nil }
func down(context.Context) error { return errors.New("connection refused") }

func getHealth(t *testing.T, deps HealthDeps, path string) HealthResponse {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	NewHealthHandler("test-service", "1.0.0", deps).RegisterRoutes(router)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var response HealthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
	return response
}

func TestHealthCheck(t *testing.T) {
	resp := getHealth(t, HealthDeps{DB: up, Broker: up, Subscriber: fakeSubscriber{active: true}}, "/health")

	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Equal(t, "test-service", resp.Service)
	assert.Equal(t, "1.0.0", resp.Version)
	assert.Equal(t, "up", resp.DB)
	assert.Equal(t, "up", resp.Broker)
	assert.Equal(t, "active", resp.Subscriber)
	assert.False(t, resp.Timestamp.IsZero())
}

func TestHealthCheck_DisabledDeps(t *testing.T) {
	resp := getHealth(t, HealthDeps{}, "/healthz")

	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Equal(t, "disabled", resp.DB)
	assert.Equal(t, "disabled", resp.Broker)
	assert.Empty(t, resp.Subscriber)
}

func TestHealthCheck_SubscriberInactiveIsDegraded(t *testing.T) {
	resp := getHealth(t, HealthDeps{
		DB:         up,
		Broker:     down,
		Subscriber: fakeSubscriber{err: errors.New("dial tcp: connection refused")},
	}, "/health")

	assert.Equal(t, StatusDegraded, resp.Status)
	assert.Equal(t, "down", resp.Broker)
	assert.Equal(t, "inactive", resp.Subscriber)
	assert.Equal(t, "dial tcp: connection refused", resp.Error)
}

func TestHealthCheck_DBDownIsDegraded(t *testing.T) {
	resp := getHealth(t, HealthDeps{DB: down, Broker: up, Subscriber: fakeSubscriber{active: true}}, "/health")

	assert.Equal(t, StatusDegraded, resp.Status)
	assert.Equal(t, "down", resp.DB)
}

func TestHealthCheckMethodNotAllowed(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.HandleMethodNotAllowed = true
	NewHealthHandler("test-service", "1.0.0", HealthDeps{}).RegisterRoutes(router)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/health", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestHealthCheck_RunnerAndRealtime(t *testing.T) {
	resp := getHealth(t, HealthDeps{
		DB:         up,
		Broker:     up,
		Subscriber: fakeSubscriber{active: true},
		Runner:     fakeRunner(true),
		Realtime:   fakeRealtime{clients: 3, dropped: 7},
	}, "/health")

	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Equal(t, "running", resp.Runner)
	require.NotNil(t, resp.Realtime)
	assert.Equal(t, 3, resp.Realtime.Clients)
	assert.Equal(t, int64(7), resp.Realtime.Dropped)
}

func TestHealthCheck_RunnerStoppedIsDegraded(t *testing.T) {
	resp := getHealth(t, HealthDeps{Subscriber: fakeSubscriber{active: true}, Runner: fakeRunner(false)}, "/health")

	assert.Equal(t, StatusDegraded, resp.Status)
	assert.Equal(t, "stopped", resp.Runner)
}
