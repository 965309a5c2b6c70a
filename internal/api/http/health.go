package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
)

type HealthResponse struct {
	Status     string    `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
	Service    string    `json:"service"`
	Version    string    `json:"version"`
	DB         string    `json:"db,omitempty"`
	Broker     string    `json:"broker,omitempty"`
	Subscriber string    `json:"subscriber,omitempty"`
	Error      string    `json:"subscriber_error,omitempty"`
	Runner     string    `json:"runner,omitempty"`
	Realtime   *Realtime `json:"realtime,omitempty"`
}

type Realtime struct {
	Clients int   `json:"clients"`
	Dropped int64 `json:"dropped"`
}

// PingFunc checks a dependency. A nil PingFunc reports "disabled".
type PingFunc func(ctx context.Context) error

// SubscriberStatus exposes the telemetry subscriber's connection state.
type SubscriberStatus interface {
	Active() bool
	LastError() error
}

// RunnerStatus reports whether pipeline workers are accepting runs.
type RunnerStatus interface {
	Running() bool
}

// RealtimeStats exposes broadcaster counters.
type RealtimeStats interface {
	Subscribers() int
	Dropped() int64
}

type HealthDeps struct {
	DB         PingFunc
	Broker     PingFunc
	Subscriber SubscriberStatus
	Runner     RunnerStatus
	Realtime   RealtimeStats
}

type HealthHandler struct {
	serviceName string
	version     string
	deps        HealthDeps
}

func NewHealthHandler(serviceName, version string, deps HealthDeps) *HealthHandler {
	return &HealthHandler{
		serviceName: serviceName,
		version:     version,
		deps:        deps,
	}
}

// HealthCheck always answers 200 so the process keeps serving while the
// subscriber reconnects; an inactive subscriber or stopped runner reports "degraded".
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	resp := HealthResponse{
		Status:    StatusHealthy,
		Timestamp: time.Now().UTC(),
		Service:   h.serviceName,
		Version:   h.version,
		DB:        ping(c.Request.Context(), h.deps.DB),
		Broker:    ping(c.Request.Context(), h.deps.Broker),
	}

	if resp.DB == "down" {
		resp.Status = StatusDegraded
	}

	if h.deps.Subscriber != nil {
		if h.deps.Subscriber.Active() {
			resp.Subscriber = "active"
		} else {
			resp.Subscriber = "inactive"
			resp.Status = StatusDegraded
			if err := h.deps.Subscriber.LastError(); err != nil {
				resp.Error = err.Error()
			}
		}
	}

	if h.deps.Runner != nil {
		if h.deps.Runner.Running() {
			resp.Runner = "running"
		} else {
			resp.Runner = "stopped"
			resp.Status = StatusDegraded
		}
	}

	if h.deps.Realtime != nil {
		resp.Realtime = &Realtime{
			Clients: h.deps.Realtime.Subscribers(),
			Dropped: h.deps.Realtime.Dropped(),
		}
	}

	c.JSON(http.StatusOK, resp)
}

func ping(ctx context.Context, fn PingFunc) string {
	if fn == nil {
		return "disabled"
	}

	pingCtx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	if err := fn(pingCtx); err != nil {
		return "down"
	}
	return "up"
}

func (h *HealthHandler) RegisterRoutes(r gin.IRouter) {
	r.GET("/health", h.HealthCheck)
	r.GET("/healthz", h.HealthCheck)
}
