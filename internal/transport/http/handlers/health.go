package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// ReadinessCheck probes a single backing dependency.
type ReadinessCheck struct {
	Name  string
	Probe func(ctx context.Context) error
}

// HealthHandler exposes liveness and readiness information.
type HealthHandler struct {
	startedAt time.Time
	checks    []ReadinessCheck
}

// HealthOption customizes the health handler.
type HealthOption func(*HealthHandler)

// WithReadinessCheck registers a named dependency probe for /readyz.
func WithReadinessCheck(name string, probe func(ctx context.Context) error) HealthOption {
	return func(h *HealthHandler) {
		h.checks = append(h.checks, ReadinessCheck{Name: name, Probe: probe})
	}
}

// NewHealthHandler builds a new health handler instance.
func NewHealthHandler(opts ...HealthOption) *HealthHandler {
	h := &HealthHandler{startedAt: time.Now().UTC()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HealthResponse is the liveness payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
}

// Status reports process liveness.
func (h *HealthHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "ok",
		StartedAt: h.startedAt,
	})
}

// Readiness reports whether all backing dependencies answer their probes.
func (h *HealthHandler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	results := make(map[string]string, len(h.checks))
	ready := true
	for _, check := range h.checks {
		if err := check.Probe(ctx); err != nil {
			results[check.Name] = err.Error()
			ready = false
			continue
		}
		results[check.Name] = "ok"
	}

	status := http.StatusOK
	state := "ready"
	if !ready {
		status = http.StatusServiceUnavailable
		state = "not_ready"
	}

	c.JSON(status, gin.H{
		"status": state,
		"checks": results,
	})
}
