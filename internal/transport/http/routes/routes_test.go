package routes_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/xkrfer/telegram-pm-relay/internal/infra/config"
	httproutes "github.com/xkrfer/telegram-pm-relay/internal/transport/http/routes"
)

type checkerStub struct {
	err error
}

func (c checkerStub) Ping(ctx context.Context) error        { return c.err }
func (c checkerStub) HealthCheck(ctx context.Context) error { return c.err }

func register(t *testing.T, db, cache checkerStub) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := &config.AppConfig{App: config.AppSettings{Env: "test"}}

	return httproutes.Register(httproutes.Dependencies{
		Config:   cfg,
		Logger:   zap.NewNop(),
		Database: db,
		Cache:    cache,
	})
}

func TestHealthEndpoint(t *testing.T) {
	r := register(t, checkerStub{}, checkerStub{})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/healthz", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
}

func TestReadinessReportsFailingDependency(t *testing.T) {
	r := register(t, checkerStub{err: errors.New("connection refused")}, checkerStub{})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/readyz", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	r := register(t, checkerStub{}, checkerStub{})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/metrics", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
}
