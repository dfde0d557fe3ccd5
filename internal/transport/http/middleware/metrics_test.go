package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHTTPMetricsHandlerRecordsRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)

	registry := prometheus.NewRegistry()
	metrics, err := NewHTTPMetrics(HTTPMetricsOptions{Registerer: registry})
	if err != nil {
		t.Fatalf("create http metrics: %v", err)
	}

	router := gin.New()
	router.Use(metrics.Handler())
	router.GET("/verify/:token", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/verify/abc", nil))
	}

	labels := prometheus.Labels{
		"method": http.MethodGet,
		"route":  "/verify/:token",
		"status": "200",
	}
	if got := testutil.ToFloat64(metrics.Requests.With(labels)); got != 3 {
		t.Fatalf("request counter = %f, want 3", got)
	}
	if got := testutil.ToFloat64(metrics.InFlight); got != 0 {
		t.Fatalf("in-flight gauge = %f, want 0 after requests drain", got)
	}
	if samples := testutil.CollectAndCount(metrics.Duration); samples == 0 {
		t.Fatal("duration histogram recorded no samples")
	}
}

func TestHTTPMetricsReregistrationReusesCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()

	first, err := NewHTTPMetrics(HTTPMetricsOptions{Registerer: registry})
	if err != nil {
		t.Fatalf("first registration: %v", err)
	}
	second, err := NewHTTPMetrics(HTTPMetricsOptions{Registerer: registry})
	if err != nil {
		t.Fatalf("second registration: %v", err)
	}

	if first.Requests != second.Requests {
		t.Error("request counters are distinct collectors")
	}
	if first.Duration != second.Duration {
		t.Error("duration histograms are distinct collectors")
	}
}

func TestHTTPMetricsHandlerNoopWhenNil(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use((*HTTPMetrics)(nil).Handler())
	router.GET("/ping", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ping", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
}
