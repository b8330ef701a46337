package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddleware_RecordsRequest(t *testing.T) {
	e := echo.New()
	e.Use(Middleware())
	e.GET("/api/v1/doctors/:id", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/api/v1/doctors/:id", "200"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/doctors/abc", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	after := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/api/v1/doctors/:id", "200"))
	if after-before != 1 {
		t.Errorf("expected counter to increase by 1, got %v", after-before)
	}
	if got := testutil.ToFloat64(HTTPActiveRequests); got != 0 {
		t.Errorf("active requests = %v, want 0", got)
	}
}

func TestMiddleware_RecordsHTTPErrorStatus(t *testing.T) {
	e := echo.New()
	e.Use(Middleware())
	e.GET("/missing", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "nope")
	})

	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/missing", "404"))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))
	after := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/missing", "404"))

	if after-before != 1 {
		t.Errorf("expected 404 counter to increase by 1, got %v", after-before)
	}
}

func TestHandler_ExposesCollectors(t *testing.T) {
	SlotsGenerated.Add(2)
	SetDBPool(10, 7, 3)

	e := echo.New()
	e.GET("/metrics", Handler())
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, name := range []string{"opd_slots_generated_total", `opd_db_pool_connections{state="idle"} 7`} {
		if !strings.Contains(body, name) {
			t.Errorf("expected %q in exposition", name)
		}
	}
}
