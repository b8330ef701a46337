// Package metrics holds the Prometheus collectors exported by opd-server and
// the echo glue that records HTTP traffic and serves /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "opd"

var (
	// HTTP server

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, route and status.",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	HTTPActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_active_requests",
			Help:      "Number of in-flight HTTP requests.",
		},
	)

	PanicsRecovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_panics_recovered_total",
			Help:      "Handler panics turned into 500 responses, by route.",
		},
		[]string{"route"},
	)

	RequestTimeouts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_request_timeouts_total",
			Help:      "Requests answered with 504 by the timeout middleware, by route.",
		},
		[]string{"route"},
	)

	// Slot planning

	SlotsGenerated = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slots_generated_total",
			Help:      "Slots generated from availability blocks.",
		},
	)

	SlotsBooked = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slots_booked_total",
			Help:      "Slots reported as booked after reconciliation.",
		},
	)

	LegacySlotsSynthesized = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "legacy_slots_synthesized_total",
			Help:      "Virtual slots created for bookings with no generated counterpart.",
		},
	)

	PlanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "day_plan_duration_seconds",
			Help:      "Time spent loading inputs and computing a day plan.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	PlanFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "day_plan_failures_total",
			Help:      "Day plan computations that failed, by stage.",
		},
		[]string{"stage"},
	)

	PlanCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "day_plan_cache_lookups_total",
			Help:      "Day plan cache lookups by result (hit, miss, error).",
		},
		[]string{"result"},
	)

	// Slot events

	EventsRelayed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slot_events_relayed_total",
			Help:      "Slot change events relayed to websocket subscribers.",
		},
		[]string{"source", "type"},
	)

	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slot_events_dropped_total",
			Help:      "Slot change events that could not be decoded or published.",
		},
		[]string{"source", "reason"},
	)

	WebSocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_clients",
			Help:      "Connected websocket clients.",
		},
	)

	// Database pool

	DBPoolConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_pool_connections",
			Help:      "Database pool connections by state.",
		},
		[]string{"state"}, // total, idle, acquired
	)
)

// Middleware records request count, latency and in-flight requests. The
// route label is the registered path so ids do not explode cardinality.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Path() == "/metrics" {
				return next(c)
			}

			HTTPActiveRequests.Inc()
			start := time.Now()
			err := next(c)
			HTTPActiveRequests.Dec()

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}

			method := c.Request().Method
			HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			HTTPRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Handler serves the default registry in the Prometheus exposition format.
func Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.Handler())
}

// SetDBPool publishes a snapshot of pool connection counts.
func SetDBPool(total, idle, acquired int32) {
	DBPoolConnections.WithLabelValues("total").Set(float64(total))
	DBPoolConnections.WithLabelValues("idle").Set(float64(idle))
	DBPoolConnections.WithLabelValues("acquired").Set(float64(acquired))
}
