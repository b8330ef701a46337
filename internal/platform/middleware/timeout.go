package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/hms/opd/internal/platform/metrics"
)

// RequestTimeout bounds the request context by d. A handler still running
// at the deadline gets a 504 with the request id in the body; the handler
// goroutine keeps the cancelled context and its result is discarded.
// Websocket upgrades are never bounded.
func RequestTimeout(d time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if p := c.Request().URL.Path; p == "/ws" || strings.HasPrefix(p, "/ws/") {
				return next(c)
			}

			ctx, cancel := context.WithTimeout(c.Request().Context(), d)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			result := make(chan error, 1)
			go func() { result <- next(c) }()

			select {
			case err := <-result:
				return err
			case <-ctx.Done():
			}

			if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return ctx.Err()
			}
			metrics.RequestTimeouts.WithLabelValues(routeOf(c)).Inc()
			if c.Response().Committed {
				return nil
			}
			return c.JSON(http.StatusGatewayTimeout, map[string]string{
				"message":    "request exceeded the allowed time",
				"request_id": RequestIDFrom(c),
			})
		}
	}
}
