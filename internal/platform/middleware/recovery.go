package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/hms/opd/internal/platform/metrics"
)

// Recovery turns a handler panic into a 500, logging the stack with the
// request id so the failing day plan can be traced.
func Recovery(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				route := routeOf(c)
				metrics.PanicsRecovered.WithLabelValues(route).Inc()
				logger.Error().
					Str("request_id", RequestIDFrom(c)).
					Str("route", route).
					Str("panic", fmt.Sprint(r)).
					Bytes("stack", debug.Stack()).
					Msg("handler panicked")
				err = echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
			}()
			return next(c)
		}
	}
}

// routeOf is the registered route, or the raw path for unmatched requests.
func routeOf(c echo.Context) string {
	if p := c.Path(); p != "" {
		return p
	}
	return c.Request().URL.Path
}
