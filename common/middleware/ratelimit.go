// Package middleware holds the echo middleware shared across services.
package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/lyzr/flowrunner/common/ratelimit"
)

// GlobalRateLimit rejects requests once the service-wide budget is spent.
// Limit checks that fail open: an unreachable Redis must not take the API
// down with it.
func GlobalRateLimit(limiter *ratelimit.Limiter, limit int64) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			res, err := limiter.CheckGlobal(c.Request().Context(), limit)
			if err != nil {
				return next(c)
			}
			if !res.Allowed {
				return tooManyRequests(c, "global_rate_limit_exceeded", res)
			}
			return next(c)
		}
	}
}

// UserRateLimit rejects requests once a caller's budget is spent. The caller
// is identified by the X-User-ID header; anonymous requests share the global
// budget only.
func UserRateLimit(limiter *ratelimit.Limiter, limit int64, windowSec int) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user := c.Request().Header.Get("X-User-ID")
			if user == "" {
				return next(c)
			}
			res, err := limiter.CheckUser(c.Request().Context(), user, limit, windowSec)
			if err != nil {
				return next(c)
			}
			if !res.Allowed {
				return tooManyRequests(c, "user_rate_limit_exceeded", res)
			}
			return next(c)
		}
	}
}

func tooManyRequests(c echo.Context, code string, res *ratelimit.Result) error {
	return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
		"error": code,
		"details": map[string]interface{}{
			"limit":               res.Limit,
			"current_count":       res.CurrentCount,
			"retry_after_seconds": res.RetryAfterSeconds,
		},
	})
}
