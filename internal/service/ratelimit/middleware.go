package ratelimit

import (
	"math"
	"strconv"

	"github.com/labstack/echo/v4"

	apphttp "RegimeLab/pkg/http"
)

// Middleware rejects requests with 429 once the caller's bucket is empty.
// Callers are identified by their real IP.
func Middleware(l *Limiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if l != nil && !l.Allow(c.RealIP()) {
				wait := int(math.Ceil(l.RetryAfter().Seconds()))
				c.Response().Header().Set("Retry-After", strconv.Itoa(wait))
				return apphttp.AppErrorResponse(c, apphttp.TooManyRequestsError(wait))
			}
			return next(c)
		}
	}
}
