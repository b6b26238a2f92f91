package middleware

import (
	"math"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/asset-checkout-kiosk/internal/ratelimit"
	"github.com/iliyamo/asset-checkout-kiosk/internal/utils"
)

// ActionLimit returns a middleware that gates the route through the
// shared limiter under the given action name. The identity is the
// authenticated subject when SessionAuth ran earlier in the chain,
// otherwise a hash of the client IP so raw addresses never become
// limiter keys.
func ActionLimit(l *ratelimit.Limiter, action string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			identity := limiterIdentity(c)
			d := l.Admit(c.Request().Context(), identity, action)

			c.Response().Header().Set("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))
			if !d.Allowed {
				secs := int(math.Ceil(d.RetryAfter.Seconds()))
				if secs < 0 {
					secs = 0
				}
				c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
				return c.JSON(http.StatusTooManyRequests, echo.Map{
					"error":       "too_many_requests",
					"message":     "rate limit exceeded",
					"retry_after": secs,
				})
			}
			return next(c)
		}
	}
}

func limiterIdentity(c echo.Context) string {
	if s := SessionFrom(c); s != nil {
		return strconv.FormatUint(s.SubjectID, 10)
	}
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	return "ip:" + utils.HashSHA256(ip)
}
