package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

// DefaultHandshakesPerSecond is the per-IP websocket handshake rate used by the hub.
const DefaultHandshakesPerSecond = 20

// RateLimiter limits requests per client IP to perSecond, with a burst of the same size.
// A non-positive perSecond disables limiting.
func RateLimiter(perSecond float64) echo.MiddlewareFunc {
	if perSecond <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	config := middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStore(rate.Limit(perSecond)),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			FromContext(c.Request().Context()).Warn("Handshake rate limit exceeded", "ip", identifier)
			return c.String(http.StatusTooManyRequests, "Too many connection attempts. Please try again later.")
		},
	}
	return middleware.RateLimiterWithConfig(config)
}
