package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/tweetmap/tweetmap-worker/api/types"
)

const HealthCheckPath = "/healthz"
const ReadinessCheckPath = "/readyz"

// tracked are the API prefixes that count towards the readiness error rate.
var tracked = []string{"/fetch/", "/status/", "/result/"}

// HealthMetricsMiddleware tracks success and error rates for readiness probe
func HealthMetricsMiddleware(healthMetrics *HealthMetrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path
			if path == HealthCheckPath || path == ReadinessCheckPath {
				return next(c)
			}

			err := next(c)

			if isTracked(path) {
				statusCode := c.Response().Status
				if statusCode >= 500 {
					healthMetrics.RecordError()
				} else if statusCode >= 200 && statusCode < 400 {
					healthMetrics.RecordSuccess()
				}
				// 4xx are client errors
			}

			return err
		}
	}
}

func isTracked(path string) bool {
	for _, p := range tracked {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// RateLimitMiddleware limits each client IP to rps requests per second with
// a burst of the same size. Health probes are never limited.
func RateLimitMiddleware(rps float64) echo.MiddlewareFunc {
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Skipper: func(c echo.Context) bool {
			p := c.Request().URL.Path
			return p == HealthCheckPath || p == ReadinessCheckPath
		},
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:  rate.Limit(rps),
			Burst: burst,
		}),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return c.JSON(http.StatusForbidden, types.JobError{Error: "Could not identify client"})
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return c.JSON(http.StatusTooManyRequests, types.JobError{Error: "Too many requests"})
		},
	})
}
