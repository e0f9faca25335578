package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"

	"github.com/labstack/echo-contrib/pprof"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/sirupsen/logrus"

	"github.com/tweetmap/tweetmap-worker/internal/accounts"
	"github.com/tweetmap/tweetmap-worker/internal/config"
	"github.com/tweetmap/tweetmap-worker/internal/jobserver"
	"github.com/tweetmap/tweetmap-worker/internal/metrics"
	"github.com/tweetmap/tweetmap-worker/internal/stats"
)

// Pinger checks a backing service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// AccountLister exposes the rotation state of the account pool.
type AccountLister interface {
	States() []accounts.AccountState
}

// Deps are the components the HTTP layer serves. Only Jobs is required.
type Deps struct {
	Jobs     *jobserver.JobServer
	Store    Pinger
	Accounts AccountLister
	Stats    *stats.StatsCollector
}

// NewServer builds the echo instance with every route registered.
func NewServer(jc config.JobConfiguration, d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Logger.SetLevel(echoLogLevel(logrus.GetLevel()))

	healthMetrics := NewHealthMetrics()

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(HealthMetricsMiddleware(healthMetrics))

	if rps := jc.GetFloat("rate_limit_rps", 0); rps > 0 {
		e.Logger.Infof("Limiting clients to %.2f requests per second", rps)
		e.Use(RateLimitMiddleware(rps))
	}

	e.GET(HealthCheckPath, healthz())
	e.GET(ReadinessCheckPath, readyz(d, healthMetrics))
	e.GET("/stats", accountStats(d))
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	if jc.GetBool("profiling_enabled", false) {
		pprof.Register(e)
		enableProfiling(e)

		debug := e.Group("/debug/pprof")
		debug.POST("/enable", func(c echo.Context) error {
			enableProfiling(e)
			return c.String(http.StatusOK, "pprof enabled")
		})
		debug.POST("/disable", func(c echo.Context) error {
			disableProfiling(e)
			return c.String(http.StatusOK, "pprof disabled")
		})
	}

	/*
		- POST /fetch/:handle: Serve a cached result or start a scrape
		- GET /status/:job_id: Get the status of a job
		- GET /result/:job_id: Get the result of a job
	*/
	e.POST("/fetch/:handle", fetch(d.Jobs))
	e.GET("/status/:job_id", status(d.Jobs))
	e.GET("/result/:job_id", result(d.Jobs))

	return e
}

// Start serves e on listenAddress until ctx is done.
func Start(ctx context.Context, listenAddress string, e *echo.Echo) error {
	go func() {
		<-ctx.Done()
		if err := e.Close(); err != nil {
			e.Logger.Error("Failed to close Echo server: ", err)
		}
	}()

	e.Logger.Info(fmt.Sprintf("Starting server on %s", listenAddress))
	if err := e.Start(listenAddress); err != nil && !errors.Is(err, http.ErrServerClosed) {
		e.Logger.Error(err)
		return err
	}
	return nil
}

func echoLogLevel(level logrus.Level) log.Lvl {
	switch level {
	case logrus.DebugLevel, logrus.TraceLevel:
		return log.DEBUG
	case logrus.InfoLevel:
		return log.INFO
	case logrus.WarnLevel:
		return log.WARN
	default:
		return log.ERROR
	}
}

// enableProfiling turns on the block, mutex and CPU probes.
func enableProfiling(e *echo.Echo) {
	e.Logger.Info("Enabling profiling - this may impact performance")

	// Sample time in nanoseconds, see https://github.com/DataDog/go-profiler-notes/blob/main/block.md#usage
	runtime.SetBlockProfileRate(500)
	runtime.SetMutexProfileFraction(1)
	runtime.SetCPUProfileRate(30)
}

// disableProfiling turns the expensive probes off. The endpoints stay
// registered.
func disableProfiling(e *echo.Echo) {
	e.Logger.Info("Disabling performance-intensive profiling probes")

	runtime.SetBlockProfileRate(0)
	runtime.SetMutexProfileFraction(0)
	runtime.SetCPUProfileRate(0)
}
