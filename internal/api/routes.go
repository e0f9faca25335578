package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/tweetmap/tweetmap-worker/api/types"
	"github.com/tweetmap/tweetmap-worker/internal/jobserver"
)

// fetch serves a fresh cached result or starts a scrape for the handle.
//
// Invalid handles answer 400 {"error":"Invalid username"}; a full queue
// answers 503.
func fetch(jobServer *jobserver.JobServer) echo.HandlerFunc {
	return func(c echo.Context) error {
		resp, err := jobServer.Fetch(c.Request().Context(), c.Param("handle"))
		switch {
		case err == nil:
			return c.JSON(http.StatusOK, resp)
		case errors.Is(err, jobserver.ErrInvalidHandle):
			return c.JSON(http.StatusBadRequest, types.JobError{Error: "Invalid username", Kind: types.ErrorKindInvalidInput})
		case errors.Is(err, jobserver.ErrQueueFull), errors.Is(err, jobserver.ErrQueueClosed):
			return c.JSON(http.StatusServiceUnavailable, types.JobError{Error: err.Error()})
		default:
			logrus.WithError(err).Error("Fetch failed")
			return c.JSON(http.StatusInternalServerError, types.JobError{Error: err.Error(), Kind: types.ErrorKindInternal})
		}
	}
}

// status returns {"status": ...} for a known job and 404 otherwise.
func status(jobServer *jobserver.JobServer) echo.HandlerFunc {
	return func(c echo.Context) error {
		s, err := jobServer.Status(c.Param("job_id"))
		if err != nil {
			return c.JSON(http.StatusNotFound, types.JobError{Error: "Invalid job id"})
		}
		return c.JSON(http.StatusOK, types.JobResponse{Status: s})
	}
}

// result returns the ScrapeResult of a done job. Pending jobs answer 202
// with their status, failed jobs 500 with the structured error and unknown
// ids 404.
func result(jobServer *jobserver.JobServer) echo.HandlerFunc {
	return func(c echo.Context) error {
		j, err := jobServer.Result(c.Param("job_id"))
		if err != nil {
			return c.JSON(http.StatusNotFound, types.JobError{Error: "Invalid job id"})
		}

		switch j.Status {
		case types.JobStatusDone:
			return c.JSON(http.StatusOK, j.Result)
		case types.JobStatusError:
			out := types.JobError{Error: "unknown error", Kind: types.ErrorKindInternal}
			if j.Error != nil {
				out = *j.Error
			}
			out.Status = types.JobStatusError
			return c.JSON(http.StatusInternalServerError, out)
		default:
			return c.JSON(http.StatusAccepted, types.JobResponse{Status: j.Status})
		}
	}
}

// accountStats returns the per-account telemetry and the job server snapshot.
func accountStats(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		body := map[string]any{}
		if d.Jobs != nil {
			body["jobs"] = d.Jobs.Stats()
		}
		if d.Stats != nil {
			raw, err := d.Stats.Json()
			if err != nil {
				return c.JSON(http.StatusInternalServerError, types.JobError{Error: err.Error(), Kind: types.ErrorKindInternal})
			}
			body["accounts"] = json.RawMessage(raw)
		}
		return c.JSON(http.StatusOK, body)
	}
}
