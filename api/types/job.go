package types

import "time"

// JobStatus is the lifecycle state of a submitted job.
type JobStatus string

const (
	JobStatusQueued   JobStatus = "queued"
	JobStatusFetching JobStatus = "fetching"
	JobStatusDone     JobStatus = "done"
	JobStatusError    JobStatus = "error"
)

// Terminal reports whether no further transition is allowed out of s.
func (s JobStatus) Terminal() bool {
	return s == JobStatusDone || s == JobStatusError
}

// Job is a single scrape request tracked by the job server.
type Job struct {
	UUID      string        `json:"job_id"`
	Target    string        `json:"target"`
	Status    JobStatus     `json:"status"`
	Result    *ScrapeResult `json:"result,omitempty"`
	Error     *JobError     `json:"error,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// JobResponse is returned by the status endpoint.
type JobResponse struct {
	Status JobStatus `json:"status"`
}

// FetchResponse is returned when a scrape is requested for a handle.
// JobID is nil when a fresh cached result answered the request.
type FetchResponse struct {
	JobID  *string       `json:"job_id"`
	Cached bool          `json:"cached"`
	Fresh  bool          `json:"fresh"`
	Result *ScrapeResult `json:"result,omitempty"`
}
