package client

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/tweetmap/tweetmap-worker/api/types"
)

var (
	ErrJobNotFound     = errors.New("job not found")
	ErrInvalidUsername = errors.New("invalid username")
)

// JobFailedError is returned when the server reports a failed job.
type JobFailedError struct {
	types.JobError
}

func (e *JobFailedError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("job failed (%s): %s", e.Kind, e.JobError.Error)
	}
	return "job failed: " + e.JobError.Error
}

// Client represents a client to interact with the tweetmap worker.
type Client struct {
	BaseURL    string
	options    *Options
	HTTPClient *http.Client
}

// NewClient creates a new Client instance.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	options, err := NewOptions(opts...)
	if err != nil {
		return nil, err
	}

	transport := &http.Transport{
		MaxIdleConns:        options.MaxIdleConns,
		MaxIdleConnsPerHost: options.MaxIdleConnsPerHost,
		MaxConnsPerHost:     options.MaxConnsPerHost,
		IdleConnTimeout:     options.IdleConnTimeout,
	}
	if options.ignoreTLSCert {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &Client{
		BaseURL: baseURL,
		options: options,
		HTTPClient: &http.Client{
			Timeout:   options.Timeout,
			Transport: transport,
		},
	}, nil
}

// Fetch requests the histogram for handle. When the response carries a job
// id, the scrape is running and its result can be awaited with the returned
// JobResult; otherwise the JobResult is nil.
func (c *Client) Fetch(ctx context.Context, handle string) (*types.FetchResponse, *JobResult, error) {
	var resp types.FetchResponse
	code, err := c.do(ctx, http.MethodPost, "/fetch/"+url.PathEscape(handle), &resp)
	if err != nil {
		return nil, nil, err
	}
	switch code {
	case http.StatusOK:
	case http.StatusBadRequest:
		return nil, nil, ErrInvalidUsername
	default:
		return nil, nil, fmt.Errorf("error: received status code %d", code)
	}

	if resp.JobID == nil {
		return &resp, nil, nil
	}
	return &resp, c.job(*resp.JobID), nil
}

// Status returns the status of a job.
func (c *Client) Status(ctx context.Context, jobID string) (types.JobStatus, error) {
	var resp types.JobResponse
	code, err := c.do(ctx, http.MethodGet, "/status/"+url.PathEscape(jobID), &resp)
	if err != nil {
		return "", err
	}
	switch code {
	case http.StatusOK:
		return resp.Status, nil
	case http.StatusNotFound:
		return "", ErrJobNotFound
	default:
		return "", fmt.Errorf("error: received status code %d", code)
	}
}

// GetResult retrieves the result of a job. The boolean is false while the
// job is still pending. A failed job returns a *JobFailedError.
func (c *Client) GetResult(ctx context.Context, jobID string) (*types.ScrapeResult, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/result/"+url.PathEscape(jobID), nil)
	if err != nil {
		return nil, false, fmt.Errorf("error creating request: %w", err)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("error sending GET request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("error reading response body: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		res, err := types.UnmarshalScrapeResult(body)
		if err != nil {
			return nil, false, fmt.Errorf("error unmarshaling result: %w", err)
		}
		return &res, true, nil
	case http.StatusAccepted:
		return nil, false, nil
	case http.StatusNotFound:
		return nil, false, ErrJobNotFound
	default:
		respErr := types.JobError{}
		if err := json.Unmarshal(body, &respErr); err != nil || respErr.Error == "" {
			return nil, false, fmt.Errorf("error: received status code %d", resp.StatusCode)
		}
		return nil, false, &JobFailedError{JobError: respErr}
	}
}

func (c *Client) job(id string) *JobResult {
	return &JobResult{
		UUID:       id,
		client:     c,
		maxRetries: c.options.MaxPolls,
		delay:      c.options.PollInterval,
	}
}

func (c *Client) do(ctx context.Context, method, path string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, nil)
	if err != nil {
		return 0, fmt.Errorf("error creating request: %w", err)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("error sending %s request: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("error reading response body: %w", err)
	}
	if resp.StatusCode == http.StatusOK {
		if err := json.Unmarshal(body, out); err != nil {
			return resp.StatusCode, fmt.Errorf("error unmarshaling response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
