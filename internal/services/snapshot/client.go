// Package snapshot fetches job profiles from the job backend's REST API and
// sends operator commands back to it.
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/corrudash/internal/common"
	"github.com/ternarybob/corrudash/internal/models"
)

// maxBodyBytes caps how much of a response body is read
const maxBodyBytes = 16 << 20

// Client talks to the job backend
type Client struct {
	baseURL      string
	statusFilter string
	httpClient   *http.Client
	validate     *validator.Validate
	logger       arbor.ILogger
}

// NewClient creates a Client from the [snapshot] config section
func NewClient(config *common.SnapshotConfig, logger arbor.ILogger) *Client {
	return &Client{
		baseURL:      strings.TrimRight(config.BaseURL, "/"),
		statusFilter: config.StatusFilter,
		httpClient: &http.Client{
			Timeout: common.ParseDurationOr(config.RequestTimeout, 15*time.Second),
		},
		validate: validator.New(),
		logger:   logger,
	}
}

// FetchAllJobs returns every job the backend knows about, narrowed by the
// configured status filter if one is set.
func (c *Client) FetchAllJobs(ctx context.Context) ([]models.JobStaticProfile, error) {
	return c.FetchJobsByStatus(ctx, c.statusFilter)
}

// FetchJobsByStatus returns the jobs with the given backend status. An empty
// status returns all jobs.
func (c *Client) FetchJobsByStatus(ctx context.Context, status string) ([]models.JobStaticProfile, error) {
	query := url.Values{}
	if status != "" {
		query.Set("status", status)
	}
	return c.fetchProfiles(ctx, query)
}

func (c *Client) fetchProfiles(ctx context.Context, query url.Values) ([]models.JobStaticProfile, error) {
	const op = "GET /job-details"

	body, status, err := c.do(ctx, http.MethodGet, "/job-details", query, nil)
	if err != nil {
		return nil, &FetchError{Kind: KindNetwork, Op: op, Err: err}
	}
	if status < 200 || status > 299 {
		return nil, &FetchError{Kind: KindProtocol, Op: op, StatusCode: status, Err: fmt.Errorf("unexpected status: %s", snippet(body))}
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &FetchError{Kind: KindDecode, Op: op, StatusCode: status, Err: err}
	}
	if env.failed() {
		return nil, &FetchError{Kind: KindProtocol, Op: op, StatusCode: status, Err: fmt.Errorf("%s", env.reason())}
	}

	entries, err := env.dataEntries()
	if err != nil {
		return nil, &FetchError{Kind: KindDecode, Op: op, StatusCode: status, Err: err}
	}

	profiles := make([]models.JobStaticProfile, 0, len(entries))
	skipped := 0
	for _, raw := range entries {
		profile, ok := toProfile(raw)
		if !ok {
			skipped++
			continue
		}
		profiles = append(profiles, profile)
	}

	if skipped > 0 {
		c.logger.Warn().
			Int("skipped", skipped).
			Int("accepted", len(profiles)).
			Msg("Skipped snapshot entries without job_id")
	}
	if env.Count != nil && *env.Count != len(entries) {
		c.logger.Debug().
			Int("count", *env.Count).
			Int("entries", len(entries)).
			Msg("Snapshot count does not match data length")
	}

	c.logger.Debug().
		Int("jobs", len(profiles)).
		Str("query", query.Encode()).
		Msg("Fetched job snapshot")

	return profiles, nil
}

// UpdateJob sends PUT /update-job for one job. The request is validated
// before anything is sent.
func (c *Client) UpdateJob(ctx context.Context, id string, req models.UpdateJobRequest) error {
	const op = "PUT /update-job"

	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("update job: empty job id")
	}
	if err := c.validate.Struct(req); err != nil {
		return fmt.Errorf("update job %s: invalid request: %w", id, err)
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("update job %s: %w", id, err)
	}

	query := url.Values{}
	query.Set("job_id", id)

	body, status, err := c.do(ctx, http.MethodPut, "/update-job", query, payload)
	if err != nil {
		return &FetchError{Kind: KindNetwork, Op: op, Err: err}
	}
	if status < 200 || status > 299 {
		return &FetchError{Kind: KindProtocol, Op: op, StatusCode: status, Err: fmt.Errorf("unexpected status: %s", snippet(body))}
	}

	if len(bytes.TrimSpace(body)) > 0 {
		var resp updateResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return &FetchError{Kind: KindDecode, Op: op, StatusCode: status, Err: err}
		}
		if resp.Success != nil && !*resp.Success {
			reason := resp.Error
			if reason == "" {
				reason = resp.Message
			}
			if reason == "" {
				reason = "backend reported success:false"
			}
			return &FetchError{Kind: KindProtocol, Op: op, StatusCode: status, Err: fmt.Errorf("%s", reason)}
		}
	}

	c.logger.Info().
		Str("job_id", id).
		Str("status", req.Status).
		Msg("Job update accepted")

	return nil
}

// Health calls the backend's /health endpoint
func (c *Client) Health(ctx context.Context) (models.BackendHealth, error) {
	const op = "GET /health"

	body, status, err := c.do(ctx, http.MethodGet, "/health", nil, nil)
	if err != nil {
		return models.BackendHealth{}, &FetchError{Kind: KindNetwork, Op: op, Err: err}
	}
	if status < 200 || status > 299 {
		return models.BackendHealth{}, &FetchError{Kind: KindProtocol, Op: op, StatusCode: status, Err: fmt.Errorf("unexpected status: %s", snippet(body))}
	}

	var health models.BackendHealth
	if err := json.Unmarshal(body, &health); err != nil {
		return models.BackendHealth{}, &FetchError{Kind: KindDecode, Op: op, StatusCode: status, Err: err}
	}
	return health, nil
}

// BaseURL returns the backend base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// do performs one request and reads the body. Only transport failures are
// returned as errors; status handling is left to the caller.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload []byte) ([]byte, int, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, resp.StatusCode, err
	}

	c.logger.Debug().
		Str("method", method).
		Str("url", target).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("Backend request completed")

	return body, resp.StatusCode, nil
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	if s == "" {
		return "<empty body>"
	}
	return s
}
