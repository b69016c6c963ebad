// Package gitlab is a minimal GitLab REST client for the two calls the
// coverage gate needs: commit statuses (to read the reference branch's
// recorded coverage) and merge-request lookup (to find the target
// branch).
package gitlab

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/covgate/covgate/internal/logger"
)

const (
	DefaultBaseURL = "https://gitlab.com/api/v4"

	// DefaultPollInterval is how often WaitForCoverage re-reads the
	// statuses of a still-running pipeline.
	DefaultPollInterval = 20 * time.Second
	// DefaultMaxWait bounds the whole poll.
	DefaultMaxWait = 30 * time.Minute
)

var (
	// ErrNoJobs means the reference commit has no CI jobs at all.
	ErrNoJobs = errors.New("no jobs found for reference commit")
	// ErrNoSuccessfulJobs means CI ran on the reference commit but no
	// job succeeded with a coverage figure.
	ErrNoSuccessfulJobs = errors.New("reference commit has no successful jobs")
)

var errStillRunning = errors.New("reference pipeline still running")

// CommitStatus is one CI status attached to a commit. Coverage is nil
// when the job recorded none.
type CommitStatus struct {
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	Coverage  *float64  `json:"coverage"`
	CreatedAt time.Time `json:"created_at"`
}

// Client talks to the GitLab API for a single project.
type Client struct {
	baseURL   string
	projectID string
	token     string
	client    *http.Client
}

// NewClient creates a client for one project. An empty baseURL means
// gitlab.com.
func NewClient(baseURL, projectID, token string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		projectID: projectID,
		token:     token,
		client:    &http.Client{Timeout: 30 * time.Second},
	}
}

// CommitStatuses returns the CI statuses of a commit, optionally
// restricted to one pipeline stage.
func (c *Client) CommitStatuses(sha, stage string) ([]CommitStatus, error) {
	endpoint := fmt.Sprintf("%s/projects/%s/repository/commits/%s/statuses",
		c.baseURL, url.PathEscape(c.projectID), url.PathEscape(sha))
	query := url.Values{}
	if stage != "" {
		query.Set("stage", stage)
	}

	var statuses []CommitStatus
	if err := c.getJSON(endpoint, query, &statuses); err != nil {
		return nil, fmt.Errorf("failed to fetch commit statuses for %s: %w", sha, err)
	}
	return statuses, nil
}

// MergeRequestTargetBranch returns the target branch of the open merge
// request whose source is the given branch, or "" when no merge
// request exists.
func (c *Client) MergeRequestTargetBranch(sourceBranch string) (string, error) {
	endpoint := fmt.Sprintf("%s/projects/%s/merge_requests", c.baseURL, url.PathEscape(c.projectID))
	query := url.Values{}
	query.Set("source_branch", sourceBranch)

	var requests []struct {
		TargetBranch string `json:"target_branch"`
	}
	if err := c.getJSON(endpoint, query, &requests); err != nil {
		return "", fmt.Errorf("failed to look up merge request for %s: %w", sourceBranch, err)
	}
	if len(requests) == 0 {
		return "", nil
	}
	return requests[0].TargetBranch, nil
}

// PollOptions adjusts how WaitForCoverage matches and polls statuses.
type PollOptions struct {
	// Stage restricts the statuses query to one CI stage.
	Stage string
	// NameFilter requires the coverage-bearing job name to contain
	// this substring.
	NameFilter string
	// Interval between polls; zero means DefaultPollInterval.
	Interval time.Duration
	// MaxWait bounds the whole poll; zero means DefaultMaxWait.
	MaxWait time.Duration
}

// WaitForCoverage returns the coverage percentage recorded on a
// commit's latest successful CI job. While a test or coverage job is
// still running it keeps polling; a finished pipeline without coverage
// is an error.
func (c *Client) WaitForCoverage(sha string, opts PollOptions) (float64, error) {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	maxWait := opts.MaxWait
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}

	var coverage float64
	waiting := false
	operation := func() error {
		statuses, err := c.CommitStatuses(sha, opts.Stage)
		if err != nil {
			return backoff.Permanent(err)
		}
		if cov, ok := latestCoverage(statuses, opts.NameFilter); ok {
			coverage = cov
			return nil
		}
		if coveragePending(statuses) {
			if !waiting {
				logger.Info("reference commit %s is still running, waiting for it to finish", sha)
				waiting = true
			} else {
				logger.Debug("still waiting for coverage on %s", sha)
			}
			return errStillRunning
		}
		if len(statuses) > 0 {
			return backoff.Permanent(fmt.Errorf("%w: %s", ErrNoSuccessfulJobs, sha))
		}
		return backoff.Permanent(fmt.Errorf("%w: %s", ErrNoJobs, sha))
	}

	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(interval), uint64(maxWait/interval))
	if err := backoff.Retry(operation, policy); err != nil {
		if errors.Is(err, errStillRunning) {
			return 0, fmt.Errorf("timed out after %s waiting for coverage on %s", maxWait, sha)
		}
		return 0, err
	}
	return coverage, nil
}

// latestCoverage picks the newest successful status that carries a
// coverage figure and matches the name filter.
func latestCoverage(statuses []CommitStatus, nameFilter string) (float64, bool) {
	var best *CommitStatus
	for i := range statuses {
		s := &statuses[i]
		if s.Status != "success" || s.Coverage == nil {
			continue
		}
		if nameFilter != "" && !strings.Contains(s.Name, nameFilter) {
			continue
		}
		if best == nil || s.CreatedAt.After(best.CreatedAt) {
			best = s
		}
	}
	if best == nil {
		return 0, false
	}
	return *best.Coverage, true
}

// coveragePending reports whether a job that produces coverage, or a
// test job it depends on, is still running.
func coveragePending(statuses []CommitStatus) bool {
	for _, s := range statuses {
		if s.Status != "running" {
			continue
		}
		if strings.Contains(s.Name, "test") || strings.Contains(s.Name, "coverage") {
			return true
		}
	}
	return false
}

func (c *Client) getJSON(endpoint string, query url.Values, out interface{}) error {
	if c.token != "" {
		query.Set("private_token", c.token)
	}
	query.Set("membership", "yes")

	req, err := http.NewRequest("GET", endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("api request failed with status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response body: %w", err)
	}
	return nil
}
