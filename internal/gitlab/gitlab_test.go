package gitlab

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_CommitStatuses(t *testing.T) {
	t.Run("should query the statuses endpoint with auth and stage", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/projects/42/repository/commits/abc123/statuses", r.URL.Path)
			assert.Equal(t, "test_token", r.URL.Query().Get("private_token"))
			assert.Equal(t, "yes", r.URL.Query().Get("membership"))
			assert.Equal(t, "coverage", r.URL.Query().Get("stage"))
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`[
				{"name": "coverage-report", "status": "success", "coverage": 86.52, "created_at": "2024-05-10T12:00:00Z"},
				{"name": "lint", "status": "success", "coverage": null, "created_at": "2024-05-10T11:00:00Z"}
			]`))
		}))
		defer server.Close()

		client := NewClient(server.URL, "42", "test_token")

		statuses, err := client.CommitStatuses("abc123", "coverage")
		require.NoError(t, err)
		require.Len(t, statuses, 2)
		assert.Equal(t, "coverage-report", statuses[0].Name)
		require.NotNil(t, statuses[0].Coverage)
		assert.InDelta(t, 86.52, *statuses[0].Coverage, 1e-9)
		assert.Nil(t, statuses[1].Coverage)
	})

	t.Run("should fail on a non-200 response", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		client := NewClient(server.URL, "42", "test_token")

		_, err := client.CommitStatuses("abc123", "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "api request failed with status 404")
	})
}

func TestClient_MergeRequestTargetBranch(t *testing.T) {
	t.Run("should return the target branch of the first matching merge request", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/projects/42/merge_requests", r.URL.Path)
			assert.Equal(t, "feature/gate", r.URL.Query().Get("source_branch"))
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`[{"target_branch": "develop"}, {"target_branch": "main"}]`))
		}))
		defer server.Close()

		client := NewClient(server.URL, "42", "test_token")

		branch, err := client.MergeRequestTargetBranch("feature/gate")
		require.NoError(t, err)
		assert.Equal(t, "develop", branch)
	})

	t.Run("should return empty when no merge request exists", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`[]`))
		}))
		defer server.Close()

		client := NewClient(server.URL, "42", "test_token")

		branch, err := client.MergeRequestTargetBranch("feature/gate")
		require.NoError(t, err)
		assert.Empty(t, branch)
	})
}

func TestClient_WaitForCoverage(t *testing.T) {
	fastPoll := PollOptions{Interval: time.Millisecond, MaxWait: 50 * time.Millisecond}

	t.Run("should return the coverage of the latest successful job", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`[
				{"name": "coverage old", "status": "success", "coverage": 70.0, "created_at": "2024-05-09T12:00:00Z"},
				{"name": "coverage new", "status": "success", "coverage": 86.52, "created_at": "2024-05-10T12:00:00Z"}
			]`))
		}))
		defer server.Close()

		client := NewClient(server.URL, "42", "test_token")

		coverage, err := client.WaitForCoverage("abc123", fastPoll)
		require.NoError(t, err)
		assert.InDelta(t, 86.52, coverage, 1e-9)
	})

	t.Run("should only accept jobs matching the name filter", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`[
				{"name": "sonar", "status": "success", "coverage": 12.0, "created_at": "2024-05-11T12:00:00Z"},
				{"name": "coverage-report", "status": "success", "coverage": 86.52, "created_at": "2024-05-10T12:00:00Z"}
			]`))
		}))
		defer server.Close()

		client := NewClient(server.URL, "42", "test_token")

		opts := fastPoll
		opts.NameFilter = "coverage"
		coverage, err := client.WaitForCoverage("abc123", opts)
		require.NoError(t, err)
		assert.InDelta(t, 86.52, coverage, 1e-9)
	})

	t.Run("should poll while a test job is running", func(t *testing.T) {
		var requests atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			if requests.Add(1) < 3 {
				w.Write([]byte(`[{"name": "test-suite", "status": "running", "coverage": null, "created_at": "2024-05-10T12:00:00Z"}]`))
				return
			}
			w.Write([]byte(`[{"name": "coverage-report", "status": "success", "coverage": 80.5, "created_at": "2024-05-10T12:30:00Z"}]`))
		}))
		defer server.Close()

		client := NewClient(server.URL, "42", "test_token")

		coverage, err := client.WaitForCoverage("abc123", fastPoll)
		require.NoError(t, err)
		assert.InDelta(t, 80.5, coverage, 1e-9)
		assert.GreaterOrEqual(t, requests.Load(), int32(3))
	})

	t.Run("should fail when the pipeline finished without successful jobs", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`[{"name": "test-suite", "status": "failed", "coverage": null, "created_at": "2024-05-10T12:00:00Z"}]`))
		}))
		defer server.Close()

		client := NewClient(server.URL, "42", "test_token")

		_, err := client.WaitForCoverage("abc123", fastPoll)
		assert.ErrorIs(t, err, ErrNoSuccessfulJobs)
	})

	t.Run("should fail when the commit has no jobs at all", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`[]`))
		}))
		defer server.Close()

		client := NewClient(server.URL, "42", "test_token")

		_, err := client.WaitForCoverage("abc123", fastPoll)
		assert.ErrorIs(t, err, ErrNoJobs)
	})

	t.Run("should give up after the maximum wait", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`[{"name": "coverage-report", "status": "running", "coverage": null, "created_at": "2024-05-10T12:00:00Z"}]`))
		}))
		defer server.Close()

		client := NewClient(server.URL, "42", "test_token")

		_, err := client.WaitForCoverage("abc123", PollOptions{Interval: time.Millisecond, MaxWait: 5 * time.Millisecond})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "timed out")
	})

	t.Run("should not retry API errors", func(t *testing.T) {
		var requests atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer server.Close()

		client := NewClient(server.URL, "42", "bad_token")

		_, err := client.WaitForCoverage("abc123", fastPoll)
		require.Error(t, err)
		assert.Contains(t, err.Error(), fmt.Sprintf("api request failed with status %d", http.StatusUnauthorized))
		assert.Equal(t, int32(1), requests.Load())
	})
}
