package gitdiff

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/covgate/covgate/internal/exec"
)

type MockExecutor struct {
	runInFn func(dir, command string, args ...string) (*exec.ExecutionResult, error)
	calls   [][]string
}

func (m *MockExecutor) Run(command string, args ...string) (*exec.ExecutionResult, error) {
	return m.RunIn("", command, args...)
}

func (m *MockExecutor) RunIn(dir, command string, args ...string) (*exec.ExecutionResult, error) {
	m.calls = append(m.calls, append([]string{dir, command}, args...))
	if m.runInFn != nil {
		return m.runInFn(dir, command, args...)
	}
	return &exec.ExecutionResult{ExitCode: 0}, nil
}

const sampleDiff = `diff --git a/app/api/views.py b/app/api/views.py
index 1111111..2222222 100644
--- a/app/api/views.py
+++ b/app/api/views.py
@@ -10,0 +11,3 @@ def handler():
+one
+two
+three
@@ -20 +23 @@ def other():
-old
+new
@@ -30,2 +32,0 @@ def gone():
-removed
-removed too
diff --git a/docs/guide.md b/docs/guide.md
deleted file mode 100644
index 3333333..0000000
--- a/docs/guide.md
+++ /dev/null
@@ -1,5 +0,0 @@
-stale
diff --git a/app/old_name.py b/app/new_name.py
similarity index 90%
rename from app/old_name.py
rename to app/new_name.py
--- a/app/old_name.py
+++ b/app/new_name.py
@@ -7,0 +8 @@
+added
`

func TestParse(t *testing.T) {
	t.Run("should collect new-side lines per file", func(t *testing.T) {
		changes, err := Parse(sampleDiff)
		require.NoError(t, err)

		assert.Equal(t, []int{11, 12, 13, 23}, changes["app/api/views.py"])
		assert.Equal(t, []int{8}, changes["app/new_name.py"])
		assert.Equal(t, 5, changes.TotalLines())
	})

	t.Run("should drop files whose new side is /dev/null", func(t *testing.T) {
		changes, err := Parse(sampleDiff)
		require.NoError(t, err)

		_, ok := changes["docs/guide.md"]
		assert.False(t, ok)
	})

	t.Run("should follow renames to the new path", func(t *testing.T) {
		changes, err := Parse(sampleDiff)
		require.NoError(t, err)

		_, ok := changes["app/old_name.py"]
		assert.False(t, ok)
		_, ok = changes["app/new_name.py"]
		assert.True(t, ok)
	})

	t.Run("should treat an omitted count as one line", func(t *testing.T) {
		changes, err := Parse("+++ b/x.go\n@@ -1 +2 @@\n+line\n")
		require.NoError(t, err)
		assert.Equal(t, []int{2}, changes["x.go"])
	})

	t.Run("should add nothing for pure-deletion hunks", func(t *testing.T) {
		changes, err := Parse("+++ b/x.go\n@@ -4,2 +3,0 @@\n-a\n-b\n")
		require.NoError(t, err)
		assert.Empty(t, changes["x.go"])
	})

	t.Run("should reject malformed hunk headers", func(t *testing.T) {
		_, err := Parse("+++ b/x.go\n@@ not a header\n")
		var diffErr *DiffError
		require.ErrorAs(t, err, &diffErr)
		assert.Equal(t, "diff", diffErr.Op)
	})

	t.Run("should return no changes for an empty diff", func(t *testing.T) {
		changes, err := Parse("")
		require.NoError(t, err)
		assert.Empty(t, changes)
	})
}

func TestExtractor_Changed(t *testing.T) {
	t.Run("should diff the commit against HEAD with zero context", func(t *testing.T) {
		mock := &MockExecutor{
			runInFn: func(dir, command string, args ...string) (*exec.ExecutionResult, error) {
				return &exec.ExecutionResult{Stdout: sampleDiff, ExitCode: 0}, nil
			},
		}
		extractor := NewExtractor(mock, "/repo")

		changes, err := extractor.Changed("abc123")
		require.NoError(t, err)
		assert.Len(t, changes, 2)

		require.Len(t, mock.calls, 1)
		assert.Equal(t, []string{"/repo", "git", "diff", "-U0", "abc123", "HEAD"}, mock.calls[0])
	})

	t.Run("should surface git failures as diff errors", func(t *testing.T) {
		mock := &MockExecutor{
			runInFn: func(dir, command string, args ...string) (*exec.ExecutionResult, error) {
				return &exec.ExecutionResult{Stderr: "fatal: bad revision 'abc123'", ExitCode: 128}, nil
			},
		}
		extractor := NewExtractor(mock, "")

		_, err := extractor.Changed("abc123")
		var diffErr *DiffError
		require.ErrorAs(t, err, &diffErr)
		assert.Equal(t, 128, diffErr.ExitCode)
		assert.Contains(t, diffErr.Error(), "bad revision")
	})

	t.Run("should surface spawn failures as diff errors", func(t *testing.T) {
		spawnErr := errors.New("executable not found")
		mock := &MockExecutor{
			runInFn: func(dir, command string, args ...string) (*exec.ExecutionResult, error) {
				return nil, spawnErr
			},
		}
		extractor := NewExtractor(mock, "")

		_, err := extractor.Changed("abc123")
		var diffErr *DiffError
		require.ErrorAs(t, err, &diffErr)
		assert.ErrorIs(t, err, spawnErr)
	})
}

func TestExtractor_MergeBase(t *testing.T) {
	t.Run("should fetch the branch before resolving the merge base", func(t *testing.T) {
		mock := &MockExecutor{
			runInFn: func(dir, command string, args ...string) (*exec.ExecutionResult, error) {
				if args[0] == "merge-base" {
					return &exec.ExecutionResult{Stdout: "deadbeef\n", ExitCode: 0}, nil
				}
				return &exec.ExecutionResult{ExitCode: 0}, nil
			},
		}
		extractor := NewExtractor(mock, "/repo")

		base, err := extractor.MergeBase("origin", "main")
		require.NoError(t, err)
		assert.Equal(t, "deadbeef", base)

		require.Len(t, mock.calls, 2)
		assert.Equal(t, []string{"/repo", "git", "fetch", "origin", "main"}, mock.calls[0])
		assert.Equal(t, []string{"/repo", "git", "merge-base", "HEAD", "origin/main"}, mock.calls[1])
	})

	t.Run("should stop when the fetch fails", func(t *testing.T) {
		mock := &MockExecutor{
			runInFn: func(dir, command string, args ...string) (*exec.ExecutionResult, error) {
				return &exec.ExecutionResult{Stderr: "could not resolve host", ExitCode: 128}, nil
			},
		}
		extractor := NewExtractor(mock, "")

		_, err := extractor.MergeBase("origin", "main")
		var diffErr *DiffError
		require.ErrorAs(t, err, &diffErr)
		assert.Equal(t, "fetch", diffErr.Op)
		assert.Len(t, mock.calls, 1)
	})
}

func TestExtractor_Head(t *testing.T) {
	mock := &MockExecutor{
		runInFn: func(dir, command string, args ...string) (*exec.ExecutionResult, error) {
			require.True(t, strings.HasPrefix(strings.Join(args, " "), "rev-parse"))
			return &exec.ExecutionResult{Stdout: "cafebabe\n", ExitCode: 0}, nil
		},
	}
	extractor := NewExtractor(mock, "")

	head, err := extractor.Head()
	require.NoError(t, err)
	assert.Equal(t, "cafebabe", head)
}

func TestExtractor_CurrentBranch(t *testing.T) {
	mock := &MockExecutor{
		runInFn: func(dir, command string, args ...string) (*exec.ExecutionResult, error) {
			return &exec.ExecutionResult{Stdout: "feature/login\n", ExitCode: 0}, nil
		},
	}
	extractor := NewExtractor(mock, "")

	branch, err := extractor.CurrentBranch()
	require.NoError(t, err)
	assert.Equal(t, "feature/login", branch)
	assert.Equal(t, []string{"", "git", "rev-parse", "--abbrev-ref", "HEAD"}, mock.calls[0])
}
