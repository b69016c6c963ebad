// Package gitdiff extracts the set of changed lines between a commit
// and the working tree's HEAD by parsing zero-context unified diffs.
package gitdiff

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/covgate/covgate/internal/exec"
	"github.com/covgate/covgate/internal/logger"
)

// Changes maps repository-relative paths to the new-side line numbers
// the diff adds or rewrites. Line numbers are ascending, the order git
// emits hunks in.
type Changes map[string][]int

// TotalLines returns the number of changed lines across all files.
func (c Changes) TotalLines() int {
	n := 0
	for _, lines := range c {
		n += len(lines)
	}
	return n
}

// DiffError describes a failed git invocation. It is fatal for the run
// that hits it.
type DiffError struct {
	Op       string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *DiffError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("git %s: %v", e.Op, e.Err)
	}
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		msg = "no output"
	}
	return fmt.Sprintf("git %s exited %d: %s", e.Op, e.ExitCode, msg)
}

func (e *DiffError) Unwrap() error { return e.Err }

// Extractor runs git against a repository and parses the results.
type Extractor struct {
	executor exec.Executor
	repoDir  string
}

// NewExtractor creates an Extractor for the repository at repoDir. An
// empty repoDir means the current working directory.
func NewExtractor(executor exec.Executor, repoDir string) *Extractor {
	return &Extractor{executor: executor, repoDir: repoDir}
}

// Changed returns the lines HEAD adds or rewrites relative to commit.
func (e *Extractor) Changed(commit string) (Changes, error) {
	result, err := e.git("diff", "-U0", commit, "HEAD")
	if err != nil {
		return nil, err
	}
	changes, err := Parse(result.Stdout)
	if err != nil {
		return nil, err
	}
	logger.Debug("diff against %s touches %d lines in %d files", commit, changes.TotalLines(), len(changes))
	return changes, nil
}

// MergeBase fetches branch from remote and returns the merge base of
// HEAD and the fetched branch head.
func (e *Extractor) MergeBase(remote, branch string) (string, error) {
	if _, err := e.git("fetch", remote, branch); err != nil {
		return "", err
	}
	result, err := e.git("merge-base", "HEAD", remote+"/"+branch)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(result.Stdout), nil
}

// Head returns the commit hash the working tree is on.
func (e *Extractor) Head() (string, error) {
	result, err := e.git("rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(result.Stdout), nil
}

// CurrentBranch returns the name of the checked-out branch, or "HEAD"
// when detached.
func (e *Extractor) CurrentBranch() (string, error) {
	result, err := e.git("rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(result.Stdout), nil
}

func (e *Extractor) git(args ...string) (*exec.ExecutionResult, error) {
	result, err := e.executor.RunIn(e.repoDir, "git", args...)
	if err != nil {
		return nil, &DiffError{Op: args[0], Err: err}
	}
	if result.ExitCode != 0 {
		return nil, &DiffError{Op: args[0], ExitCode: result.ExitCode, Stderr: result.Stderr}
	}
	return result, nil
}

// hunkHeaderRe matches "@@ -a,b +c,d @@"; the counts are omitted when
// they equal one.
var hunkHeaderRe = regexp.MustCompile(`^@@ -\d+(?:,\d+)? \+(\d+)(?:,(\d+))? @@`)

// Parse extracts changed lines from a zero-context unified diff. Hunks
// of deleted files land on /dev/null and are dropped; renames follow
// the new-side path.
func Parse(diff string) (Changes, error) {
	changes := make(Changes)
	current := ""
	for _, line := range strings.Split(diff, "\n") {
		switch {
		case strings.HasPrefix(line, "+++ "):
			target := strings.TrimSuffix(line[len("+++ "):], "\t")
			if target == "/dev/null" {
				current = ""
				continue
			}
			current = strings.TrimPrefix(target, "b/")
		case strings.HasPrefix(line, "@@"):
			m := hunkHeaderRe.FindStringSubmatch(line)
			if m == nil {
				return nil, &DiffError{Op: "diff", Err: fmt.Errorf("malformed hunk header %q", line)}
			}
			if current == "" {
				continue
			}
			start, _ := strconv.Atoi(m[1])
			count := 1
			if m[2] != "" {
				count, _ = strconv.Atoi(m[2])
			}
			for i := 0; i < count; i++ {
				changes[current] = append(changes[current], start+i)
			}
		}
	}
	return changes, nil
}
