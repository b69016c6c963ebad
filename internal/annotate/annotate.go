// Package annotate renders source excerpts around uncovered changed
// lines so the offending code is visible straight from the CI log.
package annotate

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/covgate/covgate/internal/cover"
	"github.com/covgate/covgate/internal/covreport"
	"github.com/covgate/covgate/internal/gitdiff"
	"github.com/covgate/covgate/internal/logger"
)

// DefaultContext is how many lines around each uncovered line the
// excerpt shows.
const DefaultContext = 4

// Line markers. Changed lines get the loud pair, surrounding context
// the quiet pair, uninstrumented lines stay blank.
const (
	markChangedCovered   = "✅"
	markChangedUncovered = "❌"
	markContextCovered   = "✔️ "
	markContextUncovered = "✖️ "
	markUninstrumented   = "  "
)

var (
	headerColor    = color.New(color.FgCyan)
	uncoveredColor = color.New(color.FgRed)
)

// Annotator reads source files from a repository and renders excerpts.
type Annotator struct {
	RepoDir string
	Context int
}

// New creates an Annotator for the repository at repoDir with the
// default context width.
func New(repoDir string) *Annotator {
	return &Annotator{RepoDir: repoDir, Context: DefaultContext}
}

// Listing renders one excerpt section per file with uncovered changed
// lines. Files that cannot be read are skipped with a warning, keeping
// a stale diff from failing the whole run.
func (a *Annotator) Listing(report *covreport.Report, changes gitdiff.Changes, result *cover.DiffResult) string {
	byFile := make(map[string][]int)
	for _, line := range result.Uncovered {
		byFile[line.File] = append(byFile[line.File], line.Nr)
	}
	paths := make([]string, 0, len(byFile))
	for path := range byFile {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	sections := make([]string, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(filepath.Join(a.RepoDir, path))
		if err != nil {
			logger.Warn("cannot annotate %s: %v", path, err)
			continue
		}
		key, _ := report.Resolve(path)
		coverage, _ := report.File(key)
		section := File(path, string(data), coverage, changes[path], byFile[path], a.Context)
		if section != "" {
			sections = append(sections, section)
		}
	}
	return strings.Join(sections, "\n")
}

// File renders the excerpt for a single file: every uncovered line
// with up to context lines around it, adjacent windows merged into one
// block.
func File(path, content string, coverage covreport.FileCoverage, changed, uncovered []int, context int) string {
	if len(uncovered) == 0 {
		return ""
	}
	lines := strings.Split(content, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	displaySet := make(map[int]bool)
	for _, nr := range uncovered {
		lo := nr - context
		if lo < 1 {
			lo = 1
		}
		hi := nr + context
		if hi > len(lines) {
			hi = len(lines)
		}
		for i := lo; i <= hi; i++ {
			displaySet[i] = true
		}
	}
	display := make([]int, 0, len(displaySet))
	for nr := range displaySet {
		display = append(display, nr)
	}
	sort.Ints(display)
	if len(display) == 0 {
		return ""
	}

	changedSet := make(map[int]bool, len(changed))
	for _, nr := range changed {
		changedSet[nr] = true
	}

	var b strings.Builder
	b.WriteString(headerColor.Sprintf("📄 %s", path))
	b.WriteString("\n")
	prev := display[0] - 1
	for _, nr := range display {
		if nr > prev+1 {
			b.WriteString("\n")
		}
		prev = nr

		covered, instrumented := coverage[nr]
		mark := markUninstrumented
		switch {
		case !instrumented:
		case changedSet[nr] && covered:
			mark = markChangedCovered
		case changedSet[nr]:
			mark = markChangedUncovered
		case covered:
			mark = markContextCovered
		default:
			mark = markContextUncovered
		}

		text := lines[nr-1]
		if mark == markChangedUncovered {
			text = uncoveredColor.Sprint(text)
		}
		fmt.Fprintf(&b, "\t%s %d\t\t%s\n", mark, nr, text)
	}
	return b.String()
}
