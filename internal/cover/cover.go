// Package cover aggregates parsed coverage reports into overall and
// changed-line tallies.
package cover

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/covgate/covgate/internal/covreport"
	"github.com/covgate/covgate/internal/gitdiff"
	"github.com/covgate/covgate/internal/logger"
)

// Tally counts covered lines against all instrumented lines.
type Tally struct {
	Covered int
	Total   int
}

// Ratio returns covered/total. An empty tally is fully covered; there
// is nothing left to test.
func (t Tally) Ratio() float64 {
	if t.Total == 0 {
		return 1.0
	}
	return float64(t.Covered) / float64(t.Total)
}

// DiffTally partitions changed lines. Ignored lines were changed but
// not instrumented (comments, blank lines, config) and stay out of the
// ratio.
type DiffTally struct {
	Covered   int
	Uncovered int
	Ignored   int
}

// Eligible returns the number of changed lines the ratio is computed
// over.
func (t DiffTally) Eligible() int {
	return t.Covered + t.Uncovered
}

// Ratio returns the covered share of eligible changed lines. A change
// with no eligible lines is fully covered.
func (t DiffTally) Ratio() float64 {
	if t.Eligible() == 0 {
		return 1.0
	}
	return float64(t.Covered) / float64(t.Eligible())
}

func (t *DiffTally) add(other DiffTally) {
	t.Covered += other.Covered
	t.Uncovered += other.Uncovered
	t.Ignored += other.Ignored
}

// Line identifies one line of one repository file.
type Line struct {
	File string
	Nr   int
}

// DiffResult is the outcome of restricting a coverage report to a
// change set.
type DiffResult struct {
	Tally DiffTally
	// Files holds the per-file tallies for every changed file the
	// report's dialect could instrument.
	Files map[string]DiffTally
	// Uncovered lists the changed-but-uncovered lines, sorted by file
	// then line number.
	Uncovered []Line
}

// DiffOptions adjusts diff aggregation.
type DiffOptions struct {
	// IgnorePrefixes excludes whole subtrees from the tally, such as
	// vendored or generated code.
	IgnorePrefixes []string
}

// Diff restricts a coverage report to the changed lines. Files the
// dialect cannot instrument contribute nothing; changed lines in
// instrumentable files missing from the report count as ignored.
func Diff(report *covreport.Report, changes gitdiff.Changes, opts DiffOptions) *DiffResult {
	result := &DiffResult{Files: make(map[string]DiffTally)}

	paths := make([]string, 0, len(changes))
	for path := range changes {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		if hasAnyPrefix(path, opts.IgnorePrefixes) {
			continue
		}
		key, eligible := report.Resolve(path)
		if !eligible {
			continue
		}
		lines, present := report.File(key)
		if !present {
			logger.Warn("no coverage recorded for changed file %s", path)
		}

		var tally DiffTally
		for _, nr := range changes[path] {
			covered, instrumented := lines[nr]
			switch {
			case !instrumented:
				tally.Ignored++
			case covered:
				tally.Covered++
			default:
				tally.Uncovered++
				result.Uncovered = append(result.Uncovered, Line{File: path, Nr: nr})
			}
		}
		result.Files[path] = tally
		result.Tally.add(tally)
	}
	return result
}

func hasAnyPrefix(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Exact sums a report's per-line coverage into an overall tally.
func Exact(report *covreport.Report) Tally {
	var tally Tally
	for _, key := range report.Files() {
		lines, _ := report.File(key)
		for _, covered := range lines {
			tally.Total++
			if covered {
				tally.Covered++
			}
		}
	}
	return tally
}

// RequiredLines returns how many more eligible changed lines would
// need coverage to reach the target ratio.
func RequiredLines(tally DiffTally, target float64) int {
	needed := int(math.Ceil(target * float64(tally.Eligible())))
	if needed <= tally.Covered {
		return 0
	}
	return needed - tally.Covered
}

// FormatPercent renders a ratio as a percentage, rounded to four
// decimal places with trailing zeros trimmed.
func FormatPercent(ratio float64) string {
	pct := math.Round(ratio*100*10000) / 10000
	return strconv.FormatFloat(pct, 'f', -1, 64) + "%"
}
