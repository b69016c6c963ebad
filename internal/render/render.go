// Package render turns tallies and verdicts into terminal output and
// markdown artifacts.
package render

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/covgate/covgate/internal/cover"
	"github.com/covgate/covgate/internal/policy"
)

var (
	passColor = color.New(color.FgGreen, color.Bold)
	failColor = color.New(color.FgRed, color.Bold)
)

// ExactSummary renders the overall tally as a single line.
func ExactSummary(tally cover.Tally) string {
	return fmt.Sprintf("overall coverage %s (%s of %s covered)",
		cover.FormatPercent(tally.Ratio()),
		humanize.Comma(int64(tally.Covered)),
		humanize.Comma(int64(tally.Total)))
}

// DiffSummary renders the changed-line tally as a single line.
func DiffSummary(tally cover.DiffTally) string {
	return fmt.Sprintf("diff coverage %s (%s covered, %s uncovered, %s ignored)",
		cover.FormatPercent(tally.Ratio()),
		humanize.Comma(int64(tally.Covered)),
		humanize.Comma(int64(tally.Uncovered)),
		humanize.Comma(int64(tally.Ignored)))
}

// DiffTable renders the per-file breakdown of a diff result.
func DiffTable(result *cover.DiffResult) string {
	if len(result.Files) == 0 {
		return ""
	}
	paths := make([]string, 0, len(result.Files))
	for path := range result.Files {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"File", "Covered", "Uncovered", "Ignored", "Coverage"})
	for _, path := range paths {
		tally := result.Files[path]
		coverage := "-"
		if tally.Eligible() > 0 {
			coverage = cover.FormatPercent(tally.Ratio())
		}
		tbl.AppendRow(table.Row{path, tally.Covered, tally.Uncovered, tally.Ignored, coverage})
	}
	tbl.AppendFooter(table.Row{"Total",
		result.Tally.Covered, result.Tally.Uncovered, result.Tally.Ignored,
		cover.FormatPercent(result.Tally.Ratio())})
	return tbl.Render()
}

// VerdictLine renders the one-line outcome of a policy run.
func VerdictLine(v *policy.Verdict) string {
	label := passColor.Sprint(string(policy.OutcomePass))
	if v.Outcome == policy.OutcomeFail {
		label = failColor.Sprint(string(policy.OutcomeFail))
	}
	return fmt.Sprintf("%s: %s", label, reasonText(v))
}

func reasonText(v *policy.Verdict) string {
	switch v.Reason {
	case policy.ReasonExactAboveBaseline:
		return fmt.Sprintf("overall coverage %s meets the baseline %s",
			cover.FormatPercent(v.Exact.Ratio()), cover.FormatPercent(v.Baseline))
	case policy.ReasonBootstrap:
		return fmt.Sprintf("overall coverage %s recorded against bootstrap baseline %s",
			cover.FormatPercent(v.Exact.Ratio()), cover.FormatPercent(v.Baseline))
	case policy.ReasonDiffAboveTarget:
		return fmt.Sprintf("diff coverage %s meets the target %s",
			cover.FormatPercent(v.Diff.Tally.Ratio()), cover.FormatPercent(v.DiffTarget))
	case policy.ReasonDiffBelowTarget:
		return fmt.Sprintf("diff coverage %s is below the target %s, cover at least %d more %s",
			cover.FormatPercent(v.Diff.Tally.Ratio()), cover.FormatPercent(v.DiffTarget),
			v.Required, pluralLines(v.Required))
	case policy.ReasonExactDroppedTooFar:
		return fmt.Sprintf("overall coverage %s dropped %s below the baseline although the diff passed, check whether the test pipelines ran properly",
			cover.FormatPercent(v.Exact.Ratio()), cover.FormatPercent(v.Baseline-v.Exact.Ratio()))
	}
	return string(v.Outcome)
}

func pluralLines(n int) string {
	if n == 1 {
		return "line"
	}
	return "lines"
}

var ansiRe = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// StripColors removes ANSI escape sequences, for output that lands in
// files rather than terminals.
func StripColors(s string) string {
	return ansiRe.ReplaceAllString(s, "")
}

// Markdown renders a verdict, its tallies and the uncovered listing as
// a markdown document.
func Markdown(v *policy.Verdict, listing string) string {
	var content string
	content += fmt.Sprintf("# Coverage Gate: %s\n\n", v.Outcome)
	content += fmt.Sprintf("**Policy:** %s\n\n", v.Policy)
	content += fmt.Sprintf("**Verdict:** %s\n\n", StripColors(reasonText(v)))

	if v.Exact != nil {
		content += fmt.Sprintf("**Overall:** %s\n\n", ExactSummary(*v.Exact))
		content += fmt.Sprintf("**Baseline:** %s\n\n", cover.FormatPercent(v.Baseline))
	}
	if v.Diff != nil {
		content += fmt.Sprintf("**Changed lines:** %s against target %s\n\n",
			DiffSummary(v.Diff.Tally), cover.FormatPercent(v.DiffTarget))

		if len(v.Diff.Files) > 0 {
			content += "| File | Covered | Uncovered | Ignored |\n"
			content += "|---|---|---|---|\n"
			paths := make([]string, 0, len(v.Diff.Files))
			for path := range v.Diff.Files {
				paths = append(paths, path)
			}
			sort.Strings(paths)
			for _, path := range paths {
				tally := v.Diff.Files[path]
				content += fmt.Sprintf("| %s | %d | %d | %d |\n", path, tally.Covered, tally.Uncovered, tally.Ignored)
			}
			content += "\n"
		}
	}
	if listing != "" {
		content += "## Uncovered changed lines\n\n"
		content += "```\n" + strings.TrimRight(StripColors(listing), "\n") + "\n```\n"
	}
	return content
}

// WriteMarkdown writes the markdown artifact to the given path,
// creating parent directories as needed.
func WriteMarkdown(path string, v *policy.Verdict, listing string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(Markdown(v, listing)), 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
