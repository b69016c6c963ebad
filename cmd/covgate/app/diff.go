package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/covgate/covgate/internal/annotate"
	"github.com/covgate/covgate/internal/cover"
	"github.com/covgate/covgate/internal/exec"
	"github.com/covgate/covgate/internal/gitdiff"
	"github.com/covgate/covgate/internal/policy"
	"github.com/covgate/covgate/internal/render"
)

// NewDiffCommand creates the "diff" subcommand.
func NewDiffCommand() *cobra.Command {
	var (
		reportPath    string
		format        string
		commit        string
		targetPercent float64
		showListing   bool
		contextLines  int
	)

	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Compute coverage of the lines changed since a commit.",
		Long: `Compute coverage restricted to the lines changed between the given
commit and HEAD.

This command:
  1. Parses the coverage report
  2. Runs git diff -U0 <commit> HEAD and collects the changed lines
  3. Partitions changed lines into covered, uncovered and ignored
     (changed but not instrumented by the report)
  4. Prints the ratio and a per-file breakdown

Ignored lines count in neither the numerator nor the denominator. When
no changed line is instrumented at all the ratio is 100%.

Examples:
  # Diff coverage of the current branch against the merge base
  covgate diff --report coverage.xml --format cobertura --commit $(git merge-base HEAD origin/main)

  # Fail below 90% and print the uncovered lines with context
  covgate diff --report jacoco.xml --commit abc123 --target 90 --annotate`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			f, err := resolveFormat(cfg, format)
			if err != nil {
				return err
			}
			report, err := readReport(cfg, f, reportPath)
			if err != nil {
				return err
			}

			extractor := gitdiff.NewExtractor(exec.NewCommandExecutor(), ".")
			changes, err := extractor.Changed(commit)
			if err != nil {
				return err
			}

			result := cover.Diff(report, changes, cover.DiffOptions{IgnorePrefixes: cfg.IgnorePrefixes})
			fmt.Println(render.DiffSummary(result.Tally))
			if table := render.DiffTable(result); table != "" {
				fmt.Println(table)
			}

			if showListing && len(result.Uncovered) > 0 {
				annotator := annotate.New(".")
				if cmd.Flags().Changed("context") {
					annotator.Context = contextLines
				}
				if listing := annotator.Listing(report, changes, result); listing != "" {
					fmt.Println(listing)
				}
			}

			if cmd.Flags().Changed("target") {
				driver := &policy.DiffOnly{Target: targetPercent / 100}
				verdict, err := driver.Run(func() (*cover.DiffResult, error) { return result, nil })
				if verdict != nil {
					fmt.Println(render.VerdictLine(verdict))
				}
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&reportPath, "report", "", "Path to the coverage report file")
	cmd.Flags().StringVar(&format, "format", "", "Report format: jacoco, cobertura or goprofile")
	cmd.Flags().StringVar(&commit, "commit", "", "Commit to diff HEAD against (e.g. the merge base)")
	cmd.Flags().Float64Var(&targetPercent, "target", 0, "Fail when diff coverage is below this percentage")
	cmd.Flags().BoolVar(&showListing, "annotate", false, "Print uncovered changed lines with surrounding source")
	cmd.Flags().IntVar(&contextLines, "context", annotate.DefaultContext, "Context lines around each uncovered line")
	cmd.MarkFlagRequired("report")
	cmd.MarkFlagRequired("commit")

	return cmd
}
