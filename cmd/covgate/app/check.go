package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/covgate/covgate/internal/annotate"
	"github.com/covgate/covgate/internal/baseline"
	"github.com/covgate/covgate/internal/config"
	"github.com/covgate/covgate/internal/cover"
	"github.com/covgate/covgate/internal/covreport"
	"github.com/covgate/covgate/internal/exec"
	"github.com/covgate/covgate/internal/gitdiff"
	"github.com/covgate/covgate/internal/gitlab"
	"github.com/covgate/covgate/internal/logger"
	"github.com/covgate/covgate/internal/policy"
	"github.com/covgate/covgate/internal/render"
)

// NewCheckCommand creates the "check" subcommand.
func NewCheckCommand() *cobra.Command {
	var (
		reportPath   string
		format       string
		commit       string
		policyName   string
		baselinePct  float64
		baselineFile string
		record       bool
		targetBranch string
		reportOut    string
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run the full coverage gate for a merge request.",
		Long: `Run a gate policy end to end and exit accordingly.

This command:
  1. Computes the exact total coverage of the report
  2. Resolves the baseline: --baseline flag, then the recorded baseline
     file, then the GitLab coverage of the reference commit
  3. Resolves the reference commit: --commit, or the merge base with the
     target branch (looked up from the open merge request when a GitLab
     project is configured)
  4. Runs the selected policy and prints the verdict

Policies:
  exact-then-diff  Pass when total coverage holds the baseline; fall
                   back to changed-line coverage otherwise (default)
  diff-only        Gate on changed-line coverage alone

A --baseline value is treated as a bootstrap override: the run records
but never fails, so the gate can be introduced on a repository without
coverage history. Exit codes: 0 pass, 1 threshold not met, 2 tooling
error.

Examples:
  # Gate against the recorded baseline, annotating failures
  covgate check --report coverage.xml --format cobertura

  # First run on a fresh repository
  covgate check --report jacoco.xml --baseline 80 --record

  # Explicit reference commit and markdown artifact for the CI job
  covgate check --report jacoco.xml --commit abc123 --report-out reports/gate.md`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			// Config values as defaults, command line flags override
			if !cmd.Flags().Changed("policy") {
				policyName = cfg.Policy.Name
			}
			if !cmd.Flags().Changed("baseline-file") {
				baselineFile = cfg.BaselineFile
			}
			if !cmd.Flags().Changed("target-branch") {
				targetBranch = cfg.GitLab.TargetBranch
			}

			exact, err := exactTally(cfg, reportPath, format)
			if err != nil {
				return err
			}

			extractor := gitdiff.NewExtractor(exec.NewCommandExecutor(), ".")

			var glClient *gitlab.Client
			if cfg.GitLab.ProjectID != "" {
				glClient = gitlab.NewClient(cfg.GitLab.BaseURL, cfg.GitLab.ProjectID, cfg.GitLab.Token)
			}

			if commit == "" {
				if glClient != nil && !cmd.Flags().Changed("target-branch") {
					if branch, branchErr := extractor.CurrentBranch(); branchErr == nil {
						tb, mrErr := glClient.MergeRequestTargetBranch(branch)
						if mrErr != nil {
							logger.Warn("could not look up the merge request target branch: %v", mrErr)
						} else if tb != "" {
							targetBranch = tb
						}
					}
				}
				commit, err = extractor.MergeBase("origin", targetBranch)
				if err != nil {
					return err
				}
				logger.Info("gating against merge base %s of origin/%s", commit, targetBranch)
			}

			baselineRatio, bootstrap, store, err := resolveBaseline(cmd, cfg, glClient, commit, baselinePct, baselineFile)
			if err != nil {
				return err
			}

			// The diff is only computed when the policy asks for it.
			var report *covreport.Report
			var changes gitdiff.Changes
			diffFn := func() (*cover.DiffResult, error) {
				f, formatErr := resolveFormat(cfg, format)
				if formatErr != nil {
					return nil, formatErr
				}
				report, formatErr = readReport(cfg, f, reportPath)
				if formatErr != nil {
					return nil, formatErr
				}
				changes, formatErr = extractor.Changed(commit)
				if formatErr != nil {
					return nil, formatErr
				}
				return cover.Diff(report, changes, cover.DiffOptions{IgnorePrefixes: cfg.IgnorePrefixes}), nil
			}

			var verdict *policy.Verdict
			var runErr error
			switch policyName {
			case policy.PolicyExactThenDiff:
				driver := &policy.ExactThenDiff{
					Baseline:   baselineRatio,
					DiffTarget: cfg.Policy.DiffTarget / 100,
					Bootstrap:  bootstrap,
					Options: policy.Options{
						SanityMargin: cfg.Policy.SanityMargin / 100,
						NoRelax:      cfg.Policy.NoRelax,
					},
				}
				verdict, runErr = driver.Run(exact, diffFn)
			case policy.PolicyDiffOnly:
				target := cfg.Policy.DiffTarget / 100
				if target == 0 {
					target = baselineRatio
				}
				driver := &policy.DiffOnly{Target: target}
				verdict, runErr = driver.Run(diffFn)
			default:
				return fmt.Errorf("unknown policy %q", policyName)
			}
			if verdict == nil {
				// The diff itself failed, not the coverage.
				return runErr
			}

			fmt.Println(render.VerdictLine(verdict))
			if verdict.Diff != nil {
				if table := render.DiffTable(verdict.Diff); table != "" {
					fmt.Println(table)
				}
			}

			var listing string
			if verdict.Outcome == policy.OutcomeFail && verdict.Diff != nil && report != nil {
				listing = annotate.New(".").Listing(report, changes, verdict.Diff)
				if listing != "" {
					fmt.Println(listing)
				}
			}

			if reportOut != "" {
				if err := render.WriteMarkdown(reportOut, verdict, listing); err != nil {
					return err
				}
				logger.Info("wrote gate report to %s", reportOut)
			}

			if record && runErr == nil && verdict.Exact != nil {
				head, headErr := extractor.Head()
				if headErr != nil {
					logger.Warn("could not resolve HEAD for the baseline record: %v", headErr)
				}
				store.Update(verdict.Exact.Ratio(), head)
				if err := store.Save(); err != nil {
					return err
				}
				logger.Info("recorded baseline %s at %s",
					cover.FormatPercent(verdict.Exact.Ratio()), store.GetFilePath())
			}

			return runErr
		},
	}

	cmd.Flags().StringVar(&reportPath, "report", "", "Path to the coverage report file")
	cmd.Flags().StringVar(&format, "format", "", "Report format: jacoco, cobertura, goprofile or jacoco-html")
	cmd.Flags().StringVar(&commit, "commit", "", "Reference commit (default: merge base with the target branch)")
	cmd.Flags().StringVar(&policyName, "policy", policy.PolicyExactThenDiff, "Gate policy: exact-then-diff or diff-only")
	cmd.Flags().Float64Var(&baselinePct, "baseline", 0, "Baseline percentage override (bootstrap, never fails)")
	cmd.Flags().StringVar(&baselineFile, "baseline-file", "", "Path to the baseline record file")
	cmd.Flags().BoolVar(&record, "record", false, "Record the exact ratio as the new baseline on pass")
	cmd.Flags().StringVar(&targetBranch, "target-branch", "main", "Target branch for merge-base resolution")
	cmd.Flags().StringVar(&reportOut, "report-out", "", "Write a markdown gate report to this path")
	cmd.MarkFlagRequired("report")

	return cmd
}

// resolveBaseline picks the exact-coverage baseline for the gate:
// the --baseline flag, then the configured value, then the recorded
// store, then the GitLab coverage of the reference commit. The store is
// returned for --record regardless of where the baseline came from.
func resolveBaseline(cmd *cobra.Command, cfg *config.Config, glClient *gitlab.Client, commit string, baselinePct float64, baselineFile string) (float64, bool, *baseline.FileStore, error) {
	var store *baseline.FileStore
	if baselineFile != "" {
		store = baseline.NewFileStoreAt(baselineFile)
	} else {
		store = baseline.NewFileStore(".")
	}

	if cmd.Flags().Changed("baseline") {
		return baselinePct / 100, true, store, nil
	}
	if cfg.Policy.Baseline > 0 {
		return cfg.Policy.Baseline / 100, false, store, nil
	}

	if err := store.Load(); err != nil {
		return 0, false, nil, err
	}
	if rec, ok := store.Get(); ok {
		logger.Info("using baseline %s recorded at commit %s",
			cover.FormatPercent(rec.Ratio), rec.Commit)
		return rec.Ratio, false, store, nil
	}

	if glClient != nil {
		percent, err := glClient.WaitForCoverage(commit, gitlab.PollOptions{
			Stage:      cfg.GitLab.Stage,
			NameFilter: cfg.GitLab.NameFilter,
		})
		if err != nil {
			return 0, false, nil, err
		}
		logger.Info("reference commit %s has %.2f%% coverage", commit, percent)
		return percent / 100, false, store, nil
	}

	logger.Warn("no baseline available from flag, config, store or GitLab, bootstrapping the gate")
	return 0, true, store, nil
}
