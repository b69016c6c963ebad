package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/covgate/covgate/internal/config"
	"github.com/covgate/covgate/internal/cover"
	"github.com/covgate/covgate/internal/covreport"
	"github.com/covgate/covgate/internal/policy"
	"github.com/covgate/covgate/internal/render"
)

// NewExactCommand creates the "exact" subcommand.
func NewExactCommand() *cobra.Command {
	var (
		reportPath string
		format     string
		minPercent float64
	)

	cmd := &cobra.Command{
		Use:   "exact",
		Short: "Compute the total coverage of a report.",
		Long: `Compute the exact total coverage ratio of a coverage report.

The report format comes from --format or the config file, never from
sniffing the file contents.

Supported formats:
  jacoco       JaCoCo XML (missed instructions and branches per line)
  cobertura    Cobertura-style XML (hit counts per line)
  goprofile    Go cover profile (go test -coverprofile)
  jacoco-html  JaCoCo index.html (report totals only)

Examples:
  # Print the total coverage of a JaCoCo aggregate report
  covgate exact --report target/site/jacoco-aggregate/jacoco.xml

  # Gate a pipeline on 80% total coverage
  covgate exact --report coverage.xml --format cobertura --min 80`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			tally, err := exactTally(cfg, reportPath, format)
			if err != nil {
				return err
			}

			fmt.Println(render.ExactSummary(tally))

			if cmd.Flags().Changed("min") {
				min := minPercent / 100
				if tally.Ratio() < min {
					return fmt.Errorf("%w: total coverage %s is below the minimum %s",
						policy.ErrThresholdNotMet, cover.FormatPercent(tally.Ratio()), cover.FormatPercent(min))
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&reportPath, "report", "", "Path to the coverage report file")
	cmd.Flags().StringVar(&format, "format", "", "Report format: jacoco, cobertura, goprofile or jacoco-html")
	cmd.Flags().Float64Var(&minPercent, "min", 0, "Fail when total coverage is below this percentage")
	cmd.MarkFlagRequired("report")

	return cmd
}

// exactTally computes the total coverage of a report in any supported
// format, including the totals-only jacoco-html one.
func exactTally(cfg *config.Config, reportPath, format string) (cover.Tally, error) {
	f, err := resolveFormat(cfg, format)
	if err != nil {
		return cover.Tally{}, err
	}

	if f == covreport.FormatJaCoCoHTML {
		reader := &covreport.JaCoCoHTMLReader{}
		covered, total, err := reader.ReadTotal(reportPath)
		if err != nil {
			return cover.Tally{}, err
		}
		return cover.Tally{Covered: covered, Total: total}, nil
	}

	report, err := readReport(cfg, f, reportPath)
	if err != nil {
		return cover.Tally{}, err
	}
	return cover.Exact(report), nil
}
