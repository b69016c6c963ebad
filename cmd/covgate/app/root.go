package app

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/covgate/covgate/internal/config"
	"github.com/covgate/covgate/internal/covreport"
	"github.com/covgate/covgate/internal/logger"
)

var (
	cfgFile  string
	logLevel string
	noColor  bool
)

// NewCovgateCommand creates the root command for the covgate tool.
func NewCovgateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "covgate",
		Short: "A coverage gate for merge requests.",
		Long: `Covgate reads coverage reports (JaCoCo XML, Cobertura-style XML, Go
cover profiles), measures total and changed-line coverage and fails
merge requests that fall below their thresholds.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.SetLevel(logLevel)
			if noColor {
				color.NoColor = true
				logger.SetColorEnable(false)
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to the config file (default covgate.yaml in . or configs/)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	cmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	cmd.AddCommand(NewExactCommand())
	cmd.AddCommand(NewDiffCommand())
	cmd.AddCommand(NewCheckCommand())

	return cmd
}

// loadConfig reads the configuration honoring the --config flag.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// resolveFormat picks the report format from the flag, falling back to
// the config file. The format is never sniffed from file contents.
func resolveFormat(cfg *config.Config, flagValue string) (covreport.Format, error) {
	name := flagValue
	if name == "" {
		name = cfg.Format
	}
	return covreport.ParseFormat(name)
}

// readReport parses a per-line coverage report in the given format.
func readReport(cfg *config.Config, format covreport.Format, path string) (*covreport.Report, error) {
	reader, err := covreport.ReaderFor(format, covreport.Options{JavaPackageRoots: cfg.PackageRoots})
	if err != nil {
		return nil, err
	}
	return reader.Read(path)
}
