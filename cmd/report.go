package main

import (
	"io"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/veritas-claims/venue-cli/internal/config"
)

var (
	reportFormat     string
	reportOutput     string
	reportThresholds string
	reportMinDollar  float64
	reportMinPercent float64
	reportWindow     int
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate venue rating change recommendations",
	Long:  "Rebuilds the statistics store from the analysis window, profiles every region with claims, and emits the ranked list of rating changes that reduce settlement prediction error.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		analysis, err := resolveAnalysis(cmd)
		if err != nil {
			return err
		}

		env, err := initEnv(ctx, analysis)
		if err != nil {
			return err
		}
		defer env.Close()

		report, err := env.buildReport(ctx, time.Now().UTC())
		if err != nil {
			return err
		}

		zap.L().Info("report generated",
			zap.String("report_id", report.ID),
			zap.Int("recommendations", len(report.Recommendations)),
		)

		if reportFormat == "xlsx" {
			if reportOutput == "" {
				return eris.New("report: --out is required for xlsx output")
			}
			return writeReportXLSX(reportOutput, report)
		}

		var w io.Writer = os.Stdout
		if reportOutput != "" {
			f, err := os.Create(reportOutput)
			if err != nil {
				return eris.Wrapf(err, "report: create output file %s", reportOutput)
			}
			defer f.Close() //nolint:errcheck
			w = f
		}

		switch reportFormat {
		case "table":
			return writeReportTable(w, report)
		case "csv":
			return writeReportCSV(w, report)
		default:
			return eris.Errorf("report: unsupported format %q", reportFormat)
		}
	},
}

// resolveAnalysis layers the threshold file and flag overrides over the base
// analysis config. Flags win over the file; the file wins over config.
func resolveAnalysis(cmd *cobra.Command) (config.AnalysisConfig, error) {
	analysis := cfg.Analysis

	if reportThresholds != "" {
		a, err := config.LoadAnalysisFile(reportThresholds, analysis)
		if err != nil {
			return analysis, err
		}
		analysis = a
	}

	if cmd.Flags().Changed("min-dollar") {
		analysis.MinDollarImprovement = reportMinDollar
	}
	if cmd.Flags().Changed("min-percent") {
		analysis.MinPercentImprovement = reportMinPercent
	}
	if cmd.Flags().Changed("window-months") {
		analysis.WindowMonths = reportWindow
	}

	return analysis, config.ValidateAnalysis(analysis)
}

func init() {
	reportCmd.Flags().StringVar(&reportFormat, "format", "table", "output format: table, csv, or xlsx")
	reportCmd.Flags().StringVar(&reportOutput, "out", "", "output file (default stdout; required for xlsx)")
	reportCmd.Flags().StringVar(&reportThresholds, "thresholds", "", "YAML file with analysis threshold overrides")
	reportCmd.Flags().Float64Var(&reportMinDollar, "min-dollar", 0, "minimum dollar improvement (overrides config)")
	reportCmd.Flags().Float64Var(&reportMinPercent, "min-percent", 0, "minimum percent improvement (overrides config)")
	reportCmd.Flags().IntVar(&reportWindow, "window-months", 0, "analysis window in months (overrides config)")
	rootCmd.AddCommand(reportCmd)
}
