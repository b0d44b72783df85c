package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/veritas-claims/venue-cli/internal/model"
)

var moneyPrinter = message.NewPrinter(language.AmericanEnglish)

// formatMoney renders a dollar amount with thousands separators.
func formatMoney(amount float64) string {
	return moneyPrinter.Sprintf("$%.0f", amount)
}

// writeReportTable writes the ranked recommendations and summary to w.
func writeReportTable(out io.Writer, report *model.Report) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "COUNTY\tSTATE\tCURRENT\tRECOMMENDED\tIMPROVEMENT\tPCT\tCONFIDENCE\tFALLBACK")
	_, _ = fmt.Fprintln(w, "------\t-----\t-------\t-----------\t-----------\t---\t----------\t--------")

	for _, r := range report.Recommendations {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%.1f%%\t%s\t%s/%s\n",
			r.County,
			r.State,
			r.CurrentRating,
			r.RecommendedRating,
			formatMoney(r.DollarImprovement),
			r.PercentImprovement,
			r.Confidence,
			r.CurrentLevel,
			r.RecommendedLevel,
		)
	}
	if err := w.Flush(); err != nil {
		return eris.Wrap(err, "report: flush table")
	}

	s := report.Summary
	_, _ = fmt.Fprintf(out, "\nRegions analyzed:      %d\n", s.RegionsAnalyzed)
	_, _ = fmt.Fprintf(out, "Regions recommended:   %d\n", s.RegionsRecommended)
	if s.RegionsRecommended > 0 {
		_, _ = fmt.Fprintf(out, "Avg improvement:       %s\n", formatMoney(s.AvgDollarImprovement))
	}
	_, _ = fmt.Fprintf(out, "Window:                %s to %s\n",
		s.WindowStart.Format("2006-01-02"), s.WindowEnd.Format("2006-01-02"))
	if s.Partial {
		_, _ = fmt.Fprintln(out, "NOTE: report is partial; the deadline expired before every region was evaluated")
	}
	return nil
}

var reportColumns = []string{
	"county", "state",
	"current_rating", "current_mean_error", "current_sample", "current_fallback",
	"recommended_rating", "recommended_mean_error", "recommended_sample", "recommended_fallback",
	"dollar_improvement", "percent_improvement", "confidence",
}

func reportRow(r *model.Recommendation) []string {
	return []string{
		r.County,
		r.State,
		string(r.CurrentRating),
		fmt.Sprintf("%.2f", r.CurrentMeanError),
		fmt.Sprintf("%d", r.CurrentSampleSize),
		r.CurrentLevel.String(),
		string(r.RecommendedRating),
		fmt.Sprintf("%.2f", r.RecommendedMeanError),
		fmt.Sprintf("%d", r.RecommendedSampleSize),
		r.RecommendedLevel.String(),
		fmt.Sprintf("%.2f", r.DollarImprovement),
		fmt.Sprintf("%.2f", r.PercentImprovement),
		string(r.Confidence),
	}
}

// writeReportCSV writes the recommendations to w as CSV.
func writeReportCSV(w io.Writer, report *model.Report) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write(reportColumns); err != nil {
		return eris.Wrap(err, "report: write CSV header")
	}
	for i := range report.Recommendations {
		if err := cw.Write(reportRow(&report.Recommendations[i])); err != nil {
			return eris.Wrap(err, "report: write CSV row")
		}
	}
	return nil
}

// writeReportXLSX writes the recommendations and a summary sheet to path.
func writeReportXLSX(path string, report *model.Report) error {
	f := xlsx.NewFile()

	sheet, err := f.AddSheet("Recommendations")
	if err != nil {
		return eris.Wrap(err, "report: add xlsx sheet")
	}
	header := sheet.AddRow()
	for _, col := range reportColumns {
		header.AddCell().SetString(col)
	}
	for i := range report.Recommendations {
		row := sheet.AddRow()
		for _, v := range reportRow(&report.Recommendations[i]) {
			row.AddCell().SetString(v)
		}
	}

	summary, err := f.AddSheet("Summary")
	if err != nil {
		return eris.Wrap(err, "report: add xlsx summary sheet")
	}
	s := report.Summary
	addSummaryRow := func(label, value string) {
		row := summary.AddRow()
		row.AddCell().SetString(label)
		row.AddCell().SetString(value)
	}
	addSummaryRow("report_id", report.ID)
	addSummaryRow("regions_analyzed", fmt.Sprintf("%d", s.RegionsAnalyzed))
	addSummaryRow("regions_recommended", fmt.Sprintf("%d", s.RegionsRecommended))
	addSummaryRow("avg_dollar_improvement", fmt.Sprintf("%.2f", s.AvgDollarImprovement))
	addSummaryRow("window_start", s.WindowStart.Format("2006-01-02"))
	addSummaryRow("window_end", s.WindowEnd.Format("2006-01-02"))
	addSummaryRow("partial", fmt.Sprintf("%v", s.Partial))
	addSummaryRow("generated_at", s.GeneratedAt.Format("2006-01-02 15:04:05"))

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "report: save xlsx %s", path)
	}
	return nil
}
