// Package reporter renders analysis runs and pull-request estimates
// for humans: terminal text, markdown, and CSV.
package reporter

import (
	"fmt"
	"io"

	"github.com/greenops/greenops-advisor/pkg/engine"
	"github.com/greenops/greenops-advisor/pkg/quantity"
)

// ReportFormat represents the output format
type ReportFormat string

const (
	FormatText     ReportFormat = "text"
	FormatMarkdown ReportFormat = "markdown"
	FormatCSV      ReportFormat = "csv"
)

// Reporter renders run reports in a fixed format.
type Reporter struct {
	format ReportFormat
}

// New creates a new reporter
func New(format ReportFormat) *Reporter {
	return &Reporter{format: format}
}

// Write renders the run report to the writer.
func (r *Reporter) Write(report *engine.RunReport, w io.Writer) error {
	switch r.format {
	case FormatMarkdown:
		return writeMarkdown(report, w)
	case FormatCSV:
		return writeCSV(report, w)
	case FormatText, "":
		return writeText(report, w)
	default:
		return fmt.Errorf("unknown report format %q", r.format)
	}
}

func writeText(report *engine.RunReport, w io.Writer) error {
	fmt.Fprintf(w, "Analysis run on cluster %s\n", report.ClusterID)
	fmt.Fprintf(w, "Window: %s to %s\n\n",
		report.WindowStart.Format("2006-01-02 15:04"),
		report.WindowEnd.Format("2006-01-02 15:04"))

	for _, o := range report.Outcomes {
		name := fmt.Sprintf("%s/%s", o.Workload.Namespace, o.Workload.Name)
		switch {
		case o.Opportunity != nil:
			opp := o.Opportunity
			fmt.Fprintf(w, "  %-40s save $%.2f/month, %.0f g CO2e/month (cpu=%s mem=%s, %s risk, %.0f%% confidence)\n",
				name, opp.SavingsUSD, opp.CarbonReductionG,
				quantity.FormatCPU(opp.RecommendedCPU), quantity.FormatMemory(opp.RecommendedMem),
				opp.Risk, opp.Confidence*100)
		case o.Status == engine.OutcomeSkipped:
			fmt.Fprintf(w, "  %-40s skipped (%s)\n", name, o.Reason)
		case o.Status == engine.OutcomeFailed:
			fmt.Fprintf(w, "  %-40s FAILED: %s\n", name, o.Reason)
		default:
			fmt.Fprintf(w, "  %-40s ok\n", name)
		}
	}

	fmt.Fprintf(w, "\n%d analyzed, %d skipped, %d failed\n", report.Analyzed, report.Skipped, report.Failed)
	fmt.Fprintf(w, "%d opportunities, $%.2f/month projected savings, %.0f g CO2e/month reduction\n",
		report.Opportunities, report.TotalSavingsUSD, report.TotalCarbonReductionG)
	return nil
}

func writeMarkdown(report *engine.RunReport, w io.Writer) error {
	fmt.Fprintf(w, "## Opportunity analysis: %s\n\n", report.ClusterID)
	fmt.Fprintf(w, "Window: %s to %s\n\n",
		report.WindowStart.Format("2006-01-02 15:04"),
		report.WindowEnd.Format("2006-01-02 15:04"))

	fmt.Fprintln(w, "| Workload | Status | Recommended | Savings/month | Carbon/month | Risk |")
	fmt.Fprintln(w, "|----------|--------|-------------|---------------|--------------|------|")
	for _, o := range report.Outcomes {
		name := fmt.Sprintf("%s/%s", o.Workload.Namespace, o.Workload.Name)
		if o.Opportunity != nil {
			opp := o.Opportunity
			fmt.Fprintf(w, "| %s | opportunity | cpu=%s mem=%s | $%.2f | %.0f g CO2e | %s |\n",
				name,
				quantity.FormatCPU(opp.RecommendedCPU), quantity.FormatMemory(opp.RecommendedMem),
				opp.SavingsUSD, opp.CarbonReductionG, opp.Risk)
			continue
		}
		status := string(o.Status)
		if o.Reason != "" {
			status = fmt.Sprintf("%s (%s)", o.Status, o.Reason)
		}
		fmt.Fprintf(w, "| %s | %s | - | - | - | - |\n", name, status)
	}

	fmt.Fprintf(w, "\n**Total: $%.2f/month, %.0f g CO2e/month across %d opportunities.**\n",
		report.TotalSavingsUSD, report.TotalCarbonReductionG, report.Opportunities)
	return nil
}
