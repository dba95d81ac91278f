package reporter

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/greenops/greenops-advisor/pkg/engine"
)

// writeCSV renders one row per workload outcome.
func writeCSV(report *engine.RunReport, writer io.Writer) error {
	w := csv.NewWriter(writer)
	defer w.Flush()

	header := []string{
		"Namespace",
		"Workload",
		"Kind",
		"Status",
		"Reason",
		"Recommended CPU (cores)",
		"Recommended Memory (bytes)",
		"Monthly Savings ($)",
		"Monthly Carbon Reduction (g)",
		"Confidence",
		"Risk",
	}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, o := range report.Outcomes {
		row := []string{
			o.Workload.Namespace,
			o.Workload.Name,
			o.Workload.Kind,
			string(o.Status),
			o.Reason,
			"", "", "", "", "", "",
		}
		if opp := o.Opportunity; opp != nil {
			row[5] = fmt.Sprintf("%g", opp.RecommendedCPU)
			row[6] = fmt.Sprintf("%.0f", opp.RecommendedMem)
			row[7] = fmt.Sprintf("%.2f", opp.SavingsUSD)
			row[8] = fmt.Sprintf("%.0f", opp.CarbonReductionG)
			row[9] = fmt.Sprintf("%.2f", opp.Confidence)
			row[10] = string(opp.Risk)
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	w.Write([]string{})
	w.Write([]string{"SUMMARY"})
	w.Write([]string{"Analyzed", fmt.Sprintf("%d", report.Analyzed)})
	w.Write([]string{"Skipped", fmt.Sprintf("%d", report.Skipped)})
	w.Write([]string{"Failed", fmt.Sprintf("%d", report.Failed)})
	w.Write([]string{"Opportunities", fmt.Sprintf("%d", report.Opportunities)})
	w.Write([]string{"Total Monthly Savings", fmt.Sprintf("$%.2f", report.TotalSavingsUSD)})
	w.Write([]string{"Total Monthly Carbon Reduction", fmt.Sprintf("%.0f g CO2e", report.TotalCarbonReductionG)})

	return nil
}
