package reporter

import (
	"fmt"
	"strings"

	"github.com/greenops/greenops-advisor/pkg/models"
	"github.com/greenops/greenops-advisor/pkg/quantity"
)

// RenderPRComment formats a manifest diff estimate as a markdown
// comment. Output is a pure function of the delta: posting the same
// estimate twice produces byte-identical comments.
func RenderPRComment(delta *models.PRDelta) string {
	var b strings.Builder

	b.WriteString("## Cost and carbon estimate\n\n")

	if len(delta.Containers) == 0 {
		b.WriteString("No container resource changes detected in this pull request.\n")
		return b.String()
	}

	b.WriteString("| Workload | Container | Change | CPU | Memory | Cost/month | Carbon/month |\n")
	b.WriteString("|----------|-----------|--------|-----|--------|------------|--------------|\n")

	for _, cd := range delta.Containers {
		change := "modified"
		switch {
		case cd.Added:
			change = "added"
		case cd.Removed:
			change = "removed"
		}

		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s | %s |\n",
			cd.WorkloadName, cd.ContainerName, change,
			cpuChange(cd), memChange(cd),
			signedUSD(cd.DeltaCostUSD), signedCarbon(cd.DeltaCarbonG))
	}

	fmt.Fprintf(&b, "\n**Net impact: %s/month, %s CO2e/month.**\n",
		signedUSD(delta.TotalDeltaCostUSD), signedCarbon(delta.TotalDeltaCarbonG))

	if delta.TotalDeltaCostUSD < 0 {
		b.WriteString("\nThis change reduces the projected footprint.\n")
	} else if delta.TotalDeltaCostUSD > 0 {
		b.WriteString("\nThis change increases the projected footprint.\n")
	}

	return b.String()
}

func cpuChange(cd models.ContainerDelta) string {
	if cd.BeforeCPUCores == cd.AfterCPUCores {
		return "-"
	}
	return fmt.Sprintf("%s → %s", quantity.FormatCPU(cd.BeforeCPUCores), quantity.FormatCPU(cd.AfterCPUCores))
}

func memChange(cd models.ContainerDelta) string {
	if cd.BeforeMemBytes == cd.AfterMemBytes {
		return "-"
	}
	return fmt.Sprintf("%s → %s", quantity.FormatMemory(cd.BeforeMemBytes), quantity.FormatMemory(cd.AfterMemBytes))
}

func signedUSD(v float64) string {
	if v < 0 {
		return fmt.Sprintf("-$%.2f", -v)
	}
	return fmt.Sprintf("+$%.2f", v)
}

func signedCarbon(v float64) string {
	return fmt.Sprintf("%+.0f g", v)
}
