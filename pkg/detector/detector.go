// Package detector turns utilization summaries into scored optimization
// opportunities. Evaluation is per workload with no shared mutable
// state, so workloads can be analyzed concurrently.
package detector

import (
	"fmt"
	"math"

	"github.com/greenops/greenops-advisor/pkg/config"
	"github.com/greenops/greenops-advisor/pkg/models"
	"github.com/greenops/greenops-advisor/pkg/pricing"
	"github.com/greenops/greenops-advisor/pkg/quantity"
)

// Verdict is the per-workload outcome of a detection pass.
type Verdict string

const (
	// VerdictOpportunity means a rightsizing opportunity was emitted.
	VerdictOpportunity Verdict = "opportunity"
	// VerdictNoAction means the workload is adequately utilized or the
	// possible reduction is too small to matter.
	VerdictNoAction Verdict = "no-action"
	// VerdictNoBaseline means both dimensions lack a requested baseline;
	// the workload is skipped, which is not an error.
	VerdictNoBaseline Verdict = "skipped-no-baseline"
)

// Detector applies the rightsizing policy to workload summaries.
type Detector struct {
	safetyBuffer   float64
	acceptMargin   float64
	lowThreshold   float64
	minCPUCores    float64
	minMemoryBytes float64
	risk           config.RiskBoundaries
	rates          pricing.Rates
}

// New builds a detector from validated configuration.
func New(cfg *config.Config) *Detector {
	return &Detector{
		safetyBuffer:   cfg.SafetyBuffer,
		acceptMargin:   cfg.AcceptMargin,
		lowThreshold:   cfg.LowThreshold,
		minCPUCores:    cfg.MinCPUCores,
		minMemoryBytes: cfg.MinMemoryBytes,
		risk:           cfg.Risk,
		rates:          cfg.Rates(),
	}
}

// Detect evaluates one workload summary. A dimension whose requested
// baseline is zero has undefined utilization and is skipped entirely:
// it is never treated as fully idle or fully utilized, and it
// contributes nothing to cost or confidence math.
func (d *Detector) Detect(summary *models.UtilizationSummary) (*models.Opportunity, Verdict) {
	cpuPct, cpuDefined := summary.CPUUtilizationPct()
	memPct, memDefined := summary.MemUtilizationPct()

	if !cpuDefined && !memDefined {
		return nil, VerdictNoBaseline
	}

	minUtil := math.Inf(1)
	if cpuDefined {
		minUtil = cpuPct
	}
	if memDefined && memPct < minUtil {
		minUtil = memPct
	}

	if minUtil >= d.lowThreshold {
		return nil, VerdictNoAction
	}

	// Recommended capacity per dimension: a safety buffer over the
	// observed peak, never below the configured floor.
	newCPU := summary.AvgCPURequested
	cpuAccepted := false
	if cpuDefined {
		recommended := math.Max(summary.PeakCPUUsed*d.safetyBuffer, d.minCPUCores)
		if recommended < summary.AvgCPURequested {
			newCPU = recommended
			cpuAccepted = recommended < summary.AvgCPURequested*d.acceptMargin
		}
	}

	newMem := summary.AvgMemRequested
	memAccepted := false
	if memDefined {
		recommended := math.Max(summary.PeakMemUsed*d.safetyBuffer, d.minMemoryBytes)
		if recommended < summary.AvgMemRequested {
			newMem = recommended
			memAccepted = recommended < summary.AvgMemRequested*d.acceptMargin
		}
	}

	// The reduction must clear the accept margin on at least one
	// dimension; anything smaller is churn, not an opportunity.
	if !cpuAccepted && !memAccepted {
		return nil, VerdictNoAction
	}

	// Cost is projected per dimension with that dimension's own unit
	// rate, then summed. A single scalar ratio across both dimensions
	// would misprice the change.
	currentCost := d.rates.MonthlyCost(summary.AvgCPURequested, summary.AvgMemRequested)
	projectedCost := d.rates.MonthlyCost(newCPU, newMem)
	savings := currentCost - projectedCost
	if savings <= 0 {
		return nil, VerdictNoAction
	}

	// Carbon scales with the cpu-delta ratio only. Memory and node
	// baseline power are not modeled; this is a documented linear
	// approximation, not a power model.
	cpuRatio := 1.0
	if summary.AvgCPURequested > 0 {
		cpuRatio = newCPU / summary.AvgCPURequested
	}
	currentCarbon := d.rates.CarbonFromJoules(summary.AvgEnergyJoules) * d.rates.HoursPerMonth
	projectedCarbon := currentCarbon * cpuRatio

	opp := &models.Opportunity{
		WorkloadID:  summary.WorkloadID,
		Type:        models.OpportunityRightsizing,
		Status:      models.StatusPending,
		WindowStart: summary.WindowStart,
		WindowEnd:   summary.WindowEnd,

		CurrentCostUSD:   currentCost,
		ProjectedCostUSD: projectedCost,
		SavingsUSD:       savings,

		CurrentCarbonG:   currentCarbon,
		ProjectedCarbonG: projectedCarbon,
		CarbonReductionG: currentCarbon - projectedCarbon,

		RecommendedCPU: newCPU,
		RecommendedMem: newMem,

		Confidence:  d.confidence(minUtil),
		Risk:        d.riskLevel(minUtil),
		Explanation: d.explain(cpuPct, cpuDefined, memPct, memDefined, newCPU, newMem, savings),
	}

	return opp, VerdictOpportunity
}

// confidence decreases linearly from 0.95 toward 0.55 as the minimum
// utilization approaches the detection threshold. Deterministic in the
// utilization alone.
func (d *Detector) confidence(minUtil float64) float64 {
	c := 0.95 - 0.4*(minUtil/d.lowThreshold)
	return math.Max(0, math.Min(1, c))
}

func (d *Detector) riskLevel(minUtil float64) models.RiskLevel {
	switch {
	case minUtil < d.risk.LowBelow:
		return models.RiskLow
	case minUtil < d.risk.MediumBelow:
		return models.RiskMedium
	default:
		return models.RiskMedium
	}
}

// explain builds the deterministic explanation string. An enrichment
// stage may replace it with generated prose, but this string is always
// available as the fallback.
func (d *Detector) explain(cpuPct float64, cpuDefined bool, memPct float64, memDefined bool, newCPU, newMem, savings float64) string {
	cpu := "n/a"
	if cpuDefined {
		cpu = fmt.Sprintf("%.1f%%", cpuPct)
	}
	mem := "n/a"
	if memDefined {
		mem = fmt.Sprintf("%.1f%%", memPct)
	}
	return fmt.Sprintf(
		"Workload is underutilized (CPU: %s, Memory: %s). Rightsizing to cpu=%s, memory=%s saves $%.2f/month.",
		cpu, mem, quantity.FormatCPU(newCPU), quantity.FormatMemory(newMem), savings)
}
