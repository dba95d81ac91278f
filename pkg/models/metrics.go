package models

import "time"

// UtilizationSample is a single observation produced by the external
// metrics collector. Samples are immutable once written.
type UtilizationSample struct {
	WorkloadID string
	Timestamp  time.Time

	// CPU in cores
	CPURequested float64
	CPUUsed      float64

	// Memory in bytes
	MemRequested float64
	MemUsed      float64

	// Hourly cost and cumulative energy at sample time
	CostUSD      float64
	EnergyJoules float64
}

// UtilizationSummary reduces a window of samples to per-workload means
// plus observed peaks. SampleCount is always >= 1: the aggregator never
// produces a zero-sample summary.
type UtilizationSummary struct {
	WorkloadID  string
	WindowStart time.Time
	WindowEnd   time.Time
	SampleCount int

	AvgCPURequested float64
	AvgCPUUsed      float64
	PeakCPUUsed     float64

	AvgMemRequested float64
	AvgMemUsed      float64
	PeakMemUsed     float64

	AvgCostUSD      float64
	AvgEnergyJoules float64
}

// CPUUtilizationPct returns observed-over-requested CPU as a percentage.
// The second return is false when requested is zero, in which case the
// utilization is undefined and callers must skip the dimension rather
// than treat it as 0 or 100.
func (s *UtilizationSummary) CPUUtilizationPct() (float64, bool) {
	if s.AvgCPURequested <= 0 {
		return 0, false
	}
	return s.AvgCPUUsed / s.AvgCPURequested * 100, true
}

// MemUtilizationPct returns observed-over-requested memory as a
// percentage, with the same undefined semantics as CPUUtilizationPct.
func (s *UtilizationSummary) MemUtilizationPct() (float64, bool) {
	if s.AvgMemRequested <= 0 {
		return 0, false
	}
	return s.AvgMemUsed / s.AvgMemRequested * 100, true
}
