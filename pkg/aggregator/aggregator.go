// Package aggregator reduces windows of utilization samples into
// per-workload summaries for the opportunity detector.
package aggregator

import (
	"errors"
	"time"

	"github.com/greenops/greenops-advisor/pkg/models"
)

// ErrInsufficientData signals that a window held no samples. The
// workload is skipped for the run; a zero-value summary is never
// produced in its place.
var ErrInsufficientData = errors.New("insufficient data")

// Summarize reduces the samples falling inside [start, end] to window
// means plus observed peaks. Samples outside the window are ignored.
func Summarize(samples []models.UtilizationSample, start, end time.Time) (*models.UtilizationSummary, error) {
	summary := &models.UtilizationSummary{
		WindowStart: start,
		WindowEnd:   end,
	}

	for _, s := range samples {
		if s.Timestamp.Before(start) || s.Timestamp.After(end) {
			continue
		}

		if summary.SampleCount == 0 {
			summary.WorkloadID = s.WorkloadID
		}
		summary.SampleCount++

		summary.AvgCPURequested += s.CPURequested
		summary.AvgCPUUsed += s.CPUUsed
		summary.AvgMemRequested += s.MemRequested
		summary.AvgMemUsed += s.MemUsed
		summary.AvgCostUSD += s.CostUSD
		summary.AvgEnergyJoules += s.EnergyJoules

		if s.CPUUsed > summary.PeakCPUUsed {
			summary.PeakCPUUsed = s.CPUUsed
		}
		if s.MemUsed > summary.PeakMemUsed {
			summary.PeakMemUsed = s.MemUsed
		}
	}

	if summary.SampleCount == 0 {
		return nil, ErrInsufficientData
	}

	n := float64(summary.SampleCount)
	summary.AvgCPURequested /= n
	summary.AvgCPUUsed /= n
	summary.AvgMemRequested /= n
	summary.AvgMemUsed /= n
	summary.AvgCostUSD /= n
	summary.AvgEnergyJoules /= n

	return summary, nil
}
