package aggregator

import (
	"errors"
	"testing"
	"time"

	"github.com/greenops/greenops-advisor/pkg/models"
)

func sampleAt(ts time.Time, cpuUsed float64) models.UtilizationSample {
	return models.UtilizationSample{
		WorkloadID:   "w1",
		Timestamp:    ts,
		CPURequested: 1.0,
		CPUUsed:      cpuUsed,
		MemRequested: 1024,
		MemUsed:      512,
		CostUSD:      0.025,
		EnergyJoules: 3600,
	}
}

func TestSummarize(t *testing.T) {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	samples := []models.UtilizationSample{
		sampleAt(start.Add(1*time.Hour), 0.1),
		sampleAt(start.Add(2*time.Hour), 0.3),
		sampleAt(start.Add(3*time.Hour), 0.2),
		sampleAt(end.Add(time.Hour), 9.9), // outside window, ignored
	}

	summary, err := Summarize(samples, start, end)
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}

	if summary.SampleCount != 3 {
		t.Errorf("Expected 3 samples in window, got %d", summary.SampleCount)
	}
	if summary.AvgCPUUsed < 0.199 || summary.AvgCPUUsed > 0.201 {
		t.Errorf("Expected avg cpu used ~0.2, got %v", summary.AvgCPUUsed)
	}
	if summary.PeakCPUUsed != 0.3 {
		t.Errorf("Expected peak cpu 0.3, got %v", summary.PeakCPUUsed)
	}
	if summary.AvgCPURequested != 1.0 {
		t.Errorf("Expected avg cpu requested 1.0, got %v", summary.AvgCPURequested)
	}
	if summary.WorkloadID != "w1" {
		t.Errorf("Expected workload id w1, got %q", summary.WorkloadID)
	}
}

func TestSummarizeInsufficientData(t *testing.T) {
	start := time.Now()
	_, err := Summarize(nil, start, start.Add(time.Hour))
	if !errors.Is(err, ErrInsufficientData) {
		t.Errorf("Expected ErrInsufficientData for empty input, got %v", err)
	}

	// Samples exist but none fall inside the window.
	outside := []models.UtilizationSample{sampleAt(start.Add(-2*time.Hour), 0.5)}
	_, err = Summarize(outside, start, start.Add(time.Hour))
	if !errors.Is(err, ErrInsufficientData) {
		t.Errorf("Expected ErrInsufficientData for out-of-window samples, got %v", err)
	}
}

func TestUndefinedUtilization(t *testing.T) {
	s := &models.UtilizationSummary{AvgCPURequested: 0, AvgCPUUsed: 0.2}
	if _, ok := s.CPUUtilizationPct(); ok {
		t.Error("Utilization must be undefined when nothing is requested")
	}

	s = &models.UtilizationSummary{AvgCPURequested: 2, AvgCPUUsed: 0.5}
	pct, ok := s.CPUUtilizationPct()
	if !ok || pct != 25 {
		t.Errorf("Expected 25%% utilization, got %v (defined=%v)", pct, ok)
	}
}
