package detector

import (
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/greenops/greenops-advisor/pkg/config"
	"github.com/greenops/greenops-advisor/pkg/models"
)

func testConfig() *config.Config {
	return &config.Config{
		CostPerCPUHour:  0.02,
		CostPerGBHour:   0.005,
		CarbonIntensity: 475,
		SafetyBuffer:    1.25,
		AcceptMargin:    0.85,
		LowThreshold:    20,
		MinCPUCores:     0.025,
		MinMemoryBytes:  50 * 1024 * 1024,
		Risk:            config.RiskBoundaries{LowBelow: 10, MediumBelow: 15},
	}
}

func idleSummary(id string) *models.UtilizationSummary {
	return &models.UtilizationSummary{
		WorkloadID:      id,
		WindowStart:     time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		WindowEnd:       time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
		SampleCount:     24,
		AvgCPURequested: 1.0,
		AvgCPUUsed:      0.1,
		PeakCPUUsed:     0.1,
		AvgMemRequested: 2 * 1024 * 1024 * 1024,
		AvgMemUsed:      256 * 1024 * 1024,
		PeakMemUsed:     300 * 1024 * 1024,
		AvgEnergyJoules: 360000,
	}
}

func TestDetectUnderutilizedWorkload(t *testing.T) {
	d := New(testConfig())

	opp, verdict := d.Detect(idleSummary("w1"))
	if verdict != VerdictOpportunity {
		t.Fatalf("Expected opportunity, got %s", verdict)
	}

	// peak 0.1 * buffer 1.25 = 0.125 cores, well under 1.0 * 0.85
	if opp.RecommendedCPU != 0.125 {
		t.Errorf("Expected recommended cpu 0.125, got %v", opp.RecommendedCPU)
	}
	if opp.SavingsUSD <= 0 {
		t.Errorf("Savings must be positive, got %v", opp.SavingsUSD)
	}
	if opp.Status != models.StatusPending {
		t.Errorf("New opportunity must be pending, got %s", opp.Status)
	}
	if opp.Type != models.OpportunityRightsizing {
		t.Errorf("Expected rightsizing type, got %s", opp.Type)
	}
	if opp.Risk != models.RiskLow {
		t.Errorf("10%% utilization floor expected low risk, got %s", opp.Risk)
	}
	if opp.CarbonReductionG <= 0 {
		t.Errorf("Expected carbon reduction, got %v", opp.CarbonReductionG)
	}
}

func TestDetectHealthyWorkload(t *testing.T) {
	d := New(testConfig())

	s := idleSummary("w1")
	s.AvgCPUUsed = 0.9
	s.PeakCPUUsed = 0.95
	s.AvgMemUsed = 1.8 * 1024 * 1024 * 1024
	s.PeakMemUsed = 1.9 * 1024 * 1024 * 1024

	if opp, verdict := d.Detect(s); verdict != VerdictNoAction || opp != nil {
		t.Errorf("90%% utilization must yield no action, got %s (%+v)", verdict, opp)
	}
}

func TestDetectNoBaseline(t *testing.T) {
	d := New(testConfig())

	s := &models.UtilizationSummary{WorkloadID: "w1", SampleCount: 5}
	if opp, verdict := d.Detect(s); verdict != VerdictNoBaseline || opp != nil {
		t.Errorf("Expected skipped-no-baseline, got %s (%+v)", verdict, opp)
	}
}

func TestDetectUndefinedDimensionSkipped(t *testing.T) {
	d := New(testConfig())

	// Memory has no baseline; only cpu may drive the decision.
	s := idleSummary("w1")
	s.AvgMemRequested = 0
	s.AvgMemUsed = 0
	s.PeakMemUsed = 0

	opp, verdict := d.Detect(s)
	if verdict != VerdictOpportunity {
		t.Fatalf("Expected cpu-only opportunity, got %s", verdict)
	}
	if opp.RecommendedMem != 0 {
		t.Errorf("Undefined memory dimension must not produce a recommendation, got %v", opp.RecommendedMem)
	}
}

func TestDetectAcceptMarginGuards(t *testing.T) {
	d := New(testConfig())

	// Utilization is low but the possible reduction is too small:
	// peak 0.7 * 1.25 = 0.875, which is not under 1.0 * 0.85.
	s := idleSummary("w1")
	s.AvgCPUUsed = 0.15
	s.PeakCPUUsed = 0.7
	s.AvgMemUsed = 1.9 * 1024 * 1024 * 1024
	s.PeakMemUsed = 1.95 * 1024 * 1024 * 1024

	if _, verdict := d.Detect(s); verdict != VerdictNoAction {
		t.Errorf("Marginal reduction must yield no action, got %s", verdict)
	}
}

func TestDetectMinimumFloor(t *testing.T) {
	cfg := testConfig()
	d := New(cfg)

	s := idleSummary("w1")
	s.AvgCPUUsed = 0.001
	s.PeakCPUUsed = 0.001

	opp, verdict := d.Detect(s)
	if verdict != VerdictOpportunity {
		t.Fatalf("Expected opportunity, got %s", verdict)
	}
	if opp.RecommendedCPU != cfg.MinCPUCores {
		t.Errorf("Recommendation must not go below floor %v, got %v", cfg.MinCPUCores, opp.RecommendedCPU)
	}
}

func TestConfidenceMonotone(t *testing.T) {
	d := New(testConfig())

	prev := 1.0
	for util := 1.0; util < 20; util += 1.0 {
		c := d.confidence(util)
		if c > prev {
			t.Fatalf("Confidence increased from %v to %v at utilization %v", prev, c, util)
		}
		if c < 0 || c > 1 {
			t.Fatalf("Confidence out of range at %v: %v", util, c)
		}
		prev = c
	}
}

func TestRiskBoundaries(t *testing.T) {
	d := New(testConfig())

	cases := []struct {
		util float64
		want models.RiskLevel
	}{
		{5, models.RiskLow},
		{9.9, models.RiskLow},
		{10, models.RiskMedium},
		{14, models.RiskMedium},
		{18, models.RiskMedium},
	}
	for _, c := range cases {
		if got := d.riskLevel(c.util); got != c.want {
			t.Errorf("riskLevel(%v) = %s, want %s", c.util, got, c.want)
		}
	}
}

func TestDetectConcurrentMatchesSequential(t *testing.T) {
	d := New(testConfig())

	summaries := []*models.UtilizationSummary{idleSummary("w1"), idleSummary("w2")}
	summaries[1].AvgCPUUsed = 0.05
	summaries[1].PeakCPUUsed = 0.08

	sequential := make([]*models.Opportunity, len(summaries))
	for i, s := range summaries {
		sequential[i], _ = d.Detect(s)
	}

	concurrent := make([]*models.Opportunity, len(summaries))
	var wg sync.WaitGroup
	for i, s := range summaries {
		wg.Add(1)
		go func(i int, s *models.UtilizationSummary) {
			defer wg.Done()
			concurrent[i], _ = d.Detect(s)
		}(i, s)
	}
	wg.Wait()

	for i := range summaries {
		if !reflect.DeepEqual(sequential[i], concurrent[i]) {
			t.Errorf("Workload %d: concurrent result differs from sequential", i)
		}
	}
}
