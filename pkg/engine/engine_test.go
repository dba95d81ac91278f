package engine

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/greenops/greenops-advisor/pkg/cluster"
	"github.com/greenops/greenops-advisor/pkg/config"
	"github.com/greenops/greenops-advisor/pkg/datasource"
	"github.com/greenops/greenops-advisor/pkg/detector"
	"github.com/greenops/greenops-advisor/pkg/models"
	"github.com/greenops/greenops-advisor/pkg/storage"
)

type fakeWorkloads struct {
	workloads []cluster.DiscoveredWorkload
}

func (f *fakeWorkloads) ListWorkloads(ctx context.Context, namespace string) ([]cluster.DiscoveredWorkload, error) {
	return f.workloads, nil
}

// fakeSamples serves canned samples per workload name and can fail the
// first N calls with ErrUnavailable.
type fakeSamples struct {
	samples  map[string][]models.UtilizationSample
	failures int32
	calls    int32
}

func (f *fakeSamples) FetchSamples(ctx context.Context, w *models.Workload, start, end time.Time) ([]models.UtilizationSample, error) {
	call := atomic.AddInt32(&f.calls, 1)
	if call <= atomic.LoadInt32(&f.failures) {
		return nil, fmt.Errorf("%w: connection refused", datasource.ErrUnavailable)
	}

	out := make([]models.UtilizationSample, 0)
	for _, s := range f.samples[w.Name] {
		s.WorkloadID = w.ID
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeSamples) IsAvailable(ctx context.Context) bool { return true }
func (f *fakeSamples) Name() string                         { return "fake" }

func testConfig() *config.Config {
	cfg := config.NewConfig()
	cfg.Concurrency = 2
	cfg.MaxRetries = 2
	cfg.RetryDelay = time.Millisecond
	cfg.RunTimeout = 5 * time.Second
	cfg.WindowHours = 24
	return cfg
}

func discovered(name string) cluster.DiscoveredWorkload {
	return cluster.DiscoveredWorkload{
		Workload: models.Workload{
			ClusterID: "test",
			Namespace: "default",
			Kind:      "Deployment",
			Name:      name,
			Replicas:  1,
		},
	}
}

// idleSamples describes a workload at 5% cpu and ~6% memory of request.
func idleSamples(at time.Time) []models.UtilizationSample {
	var out []models.UtilizationSample
	for i := 0; i < 4; i++ {
		out = append(out, models.UtilizationSample{
			Timestamp:    at.Add(time.Duration(i) * time.Hour),
			CPURequested: 1.0,
			CPUUsed:      0.05,
			MemRequested: 1024 * 1024 * 1024,
			MemUsed:      64 * 1024 * 1024,
		})
	}
	return out
}

// busySamples describes a workload at ~90% utilization.
func busySamples(at time.Time) []models.UtilizationSample {
	var out []models.UtilizationSample
	for i := 0; i < 4; i++ {
		out = append(out, models.UtilizationSample{
			Timestamp:    at.Add(time.Duration(i) * time.Hour),
			CPURequested: 1.0,
			CPUUsed:      0.9,
			MemRequested: 1024 * 1024 * 1024,
			MemUsed:      900 * 1024 * 1024,
		})
	}
	return out
}

func TestRunDetectsAndPersistsOpportunities(t *testing.T) {
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	store := storage.NewMemoryStore()
	cfg := testConfig()

	samples := &fakeSamples{samples: map[string][]models.UtilizationSample{
		"idle-api":    idleSamples(now.Add(-12 * time.Hour)),
		"busy-worker": busySamples(now.Add(-12 * time.Hour)),
	}}

	e := New(
		&fakeWorkloads{workloads: []cluster.DiscoveredWorkload{
			discovered("idle-api"),
			discovered("busy-worker"),
		}},
		samples,
		detector.New(cfg),
		store,
		cfg,
	)
	e.now = func() time.Time { return now }

	report, err := e.Run(context.Background(), "default")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if report.Analyzed != 2 {
		t.Errorf("Expected 2 analyzed workloads, got %d", report.Analyzed)
	}
	if report.Opportunities != 1 {
		t.Fatalf("Expected 1 opportunity (idle workload only), got %d", report.Opportunities)
	}
	if report.TotalSavingsUSD <= 0 {
		t.Errorf("Expected positive projected savings, got %v", report.TotalSavingsUSD)
	}

	// The opportunity must be persisted as pending.
	pending, err := store.ListOpportunities(context.Background(), storage.ListFilter{Status: models.StatusPending})
	if err != nil {
		t.Fatalf("ListOpportunities failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("Expected 1 pending opportunity in store, got %d", len(pending))
	}
	if pending[0].SavingsUSD <= 0 {
		t.Errorf("Persisted opportunity must have positive savings, got %v", pending[0].SavingsUSD)
	}

	// Outcomes are sorted and complete.
	if len(report.Outcomes) != 2 {
		t.Fatalf("Expected 2 outcomes, got %d", len(report.Outcomes))
	}
	if report.Outcomes[0].Workload.Name != "busy-worker" {
		t.Errorf("Expected outcomes sorted by name, got %q first", report.Outcomes[0].Workload.Name)
	}
}

func TestRunRetriesTransientFailures(t *testing.T) {
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	store := storage.NewMemoryStore()
	cfg := testConfig()

	// First two calls fail; retries must absorb them.
	samples := &fakeSamples{
		samples:  map[string][]models.UtilizationSample{"idle-api": idleSamples(now.Add(-12 * time.Hour))},
		failures: 2,
	}

	e := New(
		&fakeWorkloads{workloads: []cluster.DiscoveredWorkload{discovered("idle-api")}},
		samples, detector.New(cfg), store, cfg,
	)
	e.now = func() time.Time { return now }

	report, err := e.Run(context.Background(), "default")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Failed != 0 {
		t.Errorf("Transient failures must be retried, got %d failed", report.Failed)
	}
	if report.Opportunities != 1 {
		t.Errorf("Expected 1 opportunity after retry, got %d", report.Opportunities)
	}
}

func TestRunMarksExhaustedSourceAsSkipped(t *testing.T) {
	store := storage.NewMemoryStore()
	cfg := testConfig()

	samples := &fakeSamples{failures: 100}

	e := New(
		&fakeWorkloads{workloads: []cluster.DiscoveredWorkload{discovered("idle-api")}},
		samples, detector.New(cfg), store, cfg,
	)

	report, err := e.Run(context.Background(), "default")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Skipped != 1 {
		t.Fatalf("Expected workload skipped when source stays down, got %+v", report)
	}
	if report.Outcomes[0].Reason != "metrics-unavailable" {
		t.Errorf("Expected metrics-unavailable reason, got %q", report.Outcomes[0].Reason)
	}
}

func TestRunSkipsEmptyWindows(t *testing.T) {
	store := storage.NewMemoryStore()
	cfg := testConfig()

	// Source answers but has no samples for the workload.
	samples := &fakeSamples{samples: map[string][]models.UtilizationSample{}}

	e := New(
		&fakeWorkloads{workloads: []cluster.DiscoveredWorkload{discovered("idle-api")}},
		samples, detector.New(cfg), store, cfg,
	)

	report, err := e.Run(context.Background(), "default")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Skipped != 1 || report.Outcomes[0].Reason != "insufficient-data" {
		t.Errorf("Expected insufficient-data skip, got %+v", report.Outcomes[0])
	}
}

type staticEnricher struct{ text string }

func (s staticEnricher) Enrich(ctx context.Context, opp *models.Opportunity, summary *models.UtilizationSummary) (string, error) {
	return s.text, nil
}

type brokenEnricher struct{}

func (brokenEnricher) Enrich(ctx context.Context, opp *models.Opportunity, summary *models.UtilizationSummary) (string, error) {
	return "", fmt.Errorf("model endpoint timed out")
}

func TestRunEnrichment(t *testing.T) {
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	run := func(t *testing.T, enricher Enricher) *models.Opportunity {
		t.Helper()
		store := storage.NewMemoryStore()
		cfg := testConfig()
		samples := &fakeSamples{samples: map[string][]models.UtilizationSample{
			"idle-api": idleSamples(now.Add(-12 * time.Hour)),
		}}

		e := New(
			&fakeWorkloads{workloads: []cluster.DiscoveredWorkload{discovered("idle-api")}},
			samples, detector.New(cfg), store, cfg,
		).WithEnricher(enricher)
		e.now = func() time.Time { return now }

		report, err := e.Run(context.Background(), "default")
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if report.Opportunities != 1 {
			t.Fatalf("Expected 1 opportunity, got %d", report.Opportunities)
		}
		for _, o := range report.Outcomes {
			if o.Opportunity != nil {
				return o.Opportunity
			}
		}
		t.Fatal("No opportunity in outcomes")
		return nil
	}

	t.Run("enriched explanation wins", func(t *testing.T) {
		opp := run(t, staticEnricher{text: "Consider scaling down during off-peak hours."})
		if opp.Explanation != "Consider scaling down during off-peak hours." {
			t.Errorf("Expected enriched explanation, got %q", opp.Explanation)
		}
	})

	t.Run("broken enricher keeps fallback", func(t *testing.T) {
		opp := run(t, brokenEnricher{})
		if opp.Explanation == "" {
			t.Error("Expected deterministic fallback explanation to survive")
		}
	})
}
