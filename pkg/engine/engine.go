// Package engine orchestrates an analysis run: discover workloads,
// fetch their utilization, detect opportunities, persist results.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"k8s.io/klog/v2"

	"github.com/greenops/greenops-advisor/pkg/aggregator"
	"github.com/greenops/greenops-advisor/pkg/cluster"
	"github.com/greenops/greenops-advisor/pkg/config"
	"github.com/greenops/greenops-advisor/pkg/datasource"
	"github.com/greenops/greenops-advisor/pkg/detector"
	"github.com/greenops/greenops-advisor/pkg/models"
	"github.com/greenops/greenops-advisor/pkg/observability"
	"github.com/greenops/greenops-advisor/pkg/storage"
)

// WorkloadSource lists the workloads a run covers. cluster.Client is
// the production implementation.
type WorkloadSource interface {
	ListWorkloads(ctx context.Context, namespace string) ([]cluster.DiscoveredWorkload, error)
}

// Enricher optionally rewrites an opportunity's explanation. Failure
// is never fatal: the detector's deterministic text stays in place.
type Enricher interface {
	Enrich(ctx context.Context, opp *models.Opportunity, summary *models.UtilizationSummary) (string, error)
}

// OutcomeStatus classifies what happened to one workload in a run.
type OutcomeStatus string

const (
	OutcomeAnalyzed OutcomeStatus = "analyzed"
	OutcomeSkipped  OutcomeStatus = "skipped"
	OutcomeFailed   OutcomeStatus = "failed"
)

// Outcome is the per-workload result of a run. A skipped workload
// always carries a reason; it is not an error.
type Outcome struct {
	Workload    models.Workload
	Status      OutcomeStatus
	Reason      string
	Opportunity *models.Opportunity
}

// RunReport summarizes one analysis run.
type RunReport struct {
	ClusterID   string
	StartedAt   time.Time
	FinishedAt  time.Time
	WindowStart time.Time
	WindowEnd   time.Time

	Outcomes []Outcome

	Analyzed      int
	Skipped       int
	Failed        int
	Opportunities int

	TotalSavingsUSD       float64
	TotalCarbonReductionG float64
}

// Engine runs the analysis pipeline over a set of workloads with
// bounded concurrency.
type Engine struct {
	source   WorkloadSource
	samples  datasource.SampleSource
	detector *detector.Detector
	store    storage.Store
	enricher Enricher
	metrics  *observability.Metrics
	cfg      *config.Config

	// now is swappable for tests
	now func() time.Time
}

func New(source WorkloadSource, samples datasource.SampleSource, det *detector.Detector, store storage.Store, cfg *config.Config) *Engine {
	return &Engine{
		source:   source,
		samples:  samples,
		detector: det,
		store:    store,
		cfg:      cfg,
		now:      time.Now,
	}
}

// WithEnricher attaches an optional explanation enricher.
func (e *Engine) WithEnricher(enricher Enricher) *Engine {
	e.enricher = enricher
	return e
}

// WithMetrics attaches run counters.
func (e *Engine) WithMetrics(m *observability.Metrics) *Engine {
	e.metrics = m
	return e
}

// Run analyzes every workload in the namespace (all namespaces when
// empty) over the configured trailing window. Workload failures are
// contained: one bad workload never fails the run.
func (e *Engine) Run(ctx context.Context, namespace string) (*RunReport, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.RunTimeout)
	defer cancel()

	startedAt := e.now()
	windowEnd := startedAt.UTC()
	windowStart := windowEnd.Add(-time.Duration(e.cfg.WindowHours) * time.Hour)

	workloads, err := e.source.ListWorkloads(ctx, namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to discover workloads: %w", err)
	}
	klog.Infof("analysis run: %d workloads, window %s to %s",
		len(workloads), windowStart.Format(time.RFC3339), windowEnd.Format(time.RFC3339))

	jobs := make(chan cluster.DiscoveredWorkload)
	outcomes := make([]Outcome, 0, len(workloads))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < e.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for dw := range jobs {
				outcome := e.analyze(ctx, dw, windowStart, windowEnd)
				mu.Lock()
				outcomes = append(outcomes, outcome)
				mu.Unlock()
			}
		}()
	}

	for _, dw := range workloads {
		select {
		case jobs <- dw:
		case <-ctx.Done():
		}
	}
	close(jobs)
	wg.Wait()

	sort.Slice(outcomes, func(i, j int) bool {
		wi, wj := outcomes[i].Workload, outcomes[j].Workload
		if wi.Namespace != wj.Namespace {
			return wi.Namespace < wj.Namespace
		}
		return wi.Name < wj.Name
	})

	report := &RunReport{
		ClusterID:   e.cfg.ClusterName,
		StartedAt:   startedAt,
		FinishedAt:  e.now(),
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		Outcomes:    outcomes,
	}
	for _, o := range outcomes {
		switch o.Status {
		case OutcomeAnalyzed:
			report.Analyzed++
		case OutcomeSkipped:
			report.Skipped++
		case OutcomeFailed:
			report.Failed++
		}
		if o.Opportunity != nil {
			report.Opportunities++
			report.TotalSavingsUSD += o.Opportunity.SavingsUSD
			report.TotalCarbonReductionG += o.Opportunity.CarbonReductionG
		}
	}

	if e.metrics != nil {
		e.metrics.RunDuration.Observe(report.FinishedAt.Sub(report.StartedAt).Seconds())
	}

	if err := e.store.SaveRun(ctx, &storage.RunRecord{
		ClusterID:   report.ClusterID,
		StartedAt:   report.StartedAt,
		FinishedAt:  report.FinishedAt,
		Analyzed:    report.Analyzed,
		Skipped:     report.Skipped,
		Failed:      report.Failed,
		Opportunity: report.Opportunities,
	}); err != nil {
		klog.Warningf("failed to record run: %v", err)
	}

	return report, nil
}

// analyze runs the pipeline for one workload. Every exit path yields
// an outcome; errors are folded into it.
func (e *Engine) analyze(ctx context.Context, dw cluster.DiscoveredWorkload, windowStart, windowEnd time.Time) Outcome {
	outcome := Outcome{Workload: dw.Workload}

	stored, err := e.store.GetOrCreateWorkload(ctx, &dw.Workload)
	if err != nil {
		return e.failed(outcome, fmt.Sprintf("storage: %v", err))
	}
	outcome.Workload = *stored

	samples, err := e.fetchWithRetry(ctx, stored, windowStart, windowEnd)
	if err != nil {
		if errors.Is(err, datasource.ErrUnavailable) {
			return e.skipped(outcome, "metrics-unavailable")
		}
		return e.failed(outcome, fmt.Sprintf("fetch samples: %v", err))
	}

	summary, err := aggregator.Summarize(samples, windowStart, windowEnd)
	if err != nil {
		if errors.Is(err, aggregator.ErrInsufficientData) {
			return e.skipped(outcome, "insufficient-data")
		}
		return e.failed(outcome, fmt.Sprintf("aggregate: %v", err))
	}
	summary.WorkloadID = stored.ID

	if err := e.store.SaveSummary(ctx, summary); err != nil {
		klog.Warningf("failed to save summary for %s/%s: %v", stored.Namespace, stored.Name, err)
	}

	opp, verdict := e.detector.Detect(summary)
	switch verdict {
	case detector.VerdictNoBaseline:
		return e.skipped(outcome, "no-baseline")
	case detector.VerdictNoAction:
		outcome.Status = OutcomeAnalyzed
		if e.metrics != nil {
			e.metrics.WorkloadsAnalyzed.Inc()
		}
		return outcome
	}

	if e.enricher != nil {
		if explanation, err := e.enricher.Enrich(ctx, opp, summary); err != nil {
			klog.Warningf("enrichment failed for %s/%s, keeping deterministic explanation: %v",
				stored.Namespace, stored.Name, err)
		} else if explanation != "" {
			opp.Explanation = explanation
		}
	}

	if err := e.store.SaveOpportunity(ctx, opp); err != nil {
		return e.failed(outcome, fmt.Sprintf("save opportunity: %v", err))
	}

	outcome.Status = OutcomeAnalyzed
	outcome.Opportunity = opp
	if e.metrics != nil {
		e.metrics.WorkloadsAnalyzed.Inc()
		e.metrics.Opportunities.WithLabelValues(string(opp.Type)).Inc()
		e.metrics.SavingsUSD.Add(opp.SavingsUSD)
	}
	return outcome
}

// fetchWithRetry retries transient source failures with doubling
// delays. Anything other than ErrUnavailable fails immediately.
func (e *Engine) fetchWithRetry(ctx context.Context, w *models.Workload, start, end time.Time) ([]models.UtilizationSample, error) {
	delay := e.cfg.RetryDelay
	var lastErr error

	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(delay):
				delay *= 2
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		samples, err := e.samples.FetchSamples(ctx, w, start, end)
		if err == nil {
			return samples, nil
		}
		if !errors.Is(err, datasource.ErrUnavailable) {
			return nil, err
		}
		lastErr = err
		klog.V(1).Infof("retrying %s/%s after source failure (attempt %d/%d): %v",
			w.Namespace, w.Name, attempt+1, e.cfg.MaxRetries, err)
	}

	return nil, lastErr
}

func (e *Engine) skipped(outcome Outcome, reason string) Outcome {
	outcome.Status = OutcomeSkipped
	outcome.Reason = reason
	if e.metrics != nil {
		e.metrics.WorkloadsSkipped.WithLabelValues(reason).Inc()
	}
	return outcome
}

func (e *Engine) failed(outcome Outcome, reason string) Outcome {
	outcome.Status = OutcomeFailed
	outcome.Reason = reason
	if e.metrics != nil {
		e.metrics.WorkloadsFailed.Inc()
	}
	klog.Warningf("workload %s/%s failed: %s", outcome.Workload.Namespace, outcome.Workload.Name, reason)
	return outcome
}
