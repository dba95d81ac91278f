package datasource

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
	"k8s.io/klog/v2"

	"github.com/greenops/greenops-advisor/pkg/models"
	"github.com/greenops/greenops-advisor/pkg/pricing"
)

// PrometheusSource reads per-workload utilization, cost, and energy
// series from Prometheus (kube-state-metrics, cAdvisor, Kepler).
type PrometheusSource struct {
	client v1.API
	rates  pricing.Rates
	step   time.Duration
	url    string
}

func NewPrometheusSource(url string, rates pricing.Rates) (*PrometheusSource, error) {
	client, err := api.NewClient(api.Config{Address: url})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}

	return &PrometheusSource{
		client: v1.NewAPI(client),
		rates:  rates,
		step:   5 * time.Minute,
		url:    url,
	}, nil
}

// FetchSamples assembles utilization samples from the workload's
// request, usage, and energy series, aligned on the shared range step.
func (p *PrometheusSource) FetchSamples(ctx context.Context, workload *models.Workload, start, end time.Time) ([]models.UtilizationSample, error) {
	podPattern := workload.Name + ".*"

	queries := map[string]string{
		"cpuRequested": fmt.Sprintf(`sum(kube_pod_container_resource_requests{namespace=%q,pod=~%q,resource="cpu"})`,
			workload.Namespace, podPattern),
		"cpuUsed": fmt.Sprintf(`sum(rate(container_cpu_usage_seconds_total{namespace=%q,pod=~%q,container!="POD"}[5m]))`,
			workload.Namespace, podPattern),
		"memRequested": fmt.Sprintf(`sum(kube_pod_container_resource_requests{namespace=%q,pod=~%q,resource="memory"})`,
			workload.Namespace, podPattern),
		"memUsed": fmt.Sprintf(`sum(container_memory_working_set_bytes{namespace=%q,pod=~%q,container!="POD"})`,
			workload.Namespace, podPattern),
		"energy": fmt.Sprintf(`sum(rate(kepler_container_joules_total{container_namespace=%q,pod_name=~%q}[5m]))`,
			workload.Namespace, podPattern),
	}

	series := make(map[string]map[time.Time]float64, len(queries))
	for name, query := range queries {
		points, err := p.queryRange(ctx, query, start, end)
		if err != nil {
			return nil, err
		}
		series[name] = points
	}

	var samples []models.UtilizationSample
	for ts, cpuRequested := range series["cpuRequested"] {
		sample := models.UtilizationSample{
			WorkloadID:   workload.ID,
			Timestamp:    ts,
			CPURequested: cpuRequested,
			CPUUsed:      series["cpuUsed"][ts],
			MemRequested: series["memRequested"][ts],
			MemUsed:      series["memUsed"][ts],
			// Kepler reports joules/sec; scale to joules per hour.
			EnergyJoules: series["energy"][ts] * 3600,
		}
		// Hourly cost of the current allocation, priced like the
		// detector prices it.
		sample.CostUSD = sample.CPURequested*p.rates.CPUPerCoreHour +
			sample.MemRequested/(1024*1024*1024)*p.rates.MemPerGBHour
		samples = append(samples, sample)
	}

	klog.V(2).Infof("prometheus: %d samples for %s/%s", len(samples), workload.Namespace, workload.Name)
	return samples, nil
}

// queryRange runs a range query and folds all returned series into a
// timestamp-indexed sum, matching the collector's pod-level rollup.
func (p *PrometheusSource) queryRange(ctx context.Context, query string, start, end time.Time) (map[time.Time]float64, error) {
	r := v1.Range{Start: start, End: end, Step: p.step}

	result, warnings, err := p.client.QueryRange(ctx, query, r)
	if err != nil {
		return nil, fmt.Errorf("%w: query %q: %v", ErrUnavailable, query, err)
	}
	if len(warnings) > 0 {
		klog.Warningf("prometheus warnings for %q: %v", query, warnings)
	}

	matrix, ok := result.(model.Matrix)
	if !ok {
		return nil, fmt.Errorf("unexpected result type %T for query %q", result, query)
	}

	points := make(map[time.Time]float64)
	for _, s := range matrix {
		for _, v := range s.Values {
			points[v.Timestamp.Time()] += float64(v.Value)
		}
	}
	return points, nil
}

// IsAvailable probes Prometheus with a trivial query.
func (p *PrometheusSource) IsAvailable(ctx context.Context) bool {
	_, _, err := p.client.Query(ctx, "up", time.Now())
	return err == nil
}

func (p *PrometheusSource) Name() string {
	return "prometheus"
}
