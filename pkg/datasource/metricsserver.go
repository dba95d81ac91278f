package datasource

import (
	"context"
	"fmt"
	"strings"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	metricsv "k8s.io/metrics/pkg/client/clientset/versioned"

	"github.com/greenops/greenops-advisor/pkg/models"
	"github.com/greenops/greenops-advisor/pkg/pricing"
)

// MetricsServerSource is the fallback sample source when Prometheus is
// not reachable. It produces a single instant sample per workload from
// the metrics-server API, with no energy reading (carbon projections
// then come out as zero rather than fabricated).
type MetricsServerSource struct {
	clientset     kubernetes.Interface
	metricsClient metricsv.Interface
	rates         pricing.Rates
}

func NewMetricsServerSource(clientset kubernetes.Interface, metricsClient metricsv.Interface, rates pricing.Rates) *MetricsServerSource {
	return &MetricsServerSource{
		clientset:     clientset,
		metricsClient: metricsClient,
		rates:         rates,
	}
}

// FetchSamples sums requests and live usage over the workload's pods.
// Pods are matched by the owner-name prefix convention, the same
// heuristic the dashboard uses.
func (m *MetricsServerSource) FetchSamples(ctx context.Context, workload *models.Workload, start, end time.Time) ([]models.UtilizationSample, error) {
	pods, err := m.clientset.CoreV1().Pods(workload.Namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: listing pods: %v", ErrUnavailable, err)
	}

	podMetrics, err := m.metricsClient.MetricsV1beta1().PodMetricses(workload.Namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: pod metrics: %v", ErrUnavailable, err)
	}

	usageByPod := make(map[string]models.ResourceQuantity, len(podMetrics.Items))
	for _, pm := range podMetrics.Items {
		var u models.ResourceQuantity
		for _, c := range pm.Containers {
			cpu := c.Usage[corev1.ResourceCPU]
			mem := c.Usage[corev1.ResourceMemory]
			u.CPUCores += float64(cpu.MilliValue()) / 1000
			u.MemoryBytes += float64(mem.Value())
		}
		usageByPod[pm.Name] = u
	}

	// The instant reading is stamped at the window end so the
	// aggregator keeps it inside [start, end].
	sample := models.UtilizationSample{
		WorkloadID: workload.ID,
		Timestamp:  end,
	}
	matched := false

	for _, pod := range pods.Items {
		if !strings.HasPrefix(pod.Name, workload.Name+"-") && pod.Name != workload.Name {
			continue
		}
		matched = true

		for _, container := range pod.Spec.Containers {
			if cpu, ok := container.Resources.Requests[corev1.ResourceCPU]; ok {
				sample.CPURequested += float64(cpu.MilliValue()) / 1000
			}
			if mem, ok := container.Resources.Requests[corev1.ResourceMemory]; ok {
				sample.MemRequested += float64(mem.Value())
			}
		}
		if u, ok := usageByPod[pod.Name]; ok {
			sample.CPUUsed += u.CPUCores
			sample.MemUsed += u.MemoryBytes
		}
	}

	if !matched {
		return nil, nil
	}

	sample.CostUSD = sample.CPURequested*m.rates.CPUPerCoreHour +
		sample.MemRequested/(1024*1024*1024)*m.rates.MemPerGBHour

	return []models.UtilizationSample{sample}, nil
}

// IsAvailable checks that the metrics API answers.
func (m *MetricsServerSource) IsAvailable(ctx context.Context) bool {
	_, err := m.metricsClient.MetricsV1beta1().NodeMetricses().List(ctx, metav1.ListOptions{Limit: 1})
	return err == nil
}

func (m *MetricsServerSource) Name() string {
	return "metrics-server"
}
