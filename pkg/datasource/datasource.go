// Package datasource provides the metrics collaborators the analysis
// run consumes. The engine only reads samples; collection cadence and
// scraping belong to the external collectors.
package datasource

import (
	"context"
	"errors"
	"time"

	"github.com/greenops/greenops-advisor/pkg/models"
)

// ErrUnavailable reports an unreachable metrics collaborator. The
// engine retries with bounded backoff and then marks the workload
// degraded instead of failing the run.
var ErrUnavailable = errors.New("metrics source unavailable")

// SampleSource is a queryable sequence of utilization samples for a
// workload over a time window.
type SampleSource interface {
	// FetchSamples returns the samples for the workload between start
	// and end. An empty result is valid; the aggregator decides whether
	// it is sufficient.
	FetchSamples(ctx context.Context, workload *models.Workload, start, end time.Time) ([]models.UtilizationSample, error)

	// IsAvailable probes the source without side effects.
	IsAvailable(ctx context.Context) bool

	Name() string
}
