package storage

import (
	"context"
	"errors"
	"time"

	"github.com/greenops/greenops-advisor/pkg/models"
)

// ErrNotFound reports a lookup miss for a workload or opportunity.
var ErrNotFound = errors.New("not found")

// ListFilter narrows opportunity listings. Zero values mean "any".
type ListFilter struct {
	Status models.OpportunityStatus
	Type   models.OpportunityType
	Limit  int
}

// Store defines the interface for persistent storage
type Store interface {
	// GetOrCreateWorkload resolves a workload to its stored identity,
	// creating it on first sight. The returned workload always has ID set.
	GetOrCreateWorkload(ctx context.Context, w *models.Workload) (*models.Workload, error)
	GetWorkload(ctx context.Context, id string) (*models.Workload, error)

	// SaveOpportunity persists an opportunity. Re-analyzing the same
	// workload over the same window updates the existing pending row
	// instead of inserting a duplicate.
	SaveOpportunity(ctx context.Context, opp *models.Opportunity) error
	GetOpportunity(ctx context.Context, id string) (*models.Opportunity, error)
	ListOpportunities(ctx context.Context, filter ListFilter) ([]*models.Opportunity, error)

	// TransitionOpportunity moves a pending opportunity to a terminal
	// status. Non-pending rows are rejected.
	TransitionOpportunity(ctx context.Context, id string, to models.OpportunityStatus) (*models.Opportunity, error)

	// SaveSummary records the aggregated window a detection ran over,
	// for audit.
	SaveSummary(ctx context.Context, summary *models.UtilizationSummary) error

	// SaveRun appends an analysis run to the audit trail.
	SaveRun(ctx context.Context, run *RunRecord) error
	ListRuns(ctx context.Context, limit int) ([]*RunRecord, error)

	Ping(ctx context.Context) error
	Close() error
}

// RunRecord is one persisted analysis run, for the audit trail.
type RunRecord struct {
	ID          string
	ClusterID   string
	StartedAt   time.Time
	FinishedAt  time.Time
	Analyzed    int
	Skipped     int
	Failed      int
	Opportunity int
}
