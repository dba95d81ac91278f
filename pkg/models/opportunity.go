package models

import (
	"fmt"
	"time"
)

// OpportunityType classifies an optimization opportunity
type OpportunityType string

const (
	OpportunityRightsizing       OpportunityType = "rightsizing"
	OpportunityScheduling        OpportunityType = "scheduling"
	OpportunityImageOptimization OpportunityType = "image-optimization"
)

// OpportunityStatus tracks the operator-driven lifecycle of an opportunity
type OpportunityStatus string

const (
	StatusPending  OpportunityStatus = "pending"
	StatusApproved OpportunityStatus = "approved"
	StatusApplied  OpportunityStatus = "applied"
	StatusRejected OpportunityStatus = "rejected"
)

// RiskLevel classifies how likely a recommended change is to harm the workload
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Opportunity is a proposed resource change with projected cost and
// carbon savings. SavingsUSD is strictly positive: the detector never
// creates an opportunity that saves nothing.
type Opportunity struct {
	ID         string
	WorkloadID string
	Type       OpportunityType
	Status     OpportunityStatus

	// Analysis window the opportunity was computed over. Together with
	// WorkloadID and Type this is the idempotency key for persistence.
	WindowStart time.Time
	WindowEnd   time.Time

	CurrentCostUSD   float64
	ProjectedCostUSD float64
	SavingsUSD       float64

	CurrentCarbonG   float64
	ProjectedCarbonG float64
	CarbonReductionG float64

	// Recommended per-dimension requests (cores / bytes)
	RecommendedCPU float64
	RecommendedMem float64

	Confidence  float64 // 0..1
	Risk        RiskLevel
	Explanation string

	CreatedAt time.Time
}

// Transition moves the opportunity to a new status. Only pending
// opportunities may move; transitions are never reversed.
func (o *Opportunity) Transition(to OpportunityStatus) error {
	if o.Status != StatusPending {
		return fmt.Errorf("opportunity %s is %s, cannot transition to %s", o.ID, o.Status, to)
	}
	switch to {
	case StatusApproved, StatusApplied, StatusRejected:
		o.Status = to
		return nil
	default:
		return fmt.Errorf("invalid target status %q", to)
	}
}
