package models

// ContainerDelta is the per-container resource change between two
// manifest versions. Deltas are signed: a negative value is a reduction.
type ContainerDelta struct {
	WorkloadName  string
	ContainerName string
	Added         bool // container only present in the head version
	Removed       bool // container only present in the base version

	CPUDeltaCores   float64
	MemDeltaBytes   float64
	DeltaCostUSD    float64 // monthly
	DeltaCarbonG    float64 // monthly
	BeforeCPUCores  float64
	AfterCPUCores   float64
	BeforeMemBytes  float64
	AfterMemBytes   float64
}

// PRDelta is the projected monthly cost/carbon impact of a pull request
// changing workload manifests. It is a pure function of the two manifest
// versions it was computed from.
type PRDelta struct {
	Repo       string
	PRNumber   int
	Containers []ContainerDelta

	TotalDeltaCostUSD float64
	TotalDeltaCarbonG float64
}
