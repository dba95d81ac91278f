package models

// Workload identifies a Kubernetes workload under analysis
type Workload struct {
	ID        string
	ClusterID string
	Namespace string
	Kind      string // Deployment, StatefulSet, CronJob, ...
	Name      string
	Replicas  int32
}

// ResourceQuantity is the canonical internal representation of a
// cpu/memory pair. Values are never negative.
type ResourceQuantity struct {
	CPUCores    float64
	MemoryBytes float64
}

// Add returns the element-wise sum of two quantities.
func (q ResourceQuantity) Add(other ResourceQuantity) ResourceQuantity {
	return ResourceQuantity{
		CPUCores:    q.CPUCores + other.CPUCores,
		MemoryBytes: q.MemoryBytes + other.MemoryBytes,
	}
}

// ContainerResourceSpec is one container's resource configuration as
// extracted from a manifest. Requests/Limits are nil when the manifest
// carries no resources block: absence is not the same as an explicit zero.
type ContainerResourceSpec struct {
	WorkloadKind  string
	WorkloadName  string
	Namespace     string
	ContainerName string
	Requests      *ResourceQuantity
	Limits        *ResourceQuantity
}

// Key identifies a container across manifest versions. Container order
// within a manifest is irrelevant; a renamed container is seen as an
// independent removal plus addition.
func (c ContainerResourceSpec) Key() ContainerKey {
	return ContainerKey{WorkloadName: c.WorkloadName, ContainerName: c.ContainerName}
}

// ContainerKey is the (workload, container) identity used by the patch
// generator and the diff analyzer.
type ContainerKey struct {
	WorkloadName  string
	ContainerName string
}
