package patch

import (
	"fmt"

	"github.com/greenops/greenops-advisor/pkg/models"
)

// Allocate splits a workload-level recommendation across the manifest's
// containers, proportional to each container's current request in that
// dimension. Containers without a resources block are left untouched;
// when no container carries a request in a dimension, the share is
// split equally across the containers that do have a resources block.
// The shares sum to the recommendation exactly up to float rounding.
func Allocate(specs []models.ContainerResourceSpec, recommendedCPU, recommendedMem float64) (map[models.ContainerKey]models.ResourceQuantity, error) {
	var requested []models.ContainerResourceSpec
	totalCPU, totalMem := 0.0, 0.0
	for _, s := range specs {
		if s.Requests == nil {
			continue
		}
		requested = append(requested, s)
		totalCPU += s.Requests.CPUCores
		totalMem += s.Requests.MemoryBytes
	}

	if len(requested) == 0 {
		return nil, fmt.Errorf("no containers with resource requests to patch")
	}

	n := float64(len(requested))
	out := make(map[models.ContainerKey]models.ResourceQuantity, len(requested))
	for _, s := range requested {
		share := models.ResourceQuantity{}
		if totalCPU > 0 {
			share.CPUCores = recommendedCPU * s.Requests.CPUCores / totalCPU
		} else {
			share.CPUCores = recommendedCPU / n
		}
		if totalMem > 0 {
			share.MemoryBytes = recommendedMem * s.Requests.MemoryBytes / totalMem
		} else {
			share.MemoryBytes = recommendedMem / n
		}
		out[s.Key()] = share
	}

	return out, nil
}
