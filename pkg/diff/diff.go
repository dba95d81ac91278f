// Package diff computes the projected monthly cost and carbon impact of
// manifest changes between two versions, for pull-request estimation.
package diff

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/greenops/greenops-advisor/pkg/manifest"
	"github.com/greenops/greenops-advisor/pkg/models"
	"github.com/greenops/greenops-advisor/pkg/pricing"
)

// Analyzer prices manifest diffs with the same per-unit rates the
// opportunity detector uses, so PR estimates and opportunities agree.
type Analyzer struct {
	rates pricing.Rates
}

func New(rates pricing.Rates) *Analyzer {
	return &Analyzer{rates: rates}
}

// Analyze pairs containers across the two versions by
// (workload, container) and prices each delta. A container only in the
// head version is an addition priced from zero; one only in the base
// version is a removal, i.e. a saving. Identical inputs always produce
// identical output: no clock, no network, no randomness.
// An empty side is valid: a manifest added in the head version has no
// base, and a deleted one has no head.
func (a *Analyzer) Analyze(before, after []byte) (*models.PRDelta, error) {
	beforeSpecs, err := extractSide(before)
	if err != nil {
		return nil, fmt.Errorf("base version: %w", err)
	}
	afterSpecs, err := extractSide(after)
	if err != nil {
		return nil, fmt.Errorf("head version: %w", err)
	}

	beforeByKey := byKey(beforeSpecs)
	afterByKey := byKey(afterSpecs)

	delta := &models.PRDelta{}
	seen := make(map[models.ContainerKey]bool, len(beforeByKey))

	for key, b := range beforeByKey {
		seen[key] = true
		cd := models.ContainerDelta{
			WorkloadName:  key.WorkloadName,
			ContainerName: key.ContainerName,
		}
		cd.BeforeCPUCores, cd.BeforeMemBytes = requested(b)

		if h, ok := afterByKey[key]; ok {
			cd.AfterCPUCores, cd.AfterMemBytes = requested(h)
		} else {
			// A renamed container shows up as a removal plus an
			// addition; no rename detection is attempted.
			cd.Removed = true
		}

		a.price(&cd)
		delta.Containers = append(delta.Containers, cd)
	}

	for key, h := range afterByKey {
		if seen[key] {
			continue
		}
		cd := models.ContainerDelta{
			WorkloadName:  key.WorkloadName,
			ContainerName: key.ContainerName,
			Added:         true,
		}
		cd.AfterCPUCores, cd.AfterMemBytes = requested(h)
		a.price(&cd)
		delta.Containers = append(delta.Containers, cd)
	}

	sort.Slice(delta.Containers, func(i, j int) bool {
		ci, cj := delta.Containers[i], delta.Containers[j]
		if ci.WorkloadName != cj.WorkloadName {
			return ci.WorkloadName < cj.WorkloadName
		}
		return ci.ContainerName < cj.ContainerName
	})

	for _, cd := range delta.Containers {
		delta.TotalDeltaCostUSD += cd.DeltaCostUSD
		delta.TotalDeltaCarbonG += cd.DeltaCarbonG
	}

	return delta, nil
}

// price fills the signed resource and monthly cost/carbon deltas.
// Cost is per dimension with that dimension's own rate; carbon follows
// the cpu delta alone.
func (a *Analyzer) price(cd *models.ContainerDelta) {
	cd.CPUDeltaCores = cd.AfterCPUCores - cd.BeforeCPUCores
	cd.MemDeltaBytes = cd.AfterMemBytes - cd.BeforeMemBytes

	cd.DeltaCostUSD = a.rates.MonthlyCPUCost(cd.CPUDeltaCores) + a.rates.MonthlyMemCost(cd.MemDeltaBytes)
	cd.DeltaCarbonG = a.rates.MonthlyCarbonFromCores(cd.CPUDeltaCores)
}

// requested reads a container's requests, treating an absent block as
// zero for diff purposes only.
func requested(spec models.ContainerResourceSpec) (cores, memBytes float64) {
	if spec.Requests == nil {
		return 0, 0
	}
	return spec.Requests.CPUCores, spec.Requests.MemoryBytes
}

func extractSide(data []byte) ([]models.ContainerResourceSpec, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	return manifest.ExtractAll(data)
}

func byKey(specs []models.ContainerResourceSpec) map[models.ContainerKey]models.ContainerResourceSpec {
	m := make(map[models.ContainerKey]models.ContainerResourceSpec, len(specs))
	for _, s := range specs {
		m[s.Key()] = s
	}
	return m
}
