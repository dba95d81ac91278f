// Package patch renders resource-only merge patches for workload
// manifests from detector recommendations.
package patch

import (
	"errors"
	"fmt"

	"sigs.k8s.io/yaml"

	"github.com/greenops/greenops-advisor/pkg/models"
	"github.com/greenops/greenops-advisor/pkg/quantity"
)

// ErrMissingContainer reports a recommendation that references a
// container the manifest does not contain. Fatal to the patch request
// only; other workloads are unaffected.
var ErrMissingContainer = errors.New("missing container")

// Document is a rendered resource patch. It is derived output, never
// the system of record.
type Document struct {
	WorkloadKind string
	WorkloadName string
	Namespace    string
	Rendered     []byte // YAML merge-patch document
}

// containerPaths mirrors the extractor's search order.
var containerPaths = [][]string{
	{"spec", "containers"},
	{"spec", "template", "spec", "containers"},
	{"spec", "jobTemplate", "spec", "template", "spec", "containers"},
}

// Generate builds a minimal merge patch: only the resource requests
// (and, with a positive limitMultiplier, limits) of recommended
// containers appear; everything else is left to the original manifest.
// Every recommendation key must match a container in the manifest.
func Generate(doc []byte, recommendations map[models.ContainerKey]models.ResourceQuantity, limitMultiplier float64) (*Document, error) {
	obj, path, err := parseWorkload(doc)
	if err != nil {
		return nil, err
	}

	kind, _ := obj["kind"].(string)
	apiVersion, _ := obj["apiVersion"].(string)
	name := nestedString(obj, "metadata", "name")
	namespace := nestedString(obj, "metadata", "namespace")

	containers, _ := nestedSlice(obj, path...)
	matched := make(map[models.ContainerKey]bool, len(recommendations))

	var patched []interface{}
	for _, c := range containers {
		container, ok := c.(map[string]interface{})
		if !ok {
			continue
		}
		containerName, _ := container["name"].(string)
		key := models.ContainerKey{WorkloadName: name, ContainerName: containerName}
		rec, ok := recommendations[key]
		if !ok {
			continue
		}
		matched[key] = true
		patched = append(patched, map[string]interface{}{
			"name":      containerName,
			"resources": resourcesFor(rec, limitMultiplier),
		})
	}

	for key := range recommendations {
		if !matched[key] {
			return nil, fmt.Errorf("%w: %s/%s", ErrMissingContainer, key.WorkloadName, key.ContainerName)
		}
	}

	patchObj := map[string]interface{}{
		"kind": kind,
		"metadata": map[string]interface{}{
			"name": name,
		},
	}
	if apiVersion != "" {
		patchObj["apiVersion"] = apiVersion
	}
	if namespace != "" {
		patchObj["metadata"].(map[string]interface{})["namespace"] = namespace
	}
	setNestedSlice(patchObj, patched, path...)

	rendered, err := yaml.Marshal(patchObj)
	if err != nil {
		return nil, fmt.Errorf("failed to render patch: %w", err)
	}

	return &Document{
		WorkloadKind: kind,
		WorkloadName: name,
		Namespace:    namespace,
		Rendered:     rendered,
	}, nil
}

// Apply returns the manifest with the recommended requests/limits
// merged in and everything else untouched. Applying the same
// recommendations to an already-patched manifest is a no-op.
func Apply(doc []byte, recommendations map[models.ContainerKey]models.ResourceQuantity, limitMultiplier float64) ([]byte, error) {
	obj, path, err := parseWorkload(doc)
	if err != nil {
		return nil, err
	}
	name := nestedString(obj, "metadata", "name")

	containers, _ := nestedSlice(obj, path...)
	matched := make(map[models.ContainerKey]bool, len(recommendations))

	for _, c := range containers {
		container, ok := c.(map[string]interface{})
		if !ok {
			continue
		}
		containerName, _ := container["name"].(string)
		key := models.ContainerKey{WorkloadName: name, ContainerName: containerName}
		rec, ok := recommendations[key]
		if !ok {
			continue
		}
		matched[key] = true

		resources, ok := container["resources"].(map[string]interface{})
		if !ok {
			resources = map[string]interface{}{}
			container["resources"] = resources
		}
		merged := resourcesFor(rec, limitMultiplier)
		resources["requests"] = merged["requests"]
		if limits, ok := merged["limits"]; ok {
			resources["limits"] = limits
		}
	}

	for key := range recommendations {
		if !matched[key] {
			return nil, fmt.Errorf("%w: %s/%s", ErrMissingContainer, key.WorkloadName, key.ContainerName)
		}
	}

	return yaml.Marshal(obj)
}

// resourcesFor renders a recommendation as canonical quantity strings.
func resourcesFor(rec models.ResourceQuantity, limitMultiplier float64) map[string]interface{} {
	requests := map[string]interface{}{}
	if rec.CPUCores > 0 {
		requests["cpu"] = quantity.FormatCPU(rec.CPUCores)
	}
	if rec.MemoryBytes > 0 {
		requests["memory"] = quantity.FormatMemory(rec.MemoryBytes)
	}

	resources := map[string]interface{}{"requests": requests}
	if limitMultiplier > 0 {
		limits := map[string]interface{}{}
		if rec.CPUCores > 0 {
			limits["cpu"] = quantity.FormatCPU(rec.CPUCores * limitMultiplier)
		}
		if rec.MemoryBytes > 0 {
			limits["memory"] = quantity.FormatMemory(rec.MemoryBytes * limitMultiplier)
		}
		resources["limits"] = limits
	}
	return resources
}

func parseWorkload(doc []byte) (map[string]interface{}, []string, error) {
	var obj map[string]interface{}
	if err := yaml.Unmarshal(doc, &obj); err != nil {
		return nil, nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	for _, path := range containerPaths {
		if _, ok := nestedSlice(obj, path...); ok {
			return obj, path, nil
		}
	}
	kind, _ := obj["kind"].(string)
	return nil, nil, fmt.Errorf("no containers found in %s manifest", kind)
}

func nestedString(obj map[string]interface{}, path ...string) string {
	cur := obj
	for i, key := range path {
		if i == len(path)-1 {
			s, _ := cur[key].(string)
			return s
		}
		next, ok := cur[key].(map[string]interface{})
		if !ok {
			return ""
		}
		cur = next
	}
	return ""
}

func nestedSlice(obj map[string]interface{}, path ...string) ([]interface{}, bool) {
	cur := obj
	for i, key := range path {
		if i == len(path)-1 {
			list, ok := cur[key].([]interface{})
			return list, ok
		}
		next, ok := cur[key].(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur = next
	}
	return nil, false
}

func setNestedSlice(obj map[string]interface{}, value []interface{}, path ...string) {
	cur := obj
	for i, key := range path {
		if i == len(path)-1 {
			cur[key] = value
			return
		}
		next, ok := cur[key].(map[string]interface{})
		if !ok {
			next = map[string]interface{}{}
			cur[key] = next
		}
		cur = next
	}
}
