// Package manifest extracts per-container resource specs from workload
// manifests (Deployments, StatefulSets, Jobs, CronJobs, bare Pods).
package manifest

import (
	"fmt"
	"strings"

	"sigs.k8s.io/yaml"

	"github.com/greenops/greenops-advisor/pkg/models"
	"github.com/greenops/greenops-advisor/pkg/quantity"
)

// containerPaths are tried in order: direct pod spec, pod-template
// controllers, and CronJob-style nested job templates.
var containerPaths = [][]string{
	{"spec", "containers"},
	{"spec", "template", "spec", "containers"},
	{"spec", "jobTemplate", "spec", "template", "spec", "containers"},
}

// Extract parses a single YAML workload document into a flat list of
// container resource specs. Containers without a resources block get
// nil Requests/Limits; an unset request is not an explicit zero.
func Extract(doc []byte) ([]models.ContainerResourceSpec, error) {
	var obj map[string]interface{}
	if err := yaml.Unmarshal(doc, &obj); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if len(obj) == 0 {
		return nil, fmt.Errorf("empty manifest")
	}

	kind, _ := obj["kind"].(string)
	name := nestedString(obj, "metadata", "name")
	namespace := nestedString(obj, "metadata", "namespace")

	var containers []interface{}
	for _, path := range containerPaths {
		if list, ok := nestedSlice(obj, path...); ok {
			containers = list
			break
		}
	}
	if containers == nil {
		return nil, fmt.Errorf("no containers found in %s %q", kind, name)
	}

	var specs []models.ContainerResourceSpec
	for _, c := range containers {
		container, ok := c.(map[string]interface{})
		if !ok {
			continue
		}
		containerName, _ := container["name"].(string)

		spec := models.ContainerResourceSpec{
			WorkloadKind:  kind,
			WorkloadName:  name,
			Namespace:     namespace,
			ContainerName: containerName,
		}

		if resources, ok := container["resources"].(map[string]interface{}); ok {
			requests, err := parseQuantityMap(resources, "requests")
			if err != nil {
				return nil, fmt.Errorf("container %q: %w", containerName, err)
			}
			limits, err := parseQuantityMap(resources, "limits")
			if err != nil {
				return nil, fmt.Errorf("container %q: %w", containerName, err)
			}
			spec.Requests = requests
			spec.Limits = limits
		}

		specs = append(specs, spec)
	}

	return specs, nil
}

// ExtractAll handles multi-document YAML, concatenating the container
// specs of every workload document in the stream.
func ExtractAll(data []byte) ([]models.ContainerResourceSpec, error) {
	var all []models.ContainerResourceSpec
	for _, doc := range splitDocuments(data) {
		if strings.TrimSpace(doc) == "" {
			continue
		}
		specs, err := Extract([]byte(doc))
		if err != nil {
			return nil, err
		}
		all = append(all, specs...)
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("no workload containers found")
	}
	return all, nil
}

func splitDocuments(data []byte) []string {
	return strings.Split(string(data), "\n---")
}

// parseQuantityMap reads resources.requests or resources.limits into
// canonical units. Returns nil when the block is absent.
func parseQuantityMap(resources map[string]interface{}, key string) (*models.ResourceQuantity, error) {
	block, ok := resources[key].(map[string]interface{})
	if !ok {
		return nil, nil
	}

	q := &models.ResourceQuantity{}
	if raw, ok := block["cpu"]; ok {
		cores, err := quantity.ParseCPU(scalarString(raw))
		if err != nil {
			return nil, fmt.Errorf("%s cpu: %w", key, err)
		}
		q.CPUCores = cores
	}
	if raw, ok := block["memory"]; ok {
		bytes, err := quantity.ParseMemory(scalarString(raw))
		if err != nil {
			return nil, fmt.Errorf("%s memory: %w", key, err)
		}
		q.MemoryBytes = bytes
	}
	return q, nil
}

// scalarString renders a YAML scalar as a string so bare numeric
// quantities ("cpu: 2") parse the same as quoted ones ("cpu: \"2\"").
func scalarString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconvFormat(t)
	case int64:
		return fmt.Sprintf("%d", t)
	case int:
		return fmt.Sprintf("%d", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func strconvFormat(f float64) string {
	if f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%g", f)
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
