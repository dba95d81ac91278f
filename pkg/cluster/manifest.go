package cluster

import (
	"fmt"

	corev1 "k8s.io/api/core/v1"
	"sigs.k8s.io/yaml"

	"github.com/greenops/greenops-advisor/pkg/models"
)

// discovered reduces a live object to the minimal manifest the rest of
// the pipeline consumes: apiVersion, kind, metadata, and the container
// list at the kind's canonical path. Controller-managed fields are
// deliberately left out.
func (c *Client) discovered(kind, name, namespace string, replicas int32, containers []corev1.Container, templatePath string) (DiscoveredWorkload, error) {
	containerList := make([]map[string]interface{}, 0, len(containers))
	for _, container := range containers {
		entry := map[string]interface{}{
			"name":  container.Name,
			"image": container.Image,
		}
		if resources := resourcesMap(container); resources != nil {
			entry["resources"] = resources
		}
		containerList = append(containerList, entry)
	}

	podSpec := map[string]interface{}{
		"spec": map[string]interface{}{
			"containers": containerList,
		},
	}

	var spec map[string]interface{}
	switch templatePath {
	case "spec.template":
		spec = map[string]interface{}{"template": podSpec}
	case "spec.jobTemplate":
		spec = map[string]interface{}{
			"jobTemplate": map[string]interface{}{
				"spec": map[string]interface{}{"template": podSpec},
			},
		}
	default:
		return DiscoveredWorkload{}, fmt.Errorf("unsupported template path %q", templatePath)
	}

	doc := map[string]interface{}{
		"apiVersion": apiVersionFor(kind),
		"kind":       kind,
		"metadata": map[string]interface{}{
			"name":      name,
			"namespace": namespace,
		},
		"spec": spec,
	}

	rendered, err := yaml.Marshal(doc)
	if err != nil {
		return DiscoveredWorkload{}, fmt.Errorf("failed to render %s %s/%s: %w", kind, namespace, name, err)
	}

	return DiscoveredWorkload{
		Workload: models.Workload{
			ClusterID: c.clusterID,
			Namespace: namespace,
			Kind:      kind,
			Name:      name,
			Replicas:  replicas,
		},
		Manifest: rendered,
	}, nil
}

// resourcesMap renders a container's requests/limits as quantity
// strings, or nil when the container carries no resources block.
func resourcesMap(container corev1.Container) map[string]interface{} {
	resources := map[string]interface{}{}

	if requests := quantityMap(container.Resources.Requests); requests != nil {
		resources["requests"] = requests
	}
	if limits := quantityMap(container.Resources.Limits); limits != nil {
		resources["limits"] = limits
	}

	if len(resources) == 0 {
		return nil
	}
	return resources
}

func quantityMap(list corev1.ResourceList) map[string]interface{} {
	if len(list) == 0 {
		return nil
	}

	out := map[string]interface{}{}
	if cpu, ok := list[corev1.ResourceCPU]; ok {
		out[string(corev1.ResourceCPU)] = cpu.String()
	}
	if mem, ok := list[corev1.ResourceMemory]; ok {
		out[string(corev1.ResourceMemory)] = mem.String()
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func apiVersionFor(kind string) string {
	switch kind {
	case "CronJob":
		return "batch/v1"
	default:
		return "apps/v1"
	}
}
