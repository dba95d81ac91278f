package cluster

import (
	"context"
	"testing"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
	metricsfake "k8s.io/metrics/pkg/client/clientset/versioned/fake"

	"github.com/greenops/greenops-advisor/pkg/manifest"
)

func int32Ptr(n int32) *int32 { return &n }

func testDeployment(name, namespace string) *appsv1.Deployment {
	return &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace},
		Spec: appsv1.DeploymentSpec{
			Replicas: int32Ptr(3),
			Template: corev1.PodTemplateSpec{
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{
						{
							Name:  "app",
							Image: "registry.local/app:1.2",
							Resources: corev1.ResourceRequirements{
								Requests: corev1.ResourceList{
									corev1.ResourceCPU:    resource.MustParse("200m"),
									corev1.ResourceMemory: resource.MustParse("512Mi"),
								},
							},
						},
						{
							Name:  "sidecar",
							Image: "registry.local/sidecar:0.3",
						},
					},
				},
			},
		},
	}
}

func TestListWorkloadsRendersExtractableManifests(t *testing.T) {
	clientset := fake.NewSimpleClientset(testDeployment("api", "default"))
	client := NewWithClients(clientset, metricsfake.NewSimpleClientset(), "test-cluster")

	workloads, err := client.ListWorkloads(context.Background(), "default")
	if err != nil {
		t.Fatalf("ListWorkloads failed: %v", err)
	}
	if len(workloads) != 1 {
		t.Fatalf("Expected 1 workload, got %d", len(workloads))
	}

	dw := workloads[0]
	if dw.Workload.Kind != "Deployment" || dw.Workload.Name != "api" {
		t.Errorf("Unexpected workload identity: %+v", dw.Workload)
	}
	if dw.Workload.Replicas != 3 {
		t.Errorf("Expected 3 replicas, got %d", dw.Workload.Replicas)
	}

	// The rendered manifest must round-trip through the extractor.
	specs, err := manifest.Extract(dw.Manifest)
	if err != nil {
		t.Fatalf("Rendered manifest is not extractable: %v", err)
	}
	if len(specs) != 2 {
		t.Fatalf("Expected 2 container specs, got %d", len(specs))
	}

	app := specs[0]
	if app.ContainerName != "app" {
		t.Fatalf("Expected container 'app' first, got %q", app.ContainerName)
	}
	if app.Requests == nil {
		t.Fatal("Expected requests to survive rendering")
	}
	if app.Requests.CPUCores != 0.2 {
		t.Errorf("Expected 0.2 cores, got %v", app.Requests.CPUCores)
	}
	if app.Requests.MemoryBytes != 512*1024*1024 {
		t.Errorf("Expected 512Mi in bytes, got %v", app.Requests.MemoryBytes)
	}

	// Absent resources block stays absent, not zero.
	sidecar := specs[1]
	if sidecar.Requests != nil || sidecar.Limits != nil {
		t.Errorf("Expected sidecar without resources block, got %+v", sidecar)
	}
}

func TestListWorkloadsAllNamespaces(t *testing.T) {
	clientset := fake.NewSimpleClientset(
		&corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: "default"}},
		&corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: "batch"}},
		testDeployment("api", "default"),
		testDeployment("worker", "batch"),
	)
	client := NewWithClients(clientset, metricsfake.NewSimpleClientset(), "test-cluster")

	workloads, err := client.ListWorkloads(context.Background(), "")
	if err != nil {
		t.Fatalf("ListWorkloads failed: %v", err)
	}
	if len(workloads) != 2 {
		t.Errorf("Expected workloads from both namespaces, got %d", len(workloads))
	}
}
