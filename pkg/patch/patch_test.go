package patch

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/greenops/greenops-advisor/pkg/models"
)

const webManifest = `
apiVersion: apps/v1
kind: Deployment
metadata:
  name: web
  namespace: prod
  labels:
    team: platform
spec:
  replicas: 2
  template:
    spec:
      containers:
      - name: app
        image: web:v3
        env:
        - name: MODE
          value: fast
        resources:
          requests:
            cpu: "1"
            memory: 1Gi
      - name: sidecar
        image: proxy:v1
`

func rec(workload, container string, cores, memBytes float64) map[models.ContainerKey]models.ResourceQuantity {
	return map[models.ContainerKey]models.ResourceQuantity{
		{WorkloadName: workload, ContainerName: container}: {CPUCores: cores, MemoryBytes: memBytes},
	}
}

func TestGenerateMinimalPatch(t *testing.T) {
	doc, err := Generate([]byte(webManifest), rec("web", "app", 0.125, 256*1024*1024), 0)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if doc.WorkloadName != "web" || doc.Namespace != "prod" || doc.WorkloadKind != "Deployment" {
		t.Errorf("Unexpected document identity: %+v", doc)
	}

	out := string(doc.Rendered)
	if !strings.Contains(out, "cpu: 125m") {
		t.Errorf("Patch missing canonical cpu quantity:\n%s", out)
	}
	if !strings.Contains(out, "memory: 256Mi") {
		t.Errorf("Patch missing canonical memory quantity:\n%s", out)
	}
	// Minimal merge patch: untouched manifest content must not leak in.
	if strings.Contains(out, "image:") || strings.Contains(out, "MODE") || strings.Contains(out, "replicas") {
		t.Errorf("Patch carries unchanged manifest content:\n%s", out)
	}
	if strings.Contains(out, "sidecar") {
		t.Errorf("Patch includes container without a recommendation:\n%s", out)
	}
}

func TestGenerateWithLimitMultiplier(t *testing.T) {
	doc, err := Generate([]byte(webManifest), rec("web", "app", 0.2, 256*1024*1024), 1.5)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	out := string(doc.Rendered)
	if !strings.Contains(out, "limits:") {
		t.Fatalf("Expected limits block:\n%s", out)
	}
	if !strings.Contains(out, "cpu: 300m") {
		t.Errorf("Expected cpu limit 300m (0.2 * 1.5):\n%s", out)
	}
	if !strings.Contains(out, "memory: 384Mi") {
		t.Errorf("Expected memory limit 384Mi:\n%s", out)
	}
}

func TestGenerateMissingContainer(t *testing.T) {
	_, err := Generate([]byte(webManifest), rec("web", "no-such-container", 0.1, 0), 0)
	if !errors.Is(err, ErrMissingContainer) {
		t.Errorf("Expected ErrMissingContainer, got %v", err)
	}

	// Wrong workload name misses too: identity is (workload, container).
	_, err = Generate([]byte(webManifest), rec("other", "app", 0.1, 0), 0)
	if !errors.Is(err, ErrMissingContainer) {
		t.Errorf("Expected ErrMissingContainer for wrong workload, got %v", err)
	}
}

func TestApplyIdempotent(t *testing.T) {
	recs := rec("web", "app", 0.125, 256*1024*1024)

	once, err := Apply([]byte(webManifest), recs, 1.5)
	if err != nil {
		t.Fatalf("First apply failed: %v", err)
	}
	twice, err := Apply(once, recs, 1.5)
	if err != nil {
		t.Fatalf("Second apply failed: %v", err)
	}

	if !bytes.Equal(once, twice) {
		t.Errorf("Second application must be a no-op:\n--- once ---\n%s\n--- twice ---\n%s", once, twice)
	}

	// The rest of the manifest passes through unchanged.
	out := string(once)
	for _, keep := range []string{"image: web:v3", "MODE", "replicas: 2", "team: platform", "proxy:v1"} {
		if !strings.Contains(out, keep) {
			t.Errorf("Apply dropped unrelated content %q:\n%s", keep, out)
		}
	}
}
