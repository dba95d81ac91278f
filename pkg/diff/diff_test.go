package diff

import (
	"math"
	"reflect"
	"testing"

	"github.com/greenops/greenops-advisor/pkg/pricing"
)

func testRates() pricing.Rates {
	return pricing.Rates{
		CPUPerCoreHour:  0.02,
		MemPerGBHour:    0.005,
		CarbonIntensity: 475,
		WattsPerCore:    10,
		HoursPerMonth:   730,
	}
}

func workloadYAML(cpu, memory string) []byte {
	return []byte(`
kind: Deployment
metadata:
  name: api
spec:
  template:
    spec:
      containers:
      - name: app
        resources:
          requests:
            cpu: "` + cpu + `"
            memory: ` + memory + `
`)
}

func TestAnalyzeReduction(t *testing.T) {
	a := New(testRates())

	delta, err := a.Analyze(workloadYAML("200m", "512Mi"), workloadYAML("100m", "512Mi"))
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if len(delta.Containers) != 1 {
		t.Fatalf("Expected 1 container delta, got %d", len(delta.Containers))
	}

	cd := delta.Containers[0]
	if math.Abs(cd.CPUDeltaCores+0.1) > 1e-9 {
		t.Errorf("Expected cpu delta -0.1 cores, got %v", cd.CPUDeltaCores)
	}

	// -(0.1 * HOURS_PER_MONTH * COST_PER_CPU_HOUR)
	want := -(0.1 * 730 * 0.02)
	if math.Abs(delta.TotalDeltaCostUSD-want) > 1e-9 {
		t.Errorf("Expected cost delta %v, got %v", want, delta.TotalDeltaCostUSD)
	}
	if delta.TotalDeltaCostUSD >= 0 {
		t.Error("A reduction must be a negative delta (a saving)")
	}
	if delta.TotalDeltaCarbonG >= 0 {
		t.Error("A cpu reduction must reduce carbon")
	}
}

func TestAnalyzeAdditionAndRemoval(t *testing.T) {
	a := New(testRates())

	before := []byte(`
kind: Deployment
metadata:
  name: api
spec:
  template:
    spec:
      containers:
      - name: old
        resources:
          requests:
            cpu: 500m
`)
	after := []byte(`
kind: Deployment
metadata:
  name: api
spec:
  template:
    spec:
      containers:
      - name: new
        resources:
          requests:
            cpu: 250m
`)

	delta, err := a.Analyze(before, after)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if len(delta.Containers) != 2 {
		t.Fatalf("Expected removal + addition, got %d deltas", len(delta.Containers))
	}

	// Sorted by container name: "new" before "old".
	added, removed := delta.Containers[0], delta.Containers[1]
	if !added.Added || added.ContainerName != "new" {
		t.Errorf("Expected addition of 'new', got %+v", added)
	}
	if !removed.Removed || removed.ContainerName != "old" {
		t.Errorf("Expected removal of 'old', got %+v", removed)
	}
	if added.DeltaCostUSD <= 0 {
		t.Errorf("Addition must cost, got %v", added.DeltaCostUSD)
	}
	if removed.DeltaCostUSD >= 0 {
		t.Errorf("Removal must save, got %v", removed.DeltaCostUSD)
	}

	// Net: -0.25 cores.
	want := -(0.25 * 730 * 0.02)
	if math.Abs(delta.TotalDeltaCostUSD-want) > 1e-9 {
		t.Errorf("Expected net delta %v, got %v", want, delta.TotalDeltaCostUSD)
	}
}

func TestAnalyzeDeterministic(t *testing.T) {
	a := New(testRates())
	before := workloadYAML("2", "2Gi")
	after := workloadYAML("1", "1Gi")

	first, err := a.Analyze(before, after)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	for i := 0; i < 20; i++ {
		again, err := a.Analyze(before, after)
		if err != nil {
			t.Fatalf("Analyze failed on repeat: %v", err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("Identical inputs produced different deltas:\n%+v\n%+v", first, again)
		}
	}
}
