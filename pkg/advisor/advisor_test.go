package advisor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/greenops/greenops-advisor/pkg/models"
)

func testInputs() (*models.Opportunity, *models.UtilizationSummary) {
	opp := &models.Opportunity{
		ID:               "opp-1",
		RecommendedCPU:   0.125,
		RecommendedMem:   256 * 1024 * 1024,
		SavingsUSD:       14.60,
		CarbonReductionG: 3100,
		Risk:             models.RiskLow,
	}
	summary := &models.UtilizationSummary{
		AvgCPURequested: 1.0,
		AvgCPUUsed:      0.05,
		AvgMemRequested: 1024 * 1024 * 1024,
		AvgMemUsed:      64 * 1024 * 1024,
		SampleCount:     12,
	}
	return opp, summary
}

func TestEnrich(t *testing.T) {
	var prompt string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model  string `json:"model"`
			Prompt string `json:"prompt"`
			Stream bool   `json:"stream"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("Bad request payload: %v", err)
		}
		if req.Model != "mistral:7b" {
			t.Errorf("Expected configured model, got %q", req.Model)
		}
		if req.Stream {
			t.Error("Expected non-streaming request")
		}
		prompt = req.Prompt
		json.NewEncoder(w).Encode(map[string]string{
			"response": " This workload uses 5% of its CPU request. ",
		})
	}))
	defer server.Close()

	a := New(server.URL, "mistral:7b", 5*time.Second)
	opp, summary := testInputs()

	got, err := a.Enrich(context.Background(), opp, summary)
	if err != nil {
		t.Fatalf("Enrich failed: %v", err)
	}
	if got != "This workload uses 5% of its CPU request." {
		t.Errorf("Expected trimmed response, got %q", got)
	}

	// The prompt must carry the detector's numbers.
	for _, want := range []string{"125m", "256Mi", "$14.60", "low"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("Prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestEnrichFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}},
		{"empty response", func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]string{"response": "   "})
		}},
		{"malformed body", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("not json"))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			a := New(server.URL, "mistral:7b", 5*time.Second)
			opp, summary := testInputs()

			if _, err := a.Enrich(context.Background(), opp, summary); err == nil {
				t.Error("Expected error so the caller keeps the deterministic explanation")
			}
		})
	}
}

func TestEnrichTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	a := New(server.URL, "mistral:7b", 10*time.Millisecond)
	opp, summary := testInputs()

	if _, err := a.Enrich(context.Background(), opp, summary); err == nil {
		t.Error("Expected timeout error")
	}
}
