// Package advisor optionally rewrites opportunity explanations into
// operator-friendly prose using a local model endpoint. The analysis
// pipeline never depends on it: any failure leaves the deterministic
// explanation in place.
package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"k8s.io/klog/v2"

	"github.com/greenops/greenops-advisor/pkg/models"
	"github.com/greenops/greenops-advisor/pkg/quantity"
)

// Advisor calls an Ollama-compatible generate endpoint.
type Advisor struct {
	url        string
	model      string
	retries    int
	httpClient *http.Client
}

func New(url, model string, timeout time.Duration) *Advisor {
	return &Advisor{
		url:     strings.TrimRight(url, "/"),
		model:   model,
		retries: 1,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Enrich produces a short prose explanation for the opportunity. The
// numbers in the prompt are the detector's; the model only narrates
// them and is told not to invent others. Transport failures are
// retried once; the caller treats any remaining error as "keep the
// deterministic explanation".
func (a *Advisor) Enrich(ctx context.Context, opp *models.Opportunity, summary *models.UtilizationSummary) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= a.retries; attempt++ {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		text, err := a.generate(ctx, opp, summary)
		if err == nil {
			return text, nil
		}
		lastErr = err
	}
	return "", lastErr
}

func (a *Advisor) generate(ctx context.Context, opp *models.Opportunity, summary *models.UtilizationSummary) (string, error) {
	payload, err := json.Marshal(generateRequest{
		Model:  a.model,
		Prompt: a.prompt(opp, summary),
		Stream: false,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("advisor endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("advisor endpoint returned %d", resp.StatusCode)
	}

	var generated generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&generated); err != nil {
		return "", fmt.Errorf("failed to decode advisor response: %w", err)
	}

	text := strings.TrimSpace(generated.Response)
	if text == "" {
		return "", fmt.Errorf("advisor returned empty response")
	}

	klog.V(2).Infof("enriched explanation for opportunity %s (%d chars)", opp.ID, len(text))
	return text, nil
}

func (a *Advisor) prompt(opp *models.Opportunity, summary *models.UtilizationSummary) string {
	cpuPct, cpuDefined := summary.CPUUtilizationPct()
	memPct, memDefined := summary.MemUtilizationPct()

	cpu := "not set"
	if cpuDefined {
		cpu = fmt.Sprintf("%.1f%% of %s requested", cpuPct, quantity.FormatCPU(summary.AvgCPURequested))
	}
	mem := "not set"
	if memDefined {
		mem = fmt.Sprintf("%.1f%% of %s requested", memPct, quantity.FormatMemory(summary.AvgMemRequested))
	}

	return fmt.Sprintf(`You are a Kubernetes capacity advisor. Explain the following rightsizing recommendation to an operator in 2-3 sentences. Use only the numbers given; do not invent any.

CPU utilization: %s
Memory utilization: %s
Recommended requests: cpu=%s, memory=%s
Projected monthly savings: $%.2f
Projected monthly carbon reduction: %.0f g CO2e
Risk: %s`,
		cpu, mem,
		quantity.FormatCPU(opp.RecommendedCPU), quantity.FormatMemory(opp.RecommendedMem),
		opp.SavingsUSD, opp.CarbonReductionG, opp.Risk)
}
