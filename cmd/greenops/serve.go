package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/greenops/greenops-advisor/pkg/advisor"
	"github.com/greenops/greenops-advisor/pkg/cluster"
	"github.com/greenops/greenops-advisor/pkg/detector"
	"github.com/greenops/greenops-advisor/pkg/engine"
	"github.com/greenops/greenops-advisor/pkg/github"
	"github.com/greenops/greenops-advisor/pkg/observability"
	"github.com/greenops/greenops-advisor/pkg/reporter"
)

var (
	listenAddr       string
	analysisInterval time.Duration
)

func serveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the GitHub webhook and metrics endpoints",
		Run:   runServe,
	}
	cmd.Flags().StringVar(&listenAddr, "listen", ":8080", "Address to listen on")
	cmd.Flags().DurationVar(&analysisInterval, "analysis-interval", 0, "Run a full cluster analysis on this interval (disabled when 0)")
	return cmd
}

// analysisLoop runs full cluster analyses on a fixed interval,
// feeding the exported metrics. The webhook stays up even when the
// cluster is unreachable.
func analysisLoop(metrics *observability.Metrics) {
	client, err := cluster.New(cfg.ClusterName)
	if err != nil {
		klog.Errorf("periodic analysis disabled, cluster unreachable: %v", err)
		return
	}

	store, err := openStore()
	if err != nil {
		klog.Errorf("periodic analysis disabled, storage unavailable: %v", err)
		return
	}

	ctx := context.Background()
	e := engine.New(client, chooseSampleSource(ctx, client), detector.New(cfg), store, cfg).
		WithMetrics(metrics)
	if cfg.AdvisorEnabled {
		e.WithEnricher(advisor.New(cfg.AdvisorURL, cfg.AdvisorModel, cfg.AdvisorTimeout))
	}

	ticker := time.NewTicker(analysisInterval)
	defer ticker.Stop()

	for {
		report, err := e.Run(ctx, "")
		if err != nil {
			klog.Errorf("periodic analysis failed: %v", err)
		} else {
			klog.Infof("periodic analysis: %d analyzed, %d opportunities, $%.2f/month projected",
				report.Analyzed, report.Opportunities, report.TotalSavingsUSD)
		}
		<-ticker.C
	}
}

// webhookEvent is the subset of the pull_request event payload the
// estimator needs.
type webhookEvent struct {
	Action      string `json:"action"`
	Number      int    `json:"number"`
	PullRequest struct {
		Number int `json:"number"`
	} `json:"pull_request"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
}

func runServe(cmd *cobra.Command, args []string) {
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid configuration: %v\n", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	metrics := observability.New(registry)

	client := github.NewClient(cfg.GitHubAPIURL, cfg.GitHubToken)

	if analysisInterval > 0 {
		go analysisLoop(metrics)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler(registry))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/webhook", func(w http.ResponseWriter, r *http.Request) {
		handleWebhook(w, r, client)
	})

	fmt.Printf("[INFO] Listening on %s\n", listenAddr)
	if err := http.ListenAndServe(listenAddr, mux); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// handleWebhook verifies the payload signature and posts a cost/carbon
// estimate on opened or updated pull requests.
func handleWebhook(w http.ResponseWriter, r *http.Request, client *github.Client) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "failed to read payload", http.StatusBadRequest)
		return
	}

	if err := github.VerifySignature(cfg.GitHubWebhookSecret, r.Header.Get("X-Hub-Signature-256"), payload); err != nil {
		klog.Warningf("rejected webhook: %v", err)
		http.Error(w, "signature mismatch", http.StatusUnauthorized)
		return
	}

	if event := r.Header.Get("X-GitHub-Event"); event != "pull_request" {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	var evt webhookEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}
	if evt.Action != "opened" && evt.Action != "synchronize" && evt.Action != "reopened" {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	number := evt.PullRequest.Number
	if number == 0 {
		number = evt.Number
	}

	// Estimation runs out of band; GitHub expects a fast response.
	go func() {
		if err := estimatePR(context.Background(), client, evt.Repository.FullName, number); err != nil {
			klog.Errorf("estimation for %s#%d failed: %v", evt.Repository.FullName, number, err)
		}
	}()

	w.WriteHeader(http.StatusAccepted)
}

// estimatePR fetches the PR's manifest changes, prices them, and posts
// the estimate as a comment.
func estimatePR(ctx context.Context, client *github.Client, repo string, number int) error {
	delta, err := collectPRDelta(ctx, client, repo, number)
	if err != nil {
		return err
	}
	if delta == nil {
		klog.V(1).Infof("no manifest changes in %s#%d", repo, number)
		return nil
	}

	return client.PostComment(ctx, repo, number, reporter.RenderPRComment(delta))
}
