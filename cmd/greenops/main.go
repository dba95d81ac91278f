package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/greenops/greenops-advisor/pkg/advisor"
	"github.com/greenops/greenops-advisor/pkg/cluster"
	"github.com/greenops/greenops-advisor/pkg/config"
	"github.com/greenops/greenops-advisor/pkg/datasource"
	"github.com/greenops/greenops-advisor/pkg/detector"
	"github.com/greenops/greenops-advisor/pkg/engine"
	"github.com/greenops/greenops-advisor/pkg/models"
	"github.com/greenops/greenops-advisor/pkg/reporter"
	"github.com/greenops/greenops-advisor/pkg/storage"
)

var (
	// Analyze flags
	namespace    string
	outputFormat string
	saveResults  bool

	// List flags
	statusFilter string
	typeFilter   string
	listLimit    int

	// Patch flags
	manifestPath string
	applyInPlace bool

	// PR diff flags
	repo     string
	prNumber int
	post     bool

	cfg *config.Config
)

func main() {
	cfg = config.NewConfig()

	rootCmd := &cobra.Command{
		Use:   "greenops",
		Short: "Kubernetes cost and carbon opportunity analysis",
		Long:  `Analyze workload utilization against requests, detect rightsizing opportunities, and estimate the cost and carbon impact of manifest changes.`,
	}

	analyzeCmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run an analysis over the cluster's workloads",
		Run:   runAnalyze,
	}
	analyzeCmd.Flags().StringVarP(&namespace, "namespace", "n", "", "Namespace to analyze (all namespaces when empty)")
	analyzeCmd.Flags().StringVarP(&outputFormat, "output", "o", "text", "Output format: text, markdown, csv")
	analyzeCmd.Flags().BoolVar(&saveResults, "save", true, "Persist opportunities to the database")

	opportunitiesCmd := &cobra.Command{
		Use:   "opportunities",
		Short: "Inspect and manage detected opportunities",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List stored opportunities",
		Run:   runList,
	}
	listCmd.Flags().StringVar(&statusFilter, "status", "", "Filter by status: pending, approved, applied, rejected")
	listCmd.Flags().StringVar(&typeFilter, "type", "", "Filter by type: rightsizing, scheduling, image-optimization")
	listCmd.Flags().IntVar(&listLimit, "limit", 20, "Maximum rows to show")

	opportunitiesCmd.AddCommand(listCmd)
	for _, target := range []models.OpportunityStatus{models.StatusApproved, models.StatusRejected, models.StatusApplied} {
		opportunitiesCmd.AddCommand(transitionCommand(target))
	}

	patchCmd := &cobra.Command{
		Use:   "patch <opportunity-id>",
		Short: "Render a resource patch for an approved opportunity",
		Args:  cobra.ExactArgs(1),
		Run:   runPatch,
	}
	patchCmd.Flags().StringVarP(&manifestPath, "manifest", "f", "", "Workload manifest to patch (required)")
	patchCmd.Flags().BoolVar(&applyInPlace, "apply", false, "Print the fully merged manifest instead of the minimal patch")
	patchCmd.MarkFlagRequired("manifest")

	prDiffCmd := &cobra.Command{
		Use:   "pr-diff [<before.yaml> <after.yaml>]",
		Short: "Estimate the cost and carbon impact of a manifest change",
		Long:  `Estimate the monthly cost and carbon delta of a manifest change, either from a GitHub pull request (--repo/--pr) or from two local manifest files.`,
		Args:  cobra.MaximumNArgs(2),
		Run:   runPRDiff,
	}
	prDiffCmd.Flags().StringVar(&repo, "repo", "", "Repository as owner/name")
	prDiffCmd.Flags().IntVar(&prNumber, "pr", 0, "Pull request number")
	prDiffCmd.Flags().BoolVar(&post, "post", false, "Post the estimate as a PR comment")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(opportunitiesCmd)
	rootCmd.AddCommand(patchCmd)
	rootCmd.AddCommand(prDiffCmd)
	rootCmd.AddCommand(serveCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openStore() (storage.Store, error) {
	if !cfg.StorageEnabled {
		fmt.Println("[INFO] Storage disabled, results will not persist")
		return storage.NewMemoryStore(), nil
	}
	return storage.NewPostgresStore(cfg.DatabaseURL)
}

func runAnalyze(cmd *cobra.Command, args []string) {
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid configuration: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	client, err := cluster.New(cfg.ClusterName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to cluster: %v\n", err)
		os.Exit(1)
	}

	var store storage.Store
	if saveResults {
		store, err = openStore()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error initializing storage: %v\n", err)
			os.Exit(1)
		}
	} else {
		store = storage.NewMemoryStore()
	}
	defer store.Close()

	source := chooseSampleSource(ctx, client)
	fmt.Printf("[INFO] Metrics source: %s\n", source.Name())
	fmt.Printf("[INFO] Analysis window: %dh, safety buffer: %.2fx\n", cfg.WindowHours, cfg.SafetyBuffer)

	e := engine.New(client, source, detector.New(cfg), store, cfg)
	if cfg.AdvisorEnabled {
		fmt.Printf("[INFO] Explanation enrichment enabled (%s)\n", cfg.AdvisorModel)
		e.WithEnricher(advisor.New(cfg.AdvisorURL, cfg.AdvisorModel, cfg.AdvisorTimeout))
	}

	report, err := e.Run(ctx, namespace)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error running analysis: %v\n", err)
		os.Exit(1)
	}

	if err := reporter.New(reporter.ReportFormat(outputFormat)).Write(report, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing report: %v\n", err)
		os.Exit(1)
	}
}

// chooseSampleSource prefers Prometheus and falls back to the
// metrics-server instant readings when it is unreachable.
func chooseSampleSource(ctx context.Context, client *cluster.Client) datasource.SampleSource {
	if cfg.PrometheusURL != "" {
		prom, err := datasource.NewPrometheusSource(cfg.PrometheusURL, cfg.Rates())
		if err == nil && prom.IsAvailable(ctx) {
			return prom
		}
		if err != nil {
			fmt.Printf("[WARN] Prometheus initialization failed: %v\n", err)
		} else {
			fmt.Printf("[WARN] Prometheus at %s not reachable\n", cfg.PrometheusURL)
		}
		fmt.Println("[INFO] Falling back to metrics-server")
	}
	return datasource.NewMetricsServerSource(client.Clientset(), client.MetricsClient(), cfg.Rates())
}

func runList(cmd *cobra.Command, args []string) {
	store, err := openStore()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing storage: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	opportunities, err := store.ListOpportunities(context.Background(), storage.ListFilter{
		Status: models.OpportunityStatus(statusFilter),
		Type:   models.OpportunityType(typeFilter),
		Limit:  listLimit,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing opportunities: %v\n", err)
		os.Exit(1)
	}

	if len(opportunities) == 0 {
		fmt.Println("[INFO] No opportunities found")
		return
	}

	for _, opp := range opportunities {
		fmt.Printf("%s  %-10s %-14s $%8.2f/mo  %7.0f g/mo  %s risk  %.0f%%\n",
			opp.ID, opp.Status, opp.Type, opp.SavingsUSD, opp.CarbonReductionG, opp.Risk, opp.Confidence*100)
		fmt.Printf("    %s\n", opp.Explanation)
	}
}

// transitionCommand builds approve/reject/apply as uniform commands.
func transitionCommand(target models.OpportunityStatus) *cobra.Command {
	verb := map[models.OpportunityStatus]string{
		models.StatusApproved: "approve",
		models.StatusRejected: "reject",
		models.StatusApplied:  "apply",
	}[target]

	return &cobra.Command{
		Use:   verb + " <opportunity-id>",
		Short: fmt.Sprintf("Mark a pending opportunity as %s", target),
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			store, err := openStore()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error initializing storage: %v\n", err)
				os.Exit(1)
			}
			defer store.Close()

			opp, err := store.TransitionOpportunity(context.Background(), args[0], target)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("[INFO] Opportunity %s is now %s\n", opp.ID, opp.Status)
		},
	}
}
