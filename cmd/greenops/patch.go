package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/greenops/greenops-advisor/pkg/manifest"
	"github.com/greenops/greenops-advisor/pkg/models"
	"github.com/greenops/greenops-advisor/pkg/patch"
)

// runPatch renders the resource patch for a stored opportunity against
// a manifest file. Only approved opportunities may be rendered; a
// pending one still needs an operator decision.
func runPatch(cmd *cobra.Command, args []string) {
	store, err := openStore()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing storage: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	opp, err := store.GetOpportunity(context.Background(), args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if opp.Status != models.StatusApproved {
		fmt.Fprintf(os.Stderr, "Error: opportunity %s is %s, only approved opportunities can be patched\n",
			opp.ID, opp.Status)
		os.Exit(1)
	}

	doc, err := os.ReadFile(manifestPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading manifest: %v\n", err)
		os.Exit(1)
	}

	specs, err := manifest.Extract(doc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing manifest: %v\n", err)
		os.Exit(1)
	}

	recommendations, err := patch.Allocate(specs, opp.RecommendedCPU, opp.RecommendedMem)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if applyInPlace {
		merged, err := patch.Apply(doc, recommendations, cfg.LimitMultiplier)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error applying patch: %v\n", err)
			os.Exit(1)
		}
		os.Stdout.Write(merged)
		return
	}

	rendered, err := patch.Generate(doc, recommendations, cfg.LimitMultiplier)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating patch: %v\n", err)
		os.Exit(1)
	}
	os.Stdout.Write(rendered.Rendered)
}
