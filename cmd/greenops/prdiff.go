package main

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/greenops/greenops-advisor/pkg/diff"
	"github.com/greenops/greenops-advisor/pkg/github"
	"github.com/greenops/greenops-advisor/pkg/models"
	"github.com/greenops/greenops-advisor/pkg/reporter"
)

// runPRDiff estimates the monthly cost and carbon delta of a pull
// request's manifest changes and optionally posts it back as a comment.
// With two file arguments it diffs local manifests instead.
func runPRDiff(cmd *cobra.Command, args []string) {
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid configuration: %v\n", err)
		os.Exit(1)
	}

	if len(args) == 2 {
		runLocalDiff(args[0], args[1])
		return
	}
	if repo == "" || prNumber == 0 {
		fmt.Fprintln(os.Stderr, "Error: either --repo and --pr, or two manifest files, must be given")
		os.Exit(1)
	}

	ctx := context.Background()
	client := github.NewClient(cfg.GitHubAPIURL, cfg.GitHubToken)

	delta, err := collectPRDelta(ctx, client, repo, prNumber)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if delta == nil {
		fmt.Println("[INFO] No manifest changes in this pull request")
		return
	}

	comment := reporter.RenderPRComment(delta)
	fmt.Println(comment)

	if post {
		if err := client.PostComment(ctx, repo, prNumber, comment); err != nil {
			fmt.Fprintf(os.Stderr, "Error posting comment: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("[INFO] Posted estimate to %s#%d\n", repo, prNumber)
	}
}

// runLocalDiff estimates the delta between two manifest files.
func runLocalDiff(beforePath, afterPath string) {
	before, err := os.ReadFile(beforePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", beforePath, err)
		os.Exit(1)
	}
	after, err := os.ReadFile(afterPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", afterPath, err)
		os.Exit(1)
	}

	delta, err := diff.New(cfg.Rates()).Analyze(before, after)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error analyzing diff: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(reporter.RenderPRComment(delta))
}

// collectPRDelta fetches both versions of every changed manifest and
// prices the difference. Returns nil when the PR touches no manifests.
func collectPRDelta(ctx context.Context, client *github.Client, repo string, number int) (*models.PRDelta, error) {
	pr, err := client.GetPullRequest(ctx, repo, number)
	if err != nil {
		return nil, fmt.Errorf("fetching pull request: %w", err)
	}

	files, err := client.ChangedFiles(ctx, repo, number)
	if err != nil {
		return nil, fmt.Errorf("listing changed files: %w", err)
	}

	var before, after bytes.Buffer
	manifests := 0
	for _, path := range files {
		if !github.IsManifestPath(path) {
			continue
		}

		base, err := client.GetFileAtRef(ctx, repo, path, pr.BaseSHA)
		if err != nil {
			return nil, fmt.Errorf("fetching %s@%s: %w", path, pr.BaseSHA, err)
		}
		head, err := client.GetFileAtRef(ctx, repo, path, pr.HeadSHA)
		if err != nil {
			return nil, fmt.Errorf("fetching %s@%s: %w", path, pr.HeadSHA, err)
		}

		appendDoc(&before, base)
		appendDoc(&after, head)
		manifests++
	}

	if manifests == 0 {
		return nil, nil
	}

	delta, err := diff.New(cfg.Rates()).Analyze(before.Bytes(), after.Bytes())
	if err != nil {
		return nil, fmt.Errorf("analyzing diff: %w", err)
	}
	delta.Repo = repo
	delta.PRNumber = number
	return delta, nil
}

func appendDoc(buf *bytes.Buffer, doc []byte) {
	if len(bytes.TrimSpace(doc)) == 0 {
		return
	}
	if buf.Len() > 0 {
		buf.WriteString("\n---\n")
	}
	buf.Write(doc)
}
