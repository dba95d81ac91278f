// Package github talks to the GitHub REST API for pull-request
// estimation: fetching manifest versions and posting the estimate back
// as a PR comment.
package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"k8s.io/klog/v2"
)

// Client is a minimal GitHub REST client scoped to what PR estimation
// needs. It is safe for concurrent use.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// contentResponse is the contents API payload for a single file.
type contentResponse struct {
	Type     string `json:"type"`
	Encoding string `json:"encoding"`
	Content  string `json:"content"`
}

// PullRequest carries the refs the diff analyzer needs.
type PullRequest struct {
	Number  int
	BaseRef string
	BaseSHA string
	HeadRef string
	HeadSHA string
}

// GetPullRequest fetches the base and head refs of a pull request.
func (c *Client) GetPullRequest(ctx context.Context, repo string, number int) (*PullRequest, error) {
	var payload struct {
		Number int `json:"number"`
		Base   struct {
			Ref string `json:"ref"`
			SHA string `json:"sha"`
		} `json:"base"`
		Head struct {
			Ref string `json:"ref"`
			SHA string `json:"sha"`
		} `json:"head"`
	}

	path := fmt.Sprintf("/repos/%s/pulls/%d", repo, number)
	if err := c.get(ctx, path, &payload); err != nil {
		return nil, err
	}

	return &PullRequest{
		Number:  payload.Number,
		BaseRef: payload.Base.Ref,
		BaseSHA: payload.Base.SHA,
		HeadRef: payload.Head.Ref,
		HeadSHA: payload.Head.SHA,
	}, nil
}

// ChangedFiles lists the paths a pull request touches.
func (c *Client) ChangedFiles(ctx context.Context, repo string, number int) ([]string, error) {
	var payload []struct {
		Filename string `json:"filename"`
		Status   string `json:"status"`
	}

	path := fmt.Sprintf("/repos/%s/pulls/%d/files?per_page=100", repo, number)
	if err := c.get(ctx, path, &payload); err != nil {
		return nil, err
	}

	files := make([]string, 0, len(payload))
	for _, f := range payload {
		files = append(files, f.Filename)
	}
	return files, nil
}

// GetFileAtRef fetches a file's content at a specific ref. A missing
// file (e.g. newly added in the PR) returns nil content, not an error.
func (c *Client) GetFileAtRef(ctx context.Context, repo, path, ref string) ([]byte, error) {
	endpoint := fmt.Sprintf("/repos/%s/contents/%s?ref=%s", repo, url.PathEscape(path), url.QueryEscape(ref))

	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s@%s: %w", path, ref, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}

	var content contentResponse
	if err := json.NewDecoder(resp.Body).Decode(&content); err != nil {
		return nil, fmt.Errorf("failed to decode contents response: %w", err)
	}
	if content.Type != "file" {
		return nil, fmt.Errorf("%s@%s is a %s, not a file", path, ref, content.Type)
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(content.Content, "\n", ""))
	if err != nil {
		return nil, fmt.Errorf("failed to decode file content: %w", err)
	}
	return decoded, nil
}

// PostComment posts a comment on a pull request.
func (c *Client) PostComment(ctx context.Context, repo string, number int, body string) error {
	payload, err := json.Marshal(map[string]string{"body": body})
	if err != nil {
		return err
	}

	path := fmt.Sprintf("/repos/%s/issues/%d/comments", repo, number)
	req, err := c.newRequest(ctx, http.MethodPost, path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post comment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return apiError(resp)
	}

	klog.V(1).Infof("posted comment on %s#%d", repo, number)
	return nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func apiError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("github API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}
