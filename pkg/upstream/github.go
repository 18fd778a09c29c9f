package upstream

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v80/github"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/jingkaihe/curate/pkg/logger"
)

const (
	// DefaultTimeout is the HTTP timeout for a single GitHub request.
	DefaultTimeout = 30 * time.Second

	// DefaultRateLimit is the proactive request rate in requests per second.
	DefaultRateLimit = 5.0
)

// GitHubFetcher reads trees and file contents through the GitHub REST API.
type GitHubFetcher struct {
	client  *gh.Client
	limiter *rate.Limiter
}

// GitHubOption configures a GitHubFetcher.
type GitHubOption func(*GitHubFetcher) error

// WithBaseURL points the fetcher at a different API root, such as a GitHub
// Enterprise server or a test server.
func WithBaseURL(baseURL string) GitHubOption {
	return func(f *GitHubFetcher) error {
		if !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}
		u, err := url.Parse(baseURL)
		if err != nil {
			return errors.Wrapf(err, "invalid GitHub base URL '%s'", baseURL)
		}
		f.client.BaseURL = u
		return nil
	}
}

// WithRateLimit throttles requests to rps per second. A non-positive rps
// disables throttling.
func WithRateLimit(rps float64) GitHubOption {
	return func(f *GitHubFetcher) error {
		if rps <= 0 {
			f.limiter = rate.NewLimiter(rate.Inf, 1)
			return nil
		}
		f.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		return nil
	}
}

// NewGitHubFetcher creates a fetcher. An empty token falls back to
// unauthenticated access, which GitHub rate limits heavily.
func NewGitHubFetcher(ctx context.Context, token string, opts ...GitHubOption) (*GitHubFetcher, error) {
	httpClient := &http.Client{}
	if token != "" {
		httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	} else {
		logger.G(ctx).Warn("no GitHub token configured, upstream requests are unauthenticated")
	}
	httpClient.Timeout = DefaultTimeout

	f := &GitHubFetcher{
		client:  gh.NewClient(httpClient),
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), 1),
	}
	for _, opt := range opts {
		if err := opt(f); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// FetchTree lists every path in repo at branch recursively.
func (f *GitHubFetcher) FetchTree(ctx context.Context, repo, branch string) ([]TreeEntry, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "rate limit wait")
	}

	tree, resp, err := f.client.Git.GetTree(ctx, owner, name, branch, true)
	if err != nil {
		return nil, wrapResponseError(err, resp, "get tree")
	}
	if tree.GetTruncated() {
		logger.G(ctx).WithField("repo", repo).Warn("upstream tree listing was truncated")
	}

	entries := make([]TreeEntry, 0, len(tree.Entries))
	for _, e := range tree.Entries {
		entries = append(entries, TreeEntry{Path: e.GetPath(), Type: e.GetType()})
	}
	return entries, nil
}

// FetchContent returns the decoded content of the file at path.
func (f *GitHubFetcher) FetchContent(ctx context.Context, repo, branch, path string) (string, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return "", err
	}
	if err := f.limiter.Wait(ctx); err != nil {
		return "", errors.Wrap(err, "rate limit wait")
	}

	file, _, resp, err := f.client.Repositories.GetContents(ctx, owner, name, path, &gh.RepositoryContentGetOptions{Ref: branch})
	if err != nil {
		return "", wrapResponseError(err, resp, "get contents")
	}
	if file == nil {
		return "", errors.Errorf("'%s' is a directory, not a file", path)
	}

	content, err := file.GetContent()
	if err != nil {
		return "", errors.Wrapf(err, "failed to decode content of '%s'", path)
	}
	return content, nil
}

func wrapResponseError(err error, resp *gh.Response, op string) error {
	if resp != nil && resp.Response != nil {
		return &StatusError{StatusCode: resp.StatusCode, Err: errors.Wrap(err, op)}
	}
	return errors.Wrap(err, op)
}

func splitRepo(repo string) (string, string, error) {
	owner, name, ok := strings.Cut(repo, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", errors.Errorf("invalid repository '%s', expected owner/name", repo)
	}
	return owner, name, nil
}
