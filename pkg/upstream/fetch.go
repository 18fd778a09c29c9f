package upstream

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/jingkaihe/curate/pkg/logger"
	"github.com/jingkaihe/curate/pkg/manifest"
)

// TreeEntry is one path in a remote tree listing. Type is "blob" for files
// and "tree" for directories.
type TreeEntry struct {
	Path string
	Type string
}

// Fetcher reads a remote repository. FetchContent returns decoded text.
type Fetcher interface {
	FetchTree(ctx context.Context, repo, branch string) ([]TreeEntry, error)
	FetchContent(ctx context.Context, repo, branch, path string) (string, error)
}

// FetchFuncs adapts a pair of functions to Fetcher.
type FetchFuncs struct {
	Tree    func(ctx context.Context, repo, branch string) ([]TreeEntry, error)
	Content func(ctx context.Context, repo, branch, path string) (string, error)
}

func (f FetchFuncs) FetchTree(ctx context.Context, repo, branch string) ([]TreeEntry, error) {
	return f.Tree(ctx, repo, branch)
}

func (f FetchFuncs) FetchContent(ctx context.Context, repo, branch, path string) (string, error) {
	return f.Content(ctx, repo, branch, path)
}

// UpstreamData is the live state of one upstream source. HadError is set
// when any call failed after exhausting retries; Contents then holds only
// what was fetched successfully.
type UpstreamData struct {
	Contents       map[string]string
	DefinitionKeys []string
	HadError       bool
}

// DefaultConcurrency bounds parallel content fetches.
const DefaultConcurrency = 4

// Checker runs change detection against upstream sources.
type Checker struct {
	fetcher     Fetcher
	retry       RetryConfig
	concurrency int
}

// Option configures a Checker.
type Option func(*Checker) error

// WithRetryConfig sets the retry policy for upstream calls.
func WithRetryConfig(cfg RetryConfig) Option {
	return func(c *Checker) error {
		if cfg.Attempts < minAttempts {
			return errors.Errorf("retry attempts must be at least %d, got %d", minAttempts, cfg.Attempts)
		}
		c.retry = cfg
		return nil
	}
}

// WithConcurrency bounds the number of content fetches in flight.
func WithConcurrency(n int) Option {
	return func(c *Checker) error {
		if n < 1 {
			return errors.Errorf("concurrency must be positive, got %d", n)
		}
		c.concurrency = n
		return nil
	}
}

// NewChecker creates a Checker reading upstream through fetcher.
func NewChecker(fetcher Fetcher, opts ...Option) (*Checker, error) {
	if fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	c := &Checker{
		fetcher:     fetcher,
		retry:       DefaultRetryConfig,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// FetchUpstreamData lists the tree of repo at branch once, then fetches the
// requested paths that exist in it. Paths absent from the tree are not
// requested; the summary reports them as missing content.
func (c *Checker) FetchUpstreamData(ctx context.Context, repo, branch string, paths []string) *UpstreamData {
	log := logger.G(ctx).WithField("repo", repo).WithField("branch", branch)
	data := &UpstreamData{
		Contents:       map[string]string{},
		DefinitionKeys: []string{},
	}

	tree, err := withRetry(ctx, c.retry, isTransient, "list tree", func() ([]TreeEntry, error) {
		return c.fetcher.FetchTree(ctx, repo, branch)
	})
	if err != nil {
		log.WithError(err).Error("failed to list upstream tree")
		data.HadError = true
		return data
	}
	data.DefinitionKeys = DefinitionKeys(tree)

	files := make(map[string]struct{}, len(tree))
	for _, e := range tree {
		if e.Type != "tree" {
			files[e.Path] = struct{}{}
		}
	}

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(c.concurrency)

	for _, path := range dedupe(paths) {
		if _, ok := files[path]; !ok {
			log.WithField("path", path).Debug("requested path is not in upstream tree")
			continue
		}
		g.Go(func() error {
			content, err := withRetry(ctx, c.retry, isTransient, "fetch content", func() (string, error) {
				return c.fetcher.FetchContent(ctx, repo, branch, path)
			})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.WithError(err).WithField("path", path).Error("failed to fetch upstream content")
				data.HadError = true
				return nil
			}
			data.Contents[path] = content
			return nil
		})
	}
	_ = g.Wait()

	return data
}

// Check runs change detection for every source in the manifest and merges
// the results. The returned flag reports whether any upstream call failed.
func (c *Checker) Check(ctx context.Context, m *manifest.Manifest, converterVersion int) (*Summary, bool) {
	summary := NewSummary()
	if m == nil {
		return summary, false
	}

	hadError := false
	names := make([]string, 0, len(m.Sources))
	for name := range m.Sources {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, key := range m.Keys() {
		if _, ok := m.Sources[m.Definitions[key].Source]; !ok {
			logger.G(ctx).WithField("key", key).WithField("source", m.Definitions[key].Source).
				Warn("definition references an unknown source, skipping")
		}
	}

	for _, name := range names {
		src := m.Sources[name]
		sub := m.ForSource(name)
		ctx := logger.WithFields(ctx, logrus.Fields{"source": name, "repo": src.Repo})
		logger.G(ctx).WithField("definitions", len(sub.Definitions)).Info("checking upstream source")

		// Paths are fetched for every tracked definition up front so the
		// tree is listed only once.
		data := c.FetchUpstreamData(ctx, src.Repo, src.Branch, RequiredContentPaths(sub, hashedKeys(sub)))
		if data.HadError {
			hadError = true
			if len(data.DefinitionKeys) == 0 {
				// Without a tree every tracked definition would look deleted.
				continue
			}
		}

		summary.Merge(ComputeCheckSummary(CheckInput{
			Manifest:         sub,
			UpstreamKeys:     data.DefinitionKeys,
			Contents:         data.Contents,
			ConverterVersion: converterVersion,
		}))
	}

	// Sources may share a repository, so a key new to one source can be
	// tracked under another.
	untracked := []string{}
	for _, key := range summary.NewUpstream {
		if _, ok := m.Definitions[key]; !ok {
			untracked = append(untracked, key)
		}
	}
	summary.NewUpstream = untracked

	summary.ConverterVersionChanged = m.ConverterVersion == nil || *m.ConverterVersion != converterVersion
	return summary, hadError
}

// hashedKeys are the tracked keys whose content is compared.
func hashedKeys(m *manifest.Manifest) []string {
	keys := []string{}
	for _, key := range m.Keys() {
		if !m.Definitions[key].HasWildcardOverride() {
			keys = append(keys, key)
		}
	}
	return keys
}

func dedupe(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
