package convert

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/jingkaihe/curate/pkg/logger"
)

type cacheKey struct {
	version   int
	path      string
	kind      Kind
	source    string
	agentMode string
	skipBody  bool
}

type cacheEntry struct {
	modTime time.Time
	output  string
}

// Cache memoises file conversions keyed by path, options and Version. An
// entry is reused only while the file modification time is unchanged.
type Cache struct {
	conv    *Converter
	mu      sync.Mutex
	entries map[cacheKey]cacheEntry
}

// NewCache creates an empty cache around conv
func NewCache(conv *Converter) *Cache {
	return &Cache{
		conv:    conv,
		entries: make(map[cacheKey]cacheEntry),
	}
}

// ConvertFile converts the file at path, returning the cached result when
// the file has not been modified since it was last converted.
func (c *Cache) ConvertFile(ctx context.Context, path string, opts Options) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to stat definition file '%s'", path)
	}
	if info.IsDir() {
		return "", errors.Errorf("definition path '%s' is a directory", path)
	}

	key := cacheKey{
		version:   Version,
		path:      path,
		kind:      opts.Kind,
		source:    opts.Source,
		agentMode: opts.AgentMode,
		skipBody:  opts.SkipBodyTransform,
	}

	c.mu.Lock()
	entry, ok := c.entries[key]
	c.mu.Unlock()
	if ok && entry.modTime.Equal(info.ModTime()) {
		logger.G(ctx).WithField("path", path).Debug("conversion cache hit")
		return entry.output, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to read definition file '%s'", path)
	}

	output, err := c.conv.ConvertContent(ctx, string(content), opts)
	if err != nil {
		return "", errors.Wrapf(err, "failed to convert '%s'", path)
	}

	c.mu.Lock()
	c.entries[key] = cacheEntry{modTime: info.ModTime(), output: output}
	c.mu.Unlock()

	return output, nil
}

// Clear drops every cached conversion
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[cacheKey]cacheEntry)
}

// Len returns the number of cached conversions
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
