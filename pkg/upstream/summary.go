package upstream

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jingkaihe/curate/pkg/manifest"
)

// Exit codes reported by a check.
const (
	ExitNoChanges = 0
	ExitChanges   = 1
	ExitError     = 2
)

// Summary classifies the differences between the manifest and upstream.
// Every slice is sorted and non-nil so the JSON form is stable.
type Summary struct {
	HashChanges             []string `json:"hash_changes"`
	NewUpstream             []string `json:"new_upstream"`
	Deletions               []string `json:"deletions"`
	ConverterVersionChanged bool     `json:"converter_version_changed"`
	Skipped                 []string `json:"skipped"`
	Errors                  []string `json:"errors"`
}

// NewSummary returns an empty summary.
func NewSummary() *Summary {
	return &Summary{
		HashChanges: []string{},
		NewUpstream: []string{},
		Deletions:   []string{},
		Skipped:     []string{},
		Errors:      []string{},
	}
}

// CheckInput is everything ComputeCheckSummary needs. Contents is keyed by
// upstream path.
type CheckInput struct {
	Manifest         *manifest.Manifest
	UpstreamKeys     []string
	Contents         map[string]string
	ConverterVersion int
}

// RequiredContentPaths lists the upstream paths whose content must be
// fetched to hash the tracked definitions among upstreamKeys. Multi-file
// definitions contribute one path per file in manifest order.
func RequiredContentPaths(m *manifest.Manifest, upstreamKeys []string) []string {
	paths := []string{}
	if m == nil {
		return paths
	}
	for _, key := range upstreamKeys {
		def, ok := m.Definitions[key]
		if !ok {
			continue
		}
		paths = append(paths, def.ContentPaths()...)
	}
	return paths
}

// ComputeCheckSummary compares tracked definitions against upstream. A nil
// manifest is treated as one that tracks nothing.
func ComputeCheckSummary(in CheckInput) *Summary {
	s := NewSummary()

	m := in.Manifest
	if m == nil {
		m = &manifest.Manifest{}
	}

	upstream := make(map[string]struct{}, len(in.UpstreamKeys))
	for _, key := range in.UpstreamKeys {
		upstream[key] = struct{}{}
	}

	for _, key := range m.Keys() {
		def := m.Definitions[key]
		if _, ok := upstream[key]; !ok {
			s.Deletions = append(s.Deletions, key)
			continue
		}
		if def.HasWildcardOverride() {
			s.Skipped = append(s.Skipped, key)
			continue
		}

		parts, missing := collectContents(def, in.Contents)
		if len(missing) > 0 {
			s.Errors = append(s.Errors, missingContentError(key, def, missing))
			continue
		}

		var hash string
		if len(def.Files) == 0 {
			hash = manifest.ContentHash(parts[0])
		} else {
			hash = manifest.AggregateHash(parts)
		}
		if hash != def.UpstreamContentHash {
			s.HashChanges = append(s.HashChanges, key)
		}
	}

	for key := range upstream {
		if _, ok := m.Definitions[key]; !ok {
			s.NewUpstream = append(s.NewUpstream, key)
		}
	}

	if in.Manifest != nil {
		stored := in.Manifest.ConverterVersion
		s.ConverterVersionChanged = stored == nil || *stored != in.ConverterVersion
	}

	s.sort()
	return s
}

func collectContents(def manifest.Definition, contents map[string]string) (parts, missing []string) {
	for _, path := range def.ContentPaths() {
		content, ok := contents[path]
		if !ok {
			missing = append(missing, path)
			continue
		}
		parts = append(parts, content)
	}
	return parts, missing
}

func missingContentError(key string, def manifest.Definition, missing []string) string {
	if len(def.Files) == 0 {
		return fmt.Sprintf("%s: upstream content missing for %s", key, missing[0])
	}
	return fmt.Sprintf("%s: upstream content missing for %d of %d files: %s",
		key, len(missing), len(def.Files), strings.Join(missing, ", "))
}

// HasChanges reports whether a sync is needed. Skipped definitions and
// errors do not count.
func HasChanges(s *Summary) bool {
	return len(s.HashChanges) > 0 ||
		len(s.NewUpstream) > 0 ||
		len(s.Deletions) > 0 ||
		s.ConverterVersionChanged
}

// ExitCode maps a summary to the process exit status: ExitError when
// anything failed, ExitChanges when a sync is needed and ExitNoChanges
// otherwise.
func ExitCode(s *Summary, hadFetchError bool) int {
	switch {
	case hadFetchError || len(s.Errors) > 0:
		return ExitError
	case HasChanges(s):
		return ExitChanges
	default:
		return ExitNoChanges
	}
}

// Merge folds other into s.
func (s *Summary) Merge(other *Summary) {
	if other == nil {
		return
	}
	s.HashChanges = append(s.HashChanges, other.HashChanges...)
	s.NewUpstream = append(s.NewUpstream, other.NewUpstream...)
	s.Deletions = append(s.Deletions, other.Deletions...)
	s.Skipped = append(s.Skipped, other.Skipped...)
	s.Errors = append(s.Errors, other.Errors...)
	s.ConverterVersionChanged = s.ConverterVersionChanged || other.ConverterVersionChanged
	s.sort()
}

func (s *Summary) sort() {
	for _, list := range [][]string{s.HashChanges, s.NewUpstream, s.Deletions, s.Skipped, s.Errors} {
		sort.Strings(list)
	}
}
