// Package catalog enumerates the definitions stored in a local tree laid out
// as agents/, commands/ and skills/<name>/SKILL.md.
package catalog

import (
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"

	"github.com/jingkaihe/curate/pkg/convert"
)

const skillFileName = "SKILL.md"

var patterns = []struct {
	glob string
	kind convert.Kind
}{
	{glob: "agents/**/*.md", kind: convert.KindAgent},
	{glob: "commands/**/*.md", kind: convert.KindCommand},
	{glob: "skills/*/" + skillFileName, kind: convert.KindSkill},
}

// Entry is one definition found on disk. Path is slash separated and
// relative to the catalog root. Resources lists the other files of a skill
// directory, relative to the root as well.
type Entry struct {
	Key       string
	Kind      convert.Kind
	Path      string
	Resources []string
}

// Discover walks root and returns its definitions sorted by key.
func Discover(root string) ([]Entry, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read catalog root '%s'", root)
	}
	if !info.IsDir() {
		return nil, errors.Errorf("catalog root '%s' is not a directory", root)
	}
	return DiscoverFS(os.DirFS(root))
}

// DiscoverFS is Discover over an arbitrary file system.
func DiscoverFS(fsys fs.FS) ([]Entry, error) {
	var entries []Entry
	for _, p := range patterns {
		matches, err := doublestar.Glob(fsys, p.glob, doublestar.WithFilesOnly())
		if err != nil {
			return nil, errors.Wrapf(err, "failed to glob '%s'", p.glob)
		}
		for _, match := range matches {
			entry := Entry{Key: keyFor(match, p.kind), Kind: p.kind, Path: match}
			if p.kind == convert.KindSkill {
				if entry.Resources, err = skillResources(fsys, path.Dir(match)); err != nil {
					return nil, err
				}
			}
			entries = append(entries, entry)
		}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, nil
}

func keyFor(match string, kind convert.Kind) string {
	if kind == convert.KindSkill {
		return path.Dir(match)
	}
	return strings.TrimSuffix(match, ".md")
}

func skillResources(fsys fs.FS, dir string) ([]string, error) {
	files, err := doublestar.Glob(fsys, dir+"/**", doublestar.WithFilesOnly())
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list skill resources in '%s'", dir)
	}
	resources := []string{}
	for _, f := range files {
		if f != dir+"/"+skillFileName {
			resources = append(resources, f)
		}
	}
	sort.Strings(resources)
	return resources, nil
}

// Keys returns the manifest keys of entries.
func Keys(entries []Entry) []string {
	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.Key
	}
	return keys
}

// Find returns the entry whose Path is rel, if any.
func Find(entries []Entry, rel string) (Entry, bool) {
	rel = path.Clean(strings.ReplaceAll(rel, "\\", "/"))
	for _, e := range entries {
		if e.Path == rel {
			return e, true
		}
	}
	return Entry{}, false
}
