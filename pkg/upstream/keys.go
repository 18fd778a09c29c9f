// Package upstream detects drift between the sync manifest and the live
// upstream repositories definitions were vendored from.
package upstream

import (
	"path"
	"sort"
	"strings"
)

const skillFile = "SKILL.md"

// ToDefinitionKey maps an upstream repository path to the manifest key it
// backs. The first path segment naming a category (agents, commands or
// skills) anchors the key; anything before it is the upstream plugin prefix.
//
// Agents and commands must be markdown files and may be nested. A skill is
// addressed either by its directory or by its root SKILL.md; other files
// inside a skill directory are reachable only through the owning
// definition's files list and yield false.
func ToDefinitionKey(path string) (string, bool) {
	segs := strings.Split(strings.Trim(path, "/"), "/")
	for i, seg := range segs {
		rest := segs[i+1:]
		switch seg {
		case "agents", "commands":
			if len(rest) == 0 {
				return "", false
			}
			last := rest[len(rest)-1]
			if !strings.HasSuffix(last, ".md") || last == ".md" {
				return "", false
			}
			return seg + "/" + strings.TrimSuffix(strings.Join(rest, "/"), ".md"), true
		case "skills":
			switch {
			case len(rest) == 1 && rest[0] != "" && !strings.HasSuffix(rest[0], ".md"):
				return seg + "/" + rest[0], true
			case len(rest) == 2 && rest[0] != "" && rest[1] == skillFile:
				return seg + "/" + rest[0], true
			default:
				return "", false
			}
		}
	}
	return "", false
}

// DefinitionKeys maps every entry of a tree listing to a definition key,
// dropping unrecognised paths. The result is sorted and deduplicated since a
// skill directory and its SKILL.md resolve to the same key. The bare
// skills/<name> form only counts for directories, so files such as
// skills/LICENSE are not mistaken for skills.
func DefinitionKeys(entries []TreeEntry) []string {
	seen := make(map[string]struct{})
	keys := []string{}
	for _, e := range entries {
		key, ok := ToDefinitionKey(e.Path)
		if !ok {
			continue
		}
		if strings.HasPrefix(key, "skills/") && e.Type != "tree" && path.Base(e.Path) != skillFile {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
