package convert

import (
	"math"
	"strings"

	"github.com/jingkaihe/curate/pkg/frontmatter"
)

var validModes = map[string]bool{
	ModePrimary:  true,
	ModeSubagent: true,
	ModeAll:      true,
}

var permissionSettings = map[string]bool{
	"allow": true,
	"ask":   true,
	"deny":  true,
}

var permissionKeys = map[string]bool{
	"edit":               true,
	"bash":               true,
	"webfetch":           true,
	"doom_loop":          true,
	"external_directory": true,
}

// positiveInt reports whether v is a positive, finite whole number.
func positiveInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, n > 0
	case int64:
		return int(n), n > 0
	case uint64:
		return int(n), n > 0 && n <= math.MaxInt32
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) || n <= 0 || n != math.Trunc(n) || n > math.MaxInt32 {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}

func isNumber(v any) bool {
	switch n := v.(type) {
	case int, int64, uint64:
		return true
	case float64:
		return !math.IsNaN(n) && !math.IsInf(n, 0)
	default:
		return false
	}
}

// stringList accepts a YAML list of strings or a comma separated string.
// A list holding anything other than strings is rejected.
func stringList(v any) ([]string, bool) {
	switch t := v.(type) {
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out, true
	case []string:
		return t, true
	case string:
		var out []string
		for _, item := range strings.Split(t, ",") {
			if s := strings.TrimSpace(item); s != "" {
				out = append(out, s)
			}
		}
		return out, true
	default:
		return nil, false
	}
}

// boolMap reports whether v is a mapping whose values are all booleans.
func boolMap(v any) (*frontmatter.Metadata, bool) {
	m, ok := v.(*frontmatter.Metadata)
	if !ok {
		return nil, false
	}
	for _, k := range m.Keys() {
		val, _ := m.Get(k)
		if _, isBool := val.(bool); !isBool {
			return nil, false
		}
	}
	return m, true
}

func isPermissionSetting(v any) bool {
	s, ok := v.(string)
	return ok && permissionSettings[s]
}

// validPermission checks an OpenCode permission block. Every key must be
// known and map to a setting; bash may instead hold a command → setting map.
func validPermission(v any) bool {
	m, ok := v.(*frontmatter.Metadata)
	if !ok {
		return false
	}
	for _, k := range m.Keys() {
		if !permissionKeys[k] {
			return false
		}
		val, _ := m.Get(k)
		if isPermissionSetting(val) {
			continue
		}
		if k != "bash" {
			return false
		}
		commands, ok := val.(*frontmatter.Metadata)
		if !ok {
			return false
		}
		for _, cmd := range commands.Keys() {
			setting, _ := commands.Get(cmd)
			if !isPermissionSetting(setting) {
				return false
			}
		}
	}
	return true
}
