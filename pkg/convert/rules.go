package convert

import (
	"strings"

	"github.com/jingkaihe/curate/pkg/frontmatter"
)

// rule is a single frontmatter transformation. Rules never mutate their
// input and only touch the keys they own.
type rule func(in *frontmatter.Metadata, opts Options) *frontmatter.Metadata

var pipelines = map[Kind][]rule{
	KindAgent: {
		normalizeModel,
		mapAgentMode,
		inferTemperature,
		mapTools,
		migrateSteps,
		mapPermission,
		mapHidden,
	},
	KindSkill: {
		normalizeModel,
		mapSkillContext,
	},
	KindCommand: {
		normalizeModel,
	},
}

// applyRules runs the pipeline for opts.Kind. Fields not owned by any rule
// pass through by value.
func applyRules(fm *frontmatter.Metadata, opts Options) *frontmatter.Metadata {
	out := fm.Clone()
	for _, r := range pipelines[opts.Kind] {
		out = r(out, opts)
	}
	return out
}

var modelVendors = []struct {
	prefixes []string
	vendor   string
}{
	{prefixes: []string{"claude"}, vendor: "anthropic"},
	{prefixes: []string{"gpt", "o1", "o3"}, vendor: "openai"},
	{prefixes: []string{"gemini"}, vendor: "google"},
}

const defaultModelVendor = "anthropic"

// NormalizeModel qualifies a bare model id with its vendor. The second
// return is false when the field should be removed ("inherit").
func NormalizeModel(model string) (string, bool) {
	if model == "inherit" {
		return "", false
	}
	if model == "" || strings.Contains(model, "/") {
		return model, true
	}
	lower := strings.ToLower(model)
	for _, v := range modelVendors {
		for _, p := range v.prefixes {
			if strings.HasPrefix(lower, p) {
				return v.vendor + "/" + model, true
			}
		}
	}
	return defaultModelVendor + "/" + model, true
}

func normalizeModel(in *frontmatter.Metadata, _ Options) *frontmatter.Metadata {
	v, ok := in.Get("model")
	if !ok {
		return in
	}
	model, ok := v.(string)
	if !ok {
		return in
	}
	out := in.Clone()
	if normalized, keep := NormalizeModel(model); keep {
		out.Set("model", normalized)
	} else {
		out.Delete("model")
	}
	return out
}

func mapAgentMode(in *frontmatter.Metadata, opts Options) *frontmatter.Metadata {
	if v, ok := in.Get("mode"); ok {
		if s, isStr := v.(string); isStr && validModes[s] {
			return in
		}
	}
	out := in.Clone()
	out.Set("mode", opts.agentMode())
	return out
}

var temperatureTable = []struct {
	keywords    []string
	temperature float64
}{
	{keywords: []string{"review", "audit", "security", "sentinel", "oracle", "lint", "verification"}, temperature: 0.1},
	{keywords: []string{"plan", "planning", "architecture", "strategist", "analysis", "research"}, temperature: 0.2},
	{keywords: []string{"doc", "readme", "changelog", "editor", "writer"}, temperature: 0.3},
	{keywords: []string{"brainstorm", "creative", "ideate", "design", "concept"}, temperature: 0.6},
}

const defaultTemperature = 0.3

// InferTemperature picks a sampling temperature from keywords in an
// agent's name and description. The first matching row wins.
func InferTemperature(name, description string) float64 {
	text := strings.ToLower(name + " " + description)
	for _, row := range temperatureTable {
		for _, kw := range row.keywords {
			if strings.Contains(text, kw) {
				return row.temperature
			}
		}
	}
	return defaultTemperature
}

func inferTemperature(in *frontmatter.Metadata, _ Options) *frontmatter.Metadata {
	if v, ok := in.Get("temperature"); ok && isNumber(v) {
		return in
	}
	name, _ := in.Get("name")
	description, _ := in.Get("description")
	nameStr, _ := name.(string)
	descStr, _ := description.(string)

	out := in.Clone()
	out.Set("temperature", InferTemperature(nameStr, descStr))
	return out
}

var toolRenames = map[string]string{
	"task":            "delegate_task",
	"todowrite":       "todowrite",
	"askuserquestion": "question",
	"websearch":       "google_search",
	"webfetch":        "webfetch",
	"skill":           "skill",
}

// CanonicalToolName lowercases a tool name and applies the rename table.
// Unknown names pass through lowercased.
func CanonicalToolName(name string) string {
	lower := strings.ToLower(strings.TrimSpace(name))
	if renamed, ok := toolRenames[lower]; ok {
		return renamed
	}
	return lower
}

// mapTools turns a tools list into a name → enabled map and folds in
// disallowedTools as disabled entries. A tools map with non-boolean values
// is hand-written and left alone, and disallowedTools is not merged into it.
func mapTools(in *frontmatter.Metadata, _ Options) *frontmatter.Metadata {
	rawTools, hasTools := in.Get("tools")
	rawDisallowed, hasDisallowed := in.Get("disallowedTools")
	if !hasTools && !hasDisallowed {
		return in
	}

	out := in.Clone()
	var tools *frontmatter.Metadata
	mergeable := true

	if hasTools {
		if m, ok := boolMap(rawTools); ok {
			tools = m.Clone()
		} else if names, ok := stringList(rawTools); ok {
			if len(names) > 0 {
				tools = frontmatter.NewMetadata()
				for _, n := range names {
					tools.Set(CanonicalToolName(n), true)
				}
			}
		} else {
			mergeable = false
		}
	}

	if hasDisallowed && mergeable {
		if names, ok := stringList(rawDisallowed); ok {
			for _, n := range names {
				if tools == nil {
					tools = frontmatter.NewMetadata()
				}
				tools.Set(CanonicalToolName(n), false)
			}
		}
	}
	out.Delete("disallowedTools")

	if !mergeable {
		return out
	}
	if tools == nil {
		out.Delete("tools")
	} else {
		out.Set("tools", tools)
	}
	return out
}

// migrateSteps renames the legacy turn limits to steps. A valid steps
// value wins and makes the legacy fields redundant. Invalid legacy values
// are kept so they stay visible.
func migrateSteps(in *frontmatter.Metadata, _ Options) *frontmatter.Metadata {
	if v, ok := in.Get("steps"); ok {
		if _, valid := positiveInt(v); valid {
			if !in.Has("maxTurns") && !in.Has("maxSteps") {
				return in
			}
			out := in.Clone()
			out.Delete("maxTurns")
			out.Delete("maxSteps")
			return out
		}
	}

	steps := 0
	for _, key := range []string{"maxTurns", "maxSteps"} {
		v, ok := in.Get(key)
		if !ok {
			continue
		}
		if n, valid := positiveInt(v); valid && (steps == 0 || n < steps) {
			steps = n
		}
	}
	if steps == 0 {
		return in
	}

	out := in.Clone()
	out.Set("steps", steps)
	out.Delete("maxTurns")
	out.Delete("maxSteps")
	return out
}

func permissionPreset(edit, bash, webfetch string) *frontmatter.Metadata {
	p := frontmatter.NewMetadata()
	p.Set("edit", edit)
	p.Set("bash", bash)
	p.Set("webfetch", webfetch)
	return p
}

// PermissionForMode maps a Claude permissionMode to an OpenCode permission
// block. Unknown modes get the default (ask everything) preset.
func PermissionForMode(mode string) *frontmatter.Metadata {
	switch mode {
	case "full", "bypassPermissions":
		return permissionPreset("allow", "allow", "allow")
	case "plan":
		return permissionPreset("deny", "deny", "ask")
	default:
		return permissionPreset("ask", "ask", "ask")
	}
}

func mapPermission(in *frontmatter.Metadata, _ Options) *frontmatter.Metadata {
	perm, hasPerm := in.Get("permission")
	rawMode, hasMode := in.Get("permissionMode")
	if !hasPerm && !hasMode {
		return in
	}

	out := in.Clone()
	if hasPerm {
		if validPermission(perm) {
			out.Delete("permissionMode")
			return out
		}
		out.Delete("permission")
	}
	if hasMode {
		mode, _ := rawMode.(string)
		out.Set("permission", PermissionForMode(mode))
		out.Delete("permissionMode")
	}
	return out
}

var hiddenKeys = []string{"disable-model-invocation", "disableModelInvocation"}

func mapHidden(in *frontmatter.Metadata, _ Options) *frontmatter.Metadata {
	out := in
	hidden := false
	for _, key := range hiddenKeys {
		v, ok := in.Get(key)
		if !ok {
			continue
		}
		b, isBool := v.(bool)
		if !isBool {
			continue
		}
		if out == in {
			out = in.Clone()
		}
		hidden = hidden || b
		out.Delete(key)
	}
	if hidden {
		out.Set("hidden", true)
	}
	return out
}

func mapSkillContext(in *frontmatter.Metadata, _ Options) *frontmatter.Metadata {
	v, ok := in.Get("context")
	if !ok || v != "fork" {
		return in
	}
	if sub, ok := in.Get("subtask"); ok && sub == true {
		return in
	}
	out := in.Clone()
	out.Set("subtask", true)
	return out
}
