package convert

import (
	"regexp"
	"sort"
	"strings"
)

// bodyRule rewrites one pattern in a document body.
type bodyRule struct {
	pattern     *regexp.Regexp
	replacement string
}

// Tool names are only rewritten where context shows the tool is meant:
// "use the Task tool", "Task tool", "`Task`". Plain prose is left alone.
var bodyToolRenames = []struct {
	from, to string
}{
	{from: "Task", to: "delegate_task"},
	{from: "TodoWrite", to: "todowrite"},
	{from: "AskUserQuestion", to: "question"},
	{from: "WebSearch", to: "google_search"},
	{from: "WebFetch", to: "webfetch"},
	{from: "Skill", to: "skill"},
}

const toolVerbs = `(?:[Uu]se|[Uu]sing|[Cc]all|[Cc]alling|[Ii]nvoke|[Ii]nvoking|[Rr]un|[Rr]unning)`

// Order matters: the home directory form must be rewritten before the
// generic project form.
var bodyPathRenames = []struct {
	from, to string
}{
	{from: "~/.claude/", to: "~/.config/opencode/"},
	{from: ".claude/", to: ".opencode/"},
	{from: "CLAUDE.md", to: "AGENTS.md"},
}

// DefaultPrefixReplacements rewrite command and agent namespaces.
var DefaultPrefixReplacements = map[string]string{
	"compound-engineering:": "systematic:",
}

func buildBodyRules(prefixes map[string]string) []bodyRule {
	var rules []bodyRule
	for _, t := range bodyToolRenames {
		name := regexp.QuoteMeta(t.from)
		rules = append(rules,
			bodyRule{
				pattern:     regexp.MustCompile(`(\b` + toolVerbs + `\s+(?:the\s+)?)` + name + `\b`),
				replacement: "${1}" + t.to,
			},
			bodyRule{
				pattern:     regexp.MustCompile(`\b` + name + `(\s+tools?\b)`),
				replacement: t.to + "${1}",
			},
			bodyRule{
				pattern:     regexp.MustCompile("`" + name + "`"),
				replacement: "`" + t.to + "`",
			},
		)
	}

	for _, p := range bodyPathRenames {
		rules = append(rules, literalRule(p.from, p.to))
	}

	for _, from := range sortedKeys(prefixes) {
		rules = append(rules, literalRule(from, prefixes[from]))
	}
	return rules
}

func literalRule(from, to string) bodyRule {
	return bodyRule{
		pattern:     regexp.MustCompile(regexp.QuoteMeta(from)),
		replacement: strings.ReplaceAll(to, "$", "$$"),
	}
}

// sortedKeys orders prefixes longest first so nested namespaces are
// rewritten before their parents.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}

func transformBody(body string, rules []bodyRule) string {
	for _, r := range rules {
		body = r.pattern.ReplaceAllString(body, r.replacement)
	}
	return body
}
