// Package convert maps Claude Code style skill, agent and command
// definitions into OpenCode conventions. Known frontmatter fields are
// rewritten by a fixed rule pipeline per document kind; everything else is
// preserved. Conversion is idempotent.
package convert

import (
	"github.com/pkg/errors"
)

// Version identifies the conversion logic. Bump it whenever a rule changes
// output so cached results and synced manifests are invalidated.
const Version = 3

// Kind is the category of a definition document.
type Kind string

const (
	KindSkill   Kind = "skill"
	KindAgent   Kind = "agent"
	KindCommand Kind = "command"
)

// ParseKind validates a kind name
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindSkill, KindAgent, KindCommand:
		return k, nil
	default:
		return "", errors.Errorf("unknown document kind %q, must be one of: skill, agent, command", s)
	}
}

// Agent modes understood by OpenCode.
const (
	ModePrimary  = "primary"
	ModeSubagent = "subagent"
	ModeAll      = "all"
)

// Options controls a single conversion.
type Options struct {
	Kind Kind
	// AgentMode is applied to agents that do not declare a valid mode.
	// Empty means subagent.
	AgentMode string
	// SkipBodyTransform leaves the body byte-for-byte untouched.
	SkipBodyTransform bool
	// Source labels where the document came from; it only affects caching.
	Source string
}

func (o Options) agentMode() string {
	if o.AgentMode == ModePrimary || o.AgentMode == ModeSubagent {
		return o.AgentMode
	}
	return ModeSubagent
}
