package upstream

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToDefinitionKey(t *testing.T) {
	tests := []struct {
		path string
		key  string
		ok   bool
	}{
		{path: "plugins/compound-engineering/agents/review/security-sentinel.md", key: "agents/review/security-sentinel", ok: true},
		{path: "agents/planner.md", key: "agents/planner", ok: true},
		{path: "plugins/x/commands/workflows/plan.md", key: "commands/workflows/plan", ok: true},
		{path: "plugins/x/skills/git-worktree", key: "skills/git-worktree", ok: true},
		{path: "plugins/x/skills/git-worktree/SKILL.md", key: "skills/git-worktree", ok: true},
		{path: "plugins/x/skills/git-worktree/", key: "skills/git-worktree", ok: true},
		{path: "plugins/x/skills/git-worktree/references/usage.md", ok: false},
		{path: "plugins/x/skills/git-worktree/README.md", ok: false},
		{path: "plugins/x/skills/notes.md", ok: false},
		{path: "plugins/x/skills", ok: false},
		{path: "plugins/x/agents/review", ok: false},
		{path: "plugins/x/agents/.md", ok: false},
		{path: "plugins/x/agents", ok: false},
		{path: "plugins/x/README.md", ok: false},
		{path: "", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			key, ok := ToDefinitionKey(tt.path)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.key, key)
		})
	}
}

func TestDefinitionKeys(t *testing.T) {
	entries := []TreeEntry{
		{Path: "plugins/x", Type: "tree"},
		{Path: "plugins/x/skills", Type: "tree"},
		{Path: "plugins/x/skills/brainstorm", Type: "tree"},
		{Path: "plugins/x/skills/brainstorm/SKILL.md", Type: "blob"},
		{Path: "plugins/x/skills/brainstorm/references/a.md", Type: "blob"},
		{Path: "plugins/x/commands/plan.md", Type: "blob"},
		{Path: "plugins/x/agents/review/oracle.md", Type: "blob"},
	}

	assert.Equal(t, []string{"agents/review/oracle", "commands/plan", "skills/brainstorm"}, DefinitionKeys(entries))
	assert.Equal(t, []string{}, DefinitionKeys(nil))
}

func TestDefinitionKeys_SkillFilesAreNotSkills(t *testing.T) {
	entries := []TreeEntry{
		{Path: "plugins/x/skills/LICENSE", Type: "blob"},
		{Path: "skills/.gitkeep", Type: "blob"},
		{Path: "plugins/x/skills/solo/SKILL.md", Type: "blob"},
		{Path: "plugins/x/skills/dir-only", Type: "tree"},
	}

	assert.Equal(t, []string{"skills/dir-only", "skills/solo"}, DefinitionKeys(entries))
}
