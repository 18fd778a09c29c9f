package manifest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validManifest = `{
  "$schema": "./sync-manifest.schema.json",
  "converter_version": 3,
  "sources": {
    "cep": {
      "repo": "EveryInc/compound-engineering-plugin",
      "branch": "main",
      "url": "https://github.com/EveryInc/compound-engineering-plugin"
    }
  },
  "definitions": {
    "agents/review/security-sentinel": {
      "source": "cep",
      "upstream_path": "plugins/compound-engineering/agents/review/security-sentinel.md",
      "upstream_commit": "abc123",
      "synced_at": "2026-01-01T00:00:00Z",
      "notes": "",
      "upstream_content_hash": "deadbeef"
    },
    "skills/git-worktree": {
      "source": "cep",
      "upstream_path": "plugins/compound-engineering/skills/git-worktree",
      "upstream_commit": "abc123",
      "synced_at": "2026-01-01T00:00:00Z",
      "notes": "multi-file",
      "files": ["SKILL.md", "references/usage.md"],
      "manual_overrides": [
        {"field": "description", "reason": "tightened wording", "original": "Old text", "overridden_at": "2026-01-02T00:00:00Z"}
      ]
    }
  }
}
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRead(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	t.Run("valid", func(t *testing.T) {
		m := Read(ctx, writeFile(t, dir, "valid.json", validManifest))
		require.NotNil(t, m)
		require.NotNil(t, m.ConverterVersion)
		assert.Equal(t, 3, *m.ConverterVersion)
		assert.Equal(t, "./sync-manifest.schema.json", m.Schema)
		assert.Equal(t, "main", m.Sources["cep"].Branch)

		skill := m.Definitions["skills/git-worktree"]
		assert.Equal(t, []string{"SKILL.md", "references/usage.md"}, skill.Files)
		require.Len(t, skill.ManualOverrides, 1)
		assert.Equal(t, "description", skill.ManualOverrides[0].Field)
		assert.Equal(t, "Old text", skill.ManualOverrides[0].Original)
	})

	t.Run("missing file", func(t *testing.T) {
		assert.Nil(t, Read(ctx, filepath.Join(dir, "nope.json")))
	})

	t.Run("invalid json", func(t *testing.T) {
		assert.Nil(t, Read(ctx, writeFile(t, dir, "broken.json", `{"sources": {`)))
	})

	t.Run("missing definitions", func(t *testing.T) {
		assert.Nil(t, Read(ctx, writeFile(t, dir, "partial.json", `{"sources": {}}`)))
	})

	t.Run("legacy overrides", func(t *testing.T) {
		legacy := `{"sources": {}, "definitions": {"agents/x": {
			"source": "cep", "upstream_path": "agents/x.md", "upstream_commit": "a",
			"synced_at": "2026-01-01T00:00:00Z", "notes": "", "manual_overrides": ["description"]}}}`
		assert.Nil(t, Read(ctx, writeFile(t, dir, "legacy.json", legacy)))
	})
}

func TestValidate(t *testing.T) {
	definition := func(extra string) string {
		return `{"sources": {}, "definitions": {"agents/x": {
			"source": "cep", "upstream_path": "agents/x.md", "upstream_commit": "a",
			"synced_at": "2026-01-01T00:00:00Z", "notes": ""` + extra + `}}}`
	}

	tests := []struct {
		name  string
		data  string
		valid bool
	}{
		{name: "full manifest", data: validManifest, valid: true},
		{name: "minimal", data: `{"sources": {}, "definitions": {}}`, valid: true},
		{name: "orphaned source reference allowed", data: definition(""), valid: true},
		{name: "structured override", data: definition(`, "manual_overrides": [{"field": "*", "reason": "owned", "overridden_at": "2026-01-01"}]`), valid: true},
		{name: "legacy string overrides rejected", data: definition(`, "manual_overrides": ["description"]`), valid: false},
		{name: "override missing reason", data: definition(`, "manual_overrides": [{"field": "x", "overridden_at": "2026-01-01"}]`), valid: false},
		{name: "files must be strings", data: definition(`, "files": [1, 2]`), valid: false},
		{name: "missing sources", data: `{"definitions": {}}`, valid: false},
		{name: "sources not an object", data: `{"sources": [], "definitions": {}}`, valid: false},
		{name: "definition missing notes", data: `{"sources": {}, "definitions": {"a": {"source": "s", "upstream_path": "p", "upstream_commit": "c", "synced_at": "t"}}}`, valid: false},
		{name: "source missing branch", data: `{"sources": {"s": {"repo": "o/r", "url": ""}}, "definitions": {}}`, valid: false},
		{name: "not json", data: `nope`, valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, Validate([]byte(tt.data)))
		})
	}
}

func TestValidate_Struct(t *testing.T) {
	m := New(3)
	m.Definitions["commands/plan"] = Definition{Source: "cep", UpstreamPath: "commands/plan.md", UpstreamCommit: "c", SyncedAt: "t"}
	assert.True(t, Validate(m))

	assert.False(t, Validate(&Manifest{}), "nil maps marshal to null")
	assert.False(t, Validate(map[string]any{"sources": map[string]any{}}))
}

func TestWrite_Stable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "sync-manifest.json")

	m := Read(context.Background(), writeFile(t, dir, "in.json", validManifest))
	require.NotNil(t, m)

	require.NoError(t, Write(path, m))
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	require.NoError(t, Write(path, m))
	second, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, byte('\n'), first[len(first)-1])
	assert.NotEqual(t, byte('\n'), first[len(first)-2])
	assert.True(t, Validate(first))

	// keys come out sorted regardless of insertion order
	var generic map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(first, &generic))
	assert.Less(t, indexOf(first, `"agents/review/security-sentinel"`), indexOf(first, `"skills/git-worktree"`))
	assert.Contains(t, string(first), `"$schema": "./sync-manifest.schema.json"`)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}

func TestWrite_NilMaps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.json")
	require.NoError(t, Write(path, &Manifest{}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"sources\": {},\n  \"definitions\": {}\n}\n", string(data))
}

func indexOf(data []byte, s string) int {
	for i := 0; i+len(s) <= len(data); i++ {
		if string(data[i:i+len(s)]) == s {
			return i
		}
	}
	return -1
}

func TestFindStaleEntries(t *testing.T) {
	m := New(1)
	m.Definitions["a"] = Definition{}
	m.Definitions["b"] = Definition{}
	m.Definitions["c"] = Definition{}

	assert.Equal(t, []string{"b"}, FindStaleEntries(&Manifest{Definitions: map[string]Definition{"a": {}, "b": {}}}, []string{"a"}))
	assert.Equal(t, []string{"b", "c"}, FindStaleEntries(m, []string{"a", "z"}))
	assert.Equal(t, []string{}, FindStaleEntries(m, []string{"a", "b", "c"}))
	assert.Equal(t, []string{}, FindStaleEntries(nil, nil))
	assert.Len(t, m.Definitions, 3, "manifest is not mutated")
}

func TestDefinitionHelpers(t *testing.T) {
	d := Definition{UpstreamPath: "skills/x/", Files: []string{"SKILL.md", "/refs/a.md"}}
	assert.Equal(t, []string{"skills/x/SKILL.md", "skills/x/refs/a.md"}, d.ContentPaths())

	single := Definition{UpstreamPath: "agents/y.md"}
	assert.Equal(t, []string{"agents/y.md"}, single.ContentPaths())

	assert.False(t, d.HasWildcardOverride())
	d.ManualOverrides = []ManualOverride{{Field: "description"}, {Field: WildcardField}}
	assert.True(t, d.HasWildcardOverride())
}

func TestForSource(t *testing.T) {
	m := New(2)
	m.Sources["a"] = Source{Repo: "o/a", Branch: "main"}
	m.Sources["b"] = Source{Repo: "o/b", Branch: "main"}
	m.Definitions["x"] = Definition{Source: "a"}
	m.Definitions["y"] = Definition{Source: "b"}

	sub := m.ForSource("a")
	assert.Equal(t, []string{"x"}, sub.Keys())
	assert.Contains(t, sub.Sources, "a")
	assert.NotContains(t, sub.Sources, "b")
	assert.Equal(t, 2, *sub.ConverterVersion)
}

func TestMarkSynced(t *testing.T) {
	m := New(1)
	m.Definitions["agents/x"] = Definition{Source: "a", UpstreamCommit: "old"}

	at := time.Date(2026, 10, 18, 12, 0, 0, 0, time.FixedZone("X", 3600))
	require.NoError(t, m.MarkSynced("agents/x", "new", "hash", at))

	d := m.Definitions["agents/x"]
	assert.Equal(t, "new", d.UpstreamCommit)
	assert.Equal(t, "hash", d.UpstreamContentHash)
	assert.Equal(t, "2026-10-18T11:00:00Z", d.SyncedAt)

	assert.Error(t, m.MarkSynced("agents/missing", "c", "h", at))
}

func TestContentHash(t *testing.T) {
	sum := sha256.Sum256([]byte("v1"))
	assert.Equal(t, hex.EncodeToString(sum[:]), ContentHash("v1"))

	assert.Equal(t, ContentHash("contentAcontentB"), AggregateHash([]string{"contentA", "contentB"}))
	assert.NotEqual(t, AggregateHash([]string{"contentA", "contentB"}), AggregateHash([]string{"contentB", "contentA"}))
}
