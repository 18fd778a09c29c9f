package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jingkaihe/curate/pkg/catalog"
	"github.com/jingkaihe/curate/pkg/convert"
)

const testAgent = `---
name: sec
description: Reviews changes
model: claude-sonnet-4
---

Use the Task tool to spawn a reviewer.
`

const testCommand = `---
description: Deploy the app
---

Run /compound-engineering:deploy.
`

const testSkill = `---
name: wt
description: Manage worktrees
---

Read references/guide.md first.
`

func writeCatalog(t *testing.T, root string) {
	t.Helper()
	files := map[string]string{
		"agents/review/sec.md":          testAgent,
		"commands/deploy.md":            testCommand,
		"skills/wt/SKILL.md":            testSkill,
		"skills/wt/references/guide.md": "# Guide\n\nUse the Task tool.\n",
		"README.md":                     "not a definition\n",
	}
	for rel, content := range files {
		require.NoError(t, writeFile(filepath.Join(root, filepath.FromSlash(rel)), content))
	}
}

func newTestBuilder(t *testing.T, mode string) *Builder {
	t.Helper()
	conv, err := convert.New()
	require.NoError(t, err)
	src := t.TempDir()
	writeCatalog(t, src)
	return NewBuilder(conv, src, filepath.Join(t.TempDir(), "dist"), mode)
}

func readOut(t *testing.T, b *Builder, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(b.OutDir, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

func TestBuilder_BuildAll(t *testing.T) {
	b := newTestBuilder(t, convert.ModeSubagent)

	built, err := b.BuildAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, built)

	agent := readOut(t, b, "agents/review/sec.md")
	assert.Contains(t, agent, "model: anthropic/claude-sonnet-4")
	assert.Contains(t, agent, "mode: subagent")
	assert.Contains(t, agent, "Use the delegate_task tool")

	assert.Contains(t, readOut(t, b, "commands/deploy.md"), "/systematic:deploy")
	assert.Contains(t, readOut(t, b, "skills/wt/SKILL.md"), "name: wt")

	// resources are copied as they are
	assert.Equal(t, "# Guide\n\nUse the Task tool.\n", readOut(t, b, "skills/wt/references/guide.md"))

	_, err = os.Stat(filepath.Join(b.OutDir, "README.md"))
	assert.True(t, os.IsNotExist(err))
}

func TestBuilder_AgentMode(t *testing.T) {
	b := newTestBuilder(t, convert.ModePrimary)

	_, err := b.BuildAll(context.Background())
	require.NoError(t, err)
	assert.Contains(t, readOut(t, b, "agents/review/sec.md"), "mode: primary")
}

func TestBuilder_SkipBody(t *testing.T) {
	b := newTestBuilder(t, convert.ModeSubagent)
	b.SkipBody = true

	_, err := b.BuildAll(context.Background())
	require.NoError(t, err)
	assert.Contains(t, readOut(t, b, "agents/review/sec.md"), "Use the Task tool")
}

func TestBuilder_MissingSource(t *testing.T) {
	conv, err := convert.New()
	require.NoError(t, err)
	b := NewBuilder(conv, filepath.Join(t.TempDir(), "missing"), t.TempDir(), convert.ModeSubagent)

	built, err := b.BuildAll(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, built)
}

func TestBuilder_BuildEntry(t *testing.T) {
	b := newTestBuilder(t, convert.ModeSubagent)

	entries, err := catalog.Discover(b.SrcDir)
	require.NoError(t, err)
	entry, ok := catalog.Find(entries, "commands/deploy.md")
	require.True(t, ok)

	require.NoError(t, b.BuildEntry(context.Background(), entry))
	assert.Contains(t, readOut(t, b, "commands/deploy.md"), "/systematic:deploy")

	_, err = os.Stat(filepath.Join(b.OutDir, "agents"))
	assert.True(t, os.IsNotExist(err), "only the requested entry is built")
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "c.md")
	require.NoError(t, writeFile(path, "hello\n"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}

func TestCopyFile_Missing(t *testing.T) {
	dir := t.TempDir()
	err := copyFile(filepath.Join(dir, "nope"), filepath.Join(dir, "out"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read")
}

func TestCompileKeyPatterns(t *testing.T) {
	globs, err := CompileKeyPatterns([]string{"agents/*", "skills/**"})
	require.NoError(t, err)
	b := &Builder{Only: globs}

	assert.True(t, b.Selects("agents/sec"))
	assert.False(t, b.Selects("agents/review/sec"))
	assert.True(t, b.Selects("skills/wt"))
	assert.False(t, b.Selects("commands/deploy"))

	assert.True(t, (&Builder{}).Selects("commands/deploy"), "no patterns selects everything")

	_, err = CompileKeyPatterns([]string{"agents/[a"})
	assert.Error(t, err)
}

func TestBuilder_Only(t *testing.T) {
	b := newTestBuilder(t, convert.ModeSubagent)
	globs, err := CompileKeyPatterns([]string{"agents/**"})
	require.NoError(t, err)
	b.Only = globs

	built, err := b.BuildAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, built)

	_, err = os.Stat(filepath.Join(b.OutDir, "commands", "deploy.md"))
	assert.True(t, os.IsNotExist(err))
}
