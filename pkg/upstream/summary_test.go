package upstream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jingkaihe/curate/pkg/manifest"
)

const agentPath = "plugins/x/agents/x.md"

func singleAgentManifest(storedContent string, version int) *manifest.Manifest {
	m := manifest.New(version)
	m.Sources["cep"] = manifest.Source{Repo: "o/r", Branch: "main"}
	m.Definitions["agents/x"] = manifest.Definition{
		Source:              "cep",
		UpstreamPath:        agentPath,
		UpstreamContentHash: manifest.ContentHash(storedContent),
	}
	return m
}

func TestComputeCheckSummary_HashChange(t *testing.T) {
	s := ComputeCheckSummary(CheckInput{
		Manifest:         singleAgentManifest("v1", 2),
		UpstreamKeys:     []string{"agents/x"},
		Contents:         map[string]string{agentPath: "v2"},
		ConverterVersion: 2,
	})

	assert.Equal(t, []string{"agents/x"}, s.HashChanges)
	assert.Empty(t, s.Errors)
	assert.False(t, s.ConverterVersionChanged)
	assert.True(t, HasChanges(s))
	assert.Equal(t, ExitChanges, ExitCode(s, false))
}

func TestComputeCheckSummary_NoChange(t *testing.T) {
	s := ComputeCheckSummary(CheckInput{
		Manifest:         singleAgentManifest("v1", 2),
		UpstreamKeys:     []string{"agents/x"},
		Contents:         map[string]string{agentPath: "v1"},
		ConverterVersion: 2,
	})

	assert.Equal(t, NewSummary(), s)
	assert.False(t, HasChanges(s))
	assert.Equal(t, ExitNoChanges, ExitCode(s, false))
	assert.Equal(t, ExitError, ExitCode(s, true))
}

func TestComputeCheckSummary_ConverterVersion(t *testing.T) {
	in := CheckInput{
		Manifest:         singleAgentManifest("v1", 2),
		UpstreamKeys:     []string{"agents/x"},
		Contents:         map[string]string{agentPath: "v1"},
		ConverterVersion: 3,
	}
	s := ComputeCheckSummary(in)
	assert.True(t, s.ConverterVersionChanged)
	assert.Equal(t, ExitChanges, ExitCode(s, false))

	in.Manifest.ConverterVersion = nil
	assert.True(t, ComputeCheckSummary(in).ConverterVersionChanged)
}

func TestComputeCheckSummary_WildcardOverride(t *testing.T) {
	m := singleAgentManifest("v1", 1)
	def := m.Definitions["agents/x"]
	def.ManualOverrides = []manifest.ManualOverride{{Field: manifest.WildcardField, Reason: "owned locally"}}
	m.Definitions["agents/x"] = def

	s := ComputeCheckSummary(CheckInput{
		Manifest:         m,
		UpstreamKeys:     []string{"agents/x"},
		Contents:         map[string]string{agentPath: "completely different"},
		ConverterVersion: 1,
	})

	assert.Empty(t, s.HashChanges)
	assert.Equal(t, []string{"agents/x"}, s.Skipped)
	assert.False(t, HasChanges(s))
	assert.Equal(t, ExitNoChanges, ExitCode(s, false))
}

func multiFileManifest() *manifest.Manifest {
	m := manifest.New(1)
	m.Definitions["skills/y"] = manifest.Definition{
		Source:              "cep",
		UpstreamPath:        "plugins/x/skills/y",
		Files:               []string{"a.md", "b.md"},
		UpstreamContentHash: manifest.ContentHash("contentA" + "contentB"),
	}
	return m
}

func TestComputeCheckSummary_MultiFile(t *testing.T) {
	tests := []struct {
		name     string
		contents map[string]string
		changed  bool
	}{
		{
			name:     "unchanged",
			contents: map[string]string{"plugins/x/skills/y/a.md": "contentA", "plugins/x/skills/y/b.md": "contentB"},
		},
		{
			name:     "edited sub-file",
			contents: map[string]string{"plugins/x/skills/y/a.md": "contentA", "plugins/x/skills/y/b.md": "contentB2"},
			changed:  true,
		},
		{
			name:     "swapped contents",
			contents: map[string]string{"plugins/x/skills/y/a.md": "contentB", "plugins/x/skills/y/b.md": "contentA"},
			changed:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := ComputeCheckSummary(CheckInput{
				Manifest:         multiFileManifest(),
				UpstreamKeys:     []string{"skills/y"},
				Contents:         tt.contents,
				ConverterVersion: 1,
			})
			assert.Empty(t, s.Errors)
			if tt.changed {
				assert.Equal(t, []string{"skills/y"}, s.HashChanges)
			} else {
				assert.Empty(t, s.HashChanges)
			}
		})
	}
}

func TestComputeCheckSummary_ReorderedFilesList(t *testing.T) {
	m := multiFileManifest()
	def := m.Definitions["skills/y"]
	def.Files = []string{"b.md", "a.md"}
	m.Definitions["skills/y"] = def

	s := ComputeCheckSummary(CheckInput{
		Manifest:         m,
		UpstreamKeys:     []string{"skills/y"},
		Contents:         map[string]string{"plugins/x/skills/y/a.md": "contentA", "plugins/x/skills/y/b.md": "contentB"},
		ConverterVersion: 1,
	})
	assert.Equal(t, []string{"skills/y"}, s.HashChanges)
}

func TestComputeCheckSummary_MissingContent(t *testing.T) {
	s := ComputeCheckSummary(CheckInput{
		Manifest:         multiFileManifest(),
		UpstreamKeys:     []string{"skills/y"},
		Contents:         map[string]string{"plugins/x/skills/y/a.md": "contentA"},
		ConverterVersion: 1,
	})

	require.Len(t, s.Errors, 1)
	assert.Contains(t, s.Errors[0], "skills/y")
	assert.Contains(t, s.Errors[0], "plugins/x/skills/y/b.md")
	assert.Empty(t, s.HashChanges)
	assert.False(t, HasChanges(s))
	assert.Equal(t, ExitError, ExitCode(s, false))

	single := ComputeCheckSummary(CheckInput{
		Manifest:         singleAgentManifest("v1", 1),
		UpstreamKeys:     []string{"agents/x"},
		Contents:         map[string]string{},
		ConverterVersion: 1,
	})
	require.Len(t, single.Errors, 1)
	assert.Contains(t, single.Errors[0], agentPath)
}

func TestComputeCheckSummary_NewAndDeleted(t *testing.T) {
	m := singleAgentManifest("v1", 1)
	m.Definitions["commands/gone"] = manifest.Definition{Source: "cep", UpstreamPath: "plugins/x/commands/gone.md"}

	s := ComputeCheckSummary(CheckInput{
		Manifest:         m,
		UpstreamKeys:     []string{"skills/new", "agents/x", "agents/fresh"},
		Contents:         map[string]string{agentPath: "v1"},
		ConverterVersion: 1,
	})

	assert.Equal(t, []string{"agents/fresh", "skills/new"}, s.NewUpstream)
	assert.Equal(t, []string{"commands/gone"}, s.Deletions)
	assert.Empty(t, s.HashChanges)
	assert.Equal(t, ExitChanges, ExitCode(s, false))
}

func TestComputeCheckSummary_NilManifest(t *testing.T) {
	s := ComputeCheckSummary(CheckInput{UpstreamKeys: []string{"agents/a"}, ConverterVersion: 1})
	assert.Equal(t, []string{"agents/a"}, s.NewUpstream)
	assert.False(t, s.ConverterVersionChanged)
	assert.NotNil(t, s.Deletions)
}

func TestRequiredContentPaths(t *testing.T) {
	m := multiFileManifest()
	m.Definitions["agents/x"] = manifest.Definition{UpstreamPath: agentPath}

	paths := RequiredContentPaths(m, []string{"skills/y", "agents/x", "agents/untracked"})
	assert.Equal(t, []string{"plugins/x/skills/y/a.md", "plugins/x/skills/y/b.md", agentPath}, paths)
	assert.Equal(t, []string{}, RequiredContentPaths(nil, []string{"agents/x"}))
}

func TestSummaryMerge(t *testing.T) {
	a := NewSummary()
	a.HashChanges = []string{"skills/z"}
	b := NewSummary()
	b.HashChanges = []string{"agents/a"}
	b.Errors = []string{"boom"}
	b.ConverterVersionChanged = true

	a.Merge(b)
	a.Merge(nil)
	assert.Equal(t, []string{"agents/a", "skills/z"}, a.HashChanges)
	assert.Equal(t, []string{"boom"}, a.Errors)
	assert.True(t, a.ConverterVersionChanged)
}
