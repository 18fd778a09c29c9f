package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gobwas/glob"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jingkaihe/curate/pkg/catalog"
	"github.com/jingkaihe/curate/pkg/convert"
	"github.com/jingkaihe/curate/pkg/logger"
	"github.com/jingkaihe/curate/pkg/presenter"
)

// Builder converts a catalog tree into an output tree. Conversions go
// through one cache so repeated builds only redo files that changed.
type Builder struct {
	SrcDir    string
	OutDir    string
	AgentMode string
	SkipBody  bool

	// Only restricts the build to definitions whose key matches one of
	// the patterns. Empty means everything.
	Only  []glob.Glob
	cache *convert.Cache
}

// NewBuilder creates a Builder around conv.
func NewBuilder(conv *convert.Converter, srcDir, outDir, agentMode string) *Builder {
	return &Builder{
		SrcDir:    srcDir,
		OutDir:    outDir,
		AgentMode: agentMode,
		cache:     convert.NewCache(conv),
	}
}

// CompileKeyPatterns compiles --only patterns. Segments are separated by
// "/" so "agents/*" matches direct children only and "agents/**" matches
// at any depth.
func CompileKeyPatterns(patterns []string) ([]glob.Glob, error) {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, errors.Wrapf(err, "invalid key pattern '%s'", p)
		}
		globs = append(globs, g)
	}
	return globs, nil
}

// Selects reports whether the definition with key is part of the build.
func (b *Builder) Selects(key string) bool {
	if len(b.Only) == 0 {
		return true
	}
	for _, g := range b.Only {
		if g.Match(key) {
			return true
		}
	}
	return false
}

// BuildAll converts every definition under SrcDir. Failures of single
// entries are collected and returned together after the rest are built.
func (b *Builder) BuildAll(ctx context.Context) (int, error) {
	entries, err := catalog.Discover(b.SrcDir)
	if err != nil {
		return 0, err
	}

	var result *multierror.Error
	built := 0
	for _, entry := range entries {
		if !b.Selects(entry.Key) {
			continue
		}
		if err := b.BuildEntry(ctx, entry); err != nil {
			result = multierror.Append(result, err)
			continue
		}
		built++
	}
	logger.G(ctx).WithField("built", built).WithField("cached", b.cache.Len()).Debug("catalog build finished")
	return built, result.ErrorOrNil()
}

// BuildEntry converts one definition and copies its resources verbatim.
func (b *Builder) BuildEntry(ctx context.Context, entry catalog.Entry) error {
	src := filepath.Join(b.SrcDir, filepath.FromSlash(entry.Path))
	output, err := b.cache.ConvertFile(ctx, src, convert.Options{
		Kind:              entry.Kind,
		AgentMode:         b.AgentMode,
		SkipBodyTransform: b.SkipBody,
	})
	if err != nil {
		return errors.Wrapf(err, "%s", entry.Key)
	}
	if err := writeFile(filepath.Join(b.OutDir, filepath.FromSlash(entry.Path)), output); err != nil {
		return errors.Wrapf(err, "%s", entry.Key)
	}

	for _, res := range entry.Resources {
		if err := copyFile(
			filepath.Join(b.SrcDir, filepath.FromSlash(res)),
			filepath.Join(b.OutDir, filepath.FromSlash(res)),
		); err != nil {
			return errors.Wrapf(err, "%s", entry.Key)
		}
	}

	logger.G(ctx).WithField("key", entry.Key).WithField("kind", entry.Kind).Debug("built definition")
	return nil
}

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Convert every definition in a catalog directory",
	Long: `Convert every agent, command and skill under --src into --out, keeping the
same layout. Skill resource files are copied unchanged.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		b, err := newBuilderFromFlags(cmd)
		if err != nil {
			return err
		}

		built, err := b.BuildAll(ctx)
		if err != nil {
			presenter.Error(err, fmt.Sprintf("built %d definitions with failures", built))
			return &exitError{code: 1}
		}
		presenter.Success(fmt.Sprintf("Built %d definitions into %s", built, b.OutDir))
		return nil
	},
}

func init() {
	addBuildFlags(buildCmd.Flags())
}

func addBuildFlags(flags *pflag.FlagSet) {
	flags.String("src", ".", "Catalog directory holding agents/, commands/ and skills/")
	flags.String("out", "dist", "Output directory")
	flags.String("mode", "", "Mode for agents that declare none (default from config)")
	flags.Bool("skip-body", false, "Leave document bodies untouched")
	flags.StringSlice("only", nil, "Only build definitions whose key matches these globs (e.g. 'agents/review/*')")
}

func newBuilderFromFlags(cmd *cobra.Command) (*Builder, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	conv, err := newConverter(cfg)
	if err != nil {
		return nil, err
	}

	src, _ := cmd.Flags().GetString("src")
	out, _ := cmd.Flags().GetString("out")
	mode, _ := cmd.Flags().GetString("mode")
	skipBody, _ := cmd.Flags().GetBool("skip-body")
	only, _ := cmd.Flags().GetStringSlice("only")
	if mode == "" {
		mode = cfg.Agent.DefaultMode
	}
	if mode != convert.ModePrimary && mode != convert.ModeSubagent {
		return nil, errors.Errorf("invalid agent mode %q, must be primary or subagent", mode)
	}

	absSrc, err := filepath.Abs(src)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve '%s'", src)
	}
	absOut, err := filepath.Abs(out)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve '%s'", out)
	}
	if absSrc == absOut {
		return nil, errors.New("--src and --out must be different directories")
	}

	globs, err := CompileKeyPatterns(only)
	if err != nil {
		return nil, err
	}

	b := NewBuilder(conv, absSrc, absOut, mode)
	b.SkipBody = skipBody
	b.Only = globs
	return b, nil
}

func writeFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "failed to create directory for '%s'", path)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return errors.Wrapf(err, "failed to write '%s'", path)
	}
	return nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return errors.Wrapf(err, "failed to read '%s'", src)
	}
	return writeFile(dst, string(data))
}
