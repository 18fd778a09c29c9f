package main

import (
	"fmt"
	"os"

	"github.com/aymanbagabas/go-udiff"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jingkaihe/curate/pkg/config"
	"github.com/jingkaihe/curate/pkg/convert"
)

// ConvertConfig holds the flags of the convert command
type ConvertConfig struct {
	Kind      string
	AgentMode string
	SkipBody  bool
	Source    string
	Output    string
	Diff      bool
}

// NewConvertConfig creates a ConvertConfig with default values
func NewConvertConfig() *ConvertConfig {
	return &ConvertConfig{
		Kind: string(convert.KindAgent),
	}
}

// Options turns the flags into conversion options. An unset agent mode
// falls back to the configured default.
func (c *ConvertConfig) Options(cfg *config.Config) (convert.Options, error) {
	kind, err := convert.ParseKind(c.Kind)
	if err != nil {
		return convert.Options{}, err
	}
	mode := c.AgentMode
	if mode == "" {
		mode = cfg.Agent.DefaultMode
	}
	if mode != convert.ModePrimary && mode != convert.ModeSubagent {
		return convert.Options{}, errors.Errorf("invalid agent mode %q, must be primary or subagent", mode)
	}
	return convert.Options{
		Kind:              kind,
		AgentMode:         mode,
		SkipBodyTransform: c.SkipBody,
		Source:            c.Source,
	}, nil
}

var convertCmd = &cobra.Command{
	Use:   "convert <file>",
	Short: "Convert a single definition file",
	Long: `Convert one agent, command or skill definition and print the result.

Known frontmatter fields are mapped to OpenCode conventions, everything else
is preserved, and tool names and config paths in the body are rewritten.
Use --diff to preview the change as a unified diff instead.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		convertConfig := getConvertConfigFromFlags(cmd)

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		opts, err := convertConfig.Options(cfg)
		if err != nil {
			return err
		}
		conv, err := newConverter(cfg)
		if err != nil {
			return err
		}

		path := args[0]
		output, err := convert.NewCache(conv).ConvertFile(ctx, path, opts)
		if err != nil {
			return err
		}

		if convertConfig.Diff {
			original, err := os.ReadFile(path)
			if err != nil {
				return errors.Wrapf(err, "failed to read '%s'", path)
			}
			fmt.Fprint(cmd.OutOrStdout(), udiff.Unified(path, path+" (converted)", string(original), output))
			return nil
		}

		if convertConfig.Output == "" || convertConfig.Output == "-" {
			fmt.Fprint(cmd.OutOrStdout(), output)
			return nil
		}
		return writeFile(convertConfig.Output, output)
	},
}

func init() {
	defaults := NewConvertConfig()
	convertCmd.Flags().StringP("kind", "k", defaults.Kind, "Document kind (skill, agent, command)")
	convertCmd.Flags().String("mode", defaults.AgentMode, "Mode for agents that declare none (primary, subagent)")
	convertCmd.Flags().Bool("skip-body", defaults.SkipBody, "Leave the document body untouched")
	convertCmd.Flags().String("source", defaults.Source, "Label for where the document came from")
	convertCmd.Flags().StringP("output", "o", defaults.Output, "Write the result to a file instead of stdout")
	convertCmd.Flags().Bool("diff", defaults.Diff, "Print a unified diff of the conversion")
}

func getConvertConfigFromFlags(cmd *cobra.Command) *ConvertConfig {
	c := NewConvertConfig()

	if kind, err := cmd.Flags().GetString("kind"); err == nil {
		c.Kind = kind
	}
	if mode, err := cmd.Flags().GetString("mode"); err == nil {
		c.AgentMode = mode
	}
	if skipBody, err := cmd.Flags().GetBool("skip-body"); err == nil {
		c.SkipBody = skipBody
	}
	if source, err := cmd.Flags().GetString("source"); err == nil {
		c.Source = source
	}
	if output, err := cmd.Flags().GetString("output"); err == nil {
		c.Output = output
	}
	if diff, err := cmd.Flags().GetBool("diff"); err == nil {
		c.Diff = diff
	}

	return c
}

func newConverter(cfg *config.Config) (*convert.Converter, error) {
	conv, err := convert.New(cfg.ConverterOptions()...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create converter")
	}
	return conv, nil
}
