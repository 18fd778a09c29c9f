package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jingkaihe/curate/pkg/config"
	"github.com/jingkaihe/curate/pkg/logger"
	"github.com/jingkaihe/curate/pkg/presenter"
)

// v holds every setting; flags, CURATE_* variables and config.yaml all
// resolve through it.
var v = config.New()

// exitError carries a process exit status out of a command.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

var rootCmd = &cobra.Command{
	Use:   "curate",
	Short: "Convert and track vendored agent, command and skill definitions",
	Long: `curate converts Claude Code style agent, command and skill definitions into
OpenCode conventions and tracks where each vendored definition came from, so
upstream changes can be detected and resynced.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if path := v.GetString("config"); path != "" {
			v.SetConfigFile(path)
		}
		if err := config.ReadConfigFile(v); err != nil {
			return err
		}
		if err := logger.Configure(v.GetString("log_level"), v.GetString("log_format")); err != nil {
			return err
		}
		presenter.SetQuiet(v.GetBool("quiet"))
		if used := v.ConfigFileUsed(); used != "" {
			logger.G(cmd.Context()).WithField("path", used).Debug("loaded config file")
		}
		return nil
	},
}

// loadConfig resolves the configuration for a command.
func loadConfig() (*config.Config, error) {
	return config.Load(v)
}

func main() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Path to a config file (default $HOME/.curate/config.yaml or ./config.yaml)")
	flags.String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	flags.String("log-format", "text", "Log format (text, json)")
	flags.String("manifest", "", "Path to the sync manifest (overrides config)")
	flags.BoolP("quiet", "q", false, "Suppress non-error output")

	// Bind flags to viper
	_ = v.BindPFlag("config", flags.Lookup("config"))
	_ = v.BindPFlag("log_level", flags.Lookup("log-level"))
	_ = v.BindPFlag("log_format", flags.Lookup("log-format"))
	_ = v.BindPFlag("manifest_path", flags.Lookup("manifest"))
	_ = v.BindPFlag("quiet", flags.Lookup("quiet"))

	rootCmd.AddCommand(convertCmd)
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(manifestCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(versionCmd)

	ctx := logger.WithLogger(context.Background(), logger.L)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.code)
		}
		presenter.Error(err, "")
		os.Exit(1)
	}
}
