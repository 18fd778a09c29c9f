package main

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jingkaihe/curate/pkg/convert"
	"github.com/jingkaihe/curate/pkg/logger"
	"github.com/jingkaihe/curate/pkg/manifest"
	"github.com/jingkaihe/curate/pkg/presenter"
	"github.com/jingkaihe/curate/pkg/upstream"
)

// CheckConfig holds the flags of the check command
type CheckConfig struct {
	JSON   bool
	APIURL string
}

// NewCheckConfig creates a CheckConfig with default values
func NewCheckConfig() *CheckConfig {
	return &CheckConfig{}
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Detect upstream changes to tracked definitions",
	Long: `Compare every definition tracked in the sync manifest against its upstream
repository and report what changed.

Exit status is 0 when nothing changed, 1 when a sync is needed and 2 when
upstream could not be read or a tracked definition could not be hashed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		checkConfig := getCheckConfigFromFlags(cmd)

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		m := manifest.Read(ctx, cfg.ManifestPath)
		if m == nil {
			presenter.Warning(fmt.Sprintf("No usable manifest at %s, nothing is tracked yet", cfg.ManifestPath))
		}

		ghOpts := []upstream.GitHubOption{upstream.WithRateLimit(cfg.RateLimit)}
		if checkConfig.APIURL != "" {
			ghOpts = append(ghOpts, upstream.WithBaseURL(checkConfig.APIURL))
		}
		fetcher, err := upstream.NewGitHubFetcher(ctx, cfg.GitHubToken, ghOpts...)
		if err != nil {
			return err
		}
		checker, err := upstream.NewChecker(fetcher, cfg.CheckerOptions()...)
		if err != nil {
			return err
		}

		summary, hadFetchError := checker.Check(ctx, m, convert.Version)
		code := upstream.ExitCode(summary, hadFetchError)
		logger.G(ctx).WithField("exit_code", code).WithField("fetch_error", hadFetchError).Debug("check finished")

		if checkConfig.JSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(summary); err != nil {
				return errors.Wrap(err, "failed to encode summary")
			}
		} else {
			presentSummary(summary, hadFetchError)
		}

		if code != upstream.ExitNoChanges {
			return &exitError{code: code}
		}
		return nil
	},
}

func init() {
	defaults := NewCheckConfig()
	checkCmd.Flags().Bool("json", defaults.JSON, "Print the summary as JSON on stdout")
	checkCmd.Flags().String("api-url", defaults.APIURL, "GitHub API base URL (for GitHub Enterprise)")
}

func getCheckConfigFromFlags(cmd *cobra.Command) *CheckConfig {
	c := NewCheckConfig()

	if asJSON, err := cmd.Flags().GetBool("json"); err == nil {
		c.JSON = asJSON
	}
	if apiURL, err := cmd.Flags().GetString("api-url"); err == nil {
		c.APIURL = apiURL
	}

	return c
}

func presentSummary(s *upstream.Summary, hadFetchError bool) {
	presenter.Section("Upstream check")
	presenter.List("Changed upstream", s.HashChanges)
	presenter.List("New upstream", s.NewUpstream)
	presenter.List("Deleted upstream", s.Deletions)
	presenter.List("Skipped (locally owned)", s.Skipped)
	presenter.List("Errors", s.Errors)
	if s.ConverterVersionChanged {
		presenter.Info(fmt.Sprintf("Converter version changed (now %d)", convert.Version))
	}
	if hadFetchError {
		presenter.Warning("Some upstream requests failed, see the log for details")
	}

	presenter.Separator()
	switch upstream.ExitCode(s, hadFetchError) {
	case upstream.ExitError:
		presenter.Warning("Check incomplete, investigate the errors above")
	case upstream.ExitChanges:
		presenter.Info("Changes detected, a sync is needed")
	default:
		presenter.Success("Everything is up to date")
	}
}
