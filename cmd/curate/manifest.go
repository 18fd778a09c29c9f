package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jingkaihe/curate/pkg/catalog"
	"github.com/jingkaihe/curate/pkg/convert"
	"github.com/jingkaihe/curate/pkg/manifest"
	"github.com/jingkaihe/curate/pkg/presenter"
)

// MarkSyncedConfig holds the flags of manifest mark-synced
type MarkSyncedConfig struct {
	Commit string
	Hash   string
	Files  []string
}

// NewMarkSyncedConfig creates a MarkSyncedConfig with default values
func NewMarkSyncedConfig() *MarkSyncedConfig {
	return &MarkSyncedConfig{}
}

// ContentHash resolves the hash to record: the explicit --hash, or the
// hash of the given files concatenated in order.
func (c *MarkSyncedConfig) ContentHash() (string, error) {
	if c.Hash != "" && len(c.Files) > 0 {
		return "", errors.New("--hash and --file are mutually exclusive")
	}
	if c.Hash != "" {
		return c.Hash, nil
	}
	if len(c.Files) == 0 {
		return "", errors.New("one of --hash or --file is required")
	}
	return hashFiles(c.Files)
}

var manifestCmd = &cobra.Command{
	Use:   "manifest",
	Short: "Inspect and maintain the sync manifest",
	Long:  `Validate the sync manifest, list stale entries, compute content hashes and record resyncs.`,
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Help()
	},
}

var manifestInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an empty sync manifest",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if _, err := os.Stat(cfg.ManifestPath); err == nil {
			return errors.Errorf("manifest '%s' already exists", cfg.ManifestPath)
		}
		if err := manifest.Write(cfg.ManifestPath, manifest.New(convert.Version)); err != nil {
			return err
		}
		presenter.Success(fmt.Sprintf("Created %s", cfg.ManifestPath))
		return nil
	},
}

var manifestValidateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "Check the manifest against its schema",
	Long: `Check the manifest against its schema. Definitions that reference an
unknown source are reported as warnings, they do not fail validation.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := manifestPathArg(args)
		if err != nil {
			return err
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrapf(err, "failed to read manifest '%s'", path)
		}
		if err := manifest.ValidateBytes(data); err != nil {
			presenter.Error(err, path)
			return &exitError{code: 1}
		}

		if m := manifest.Read(cmd.Context(), path); m != nil {
			orphans := []string{}
			for _, key := range m.Keys() {
				if _, ok := m.Sources[m.Definitions[key].Source]; !ok {
					orphans = append(orphans, fmt.Sprintf("%s (source %q)", key, m.Definitions[key].Source))
				}
			}
			if len(orphans) > 0 {
				presenter.Warning("Definitions reference unknown sources")
				presenter.List("Orphaned definitions", orphans)
			}
		}

		presenter.Success(fmt.Sprintf("%s is valid", path))
		return nil
	},
}

var manifestStaleCmd = &cobra.Command{
	Use:   "stale",
	Short: "List manifest entries with no local definition",
	Long: `List manifest entries whose definition no longer exists in the local catalog.
The manifest is not modified. Exits 1 when stale entries are found.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		root, _ := cmd.Flags().GetString("root")

		m := manifest.Read(cmd.Context(), cfg.ManifestPath)
		if m == nil {
			presenter.Warning(fmt.Sprintf("No usable manifest at %s", cfg.ManifestPath))
			return nil
		}
		entries, err := catalog.Discover(root)
		if err != nil {
			return err
		}

		stale := manifest.FindStaleEntries(m, catalog.Keys(entries))
		if len(stale) == 0 {
			presenter.Success("No stale manifest entries")
			return nil
		}
		for _, key := range stale {
			fmt.Fprintln(cmd.OutOrStdout(), key)
		}
		presenter.List("Stale entries", stale)
		return &exitError{code: 1}
	},
}

var manifestHashCmd = &cobra.Command{
	Use:   "hash <file>...",
	Short: "Print the content hash of one or more files",
	Long: `Print the content hash recorded in the manifest for the given files. Several
files are hashed as one multi-file definition, in the order given.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := hashFiles(args)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

var manifestMarkSyncedCmd = &cobra.Command{
	Use:   "mark-synced <key>",
	Short: "Record a successful resync of a definition",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		markConfig := getMarkSyncedConfigFromFlags(cmd)
		if markConfig.Commit == "" {
			return errors.New("--commit is required")
		}
		hash, err := markConfig.ContentHash()
		if err != nil {
			return err
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		err = manifest.Update(cmd.Context(), cfg.ManifestPath, func(m *manifest.Manifest) error {
			return m.MarkSynced(args[0], markConfig.Commit, hash, time.Now())
		})
		if err != nil {
			return err
		}
		presenter.Success(fmt.Sprintf("Marked %s synced at %s", args[0], markConfig.Commit))
		return nil
	},
}

func init() {
	manifestStaleCmd.Flags().String("root", ".", "Catalog directory holding agents/, commands/ and skills/")

	defaults := NewMarkSyncedConfig()
	manifestMarkSyncedCmd.Flags().String("commit", defaults.Commit, "Upstream commit the definition was synced from")
	manifestMarkSyncedCmd.Flags().String("hash", defaults.Hash, "Upstream content hash to record")
	manifestMarkSyncedCmd.Flags().StringSlice("file", defaults.Files, "Hash these upstream files instead of passing --hash")

	manifestCmd.AddCommand(manifestInitCmd)
	manifestCmd.AddCommand(manifestValidateCmd)
	manifestCmd.AddCommand(manifestStaleCmd)
	manifestCmd.AddCommand(manifestHashCmd)
	manifestCmd.AddCommand(manifestMarkSyncedCmd)
}

func getMarkSyncedConfigFromFlags(cmd *cobra.Command) *MarkSyncedConfig {
	c := NewMarkSyncedConfig()

	if commit, err := cmd.Flags().GetString("commit"); err == nil {
		c.Commit = commit
	}
	if hash, err := cmd.Flags().GetString("hash"); err == nil {
		c.Hash = hash
	}
	if files, err := cmd.Flags().GetStringSlice("file"); err == nil {
		c.Files = files
	}

	return c
}

func manifestPathArg(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	return cfg.ManifestPath, nil
}

// hashFiles hashes a single file on its own and several files as an
// aggregate, matching how the manifest records them.
func hashFiles(paths []string) (string, error) {
	parts := make([]string, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(filepath.Clean(p))
		if err != nil {
			return "", errors.Wrapf(err, "failed to read '%s'", p)
		}
		parts = append(parts, string(data))
	}
	if len(parts) == 1 {
		return manifest.ContentHash(parts[0]), nil
	}
	return manifest.AggregateHash(parts), nil
}
