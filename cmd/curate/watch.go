package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jingkaihe/curate/pkg/catalog"
	"github.com/jingkaihe/curate/pkg/logger"
	"github.com/jingkaihe/curate/pkg/presenter"
)

// WatchConfig holds configuration for the watch command
type WatchConfig struct {
	IgnoreDirs   []string
	DebounceTime int
}

// NewWatchConfig creates a new WatchConfig with default values
func NewWatchConfig() *WatchConfig {
	return &WatchConfig{
		IgnoreDirs:   []string{".git", "node_modules"},
		DebounceTime: 300,
	}
}

// Validate validates the WatchConfig and returns an error if invalid
func (c *WatchConfig) Validate() error {
	if c.DebounceTime < 0 {
		return errors.Errorf("debounce time cannot be negative: %d", c.DebounceTime)
	}
	return nil
}

// FileEvent represents a file system event with additional metadata
type FileEvent struct {
	Path string
	Op   fsnotify.Op
	Time time.Time
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Rebuild the catalog whenever a definition changes",
	Long: `Build the catalog once, then watch --src and reconvert definitions as they
are edited. Files that did not change are served from the conversion cache.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		watchConfig := getWatchConfigFromFlags(cmd)
		if err := watchConfig.Validate(); err != nil {
			return err
		}
		b, err := newBuilderFromFlags(cmd)
		if err != nil {
			return err
		}

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigCh
			presenter.Warning("Cancellation requested, shutting down...")
			cancel()
		}()

		return runWatchMode(ctx, b, watchConfig)
	},
}

func init() {
	defaults := NewWatchConfig()
	addBuildFlags(watchCmd.Flags())
	watchCmd.Flags().StringSliceP("ignore", "i", defaults.IgnoreDirs, "Directories to ignore")
	watchCmd.Flags().IntP("debounce", "d", defaults.DebounceTime, "Debounce time in milliseconds for file change events")
}

func getWatchConfigFromFlags(cmd *cobra.Command) *WatchConfig {
	c := NewWatchConfig()

	if ignoreDirs, err := cmd.Flags().GetStringSlice("ignore"); err == nil {
		c.IgnoreDirs = ignoreDirs
	}
	if debounceTime, err := cmd.Flags().GetInt("debounce"); err == nil {
		c.DebounceTime = debounceTime
	}

	return c
}

func runWatchMode(ctx context.Context, b *Builder, watchConfig *WatchConfig) error {
	if built, err := b.BuildAll(ctx); err != nil {
		presenter.Error(err, fmt.Sprintf("initial build finished with failures (%d built)", built))
	} else {
		presenter.Success(fmt.Sprintf("Built %d definitions into %s", built, b.OutDir))
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create file watcher")
	}
	defer watcher.Close()

	events := make(chan FileEvent)
	debouncedEvents := make(chan FileEvent)
	go debounceFileEvents(ctx, events, debouncedEvents, time.Duration(watchConfig.DebounceTime)*time.Millisecond)

	go func() {
		for {
			select {
			case event, ok := <-debouncedEvents:
				if !ok {
					return
				}
				logger.G(ctx).WithFields(map[string]interface{}{
					"file":      event.Path,
					"operation": event.Op.String(),
					"timestamp": event.Time,
				}).Debug("file change detected")
				processFileChange(ctx, b, event)
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if skipPath(event.Name, b.OutDir, watchConfig.IgnoreDirs) {
					continue
				}
				if event.Op&fsnotify.Create != 0 {
					if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
						if err := addWatchDirs(ctx, watcher, event.Name, b.OutDir, watchConfig.IgnoreDirs); err != nil {
							logger.G(ctx).WithError(err).WithField("directory", event.Name).Warn("failed to watch new directory")
						}
					}
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				select {
				case events <- FileEvent{Path: event.Name, Op: event.Op, Time: time.Now()}:
				case <-ctx.Done():
					return
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.G(ctx).WithError(err).Error("error watching files")
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := addWatchDirs(ctx, watcher, b.SrcDir, b.OutDir, watchConfig.IgnoreDirs); err != nil {
		return errors.Wrap(err, "failed to watch directories")
	}

	presenter.Info("Watching for definition changes... Press Ctrl+C to stop")
	<-ctx.Done()
	return nil
}

func addWatchDirs(ctx context.Context, watcher *fsnotify.Watcher, root, outDir string, ignoreDirs []string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && skipPath(path, outDir, ignoreDirs) {
			return filepath.SkipDir
		}
		logger.G(ctx).WithField("directory", path).Debug("adding directory to watcher")
		return watcher.Add(path)
	})
}

// skipPath reports whether path lies inside the output tree or an ignored
// directory. Output written under the source tree must not retrigger builds.
func skipPath(path, outDir string, ignoreDirs []string) bool {
	if path == outDir || strings.HasPrefix(path, outDir+string(os.PathSeparator)) {
		return true
	}
	for _, dir := range ignoreDirs {
		sep := string(os.PathSeparator)
		if strings.Contains(path, sep+dir+sep) || strings.HasSuffix(path, sep+dir) {
			return true
		}
	}
	return false
}

// Debounce file events to prevent processing multiple rapid changes to the same file
func debounceFileEvents(ctx context.Context, input <-chan FileEvent, output chan<- FileEvent, delay time.Duration) {
	pending := make(map[string]*time.Timer)

	for {
		select {
		case event, ok := <-input:
			if !ok {
				for _, timer := range pending {
					timer.Stop()
				}
				return
			}
			if timer, exists := pending[event.Path]; exists {
				timer.Stop()
			}

			eventCopy := event
			pending[event.Path] = time.AfterFunc(delay, func() {
				select {
				case output <- eventCopy:
				case <-ctx.Done():
				}
			})
		case <-ctx.Done():
			for _, timer := range pending {
				timer.Stop()
			}
			return
		}
	}
}

// processFileChange reconverts the definition at event.Path. Anything that is
// not a definition file itself, such as a skill resource or a removal, falls
// back to a full build which is cheap because of the cache.
func processFileChange(ctx context.Context, b *Builder, event FileEvent) {
	rel, err := filepath.Rel(b.SrcDir, event.Path)
	if err != nil {
		logger.G(ctx).WithError(err).WithField("file", event.Path).Warn("change outside the catalog root")
		return
	}

	if event.Op&(fsnotify.Remove|fsnotify.Rename) == 0 {
		entries, err := catalog.Discover(b.SrcDir)
		if err != nil {
			presenter.Error(err, "Failed to read catalog")
			return
		}
		if entry, ok := catalog.Find(entries, filepath.ToSlash(rel)); ok {
			if !b.Selects(entry.Key) {
				return
			}
			if err := b.BuildEntry(ctx, entry); err != nil {
				presenter.Error(err, fmt.Sprintf("Failed to convert %s", entry.Key))
				return
			}
			presenter.Success(fmt.Sprintf("Rebuilt %s", entry.Key))
			return
		}
	}

	if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		// drop conversions of files that no longer exist
		b.cache.Clear()
	}

	built, err := b.BuildAll(ctx)
	if err != nil {
		presenter.Error(err, fmt.Sprintf("rebuild finished with failures (%d built)", built))
		return
	}
	presenter.Info(fmt.Sprintf("Rebuilt catalog after change to %s (%d definitions)", filepath.ToSlash(rel), built))
}
