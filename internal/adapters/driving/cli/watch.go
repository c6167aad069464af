package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/docqa/internal/logger"
)

// watchDebounce collapses the bursts of events a single staged write
// produces (document, sidecar, rename).
const watchDebounce = 500 * time.Millisecond

const (
	stagedExt  = ".md"
	sidecarExt = ".meta.yaml"
)

// watchStaging re-indexes staged documents as they change, until ctx ends.
func watchStaging(ctx context.Context, cmd *cobra.Command, dir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	cmd.Printf("Watching %s for changes (Ctrl+C to stop)\n", dir)

	pending := make(map[string]struct{})
	timer := time.NewTimer(watchDebounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			name, ok := stagedEvent(ev)
			if !ok {
				continue
			}
			logger.Debug("watch: %s %s", ev.Op, name)
			pending[name] = struct{}{}
			timer.Reset(watchDebounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch: %v", err)

		case <-timer.C:
			names := make([]string, 0, len(pending))
			for name := range pending {
				names = append(names, name)
			}
			sort.Strings(names)
			clear(pending)

			for _, name := range names {
				cmd.Printf("Re-indexing %s...\n", name)
				report, err := indexService.IndexStagedDocument(ctx, name)
				printIndexReport(cmd, report)
				if err != nil {
					cmd.Printf("  error: %v\n", err)
				}
			}
		}
	}
}

// stagedEvent maps a file event to the staged document it affects.
// Temporary files and removals are ignored.
func stagedEvent(ev fsnotify.Event) (string, bool) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return "", false
	}

	base := filepath.Base(ev.Name)
	if strings.HasPrefix(base, ".") {
		return "", false
	}

	switch {
	case strings.HasSuffix(base, sidecarExt):
		return strings.TrimSuffix(base, sidecarExt) + stagedExt, true
	case strings.HasSuffix(base, stagedExt):
		return base, true
	default:
		return "", false
	}
}
