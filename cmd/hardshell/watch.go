package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

func newWatchCmd() *cobra.Command {
	var (
		group    string
		limit    string
		workers  int
		schedule string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Reconcile continuously: on a schedule and whenever the policy changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger := newLogger()

			// Triggers coalesce: a run already pending absorbs new ones.
			kick := make(chan string, 1)
			trigger := func(reason string) {
				select {
				case kick <- reason:
				default:
				}
			}

			watcher, err := fsnotify.NewWatcher()
			if err != nil {
				return fmt.Errorf("starting file watcher: %w", err)
			}
			defer watcher.Close()
			// Watch the parent directories, not the files: editors and
			// deploy tooling replace these files via atomic rename,
			// which drops a watch registered on the old inode.
			for _, dir := range watchDirs(policyFile, inventoryFile) {
				if err := watcher.Add(dir); err != nil {
					return fmt.Errorf("watching %s: %w", dir, err)
				}
			}
			go func() {
				for {
					select {
					case ev, ok := <-watcher.Events:
						if !ok {
							return
						}
						if !watchedFile(ev.Name, policyFile, inventoryFile) {
							continue
						}
						if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
							logger.Info("configuration changed", "file", ev.Name)
							trigger("change")
						}
					case err, ok := <-watcher.Errors:
						if !ok {
							return
						}
						logger.Error("file watcher", "error", err)
					case <-ctx.Done():
						return
					}
				}
			}()

			scheduler := cron.New()
			if _, err := scheduler.AddFunc(schedule, func() { trigger("schedule") }); err != nil {
				return fmt.Errorf("invalid schedule %q: %w", schedule, err)
			}
			scheduler.Start()
			defer scheduler.Stop()

			trigger("startup")
			for {
				select {
				case <-ctx.Done():
					logger.Info("watch stopping")
					return nil
				case reason := <-kick:
					logger.Info("reconciling", "trigger", reason)
					report, err := dispatch(ctx, logger, dispatchOptions{
						group:   group,
						limit:   limit,
						workers: workers,
					})
					if err != nil {
						// Bad edits to the policy must not kill the
						// watcher; the next write gets another chance.
						logger.Error("run failed", "error", err)
						continue
					}
					printSummary(report)
				}
			}
		},
	}

	cmd.Flags().StringVar(&group, "group", "", "Limit runs to one policy group")
	cmd.Flags().StringVar(&limit, "limit", "", "Host selector expression")
	cmd.Flags().IntVar(&workers, "workers", 4, "Hosts reconciled concurrently")
	cmd.Flags().StringVar(&schedule, "schedule", "@hourly", "Cron schedule for periodic runs")

	return cmd
}

// watchDirs returns the deduplicated parent directories of the given
// files, in input order.
func watchDirs(paths ...string) []string {
	seen := make(map[string]bool, len(paths))
	var dirs []string
	for _, path := range paths {
		dir := filepath.Dir(path)
		if !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}
	return dirs
}

// watchedFile reports whether a directory event names one of the
// watched configuration files.
func watchedFile(name string, paths ...string) bool {
	for _, path := range paths {
		if filepath.Clean(name) == filepath.Clean(path) {
			return true
		}
	}
	return false
}
