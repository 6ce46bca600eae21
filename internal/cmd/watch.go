package cmd

import (
	"context"
	"log/slog"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pomdtr/assetpipe/internal/assets"
	"github.com/pomdtr/assetpipe/internal/config"
	"github.com/pomdtr/assetpipe/internal/logfeed"
	"github.com/pomdtr/assetpipe/internal/logstore"
	"github.com/pomdtr/assetpipe/internal/utils"
	"github.com/pomdtr/assetpipe/internal/watcher"
)

func NewCmdWatch() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Rebuild whenever a source or static file changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}

			store, err := logstore.Open(cfg.Logs.Database)
			if err != nil {
				cmd.PrintErrf("failed to open log database: %v\n", err)
				return ExitError{1}
			}
			defer store.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := runWatch(ctx, cfg, logger, store, nil); err != nil {
				cmd.PrintErrf("watch failed: %v\n", err)
				return ExitError{1}
			}

			return nil
		},
	}

	return cmd
}

// WatchRoots returns the existing directories a rebuild depends on, without
// directories nested in another root.
func WatchRoots(cfg *config.Config) []string {
	var candidates []string
	for _, dir := range []string{
		cfg.Dir,
		cfg.Build.ClientPath,
		cfg.Build.StaticPath,
		cfg.Shared.ClientPath,
		cfg.Shared.StaticPath,
	} {
		if dir != "" && utils.DirExists(dir) && !slices.Contains(candidates, dir) {
			candidates = append(candidates, dir)
		}
	}

	var roots []string
	for _, dir := range candidates {
		nested := false
		for _, other := range candidates {
			if other != dir && isWithin(other, dir) {
				nested = true
				break
			}
		}

		if !nested {
			roots = append(roots, dir)
		}
	}

	slices.Sort(roots)
	return roots
}

func isWithin(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}

	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// runWatch builds once, then rebuilds on every change until ctx is done.
// onBuild is called after each successful build.
func runWatch(ctx context.Context, cfg *config.Config, logger *slog.Logger, store *logstore.Store, onBuild func(*assets.Result)) error {
	feed := logfeed.New(store, logfeed.DefaultPageSize)
	snapshots, unsubscribe := feed.Subscribe()
	defer unsubscribe()

	go func() {
		for snapshot := range snapshots {
			if snapshot.IsFetching {
				continue
			}

			for _, e := range snapshot.Entries {
				if e.Kind == assets.KindFailure {
					logger.Warn(e.Message, "path", e.Path, "buildId", e.BuildID)
				}
			}
		}
	}()

	var mu sync.Mutex
	rebuild := func(paths []string) {
		mu.Lock()
		defer mu.Unlock()

		if len(paths) > 0 {
			logger.Info("change detected", "paths", len(paths), "first", paths[0])
		}

		res, err := assets.NewBuilder(cfg, logger, store).Build(ctx)
		pruneLogs(ctx, cfg, logger, store)
		if err != nil {
			logger.Error("build failed", "error", err)
		} else if onBuild != nil {
			onBuild(res)
		}

		if err := feed.SetFilter(ctx, logfeed.Filter{
			BuildID: res.BuildID,
			Kinds:   []string{assets.KindFailure},
		}); err != nil && ctx.Err() == nil {
			logger.Warn("could not read build log", "error", err)
		}
	}

	rebuild(nil)

	g, gctx := errgroup.WithContext(ctx)
	for _, root := range WatchRoots(cfg) {
		w, err := watcher.NewWatcher(root, rebuild, logger.With("logger", "watcher"), cfg.Build.DistPath)
		if err != nil {
			return err
		}
		defer w.Stop()

		logger.Info("watching", "dir", root)
		g.Go(func() error {
			return w.Start(gctx)
		})
	}

	return g.Wait()
}
