package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pomdtr/assetpipe/internal/assets"
	"github.com/pomdtr/assetpipe/internal/logstore"
	"github.com/pomdtr/assetpipe/internal/server"
)

func NewCmdServe() *cobra.Command {
	var flags struct {
		addr  string
		watch bool
	}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve static assets for development",
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

			srv := server.NewServer(cfg, logger)
			defer srv.Hub().Close()

			ln, err := server.Listen(flags.addr)
			if err != nil {
				cmd.PrintErrf("failed to listen: %v\n", err)
				return ExitError{1}
			}

			httpServer := &http.Server{
				Handler:           srv.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				logger.Info("serving http", "dir", cfg.Dir, "addr", ln.Addr().String())
				if err := httpServer.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
					return err
				}

				return nil
			})

			g.Go(func() error {
				<-gctx.Done()

				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 5*time.Second)
				defer cancel()

				return httpServer.Shutdown(shutdownCtx)
			})

			onBuild := func(res *assets.Result) {
				srv.Update(res.BuildID, res.Manifest)
			}

			if flags.watch {
				g.Go(func() error {
					return runWatch(gctx, cfg, logger, store, onBuild)
				})
			} else {
				res, err := assets.NewBuilder(cfg, logger, store).Build(ctx)
				pruneLogs(ctx, cfg, logger, store)
				if err != nil {
					logger.Error("build failed", "error", err)
				} else {
					onBuild(res)
				}
			}

			if err := g.Wait(); err != nil {
				cmd.PrintErrf("server failed: %v\n", err)
				return ExitError{1}
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&flags.addr, "addr", "localhost:7777", "address to listen on (host:port or unix/<socket>)")
	cmd.Flags().BoolVar(&flags.watch, "watch", false, "rebuild and reload browsers on change")

	return cmd
}
