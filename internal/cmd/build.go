package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/pomdtr/assetpipe/internal/assets"
	"github.com/pomdtr/assetpipe/internal/config"
	"github.com/pomdtr/assetpipe/internal/logstore"
)

func NewCmdBuild() *cobra.Command {
	var flags struct {
		json bool
	}

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Resolve theme entries, fingerprint static assets and write the manifest",
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

			res, err := assets.NewBuilder(cfg, logger, store).Build(cmd.Context())
			pruneLogs(cmd.Context(), cfg, logger, store)
			if err != nil {
				cmd.PrintErrf("build failed: %v\n", err)
				return ExitError{1}
			}

			if flags.json {
				if err := encodeJSON(cmd.OutOrStdout(), res); err != nil {
					cmd.PrintErrf("failed to encode build result: %v\n", err)
					return ExitError{1}
				}

				return nil
			}

			return printResult(cmd, res)
		},
	}

	cmd.Flags().BoolVar(&flags.json, "json", false, "output as json")

	return cmd
}

// pruneLogs drops the entries of builds beyond logs.keep.
func pruneLogs(ctx context.Context, cfg *config.Config, logger *slog.Logger, store *logstore.Store) {
	if cfg.Logs.Keep <= 0 {
		return
	}

	if err := store.Prune(ctx, cfg.Logs.Keep); err != nil {
		logger.Warn("failed to prune build log", "error", err)
	}
}

func printResult(cmd *cobra.Command, res *assets.Result) error {
	printer, err := newTablePrinter(cmd.OutOrStdout())
	if err != nil {
		return err
	}

	printer.AddHeader([]string{"Name", "Path"})
	for _, name := range res.Manifest.Names() {
		printer.AddField(name)
		printer.AddField(res.Manifest[name])
		printer.EndRow()
	}

	if err := printer.Render(); err != nil {
		return err
	}

	summary := fmt.Sprintf("build %s: %d entries, %d assets, %d chunks in %s", res.BuildID, len(res.Entries), len(res.Assets), len(res.Chunks), res.Duration.Round(time.Millisecond))
	if len(res.Failures) > 0 {
		summary += fmt.Sprintf(", %d skipped", len(res.Failures))
	}

	cmd.PrintErrln(summary)
	return nil
}
