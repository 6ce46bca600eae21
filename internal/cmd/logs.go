package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pomdtr/assetpipe/internal/logfeed"
	"github.com/pomdtr/assetpipe/internal/logstore"
)

func NewCmdLogs() *cobra.Command {
	var flags struct {
		page     int
		pageSize int
		kinds    []string
		levels   []string
		search   string
		buildID  string
		latest   bool
		detail   int64
		json     bool
	}

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Browse the build log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				cmd.PrintErrf("failed to load config: %v\n", err)
				return ExitError{1}
			}

			store, err := logstore.Open(cfg.Logs.Database)
			if err != nil {
				cmd.PrintErrf("failed to open log database: %v\n", err)
				return ExitError{1}
			}
			defer store.Close()

			ctx := cmd.Context()
			filter := logfeed.Filter{
				BuildID: flags.buildID,
				Kinds:   flags.kinds,
				Levels:  flags.levels,
				Search:  flags.search,
			}

			if flags.latest && filter.BuildID == "" {
				buildID, err := store.LatestBuild(ctx)
				if err != nil {
					cmd.PrintErrf("failed to find latest build: %v\n", err)
					return ExitError{1}
				}

				filter.BuildID = buildID
			}

			feed := logfeed.New(store, flags.pageSize)
			if err := feed.SetFilter(ctx, filter); err != nil {
				cmd.PrintErrf("failed to fetch logs: %v\n", err)
				return ExitError{1}
			}

			if flags.page > 1 {
				if err := feed.ChangePage(ctx, flags.page); err != nil {
					cmd.PrintErrf("failed to fetch logs: %v\n", err)
					return ExitError{1}
				}
			}

			if flags.detail > 0 {
				entry, err := store.Get(ctx, flags.detail)
				if errors.Is(err, logstore.ErrEntryNotFound) {
					cmd.PrintErrf("no log entry with id %d\n", flags.detail)
					return ExitError{1}
				} else if err != nil {
					cmd.PrintErrf("failed to fetch log entry: %v\n", err)
					return ExitError{1}
				}

				feed.SetDetailedView(&entry)
			}

			snapshot := feed.Snapshot()
			if flags.json {
				if err := encodeJSON(cmd.OutOrStdout(), snapshot); err != nil {
					cmd.PrintErrf("failed to encode logs: %v\n", err)
					return ExitError{1}
				}

				return nil
			}

			if snapshot.Detailed != nil {
				printDetail(cmd, *snapshot.Detailed)
				return nil
			}

			if len(snapshot.Entries) == 0 {
				cmd.Println("No log entries found")
				return nil
			}

			printer, err := newTablePrinter(cmd.OutOrStdout())
			if err != nil {
				return err
			}

			printer.AddHeader([]string{"Id", "Time", "Level", "Kind", "Message", "Path"})
			for _, e := range snapshot.Entries {
				printer.AddField(fmt.Sprint(e.ID))
				printer.AddField(e.Time.Local().Format(time.DateTime))
				printer.AddField(e.Level)
				printer.AddField(e.Kind)
				printer.AddField(e.Message)
				printer.AddField(e.Path)
				printer.EndRow()
			}

			if err := printer.Render(); err != nil {
				return err
			}

			cmd.PrintErrf("page %d of %d\n", snapshot.CurrentPage, max(snapshot.Pages, 1))
			return nil
		},
	}

	cmd.Flags().IntVar(&flags.page, "page", 1, "page to show")
	cmd.Flags().IntVar(&flags.pageSize, "page-size", logfeed.DefaultPageSize, "entries per page")
	cmd.Flags().StringSliceVar(&flags.kinds, "kind", nil, "only show entries of this kind")
	cmd.Flags().StringSliceVar(&flags.levels, "level", nil, "only show entries of this level")
	cmd.Flags().StringVar(&flags.search, "search", "", "only show entries whose message or path contains this text")
	cmd.Flags().StringVar(&flags.buildID, "build", "", "only show entries of this build")
	cmd.Flags().BoolVar(&flags.latest, "latest", false, "only show entries of the latest build")
	cmd.Flags().Int64Var(&flags.detail, "detail", 0, "show a single entry in full")
	cmd.Flags().BoolVar(&flags.json, "json", false, "output as json")

	return cmd
}

func printDetail(cmd *cobra.Command, e logfeed.Entry) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Id:      %d\n", e.ID)
	fmt.Fprintf(w, "Build:   %s\n", e.BuildID)
	fmt.Fprintf(w, "Time:    %s\n", e.Time.Local().Format(time.RFC3339))
	fmt.Fprintf(w, "Level:   %s\n", e.Level)
	fmt.Fprintf(w, "Kind:    %s\n", e.Kind)
	fmt.Fprintf(w, "Message: %s\n", e.Message)
	if e.Path != "" {
		fmt.Fprintf(w, "Path:    %s\n", e.Path)
	}
	if e.Detail != "" {
		fmt.Fprintf(w, "\n%s\n", e.Detail)
	}
}
