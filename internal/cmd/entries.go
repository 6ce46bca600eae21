package cmd

import (
	"github.com/spf13/cobra"
)

func NewCmdEntries() *cobra.Command {
	var flags struct {
		json bool
	}

	cmd := &cobra.Command{
		Use:   "entries",
		Short: "Print the theme entry points",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				cmd.PrintErrf("failed to load config: %v\n", err)
				return ExitError{1}
			}

			entries, err := cfg.EntryPoints()
			if err != nil {
				cmd.PrintErrf("failed to resolve entries: %v\n", err)
				return ExitError{1}
			}

			if flags.json {
				if err := encodeJSON(cmd.OutOrStdout(), entries); err != nil {
					cmd.PrintErrf("failed to encode entries: %v\n", err)
					return ExitError{1}
				}

				return nil
			}

			if len(entries) == 0 {
				cmd.Println("No themes configured")
				return nil
			}

			printer, err := newTablePrinter(cmd.OutOrStdout())
			if err != nil {
				return err
			}

			printer.AddHeader([]string{"Entry", "Stylesheet"})
			for _, name := range entries.Names() {
				printer.AddField(name)
				printer.AddField(entries[name])
				printer.EndRow()
			}

			return printer.Render()
		},
	}

	cmd.Flags().BoolVar(&flags.json, "json", false, "output as json")

	return cmd
}
