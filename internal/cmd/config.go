package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/pomdtr/assetpipe/internal/utils"
)

func NewCmdConfig() *cobra.Command {
	var flags struct {
		json bool
		edit bool
	}

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print or edit the project configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.edit {
				if k.String("dir") == "" {
					cmd.PrintErrln("no assetpipe project found")
					return ExitError{1}
				}

				configPath := utils.FindConfigPath(k.String("dir"))
				editor := "vi"
				if editorEnv, ok := os.LookupEnv("EDITOR"); ok {
					editor = editorEnv
				}

				editCmd := exec.Command("sh", "-c", fmt.Sprintf("%s %s", editor, configPath))
				editCmd.Stdout = os.Stdout
				editCmd.Stderr = os.Stderr
				editCmd.Stdin = os.Stdin

				if err := editCmd.Run(); err != nil {
					var exitErr *exec.ExitError
					if errors.As(err, &exitErr) {
						return ExitError{exitErr.ExitCode()}
					}

					return ExitError{1}
				}

				return nil
			}

			cfg, err := loadConfig()
			if err != nil {
				cmd.PrintErrf("failed to load config: %v\n", err)
				return ExitError{1}
			}

			if flags.json || !isatty.IsTerminal(os.Stdout.Fd()) {
				if err := encodeJSON(cmd.OutOrStdout(), cfg); err != nil {
					cmd.PrintErrf("failed to encode config: %v\n", err)
					return ExitError{1}
				}

				return nil
			}

			printer, err := newTablePrinter(cmd.OutOrStdout())
			if err != nil {
				return err
			}

			printer.AddHeader([]string{"Key", "Value"})
			for _, key := range k.Keys() {
				printer.AddField(key)
				printer.AddField(fmt.Sprint(k.Get(key)))
				printer.EndRow()
			}

			return printer.Render()
		},
	}

	cmd.Flags().BoolVar(&flags.json, "json", false, "output the resolved configuration as json")
	cmd.Flags().BoolVar(&flags.edit, "edit", false, "open the config file in $EDITOR")

	return cmd
}
