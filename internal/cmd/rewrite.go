package cmd

import (
	"github.com/spf13/cobra"

	"github.com/pomdtr/assetpipe/internal/manifest"
)

func NewCmdRewrite() *cobra.Command {
	var flags struct {
		output string
	}

	cmd := &cobra.Command{
		Use:   "rewrite <manifest>",
		Short: "Insert the chunk hash into every /dist/ path of a chunk manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := manifest.ReadEntries(args[0])
			if err != nil {
				cmd.PrintErrf("failed to read manifest: %v\n", err)
				return ExitError{1}
			}

			output := flags.output
			if output == "" {
				output = args[0]
			}

			if output == "-" {
				return encodeJSON(cmd.OutOrStdout(), manifest.Rewrite(entries))
			}

			if err := manifest.WriteEntries(output, manifest.Rewrite(entries)); err != nil {
				cmd.PrintErrf("failed to write manifest: %v\n", err)
				return ExitError{1}
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "write to this file instead of rewriting in place (- for stdout)")

	return cmd
}
