package cmd

import (
	"github.com/spf13/cobra"

	"github.com/pomdtr/assetpipe/internal/pipeline"
)

func NewCmdPipeline() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Print the assembled pipeline description",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				cmd.PrintErrf("failed to load config: %v\n", err)
				return ExitError{1}
			}

			p, err := pipeline.Assemble(cfg)
			if err != nil {
				cmd.PrintErrf("failed to assemble pipeline: %v\n", err)
				return ExitError{1}
			}

			if err := encodeJSON(cmd.OutOrStdout(), p); err != nil {
				cmd.PrintErrf("failed to encode pipeline: %v\n", err)
				return ExitError{1}
			}

			return nil
		},
	}

	return cmd
}
