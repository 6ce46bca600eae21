package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pomdtr/assetpipe/internal/fingerprint"
)

func NewCmdFingerprint() *cobra.Command {
	var flags struct {
		root string
		json bool
	}

	cmd := &cobra.Command{
		Use:   "fingerprint <file>...",
		Short: "Print the fingerprinted path of static files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := flags.root
			if root == "" {
				cfg, err := loadConfig()
				if err != nil {
					cmd.PrintErrf("failed to load config: %v\n", err)
					return ExitError{1}
				}

				root = cfg.Build.StaticPath
			}

			type fingerprinted struct {
				File string `json:"file"`
				Path string `json:"path"`
			}

			var results []fingerprinted
			for _, arg := range args {
				file, err := filepath.Abs(arg)
				if err != nil {
					cmd.PrintErrf("invalid path %s: %v\n", arg, err)
					return ExitError{1}
				}

				p, err := fingerprint.Fingerprint(root, file)
				if err != nil {
					cmd.PrintErrf("failed to fingerprint %s: %v\n", arg, err)
					return ExitError{1}
				}

				results = append(results, fingerprinted{File: arg, Path: p.String()})
			}

			if flags.json {
				return encodeJSON(cmd.OutOrStdout(), results)
			}

			for _, r := range results {
				fmt.Fprintln(cmd.OutOrStdout(), r.Path)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&flags.root, "root", "", "static root the paths are relative to (defaults to build.staticPath)")
	cmd.Flags().BoolVar(&flags.json, "json", false, "output as json")

	return cmd
}
