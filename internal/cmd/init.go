package cmd

import (
	"embed"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/leaanthony/gosod"
	"github.com/spf13/cobra"

	"github.com/pomdtr/assetpipe/internal/utils"
)

//go:embed all:templates/project
var embedFS embed.FS

func NewCmdInit() *cobra.Command {
	var flags struct {
		theme string
		force bool
	}

	cmd := &cobra.Command{
		Use:   "init",
		Args:  cobra.NoArgs,
		Short: "Initialize a new project",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := k.String("dir")
			if dir == "" {
				cwd, err := os.Getwd()
				if err != nil {
					cmd.PrintErrf("failed to get current working directory: %v\n", err)
					return ExitError{1}
				}

				dir = cwd
			}

			for _, name := range utils.ConfigNames {
				if utils.FileExists(dir, name) && !flags.force {
					cmd.PrintErrf("%s already exists, use --force to overwrite it\n", filepath.Join(dir, name))
					return ExitError{1}
				}
			}

			subFS, err := fs.Sub(embedFS, "templates/project")
			if err != nil {
				cmd.PrintErrf("failed to create sub filesystem: %v\n", err)
				return ExitError{1}
			}

			templateFS := gosod.New(subFS)
			if err := templateFS.Extract(dir, map[string]any{
				"Theme": flags.theme,
			}); err != nil {
				cmd.PrintErrf("failed to extract project: %v\n", err)
				return ExitError{1}
			}

			// the stylesheet is named after the theme
			if flags.theme != "theme" {
				src := filepath.Join(dir, "styles", "theme.scss")
				if err := os.Rename(src, filepath.Join(dir, "styles", flags.theme+".scss")); err != nil {
					cmd.PrintErrf("failed to rename stylesheet: %v\n", err)
					return ExitError{1}
				}
			}

			cmd.PrintErrf("initialized project in %s\n", dir)
			return nil
		},
	}

	cmd.Flags().StringVar(&flags.theme, "theme", "default", "name of the first theme")
	cmd.Flags().BoolVar(&flags.force, "force", false, "overwrite an existing config")

	return cmd
}
