package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/cli/go-gh/v2/pkg/tableprinter"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/pomdtr/assetpipe/internal/build"
	"github.com/pomdtr/assetpipe/internal/config"
	"github.com/pomdtr/assetpipe/internal/utils"
)

type ExitError struct {
	Code int
}

func (e ExitError) Error() string {
	return fmt.Sprintf("exit with code %d", e.Code)
}

var (
	k = koanf.New(".")
)

var envProvider = env.ProviderWithValue("ASSETPIPE_", ".", func(s string, v string) (string, interface{}) {
	switch s {
	case "ASSETPIPE_DIR":
		return "dir", v
	case "ASSETPIPE_ENV":
		return "env", v
	case "ASSETPIPE_LOG_FORMAT":
		return "log-format", v
	case "ASSETPIPE_LOG_OUTPUT":
		return "log-output", v
	case "ASSETPIPE_LOG_LEVEL":
		return "log-level", v
	}

	return "", nil
})

// loadKoanf layers defaults, the config file, .env, the environment and
// flags into k. The dir is resolved first so the config file can be found.
func loadKoanf(cmd *cobra.Command) error {
	k = koanf.New(".")

	flagProvider := posflag.Provider(cmd.Root().PersistentFlags(), ".", k)
	_ = k.Load(confmap.Provider(config.Defaults(), "."), nil)
	_ = k.Load(confmap.Provider(map[string]interface{}{
		"dir": utils.FindProjectDir(),
	}, "."), nil)
	_ = k.Load(envProvider, nil)
	_ = k.Load(flagProvider, nil)

	dir := k.String("dir")
	if dir == "" {
		return nil
	}

	if err := config.LoadDotenv(dir); err != nil {
		return err
	}

	configPath := utils.FindConfigPath(dir)
	if utils.FileExists(configPath) {
		parser, err := utils.ConfigParser(configPath)
		if err != nil {
			return err
		}

		if err := k.Load(file.Provider(configPath), parser); err != nil {
			return fmt.Errorf("failed to load %s: %w", configPath, err)
		}
	}

	_ = k.Load(envProvider, nil)
	_ = k.Load(flagProvider, nil)

	return nil
}

func NewCmdRoot() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "assetpipe",
		Short:         "Build and fingerprint theme assets",
		Version:       build.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := loadKoanf(cmd); err != nil {
				cmd.PrintErrf("failed to load config: %v\n", err)
				return ExitError{1}
			}

			return nil
		},
	}

	rootCmd.PersistentFlags().String("dir", "", "The project directory")
	rootCmd.PersistentFlags().String("env", "", "The build environment (development or production)")
	rootCmd.PersistentFlags().String("log-format", "", "Log format (pretty, json or text)")
	rootCmd.PersistentFlags().String("log-output", "", "Log output (stderr, stdout or a file path)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn or error)")

	rootCmd.AddCommand(NewCmdBuild())
	rootCmd.AddCommand(NewCmdEntries())
	rootCmd.AddCommand(NewCmdFingerprint())
	rootCmd.AddCommand(NewCmdPipeline())
	rootCmd.AddCommand(NewCmdRewrite())
	rootCmd.AddCommand(NewCmdLogs())
	rootCmd.AddCommand(NewCmdWatch())
	rootCmd.AddCommand(NewCmdServe())
	rootCmd.AddCommand(NewCmdInit())
	rootCmd.AddCommand(NewCmdConfig())

	return rootCmd
}

func loadConfig() (*config.Config, error) {
	dir := k.String("dir")
	if dir == "" || !utils.FileExists(utils.FindConfigPath(dir)) {
		return nil, config.ErrConfigNotFound
	}

	cfg, err := config.Load(k, build.Version)
	if err != nil {
		return nil, err
	}

	if cfg.Logs.Database == "" {
		cfg.Logs.Database = filepath.Join(xdg.DataHome, "assetpipe", "builds.db")
	}

	return cfg, nil
}

func newLogger() (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(k.String("log-level"))); err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	return utils.NewLogger(k.String("log-format"), k.String("log-output"), level)
}

// setup loads the config and the logger, printing the failure if any.
func setup(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		cmd.PrintErrf("failed to load config: %v\n", err)
		return nil, nil, ExitError{1}
	}

	logger, err := newLogger()
	if err != nil {
		cmd.PrintErrf("failed to create logger: %v\n", err)
		return nil, nil, ExitError{1}
	}

	return cfg, logger, nil
}

func encodeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	if isatty.IsTerminal(os.Stdout.Fd()) {
		encoder.SetIndent("", "  ")
	}

	return encoder.Encode(v)
}

func newTablePrinter(w io.Writer) (tableprinter.TablePrinter, error) {
	if isatty.IsTerminal(os.Stdout.Fd()) {
		width, _, err := term.GetSize(int(os.Stdout.Fd()))
		if err != nil {
			return nil, fmt.Errorf("failed to get terminal size: %w", err)
		}

		return tableprinter.New(w, true, width), nil
	}

	return tableprinter.New(w, false, 0), nil
}
