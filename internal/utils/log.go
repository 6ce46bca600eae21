package utils

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger builds the process logger. Output is stdout, stderr or a file
// path rotated by lumberjack. An empty format picks pretty output for
// terminals and JSON otherwise.
func NewLogger(format string, output string, level slog.Level) (*slog.Logger, error) {
	var logOutput io.Writer
	var tty bool
	switch output {
	case "stdout":
		logOutput = os.Stdout
		tty = isatty.IsTerminal(os.Stdout.Fd())
	case "stderr", "":
		logOutput = os.Stderr
		tty = isatty.IsTerminal(os.Stderr.Fd())
	default:
		logOutput = &lumberjack.Logger{
			Filename:   output,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
		}
	}

	opts := &slog.HandlerOptions{Level: level}
	switch format {
	case "json":
		return slog.New(slog.NewJSONHandler(logOutput, opts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(logOutput, opts)), nil
	case "pretty":
		return slog.New(tint.NewHandler(logOutput, &tint.Options{Level: level})), nil
	case "":
		if tty {
			return slog.New(tint.NewHandler(logOutput, &tint.Options{Level: level})), nil
		}

		return slog.New(slog.NewJSONHandler(logOutput, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format: %s", format)
	}
}
