// Package cli holds the kanban-api command tree.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"kanban/api/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	EnvFile   string
	LogLevel  string
	LogFormat string

	// Config is loaded before any subcommand runs.
	Config config.Config
}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "kanban-api",
		Short: "Kanban board API",
		Long:  "Serves the kanban board API and manages its database schema.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			opts.Config = config.Load(opts.EnvFile)
			if opts.LogLevel != "" {
				opts.Config.LogLevel = opts.LogLevel
			}
			if opts.LogFormat != "" {
				opts.Config.LogFormat = opts.LogFormat
			}
			if _, err := parseLevel(opts.Config.LogLevel); err != nil {
				return err
			}
			if !isValidFormat(opts.Config.LogFormat) {
				return fmt.Errorf("invalid log format %q: must be one of %v", opts.Config.LogFormat, ValidFormats)
			}
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "environment file loaded before reading configuration")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (debug|info|warn|error), overrides KANBAN_LOG_LEVEL")
	cmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", "", "log format (json|text), overrides KANBAN_LOG_FORMAT")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))

	return cmd
}

var ValidFormats = []string{"json", "text"}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if strings.EqualFold(f, format) {
			return true
		}
	}
	return false
}

func parseLevel(level string) (slog.Level, error) {
	var parsed slog.Level
	if err := parsed.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", level)
	}
	return parsed, nil
}

// newLogger builds the process logger from configuration.
func newLogger(w io.Writer, cfg config.Config) *slog.Logger {
	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.LogFormat, "text") {
		return slog.New(slog.NewTextHandler(w, handlerOpts))
	}
	return slog.New(slog.NewJSONHandler(w, handlerOpts))
}

func stderrLogger(cfg config.Config) *slog.Logger {
	logger := newLogger(os.Stderr, cfg)
	slog.SetDefault(logger)
	return logger
}
