// Package cli provides the command-line interface for dotsync.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/klauern/dotsync/internal/config"
	"github.com/klauern/dotsync/internal/logging"
	"github.com/klauern/dotsync/internal/ui"
)

var (
	// Version is the current version of the application.
	Version = "dev"
	// Commit is the git commit hash.
	Commit = "unknown"
	// BuildDate is the date and time of the build.
	BuildDate = "unknown"
)

// app carries per-invocation state from the root Before hook to the commands.
type app struct {
	cfg   *config.Config
	out   io.Writer
	in    io.Reader
	isTTY func() bool
}

// Run executes the CLI application with the given context and arguments.
func Run(ctx context.Context, args []string) error {
	return newApp(os.Stdout, os.Stdin).Run(ctx, args)
}

func newApp(out io.Writer, in io.Reader) *cli.Command {
	a := &app{
		out: out,
		in:  in,
		isTTY: func() bool {
			f, ok := in.(*os.File)
			return ok && ui.IsTerminal(f) && ui.IsTerminal(out)
		},
	}

	return &cli.Command{
		Name:    "dotsync",
		Usage:   "Keep dotfiles in sync between your home directory and a repository",
		Version: Version,
		Writer:  out,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the manifest (tracked-item file)",
			},
			&cli.StringFlag{
				Name:  "settings",
				Usage: "Path to the dotsync settings file",
				Value: config.FilePath(),
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable verbose output (info level logging)",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug output (debug level logging, implies verbose)",
			},
			&cli.BoolFlag{
				Name:  "no-color",
				Usage: "Disable colored output",
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "Also write logs to this rotating file",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return ctx, err
			}
			a.cfg = cfg
			if err := configureColors(cmd, cfg, out); err != nil {
				return ctx, err
			}
			return ctx, configureLogging(cmd, cfg)
		},
		Commands: []*cli.Command{
			pullCommand(a),
			pushCommand(a),
			forcePullCommand(a),
			forcePushCommand(a),
			statusCommand(a),
			cleanCommand(a),
			addCommand(a),
			removeCommand(a),
			clearMetadataCommand(a),
			fixCommand(a),
			printCommand(a),
			newCommand(a),
			editCommand(a),
			backupCommand(a),
			versionCommand(a),
		},
	}
}

// loadConfig reads the settings file (missing is fine) and applies --config.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	path := cmd.String("settings")
	if path == "" || path == config.FilePath() {
		cfg, err = config.Load()
	} else {
		cfg, err = config.LoadFromPath(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	if cmd.IsSet("config") {
		cfg.Manifest = cmd.String("config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return cfg, nil
}

// configureColors sets up color output based on CLI flags and settings.
func configureColors(cmd *cli.Command, cfg *config.Config, out io.Writer) error {
	if cmd.Bool("no-color") {
		ui.DisableColors()
		return nil
	}
	return ui.SetColorMode(cfg.Output.Color, out)
}

// configureLogging sets up the logger from settings, with CLI flags taking precedence.
func configureLogging(cmd *cli.Command, cfg *config.Config) error {
	opts := logging.DefaultOptions()
	opts.JSON = cfg.Log.JSON
	opts.File = cfg.Log.File

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	opts.Level = level

	if cmd.Bool("debug") {
		opts.Level = slog.LevelDebug
		opts.AddSource = true
	} else if cmd.Bool("verbose") {
		opts.Level = slog.LevelInfo
	}
	if f := cmd.String("log-file"); f != "" {
		opts.File = f
	}

	logging.SetDefault(logging.New(opts))
	logging.Debug("logging configured", slog.String("level", opts.Level.String()))
	return nil
}

func (a *app) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(a.out, format, args...)
}

func (a *app) println(args ...any) {
	_, _ = fmt.Fprintln(a.out, args...)
}
