package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/juanchiconsoli/email-monitor/config"
)

// ExitInvalidConfig is returned by Execute when the configuration file is unusable.
const ExitInvalidConfig = 42

// App carries what every command needs once the persistent flags are parsed.
type App struct {
	Options config.Options
	Logger  *slog.Logger
	RunID   string
	Out     io.Writer
	Err     io.Writer

	// lookup resolves passwords missing from the configuration file.
	lookup  config.PasswordLookup
	cleanup func() error
}

// NewRootCommand builds the CLI with all subcommands attached.
func NewRootCommand(app *App) *cobra.Command {
	if app.Out == nil {
		app.Out = os.Stdout
	}
	if app.Err == nil {
		app.Err = os.Stderr
	}
	if app.lookup == nil {
		app.lookup = keyringLookup
	}

	root := &cobra.Command{
		Use:           "email-monitor",
		Short:         "Check a mailbox for the daily backup notifications of every client",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			opts, err := config.LoadOptions(cmd)
			if err != nil {
				return err
			}
			app.Options = opts

			logger, cleanup, err := setupLogger(opts, app.Err)
			if err != nil {
				return err
			}
			app.RunID = uuid.NewString()
			app.Logger = logger.With("run", app.RunID)
			app.cleanup = cleanup
			slog.SetDefault(app.Logger)

			app.Logger.Debug("starting email-monitor", "command", cmd.Name(), "config", opts.ConfigPath)
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return app.close()
		},
	}

	config.RegisterFlags(root)
	root.AddCommand(
		newClientsCommand(app),
		newEmailsCommand(app),
		newBackupsCommand(app),
		newReportCommand(app),
		newPasswordCommand(app),
	)
	return root
}

func (a *App) close() error {
	if a.cleanup == nil {
		return nil
	}
	err := a.cleanup()
	a.cleanup = nil
	return err
}

// Execute runs the CLI with os.Args and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &App{}
	root := NewRootCommand(app)
	err := root.ExecuteContext(ctx)
	_ = app.close()
	return exitCode(err, app.Err)
}

func exitCode(err error, w io.Writer) int {
	if err == nil {
		return 0
	}
	fmt.Fprintf(w, "error: %v\n", err)
	if errors.Is(err, config.ErrInvalidConfig) {
		return ExitInvalidConfig
	}
	return 1
}

func setupLogger(opts config.Options, w io.Writer) (*slog.Logger, func() error, error) {
	level := new(slog.LevelVar)
	level.Set(slog.LevelWarn)

	switch opts.LogLevel {
	case "debug":
		level.Set(slog.LevelDebug)
	case "info":
		level.Set(slog.LevelInfo)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	cleanup := func() error { return nil }

	if opts.LogDir != "" {
		if err := os.MkdirAll(opts.LogDir, 0o755); err != nil {
			return nil, cleanup, err
		}

		logFilePath := filepath.Join(opts.LogDir, fmt.Sprintf("email-monitor-%s.log", time.Now().Format("20060102T150405")))
		file, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, cleanup, err
		}

		handler := slog.NewTextHandler(io.MultiWriter(w, file), handlerOpts)
		cleanup = func() error {
			return file.Close()
		}
		return slog.New(handler), cleanup, nil
	}

	handler := slog.NewTextHandler(w, handlerOpts)
	return slog.New(handler), cleanup, nil
}
