package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/photolala/photolala-access/internal/app"
	"github.com/photolala/photolala-access/internal/capability"
	"github.com/photolala/photolala-access/internal/observability"
)

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string) error {
	return newRootCommand().Run(ctx, args)
}

func newRootCommand() *cli.Command {
	return &cli.Command{
		Name:  "photolala-access",
		Usage: "Photo library credentials and folder grants",
		Flags: rootFlags(),
		Commands: []*cli.Command{
			authCommand(),
			tokenCommand(),
			grantCommand(),
			libraryCommand(),
			watchCommand(),
			serveCommand(),
		},
	}
}

func rootFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "path to config file",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "log level (debug|info|warn|error)",
			Value: slog.LevelInfo.String(),
		},
		&cli.StringFlag{
			Name:  "log-format",
			Usage: "log format (text|json|otel)",
			Value: string(app.DefaultConfigLogFormat),
		},
		&cli.StringFlag{
			Name:  "environment",
			Usage: "environment (development|staging|production)",
			Value: string(app.DefaultConfigEnvironment),
		},
		&cli.StringFlag{
			Name:  "oauth--client-id",
			Usage: "OAuth client id",
		},
		&cli.StringFlag{
			Name:  "oauth--scope",
			Usage: "token scope",
			Value: app.DefaultConfigScope,
		},
	}
}

// session is a configured App plus the cleanup for everything setup opened.
type session struct {
	*app.App

	cfg      *app.Config
	shutdown func(context.Context) error
}

func (s *session) close(ctx context.Context) {
	if err := s.Close(); err != nil {
		slog.ErrorContext(ctx, "failed to close stores", "error", err)
	}
	if err := s.shutdown(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "failed to flush logs:", err)
	}
}

// setup loads config, installs logging and creates the App.
func setup(ctx context.Context, cmd *cli.Command) (*session, error) {
	cfg, err := loadConfig(cmd.String("config"), cmd, os.Environ)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Set up observability before creating app
	shutdown, err := observability.Instrument(cfg.LogLevel, string(cfg.LogFormat))
	if err != nil {
		return nil, fmt.Errorf("failed to set up observability layer: %w", err)
	}

	application, err := app.New(ctx, cfg)
	if err != nil {
		_ = shutdown(ctx)
		return nil, fmt.Errorf("failed to create app: %w", err)
	}

	return &session{App: application, cfg: cfg, shutdown: shutdown}, nil
}

// Hint returns what the user has to do about err, or "" when nothing.
func Hint(err error) string {
	switch {
	case errors.Is(err, capability.ErrNoIdentity):
		return "hint: not signed in, run `photolala-access auth login --account <email>`"
	case errors.Is(err, capability.ErrPermanentAuth):
		return "hint: access was revoked or denied, sign in again with `photolala-access auth login`"
	case errors.Is(err, capability.ErrRegrantRequired):
		return "hint: folder access is gone, grant it again with `photolala-access grant add <path>`"
	default:
		return ""
	}
}
