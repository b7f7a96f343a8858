package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/photolala/photolala-access/internal/app"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the local authenticating gateway to the photo library API",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "gateway--enabled",
				Usage: "enable the gateway",
				Value: true,
			},
			&cli.StringFlag{
				Name:  "gateway--host",
				Usage: "gateway host",
				Value: app.DefaultConfigGatewayHost,
			},
			&cli.IntFlag{
				Name:  "gateway--port",
				Usage: "gateway port",
				Value: app.DefaultConfigGatewayPort,
			},
		},
		Action: serveAction,
	}
}

func serveAction(ctx context.Context, cmd *cli.Command) error {
	if err := cmd.Set("gateway--enabled", "true"); err != nil {
		return err
	}

	s, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.close(context.WithoutCancel(ctx))

	slog.InfoContext(ctx, "starting", "environment", s.cfg.Environment)

	if err := s.Start(ctx); err != nil {
		return fmt.Errorf("app failed to start: %w", err)
	}

	slog.InfoContext(ctx, "stopped gracefully")
	return nil
}
