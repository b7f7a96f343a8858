package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v3"
)

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Keep library folder grants and tokens fresh in the background",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "refresh--interval",
				Usage: "time between refresh passes",
			},
			&cli.IntFlag{
				Name:  "refresh--concurrency",
				Usage: "parallel refreshes",
			},
			&cli.StringSliceFlag{
				Name:  "library--roots",
				Usage: "library folders to keep granted",
			},
		},
		Action: watchAction,
	}
}

func watchAction(ctx context.Context, cmd *cli.Command) error {
	s, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.close(context.WithoutCancel(ctx))

	slog.InfoContext(ctx, "starting", "environment", s.cfg.Environment)

	if err := s.Start(ctx); err != nil {
		return fmt.Errorf("refresher failed: %w", err)
	}

	slog.InfoContext(ctx, "stopped gracefully")
	return nil
}
