package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/photolala/photolala-access/internal/broker"
)

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Inspect and revoke access tokens",
		Commands: []*cli.Command{
			{
				Name:  "get",
				Usage: "Acquire an access token for the configured scope",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "reveal",
						Usage: "print the full token instead of a redacted form",
					},
				},
				Action: tokenGetAction,
			},
			{
				Name:   "invalidate",
				Usage:  "Drop cached access tokens for the configured scope",
				Action: tokenInvalidateAction,
			},
		},
	}
}

func tokenGetAction(ctx context.Context, cmd *cli.Command) error {
	s, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.close(ctx)

	return s.Coordinator().WithToken(ctx, s.Scope(), func(_ context.Context, cred broker.Credential) error {
		token := broker.Redact(cred.Token)
		if cmd.Bool("reveal") {
			token = cred.Token
		}

		_, err := fmt.Fprintln(cmd.Root().Writer, token)
		return err
	})
}

func tokenInvalidateAction(ctx context.Context, cmd *cli.Command) error {
	s, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.close(ctx)

	if err := s.InvalidateToken(ctx); err != nil {
		return err
	}

	fmt.Fprintf(cmd.Root().Writer, "Invalidated tokens for %s\n", s.Scope())

	return nil
}
