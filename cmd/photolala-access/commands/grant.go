package commands

import (
	"context"
	"fmt"
	"io/fs"

	"github.com/urfave/cli/v3"

	"github.com/photolala/photolala-access/internal/capability"
	"github.com/photolala/photolala-access/internal/grants"
)

func grantCommand() *cli.Command {
	pathArg := []cli.Argument{
		&cli.StringArg{Name: "path", UsageText: "library folder"},
	}

	return &cli.Command{
		Name:  "grant",
		Usage: "Manage persisted folder grants",
		Commands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Grant access to a folder the user picked",
				Arguments: pathArg,
				Action:    grantAddAction,
			},
			{
				Name:      "check",
				Usage:     "Re-open a granted folder and refresh its grant",
				Arguments: pathArg,
				Action:    grantCheckAction,
			},
			{
				Name:      "remove",
				Usage:     "Revoke a folder grant",
				Arguments: pathArg,
				Action:    grantRemoveAction,
			},
		},
	}
}

func pathArgument(cmd *cli.Command) (string, error) {
	path := cmd.StringArg("path")
	if path == "" {
		return "", fmt.Errorf("missing folder path")
	}

	return path, nil
}

func grantAddAction(ctx context.Context, cmd *cli.Command) error {
	path, err := pathArgument(cmd)
	if err != nil {
		return err
	}

	s, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.close(ctx)

	grant, err := s.Coordinator().Grant(ctx, path)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.Root().Writer, "Granted %s\n", grant.Path)

	return nil
}

func grantCheckAction(ctx context.Context, cmd *cli.Command) error {
	path, err := pathArgument(cmd)
	if err != nil {
		return err
	}

	s, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.close(ctx)

	var entries int
	err = s.Coordinator().WithResource(ctx, path, func(_ context.Context, h grants.Handle) error {
		list, err := fs.ReadDir(h.FS(), ".")
		if err != nil {
			return err
		}
		entries = len(list)
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.Root().Writer, "%s: %s, %d entries\n", path,
		stateLabel(s.Coordinator().State(capability.KindResourceGrant, path)), entries)

	return nil
}

func grantRemoveAction(ctx context.Context, cmd *cli.Command) error {
	path, err := pathArgument(cmd)
	if err != nil {
		return err
	}

	s, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.close(ctx)

	if err := s.Coordinator().Revoke(ctx, path); err != nil {
		return err
	}

	fmt.Fprintf(cmd.Root().Writer, "Removed grant for %s\n", path)

	return nil
}
