package commands

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/urfave/cli/v3"
)

func libraryCommand() *cli.Command {
	return &cli.Command{
		Name:  "library",
		Usage: "Read the remote photo library",
		Commands: []*cli.Command{
			{
				Name:  "albums",
				Usage: "List albums",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "page-size",
						Usage: "albums per page (max 50)",
						Value: 20,
					},
					&cli.StringFlag{
						Name:  "page-token",
						Usage: "continue from a previous page",
					},
				},
				Action: libraryAlbumsAction,
			},
		},
	}
}

func libraryAlbumsAction(ctx context.Context, cmd *cli.Command) error {
	s, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.close(ctx)

	page, err := s.ListAlbums(ctx, int(cmd.Int("page-size")), cmd.String("page-token"))
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.Root().Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tITEMS")
	for _, album := range page.Albums {
		fmt.Fprintf(w, "%s\t%s\t%s\n", album.ID, album.Title, album.MediaItemsCount)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if page.NextPageToken != "" {
		fmt.Fprintf(cmd.Root().Writer, "\nnext page: --page-token %s\n", page.NextPageToken)
	}

	return nil
}
