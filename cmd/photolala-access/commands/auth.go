package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
	"golang.org/x/term"

	"github.com/photolala/photolala-access/internal/access"
	"github.com/photolala/photolala-access/internal/broker"
	"github.com/photolala/photolala-access/internal/capability"
)

func authCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Sign in to the photo library account",
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Sign in interactively and store a refresh token",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "account",
						Usage:    "account email",
						Required: true,
					},
				},
				Action: authLoginAction,
			},
			{
				Name:   "logout",
				Usage:  "Forget the signed-in account and its tokens",
				Action: authLogoutAction,
			},
			{
				Name:   "status",
				Usage:  "Show the signed-in account",
				Action: authStatusAction,
			},
		},
	}
}

func authLoginAction(ctx context.Context, cmd *cli.Command) error {
	s, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.close(ctx)

	verifier := oauth2.GenerateVerifier()
	state := uuid.NewString()

	out := cmd.Root().ErrWriter
	if out == nil {
		out = os.Stderr
	}
	fmt.Fprintf(out, "Open this URL in a browser and approve access:\n\n  %s\n\n", s.AuthCodeURL(state, verifier))
	fmt.Fprintln(out, "After approving, copy the code parameter from the address bar.")

	code, err := readSecret(out, "Authorization code: ")
	if err != nil {
		return fmt.Errorf("reading authorization code: %w", err)
	}

	cred, err := s.SignIn(ctx, cmd.String("account"), code, verifier)
	if err != nil {
		return fmt.Errorf("sign-in failed: %w", err)
	}

	fmt.Fprintf(cmd.Root().Writer, "Signed in as %s (token %s)\n", cred.AccountID, broker.Redact(cred.Token))

	return nil
}

// readSecret prompts on out and reads one line from stdin without echo when
// stdin is a terminal.
func readSecret(out io.Writer, prompt string) (string, error) {
	fmt.Fprint(out, prompt)

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(out)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}

	return strings.TrimSpace(line), nil
}

func authLogoutAction(ctx context.Context, cmd *cli.Command) error {
	s, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.close(ctx)

	if err := s.SignOut(ctx); err != nil {
		return fmt.Errorf("sign-out failed: %w", err)
	}

	fmt.Fprintln(cmd.Root().Writer, "Signed out")

	return nil
}

func authStatusAction(ctx context.Context, cmd *cli.Command) error {
	s, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.close(ctx)

	id, err := s.CurrentIdentity(ctx)
	if err != nil {
		return err
	}
	if id == nil {
		return capability.ErrNoIdentity
	}

	fmt.Fprintf(cmd.Root().Writer, "Signed in as %s\nScope: %s (%s)\n",
		id.AccountID, s.Scope(), stateLabel(s.Coordinator().State(capability.KindToken, s.Scope())))

	return nil
}

// stateLabel renders a coordinator state for humans.
func stateLabel(st access.State) string {
	return strings.ReplaceAll(st.String(), "_", " ")
}
