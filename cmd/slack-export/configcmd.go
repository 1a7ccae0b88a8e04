package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Sternrassler/slack-exporter/pkg/config"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration and manage the stored token",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with the token masked",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return a.cfg.Show(a.out)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set-token [token]",
		Short: "Store the bot token in the OS keyring",
		Long: `Store the bot token in the OS keyring. Without an argument the token is
read from standard input. Enable keyring lookup with --keyring or keyring.enabled.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var token string
			if len(args) == 1 {
				token = args[0]
			} else {
				var err error
				if token, err = readToken(cmd.InOrStdin(), a.errOut); err != nil {
					return err
				}
			}
			if err := config.SetToken(token); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Token %s stored in keyring\n", config.MaskToken(token))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete-token",
		Short: "Remove the bot token from the OS keyring",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			if err := config.DeleteToken(); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Token removed from keyring")
			return nil
		},
	})

	return cmd
}

// readToken reads one line from in, without echo when in is a terminal.
func readToken(in io.Reader, prompt io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(prompt, "Slack bot token: ")
		raw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("read token: %w", err)
		}
		return strings.TrimSpace(string(raw)), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read token: %w", err)
	}
	return strings.TrimSpace(line), nil
}
