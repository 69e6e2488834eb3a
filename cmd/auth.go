package cmd

import (
	"bufio"
	"errors"
	"fmt"

	"github.com/bnema/giveaway-cli/internal/domain"
	"github.com/spf13/cobra"
)

func newAuthCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the gifticon API token",
	}

	cmd.AddCommand(newAuthSetTokenCmd(app), newAuthClearTokenCmd(app))

	return cmd
}

func newAuthSetTokenCmd(app *app) *cobra.Command {
	var token string
	var fromStdin bool

	cmd := &cobra.Command{
		Use:   "set-token",
		Short: "Store the API bearer token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if fromStdin {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read token from stdin: %w", err)
				}
				token = line
			}

			normalized, err := domain.NormalizeToken(token)
			if err != nil {
				return err
			}

			if err := app.secretStore.Put(cmd.Context(), app.cfg.API.TokenRef, normalized); err != nil {
				return fmt.Errorf("store api token: %w", err)
			}

			out := cmd.OutOrStdout()
			if _, err := fmt.Fprintf(out, "Stored API token as %s.\n", app.cfg.API.TokenRef); err != nil {
				return err
			}
			return printOverride(cmd, app, "it takes precedence over the stored token")
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "API bearer token")
	cmd.Flags().BoolVar(&fromStdin, "stdin", false, "Read the token from standard input")
	cmd.MarkFlagsOneRequired("token", "stdin")
	cmd.MarkFlagsMutuallyExclusive("token", "stdin")

	return cmd
}

func newAuthClearTokenCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-token",
		Short: "Remove the stored API bearer token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			err := app.secretStore.Delete(cmd.Context(), app.cfg.API.TokenRef)
			if err != nil && !errors.Is(err, domain.ErrSecretNotFound) {
				return fmt.Errorf("remove api token: %w", err)
			}

			if _, err := fmt.Fprintln(cmd.OutOrStdout(), "API token removed."); err != nil {
				return err
			}
			return printOverride(cmd, app, "it is still used for API calls")
		},
	}
}

func printOverride(cmd *cobra.Command, app *app, effect string) error {
	name, ok := app.secretStore.Override(cmd.Context(), app.cfg.API.TokenRef)
	if !ok {
		return nil
	}

	_, err := fmt.Fprintf(cmd.OutOrStdout(), "Note: %s is set; %s.\n", name, effect)
	return err
}
