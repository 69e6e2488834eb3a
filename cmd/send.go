package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/bnema/giveaway-cli/internal/application"
	"github.com/bnema/giveaway-cli/internal/domain"
	"github.com/spf13/cobra"
)

const defaultThrowDistance = 150.0

func newSendCmd(app *app, flags *rootFlags) *cobra.Command {
	var itemID string
	var distance float64
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Throw a gifticon to a random person nearby",
		Long:  "send scans for people nearby and gives the selected gifticon to one of them, chosen at random. A throw shorter than session.drag_threshold is cancelled.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			id := domain.ItemID(strings.TrimSpace(itemID))
			if id == "" {
				return fmt.Errorf("%w: --item must not be empty", domain.ErrSelectionInvalid)
			}

			s, err := app.newSession(sessionOptions{
				in:        cmd.InOrStdin(),
				prompt:    cmd.ErrOrStderr(),
				assumeYes: flags.assumeYes,
				withAPI:   true,
			})
			if err != nil {
				return err
			}
			defer s.close(context.WithoutCancel(cmd.Context()))

			if !findInCatalog(cmd.Context(), s.catalog, id) {
				return fmt.Errorf("%w: %w: %s", domain.ErrSelectionInvalid, domain.ErrItemNotFound, id)
			}
			if err := s.controller.SelectItemByID(id); err != nil {
				return err
			}

			state, err := discover(cmd, app, s.controller, asJSON)
			if err != nil {
				return err
			}
			if len(state.Peers) == 0 {
				return domain.ErrNoPeers
			}

			outcome, err := s.controller.DragReleased(cmd.Context(), domain.DragRelease{Distance: distance})
			if err != nil {
				if asJSON {
					_ = writeSessionOutput(cmd, app, s.controller.Snapshot(), true)
				}
				return err
			}
			if outcome.Cancelled {
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "Throw too short (%.0f <= %.0f); nothing sent.\n", distance, app.cfg.Session.DragThreshold)
				return err
			}

			state = s.controller.Snapshot()
			if asJSON {
				return writeSessionOutput(cmd, app, state, true)
			}
			if state.Ack != nil {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), sanitizeForTerminal(state.Ack.Message))
			}
			return err
		},
	}

	cmd.Flags().StringVar(&itemID, "item", "", "Gifticon ID to give away")
	cmd.Flags().Float64Var(&distance, "distance", defaultThrowDistance, "Throw distance in points")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")
	_ = cmd.MarkFlagRequired("item")

	return cmd
}

// findInCatalog pages through the catalog until id shows up or pages run out.
func findInCatalog(ctx context.Context, catalog *application.Catalog, id domain.ItemID) bool {
	catalog.Load(ctx)
	for !catalog.Contains(id) && catalog.HasNextPage() {
		catalog.LoadMore(ctx)
	}

	return catalog.Contains(id)
}
