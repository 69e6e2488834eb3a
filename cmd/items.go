package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/bnema/giveaway-cli/internal/adapters/render/radar"
	"github.com/bnema/giveaway-cli/internal/application"
	"github.com/bnema/giveaway-cli/internal/domain"
	"github.com/spf13/cobra"
)

func newItemsCmd(app *app) *cobra.Command {
	var all bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "items",
		Short: "List the gifticons you can give away",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := app.requireAPI()
			if err != nil {
				return err
			}

			catalog := application.NewCatalog(client, app.cfg.Catalog.PageSize, app.logger.Named("catalog"))
			items := catalog.Load(cmd.Context())
			for all && catalog.HasNextPage() {
				items = catalog.LoadMore(cmd.Context())
			}

			return writeItemsOutput(cmd, items, !all && catalog.HasNextPage(), asJSON)
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Fetch every page")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")

	return cmd
}

type itemView struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Brand     string `json:"brand,omitempty"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

func writeItemsOutput(cmd *cobra.Command, items []domain.TransferableItem, more bool, asJSON bool) error {
	if asJSON {
		views := make([]itemView, 0, len(items))
		for _, item := range items {
			view := itemView{ID: string(item.ID), Name: item.Name, Brand: item.Brand}
			if !item.ExpiresAt.IsZero() {
				view.ExpiresAt = item.ExpiresAt.Format("2006-01-02")
			}
			views = append(views, view)
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	}

	out := cmd.OutOrStdout()
	if len(items) == 0 {
		_, err := fmt.Fprintln(out, "No gifticons to give away.")
		return err
	}

	for _, item := range items {
		_, _ = fmt.Fprintf(out, "%s\t%s\n", item.ID, sanitizeForTerminal(radar.ItemLabel(item)))
	}
	if more {
		_, _ = fmt.Fprintln(out, "More gifticons available; use --all to list them.")
	}

	return nil
}

func sanitizeForTerminal(value string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, value)
}
