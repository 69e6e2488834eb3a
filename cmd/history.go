package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newHistoryCmd(app *app) *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the gifticons you gave away",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			records, err := app.history.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("load history: %w", err)
			}
			if limit > 0 && len(records) > limit {
				records = records[:limit]
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(records)
			}

			out := cmd.OutOrStdout()
			if len(records) == 0 {
				_, err := fmt.Fprintln(out, "Nothing given away yet.")
				return err
			}

			for _, record := range records {
				item := record.ItemName
				if item == "" {
					item = string(record.ItemID)
				}
				_, _ = fmt.Fprintf(out, "%s\t%s -> %s\n",
					record.SentAt.Local().Format(time.DateTime),
					sanitizeForTerminal(item),
					sanitizeForTerminal(record.PeerName),
				)
			}

			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Show at most this many entries (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")

	return cmd
}
