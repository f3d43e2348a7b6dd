package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newTransactionsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transactions",
		Short: "List recent registry transactions, newest block first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			if limit < 0 {
				return fmt.Errorf("--limit must not be negative")
			}

			svc, err := a.pipeline()
			if err != nil {
				return err
			}

			res := svc.ListTransactions(cmd.Context(), a.chainID())
			txs := res.Data
			if limit > 0 && len(txs) > limit {
				txs = txs[:limit]
			}

			if a.formatFlag == "json" {
				if err := writeJSON(cmd.OutOrStdout(), map[string]any{"transactions": txs}); err != nil {
					return err
				}
			} else {
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "BLOCK\tREGISTRY\tTX")
				for _, tx := range txs {
					fmt.Fprintf(tw, "%d\t%s\t%s\n", tx.Round, tx.Registry, tx.ID)
				}
				if err := tw.Flush(); err != nil {
					return err
				}
			}

			return a.finish(cmd, res.Issues())
		},
	}

	cmd.Flags().IntP("limit", "l", 20, "Max results (0 = all)")
	return cmd
}
