package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newNetworksCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "networks",
		Short: "List configured networks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.pipeline()
			if err != nil {
				return err
			}

			nets := svc.Networks()
			if a.formatFlag == "json" {
				return writeJSON(cmd.OutOrStdout(), nets)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tRPC\tEXPLORER")
			for _, n := range nets {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", n.ID, n.Name, n.RPCURL, n.ExplorerURL)
			}
			return tw.Flush()
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
