package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/orca-network/explorer/internal/registry"
	"github.com/orca-network/explorer/internal/validation"
)

func newAgentsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agents",
		Short: "List registered agents, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runAgents(cmd)
		},
	}

	cmd.Flags().String("owner", "", "Only agents owned by this address")
	cmd.Flags().Int("min-reputation", -1, "Minimum reputation score")
	cmd.Flags().Int("min-feedback", -1, "Minimum feedback count")
	cmd.Flags().Bool("verified", false, "Only agents with at least one validation")
	cmd.Flags().IntP("limit", "l", 0, "Max results (0 = all)")

	return cmd
}

func (a *app) runAgents(cmd *cobra.Command) error {
	owner, _ := cmd.Flags().GetString("owner")
	minRep, _ := cmd.Flags().GetInt("min-reputation")
	minFeedback, _ := cmd.Flags().GetInt("min-feedback")
	verified, _ := cmd.Flags().GetBool("verified")
	limit, _ := cmd.Flags().GetInt("limit")

	f := registry.Filter{Owner: owner, VerifiedOnly: verified}
	if cmd.Flags().Changed("min-reputation") {
		f.MinReputation = &minRep
	}
	if cmd.Flags().Changed("min-feedback") {
		f.MinFeedback = &minFeedback
	}
	if limit < 0 {
		return fmt.Errorf("--limit must not be negative")
	}

	svc, err := a.pipeline()
	if err != nil {
		return err
	}

	res := svc.ListAgents(cmd.Context(), a.chainID(), f)
	agents := res.Data
	if limit > 0 && len(agents) > limit {
		agents = agents[:limit]
	}

	if a.formatFlag == "json" {
		if err := writeJSON(cmd.OutOrStdout(), map[string]any{
			"count":  len(res.Data),
			"agents": agents,
		}); err != nil {
			return err
		}
	} else {
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tOWNER\tREPUTATION\tFEEDBACK\tVALIDATIONS\tCREATED")
		for _, ag := range agents {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\n",
				ag.ID, ag.Address, ag.Reputation.Score, ag.Reputation.Count, ag.Validation.Count, ag.CreatedAt)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d agent(s)\n", len(res.Data))
	}

	return a.finish(cmd, res.Issues())
}

func newAgentCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "agent <id>",
		Short: "Show one agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !validation.IsDecimal(args[0]) {
				return fmt.Errorf("agent id must be a non-negative integer, got %q", args[0])
			}

			svc, err := a.pipeline()
			if err != nil {
				return err
			}

			res, err := svc.GetAgent(cmd.Context(), a.chainID(), args[0])
			if errors.Is(err, registry.ErrAgentNotFound) {
				return fmt.Errorf("agent %s not found", args[0])
			}
			if registry.IsUpstream(err) {
				return fmt.Errorf("agent %s: node unavailable, registrations could not be read: %w", args[0], err)
			}
			if err != nil {
				return err
			}

			ag := res.Data
			if a.formatFlag == "json" {
				if err := writeJSON(cmd.OutOrStdout(), map[string]any{"details": ag}); err != nil {
					return err
				}
			} else {
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintf(tw, "ID:\t%s\n", ag.ID)
				fmt.Fprintf(tw, "Name:\t%s\n", ag.Name)
				fmt.Fprintf(tw, "Owner:\t%s\n", ag.Address)
				fmt.Fprintf(tw, "URI:\t%s\n", ag.Description)
				fmt.Fprintf(tw, "Created:\t%s\n", ag.CreatedAt)
				fmt.Fprintf(tw, "Status:\t%s\n", ag.Status)
				fmt.Fprintf(tw, "Reputation:\t%d (%d feedback)\n", ag.Reputation.Score, ag.Reputation.Count)
				fmt.Fprintf(tw, "Validation:\t%d (%d validations)\n", ag.Validation.Score, ag.Validation.Count)
				if err := tw.Flush(); err != nil {
					return err
				}
			}

			return a.finish(cmd, res.Issues())
		},
	}
}

func newRegistrationsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "registrations",
		Short: "List raw Registered events from the identity registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.pipeline()
			if err != nil {
				return err
			}

			res := svc.ListRegistrations(cmd.Context(), a.chainID())

			if a.formatFlag == "json" {
				type row struct {
					AgentID  string `json:"agentId"`
					Owner    string `json:"owner"`
					TokenURI string `json:"tokenURI"`
					Block    uint64 `json:"block"`
					TxHash   string `json:"txHash"`
				}
				rows := make([]row, 0, len(res.Data))
				for _, r := range res.Data {
					rows = append(rows, row{r.AgentID.String(), r.Owner.Hex(), r.TokenURI, r.BlockNumber, r.TxHash.Hex()})
				}
				if err := writeJSON(cmd.OutOrStdout(), rows); err != nil {
					return err
				}
			} else {
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "BLOCK\tAGENT\tOWNER\tURI")
				for _, r := range res.Data {
					fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", r.BlockNumber, r.AgentID, r.Owner.Hex(), r.TokenURI)
				}
				if err := tw.Flush(); err != nil {
					return err
				}
			}

			return a.finish(cmd, res.Issues())
		},
	}
}
