package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/orca-network/explorer/internal/network"
	"github.com/orca-network/explorer/internal/registry"
	"github.com/orca-network/explorer/internal/validation"
)

const defaultLimit = 20

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *ExplorerClient
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *ExplorerClient) *Handlers {
	return &Handlers{client: client}
}

// HandleListAgents lists agents with optional filters.
func (h *Handlers) HandleListAgents(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q := AgentQuery{
		Network:       req.GetString("network", ""),
		Owner:         strings.TrimSpace(req.GetString("owner", "")),
		MinReputation: req.GetInt("min_reputation", 0),
		MinFeedback:   req.GetInt("min_feedback", 0),
		VerifiedOnly:  req.GetBool("verified_only", false),
		Limit:         req.GetInt("limit", defaultLimit),
	}
	if q.MinReputation < 0 || q.MinFeedback < 0 {
		return mcp.NewToolResultError("min_reputation and min_feedback must not be negative"), nil
	}

	list, err := h.client.ListAgents(ctx, q)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list agents: %v", err)), nil
	}

	return mcp.NewToolResultText(formatAgentList(list)), nil
}

// HandleGetAgent returns one agent.
func (h *Handlers) HandleGetAgent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := strings.TrimSpace(req.GetString("agent_id", ""))
	if id == "" {
		return mcp.NewToolResultError("agent_id is required"), nil
	}
	if !validation.IsDecimal(id) {
		return mcp.NewToolResultError("agent_id must be a non-negative integer"), nil
	}

	res, err := h.client.GetAgent(ctx, id, req.GetString("network", ""))
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.Code == http.StatusNotFound {
			return mcp.NewToolResultError(fmt.Sprintf("Agent %s not found", id)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get agent: %v", err)), nil
	}

	var sb strings.Builder
	writeAgent(&sb, res.Details)
	writeIssues(&sb, res.Issues)
	return mcp.NewToolResultText(sb.String()), nil
}

// HandleListTransactions lists recent registry transactions.
func (h *Handlers) HandleListTransactions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", defaultLimit)

	res, err := h.client.ListTransactions(ctx, req.GetString("network", ""), limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list transactions: %v", err)), nil
	}

	return mcp.NewToolResultText(formatTransactions(res)), nil
}

// HandleListNetworks lists the configured networks.
func (h *Handlers) HandleListNetworks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	nets, err := h.client.ListNetworks(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list networks: %v", err)), nil
	}

	return mcp.NewToolResultText(formatNetworks(nets)), nil
}

// --- Formatting helpers ---

func formatAgentList(list *AgentList) string {
	if len(list.Agents) == 0 {
		var sb strings.Builder
		sb.WriteString("No agents found.")
		writeIssues(&sb, list.Issues)
		return sb.String()
	}

	var sb strings.Builder
	if list.Count > len(list.Agents) {
		fmt.Fprintf(&sb, "Showing %d of %d agent(s):\n\n", len(list.Agents), list.Count)
	} else {
		fmt.Fprintf(&sb, "Found %d agent(s):\n\n", len(list.Agents))
	}
	for i, a := range list.Agents {
		fmt.Fprintf(&sb, "%d. %s (%s)\n", i+1, a.Name, a.Address)
		fmt.Fprintf(&sb, "   Reputation: %d (%d feedback) | Validation: %d (%d)\n",
			a.Reputation.Score, a.Reputation.Count, a.Validation.Score, a.Validation.Count)
		if a.Description != "" {
			fmt.Fprintf(&sb, "   URI: %s\n", a.Description)
		}
		if i < len(list.Agents)-1 {
			sb.WriteString("\n")
		}
	}
	writeIssues(&sb, list.Issues)
	return sb.String()
}

func writeAgent(sb *strings.Builder, a registry.AgentData) {
	fmt.Fprintf(sb, "%s\n", a.Name)
	fmt.Fprintf(sb, "  ID: %s\n", a.ID)
	fmt.Fprintf(sb, "  Owner: %s\n", a.Address)
	if a.Description != "" {
		fmt.Fprintf(sb, "  URI: %s\n", a.Description)
	}
	fmt.Fprintf(sb, "  Registered: %s\n", a.CreatedAt)
	fmt.Fprintf(sb, "  Status: %s\n", a.Status)
	fmt.Fprintf(sb, "  Reputation: %d from %d feedback\n", a.Reputation.Score, a.Reputation.Count)
	fmt.Fprintf(sb, "  Validation: %d from %d validations\n", a.Validation.Score, a.Validation.Count)
}

func formatTransactions(res *TransactionList) string {
	var sb strings.Builder
	if len(res.Transactions) == 0 {
		sb.WriteString("No registry transactions found.")
	} else {
		fmt.Fprintf(&sb, "Latest %d transaction(s):\n\n", len(res.Transactions))
		for _, tx := range res.Transactions {
			fmt.Fprintf(&sb, "  block %d  %-10s %s\n", tx.Round, tx.Registry, tx.ID)
		}
	}
	writeIssues(&sb, res.Issues)
	return sb.String()
}

func formatNetworks(nets []network.Descriptor) string {
	if len(nets) == 0 {
		return "No networks configured."
	}
	var sb strings.Builder
	for _, n := range nets {
		fmt.Fprintf(&sb, "%s (%s)\n", n.Name, n.ID)
		fmt.Fprintf(&sb, "  RPC: %s\n", n.RPCURL)
		if n.ExplorerURL != "" {
			fmt.Fprintf(&sb, "  Explorer: %s\n", n.ExplorerURL)
		}
	}
	return sb.String()
}

// writeIssues notes partial data so the model does not read absence as fact.
func writeIssues(sb *strings.Builder, issues []registry.Issue) {
	if len(issues) == 0 {
		return
	}
	sb.WriteString("\n\nWarning: partial data, some chain reads failed:\n")
	for _, is := range issues {
		fmt.Fprintf(sb, "  - %s (%s): %s\n", is.Scope, is.Kind, is.Message)
	}
}
