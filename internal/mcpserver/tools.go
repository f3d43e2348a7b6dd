package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the explorer MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolListAgents = mcp.NewTool("list_agents",
	mcp.WithDescription(
		"List AI agents registered in the ERC-8004 identity registry, newest first. "+
			"Each agent carries its on-chain reputation (feedback count and average score) "+
			"and validation summary. Filters combine."),
	mcp.WithString("network",
		mcp.Description("Network to query: 'testnet' (Cronos testnet, default) or 'ganache' for a local chain")),
	mcp.WithString("owner",
		mcp.Description("Only agents owned by this address (e.g. '0x1234...'), case-insensitive")),
	mcp.WithNumber("min_reputation",
		mcp.Description("Minimum average reputation score, 0-100")),
	mcp.WithNumber("min_feedback",
		mcp.Description("Minimum number of feedback entries")),
	mcp.WithBoolean("verified_only",
		mcp.Description("Only agents with at least one validation")),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of agents to return (default 20)")),
)

var ToolGetAgent = mcp.NewTool("get_agent",
	mcp.WithDescription(
		"Get one registered agent by its numeric id, including owner address, "+
			"metadata URI, registration time, reputation and validation summaries."),
	mcp.WithString("agent_id",
		mcp.Required(),
		mcp.Description("The agent id assigned at registration (e.g. '42')")),
	mcp.WithString("network",
		mcp.Description("Network to query: 'testnet' (default) or 'ganache'")),
)

var ToolListTransactions = mcp.NewTool("list_transactions",
	mcp.WithDescription(
		"List the latest transactions that touched the identity, reputation or "+
			"validation registry, newest block first."),
	mcp.WithString("network",
		mcp.Description("Network to query: 'testnet' (default) or 'ganache'")),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of transactions to return (default 20)")),
)

var ToolListNetworks = mcp.NewTool("list_networks",
	mcp.WithDescription(
		"List the networks this explorer reads, with chain id, RPC URL and block explorer URL."),
)
