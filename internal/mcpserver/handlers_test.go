package mcpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orca-network/explorer/internal/network"
	"github.com/orca-network/explorer/internal/registry"
	"github.com/orca-network/explorer/internal/testutil"
)

// --- Test helpers ---

var (
	ownerA = common.HexToAddress("0x00000000000000000000000000000000000000A1")
	ownerB = common.HexToAddress("0x00000000000000000000000000000000000000B2")
)

type explorerEnv struct {
	handlers *Handlers
	testnet  *testutil.FakeChain
	ganache  *testutil.FakeChain
}

// newExplorerEnv serves the real explorer routes over fake nodes.
func newExplorerEnv(t *testing.T) *explorerEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	testnet := testutil.NewFakeChain(network.TestnetDefaults())
	ganache := testutil.NewFakeChain(network.GanacheDefaults())
	testnet.Register(1, ownerA, "ipfs://alpha", 10)
	testnet.Register(2, ownerB, "ipfs://beta", 11)
	testnet.SetReputation(1, 3, 70)
	testnet.SetReputation(2, 9, 95)
	testnet.SetValidation(2, 1, 100)
	ganache.Register(7, ownerA, "ipfs://local", 2)

	svc := registry.NewService(testutil.NewProvider(testnet, ganache))
	r := gin.New()
	registry.NewHandler(svc).RegisterRoutes(r)
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)

	return &explorerEnv{
		handlers: NewHandlers(NewExplorerClient(Config{APIURL: ts.URL})),
		testnet:  testnet,
		ganache:  ganache,
	}
}

func newStubSetup(t *testing.T, handler http.Handler) *Handlers {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return NewHandlers(NewExplorerClient(Config{APIURL: ts.URL}))
}

func makeRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	if args == nil {
		args = map[string]any{}
	}
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content, "expected at least one content block")
	tc, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected TextContent, got %T", result.Content[0])
	return tc.Text
}

// ============================================================
// Client tests
// ============================================================

func TestClient_ErrorWithAPIMessage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": "minReputation: must be an integer"})
	}))
	defer ts.Close()

	client := NewExplorerClient(Config{APIURL: ts.URL})
	_, err := client.ListAgents(context.Background(), AgentQuery{})
	require.Error(t, err)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.Code)
	assert.Equal(t, "minReputation: must be an integer", se.Message)
}

func TestClient_ErrorNonJSON(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream timeout"))
	}))
	defer ts.Close()

	client := NewExplorerClient(Config{APIURL: ts.URL})
	_, err := client.ListNetworks(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "upstream timeout")
}

func TestClient_ConnectionRefused(t *testing.T) {
	client := NewExplorerClient(Config{APIURL: "http://127.0.0.1:1", Timeout: time.Second})
	_, err := client.ListNetworks(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request failed")
}

func TestClient_ListAgentsQuery(t *testing.T) {
	var gotPath, gotQuery string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{"count":0,"agents":[]}`))
	}))
	defer ts.Close()

	client := NewExplorerClient(Config{APIURL: ts.URL})
	_, err := client.ListAgents(context.Background(), AgentQuery{
		Network:       "ganache",
		Owner:         "0xabc",
		MinReputation: 50,
		MinFeedback:   2,
		VerifiedOnly:  true,
		Limit:         5,
	})
	require.NoError(t, err)
	assert.Equal(t, "/agents", gotPath)
	assert.Equal(t, "limit=5&minFeedback=2&minReputation=50&network=ganache&owner=0xabc&verified=true", gotQuery)
}

func TestClient_ZeroFiltersOmitted(t *testing.T) {
	var gotQuery string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{"count":0,"agents":[]}`))
	}))
	defer ts.Close()

	client := NewExplorerClient(Config{APIURL: ts.URL})
	_, err := client.ListAgents(context.Background(), AgentQuery{})
	require.NoError(t, err)
	assert.Empty(t, gotQuery)
}

func TestClient_DecodeError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer ts.Close()

	client := NewExplorerClient(Config{APIURL: ts.URL})
	_, err := client.ListTransactions(context.Background(), "", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode response")
}

// ============================================================
// Tool tests against the explorer routes
// ============================================================

func TestHandleListAgents_All(t *testing.T) {
	env := newExplorerEnv(t)

	result, err := env.handlers.HandleListAgents(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	require.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "Found 2 agent(s)")
	assert.Contains(t, text, "1. Agent #2 (0x00000000000000000000000000000000000000b2)")
	assert.Contains(t, text, "Reputation: 95 (9 feedback) | Validation: 100 (1)")
	assert.Contains(t, text, "URI: ipfs://alpha")
	assert.NotContains(t, text, "Warning")
}

func TestHandleListAgents_Filters(t *testing.T) {
	env := newExplorerEnv(t)

	result, err := env.handlers.HandleListAgents(context.Background(), makeRequest(map[string]any{
		"min_reputation": float64(80),
		"verified_only":  true,
	}))
	require.NoError(t, err)

	text := resultText(t, result)
	assert.Contains(t, text, "Found 1 agent(s)")
	assert.Contains(t, text, "Agent #2")
	assert.NotContains(t, text, "Agent #1 ")
}

func TestHandleListAgents_Limit(t *testing.T) {
	env := newExplorerEnv(t)

	result, err := env.handlers.HandleListAgents(context.Background(), makeRequest(map[string]any{
		"limit": float64(1),
	}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "Showing 1 of 2 agent(s)")
}

func TestHandleListAgents_Network(t *testing.T) {
	env := newExplorerEnv(t)

	result, err := env.handlers.HandleListAgents(context.Background(), makeRequest(map[string]any{
		"network": "ganache",
	}))
	require.NoError(t, err)

	text := resultText(t, result)
	assert.Contains(t, text, "Found 1 agent(s)")
	assert.Contains(t, text, "Agent #7")
}

func TestHandleListAgents_NegativeFilter(t *testing.T) {
	env := newExplorerEnv(t)

	result, err := env.handlers.HandleListAgents(context.Background(), makeRequest(map[string]any{
		"min_feedback": float64(-1),
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleListAgents_Degraded(t *testing.T) {
	env := newExplorerEnv(t)
	env.testnet.FailLogs(network.TestnetDefaults().IdentityRegistry, testutil.ErrNodeDown)

	result, err := env.handlers.HandleListAgents(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	require.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "No agents found.")
	assert.Contains(t, text, "Warning: partial data")
	assert.Contains(t, text, "registrations (upstream_unavailable)")
}

func TestHandleGetAgent(t *testing.T) {
	env := newExplorerEnv(t)

	result, err := env.handlers.HandleGetAgent(context.Background(), makeRequest(map[string]any{
		"agent_id": "1",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "Agent #1")
	assert.Contains(t, text, "Owner: 0x00000000000000000000000000000000000000a1")
	assert.Contains(t, text, "URI: ipfs://alpha")
	assert.Contains(t, text, "Reputation: 70 from 3 feedback")
	assert.Contains(t, text, "Status: active")
}

func TestHandleGetAgent_NotFound(t *testing.T) {
	env := newExplorerEnv(t)

	result, err := env.handlers.HandleGetAgent(context.Background(), makeRequest(map[string]any{
		"agent_id": "404",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Equal(t, "Agent 404 not found", resultText(t, result))
}

func TestHandleGetAgent_MissingID(t *testing.T) {
	env := newExplorerEnv(t)

	result, err := env.handlers.HandleGetAgent(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "agent_id is required")
}

func TestHandleGetAgent_InvalidID(t *testing.T) {
	env := newExplorerEnv(t)

	result, err := env.handlers.HandleGetAgent(context.Background(), makeRequest(map[string]any{
		"agent_id": "../health",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "non-negative integer")
}

func TestHandleGetAgent_ServerError(t *testing.T) {
	env := newExplorerEnv(t)
	env.testnet.FailLogs(network.TestnetDefaults().IdentityRegistry, testutil.ErrNodeDown)

	result, err := env.handlers.HandleGetAgent(context.Background(), makeRequest(map[string]any{
		"agent_id": "1",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "Failed to fetch agent details")
}

func TestHandleListTransactions(t *testing.T) {
	env := newExplorerEnv(t)
	cfg := network.TestnetDefaults()
	env.testnet.Activity(cfg.ValidationRegistry, 20)

	result, err := env.handlers.HandleListTransactions(context.Background(), makeRequest(map[string]any{
		"limit": float64(2),
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "Latest 2 transaction(s)")
	assert.Contains(t, text, "block 20  validation")
	assert.Contains(t, text, "block 11  identity")
	assert.NotContains(t, text, "block 10 ")
}

func TestHandleListTransactions_Empty(t *testing.T) {
	h := newStubSetup(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"transactions":[],"nextToken":null}`))
	}))

	result, err := h.HandleListTransactions(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.Equal(t, "No registry transactions found.", resultText(t, result))
}

func TestHandleListNetworks(t *testing.T) {
	env := newExplorerEnv(t)

	result, err := env.handlers.HandleListNetworks(context.Background(), makeRequest(nil))
	require.NoError(t, err)

	text := resultText(t, result)
	assert.Contains(t, text, "Cronos Testnet (cronos-testnet)")
	assert.Contains(t, text, "RPC: https://evm-t3.cronos.org")
	assert.Contains(t, text, "Ganache Local (ganache)")
}

func TestHandleListNetworks_Error(t *testing.T) {
	h := newStubSetup(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	result, err := h.HandleListNetworks(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "Failed to list networks")
}

// ============================================================
// Server wiring
// ============================================================

func TestNewMCPServer(t *testing.T) {
	s := NewMCPServer(Config{APIURL: "http://localhost:8080"})
	require.NotNil(t, s)
}

func TestHandlers_NeverReturnGoError(t *testing.T) {
	// Failures are reported in result.IsError, never as a Go error.
	h := NewHandlers(NewExplorerClient(Config{APIURL: "http://127.0.0.1:1", Timeout: time.Second}))

	tests := []struct {
		name string
		fn   func() (*mcp.CallToolResult, error)
	}{
		{"ListAgents", func() (*mcp.CallToolResult, error) {
			return h.HandleListAgents(context.Background(), makeRequest(nil))
		}},
		{"GetAgent", func() (*mcp.CallToolResult, error) {
			return h.HandleGetAgent(context.Background(), makeRequest(map[string]any{"agent_id": "1"}))
		}},
		{"ListTransactions", func() (*mcp.CallToolResult, error) {
			return h.HandleListTransactions(context.Background(), makeRequest(nil))
		}},
		{"ListNetworks", func() (*mcp.CallToolResult, error) {
			return h.HandleListNetworks(context.Background(), makeRequest(nil))
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := tc.fn()
			require.NoError(t, err)
			assert.True(t, result.IsError)
		})
	}
}
