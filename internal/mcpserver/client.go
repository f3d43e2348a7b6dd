package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/orca-network/explorer/internal/network"
	"github.com/orca-network/explorer/internal/registry"
)

// Config holds the configuration for reaching an explorer API.
type Config struct {
	APIURL  string        // Base URL, e.g. "http://localhost:8080"
	Timeout time.Duration // per request; 0 = 30s
}

// ExplorerClient is a pure HTTP client for the explorer API.
type ExplorerClient struct {
	cfg        Config
	httpClient *http.Client
}

// NewExplorerClient creates a new client for the explorer API.
func NewExplorerClient(cfg Config) *ExplorerClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ExplorerClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// apiError represents an error response from the explorer.
type apiError struct {
	Error string `json:"error"`
}

// AgentQuery narrows list_agents.
type AgentQuery struct {
	Network       string
	Owner         string
	MinReputation int
	MinFeedback   int
	VerifiedOnly  bool
	Limit         int
}

// AgentList is the body of GET /agents.
type AgentList struct {
	Count      int                  `json:"count"`
	Agents     []registry.AgentData `json:"agents"`
	NextCursor string               `json:"nextCursor,omitempty"`
	Degraded   bool                 `json:"degraded,omitempty"`
	Issues     []registry.Issue     `json:"issues,omitempty"`
}

// AgentDetails is the body of GET /agents/:id.
type AgentDetails struct {
	Details  registry.AgentData `json:"details"`
	Degraded bool               `json:"degraded,omitempty"`
	Issues   []registry.Issue   `json:"issues,omitempty"`
}

// TransactionList is the body of GET /transactions.
type TransactionList struct {
	Transactions []registry.TxSummary `json:"transactions"`
	Degraded     bool                 `json:"degraded,omitempty"`
	Issues       []registry.Issue     `json:"issues,omitempty"`
}

// StatusError is a non-2xx answer from the explorer.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.Code, e.Message)
}

// get makes a GET request to the explorer and decodes the JSON body into out.
func (c *ExplorerClient) get(ctx context.Context, path string, query url.Values, out any) error {
	u, err := url.Parse(c.cfg.APIURL + path)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return &StatusError{Code: resp.StatusCode, Message: apiErr.Error}
		}
		return &StatusError{Code: resp.StatusCode, Message: string(body)}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// ListAgents lists agents matching q.
func (c *ExplorerClient) ListAgents(ctx context.Context, q AgentQuery) (*AgentList, error) {
	v := url.Values{}
	if q.Network != "" {
		v.Set("network", q.Network)
	}
	if q.Owner != "" {
		v.Set("owner", q.Owner)
	}
	if q.MinReputation > 0 {
		v.Set("minReputation", strconv.Itoa(q.MinReputation))
	}
	if q.MinFeedback > 0 {
		v.Set("minFeedback", strconv.Itoa(q.MinFeedback))
	}
	if q.VerifiedOnly {
		v.Set("verified", "true")
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}

	var out AgentList
	if err := c.get(ctx, "/agents", v, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetAgent returns one agent by id.
func (c *ExplorerClient) GetAgent(ctx context.Context, id, networkName string) (*AgentDetails, error) {
	v := url.Values{}
	if networkName != "" {
		v.Set("network", networkName)
	}
	var out AgentDetails
	if err := c.get(ctx, "/agents/"+url.PathEscape(id), v, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListTransactions returns the newest registry transactions.
func (c *ExplorerClient) ListTransactions(ctx context.Context, networkName string, limit int) (*TransactionList, error) {
	v := url.Values{}
	if networkName != "" {
		v.Set("network", networkName)
	}
	if limit > 0 {
		v.Set("limit", strconv.Itoa(limit))
	}
	var out TransactionList
	if err := c.get(ctx, "/transactions", v, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListNetworks returns the networks the explorer serves.
func (c *ExplorerClient) ListNetworks(ctx context.Context) ([]network.Descriptor, error) {
	var out []network.Descriptor
	if err := c.get(ctx, "/network-configs", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
