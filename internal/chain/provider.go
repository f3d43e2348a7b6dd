package chain

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/orca-network/explorer/internal/circuitbreaker"
	"github.com/orca-network/explorer/internal/network"
	"github.com/orca-network/explorer/internal/retry"
)

// Dialer opens an EthClient for an RPC URL.
type Dialer func(ctx context.Context, rpcURL string) (EthClient, error)

// DialEthClient is the production Dialer.
func DialEthClient(ctx context.Context, rpcURL string) (EthClient, error) {
	c, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Option configures a Provider.
type Option func(*Provider)

// WithDialer replaces the RPC dialer (useful for testing).
func WithDialer(d Dialer) Option {
	return func(p *Provider) { p.dial = d }
}

// WithRetryPolicy sets the retry and timeout policy applied to every RPC.
func WithRetryPolicy(policy retry.Policy) Option {
	return func(p *Provider) { p.policy = policy }
}

// WithBreaker shares a circuit breaker across providers.
func WithBreaker(b *circuitbreaker.Breaker) Option {
	return func(p *Provider) { p.breaker = b }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

// Provider hands out one Client per resolved chain id. Clients are created
// on first use and kept for the life of the process.
type Provider struct {
	catalog *network.Catalog
	dial    Dialer
	policy  retry.Policy
	breaker *circuitbreaker.Breaker
	logger  *slog.Logger

	mu      sync.Mutex
	clients map[int64]*Client
}

// NewProvider creates a provider over the configured networks.
func NewProvider(catalog *network.Catalog, opts ...Option) *Provider {
	p := &Provider{
		catalog: catalog,
		dial:    DialEthClient,
		policy:  retry.DefaultPolicy(),
		logger:  slog.Default(),
		clients: make(map[int64]*Client),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.breaker == nil {
		p.breaker = circuitbreaker.New(5, 30*time.Second)
	}
	return p
}

// Client returns the client for chainID. Unknown ids get the fallback
// network's client. A freshly dialed node must report the configured chain
// id before it is cached. Failed dials are not cached.
func (p *Provider) Client(ctx context.Context, chainID int64) (*Client, error) {
	cfg := p.catalog.Lookup(chainID)
	if !p.catalog.Has(chainID) {
		p.logger.Debug("unknown chain id, using fallback network", "chain_id", chainID, "network", cfg.Name)
	}

	p.mu.Lock()
	c, ok := p.clients[cfg.ChainID]
	p.mu.Unlock()
	if ok {
		return c, nil
	}

	eth, err := p.dial(ctx, cfg.RPCURL)
	if err != nil {
		p.logger.Warn("rpc dial failed", "network", cfg.Name, "error", err)
		return nil, &CallError{Op: "dial", Network: cfg.Name, Err: fmt.Errorf("%w: %w", ErrUnavailable, err)}
	}

	c = newClient(eth, cfg, p.breaker, p.policy, p.logger)
	if err := c.verifyChainID(ctx); err != nil {
		c.Close()
		p.logger.Warn("rpc node rejected", "network", cfg.Name, "error", err)
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.clients[cfg.ChainID]; ok {
		// Lost a concurrent dial; keep the cached client.
		c.Close()
		return existing, nil
	}
	p.clients[cfg.ChainID] = c
	p.logger.Debug("rpc client created", "network", cfg.Name, "rpc", cfg.RPCURL)
	return c, nil
}

// Networks returns the configured networks in order.
func (p *Provider) Networks() []network.Config {
	return p.catalog.List()
}

// Catalog returns the network catalog.
func (p *Provider) Catalog() *network.Catalog {
	return p.catalog
}

// Breaker exposes the shared breaker for health reporting.
func (p *Provider) Breaker() *circuitbreaker.Breaker {
	return p.breaker
}

// Close closes every cached client.
func (p *Provider) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, c := range p.clients {
		c.Close()
		delete(p.clients, id)
	}
}
