// Package network describes the chains the explorer reads agent registries from.
//
// A network is identified by its chain id. Each one carries exactly one RPC
// endpoint and one set of registry addresses; both are fixed at startup.
package network

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Well-known chain ids
const (
	TestnetChainID int64 = 338  // Cronos testnet
	GanacheChainID int64 = 1337 // local ganache / hardhat node
)

var (
	ErrNoNetworks       = errors.New("network: no networks configured")
	ErrDuplicateChainID = errors.New("network: duplicate chain id")
	ErrMissingRegistry  = errors.New("network: registry address missing")
)

// Config is the immutable description of one chain.
type Config struct {
	Name        string // logical name: "testnet", "ganache"
	Slug        string // public id in /network-configs
	DisplayName string
	ChainID     int64
	RPCURL      string
	ExplorerURL string

	IdentityRegistry   common.Address
	ReputationRegistry common.Address
	ValidationRegistry common.Address

	// StartBlock is the first block scanned for registry logs (0 = genesis).
	StartBlock uint64
	// LogChunkSize splits log queries into ranges of this many blocks.
	// Zero issues one query over the whole range.
	LogChunkSize uint64
}

// Registries returns the three registry addresses in merge order.
func (c Config) Registries() []common.Address {
	return []common.Address{c.IdentityRegistry, c.ReputationRegistry, c.ValidationRegistry}
}

// Validate checks that every registry address is set.
func (c Config) Validate() error {
	zero := common.Address{}
	switch {
	case c.IdentityRegistry == zero:
		return fmt.Errorf("%w: %s identity", ErrMissingRegistry, c.Name)
	case c.ReputationRegistry == zero:
		return fmt.Errorf("%w: %s reputation", ErrMissingRegistry, c.Name)
	case c.ValidationRegistry == zero:
		return fmt.Errorf("%w: %s validation", ErrMissingRegistry, c.Name)
	}
	if c.RPCURL == "" {
		return fmt.Errorf("network: %s has no RPC URL", c.Name)
	}
	return nil
}

// Descriptor is the public shape served by GET /network-configs.
type Descriptor struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	RPCURL      string `json:"rpcUrl"`
	ExplorerURL string `json:"explorerUrl"`
}

// Descriptor returns the public description of the network.
func (c Config) Descriptor() Descriptor {
	return Descriptor{
		ID:          c.Slug,
		Name:        c.DisplayName,
		RPCURL:      c.RPCURL,
		ExplorerURL: c.ExplorerURL,
	}
}

// TestnetDefaults returns the Cronos testnet deployment.
func TestnetDefaults() Config {
	return Config{
		Name:               "testnet",
		Slug:               "cronos-testnet",
		DisplayName:        "Cronos Testnet",
		ChainID:            TestnetChainID,
		RPCURL:             "https://evm-t3.cronos.org",
		ExplorerURL:        "https://explorer.cronos.org/testnet",
		IdentityRegistry:   common.HexToAddress("0xB159E0c8093081712c92e274DbFEa5A97A80cA30"),
		ReputationRegistry: common.HexToAddress("0x38E9cDB0eBc128bEA55c36C03D5532697669132d"),
		ValidationRegistry: common.HexToAddress("0x386fd4Fa2F27E528CF2D11C6d4b0A4dceD283E0E"),
	}
}

// GanacheDefaults returns a local node with the registries at ganache's
// deterministic addresses for the first three deployments from account 0.
func GanacheDefaults() Config {
	return Config{
		Name:               "ganache",
		Slug:               "ganache",
		DisplayName:        "Ganache Local",
		ChainID:            GanacheChainID,
		RPCURL:             "http://127.0.0.1:8545",
		IdentityRegistry:   common.HexToAddress("0xe78A0F7E598Cc8b0Bb87894B0F60dD2a88d6a8Ab"),
		ReputationRegistry: common.HexToAddress("0x5b1869D9A4C187F2EAa108f3062412ecf0526b24"),
		ValidationRegistry: common.HexToAddress("0xCfEB869F69431e42cdB54A4F4f105C19C080A601"),
	}
}

// Resolve maps a network query value to a chain id. Anything that is not
// one of the local aliases resolves to the testnet.
func Resolve(name string) int64 {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "ganache", "localnet", "1337":
		return GanacheChainID
	default:
		return TestnetChainID
	}
}

// Catalog is the fixed set of configured networks.
type Catalog struct {
	byID     map[int64]Config
	order    []int64
	fallback int64
}

// NewCatalog builds a catalog. The testnet is the fallback for unknown chain
// ids when present, otherwise the first config given.
func NewCatalog(configs ...Config) (*Catalog, error) {
	if len(configs) == 0 {
		return nil, ErrNoNetworks
	}

	c := &Catalog{byID: make(map[int64]Config, len(configs))}
	for _, cfg := range configs {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		if _, dup := c.byID[cfg.ChainID]; dup {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateChainID, cfg.ChainID)
		}
		c.byID[cfg.ChainID] = cfg
		c.order = append(c.order, cfg.ChainID)
	}

	c.fallback = configs[0].ChainID
	if _, ok := c.byID[TestnetChainID]; ok {
		c.fallback = TestnetChainID
	}
	return c, nil
}

// Lookup returns the config for chainID, or the fallback network when the
// id is unknown.
func (c *Catalog) Lookup(chainID int64) Config {
	if cfg, ok := c.byID[chainID]; ok {
		return cfg
	}
	return c.byID[c.fallback]
}

// Has reports whether chainID is explicitly configured.
func (c *Catalog) Has(chainID int64) bool {
	_, ok := c.byID[chainID]
	return ok
}

// List returns all networks in configuration order.
func (c *Catalog) List() []Config {
	out := make([]Config, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}
