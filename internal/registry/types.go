// Package registry projects ERC-8004 registry state into explorer view
// models: agent listings, agent details and the registry transaction feed.
package registry

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/orca-network/explorer/internal/chain"
	"github.com/orca-network/explorer/internal/network"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	ErrAgentNotFound = errors.New("registry: agent not found")
	ErrUpstream      = errors.New("registry: upstream unavailable")
	ErrInvalidQuery  = errors.New("registry: invalid query")
)

// -----------------------------------------------------------------------------
// View models
// -----------------------------------------------------------------------------

// Summary is an aggregate {count, score} read from a registry.
type Summary struct {
	Count int `json:"count"`
	Score int `json:"score"`
}

// AgentData is the public projection of one registered agent.
type AgentData struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	CreatorName string  `json:"creatorName"`
	Description string  `json:"description"`
	CreatedAt   string  `json:"createdAt"`
	Status      string  `json:"status"`
	Address     string  `json:"address"`
	Reputation  Summary `json:"reputation"`
	Validation  Summary `json:"validation"`
}

// RawRegistration is one decoded Registered event.
type RawRegistration struct {
	AgentID     *big.Int
	Owner       common.Address
	TokenURI    string
	BlockNumber uint64
	TxHash      common.Hash
}

// Registry names used in the transaction feed
const (
	RegistryIdentity   = "identity"
	RegistryReputation = "reputation"
	RegistryValidation = "validation"
)

// TxSummary is one registry log in the transaction feed.
type TxSummary struct {
	ID        string `json:"id"`        // transaction hash
	Round     uint64 `json:"round"`     // block number
	Timestamp int64  `json:"timestamp"` // unix millis at fetch time
	Registry  string `json:"registry"`
}

// -----------------------------------------------------------------------------
// Degraded results
// -----------------------------------------------------------------------------

// DegradationKind classifies why part of a result is missing.
type DegradationKind string

const (
	KindUpstreamUnavailable DegradationKind = "upstream_unavailable"
	KindMalformedResponse   DegradationKind = "malformed_response"
)

// Degradation records one part of a result that was replaced by an empty
// or zero value.
type Degradation struct {
	Kind  DegradationKind
	Scope string // e.g. "registrations", "reputation:7", "transactions:validation"
	Cause error
}

// Issue is the JSON shape of a Degradation.
type Issue struct {
	Kind    string `json:"kind"`
	Scope   string `json:"scope"`
	Message string `json:"message"`
}

// Issue renders d for API responses.
func (d Degradation) Issue() Issue {
	msg := ""
	if d.Cause != nil {
		msg = d.Cause.Error()
	}
	return Issue{Kind: string(d.Kind), Scope: d.Scope, Message: msg}
}

func degrade(scope string, err error) Degradation {
	kind := KindUpstreamUnavailable
	if errors.Is(err, chain.ErrMalformed) {
		kind = KindMalformedResponse
	}
	return Degradation{Kind: kind, Scope: scope, Cause: err}
}

// Result carries data together with the parts that could not be read.
type Result[T any] struct {
	Data     T
	Degraded []Degradation
}

// OK reports whether nothing degraded.
func (r Result[T]) OK() bool {
	return len(r.Degraded) == 0
}

// Issues renders the degradations for API responses.
func (r Result[T]) Issues() []Issue {
	out := make([]Issue, 0, len(r.Degraded))
	for _, d := range r.Degraded {
		out = append(out, d.Issue())
	}
	return out
}

// -----------------------------------------------------------------------------
// Chain access
// -----------------------------------------------------------------------------

// LogReader reads logs from one network. *chain.Client satisfies it.
type LogReader interface {
	Network() network.Config
	Logs(ctx context.Context, q chain.LogQuery) ([]types.Log, error)
}

// SummaryReader reads getSummary results. *chain.Client satisfies it.
type SummaryReader interface {
	ReputationSummary(ctx context.Context, agentID *big.Int) (uint64, uint8, error)
	ValidationSummary(ctx context.Context, agentID *big.Int) (uint64, uint8, error)
}

// ChainReader is everything the pipeline needs from one network.
type ChainReader interface {
	LogReader
	SummaryReader
}

var _ ChainReader = (*chain.Client)(nil)
