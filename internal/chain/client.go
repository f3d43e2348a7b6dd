// Package chain reads registry state from EVM JSON-RPC nodes.
//
// Every RPC goes through the same envelope: a circuit breaker keyed by
// network, retries with a per-attempt deadline, and Prometheus accounting.
package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/orca-network/explorer/internal/circuitbreaker"
	"github.com/orca-network/explorer/internal/metrics"
	"github.com/orca-network/explorer/internal/network"
	"github.com/orca-network/explorer/internal/retry"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	ErrUnavailable = errors.New("chain: rpc unavailable")
	ErrMalformed   = errors.New("chain: malformed response")
	ErrCircuitOpen = errors.New("chain: circuit open")
	ErrWrongChain  = errors.New("chain: node serves a different chain")
)

// CallError wraps an RPC failure with the operation and network.
type CallError struct {
	Op      string
	Network string
	Err     error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("chain: %s on %s: %v", e.Op, e.Network, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// -----------------------------------------------------------------------------
// Interfaces
// -----------------------------------------------------------------------------

// EthClient is the subset of *ethclient.Client the explorer uses.
type EthClient interface {
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BlockNumber(ctx context.Context) (uint64, error)
	ChainID(ctx context.Context) (*big.Int, error)
	Close()
}

// RPC operation labels
const (
	OpFilterLogs        = "filter_logs"
	OpBlockNumber       = "block_number"
	OpChainID           = "chain_id"
	OpReputationSummary = "reputation_summary"
	OpValidationSummary = "validation_summary"
)

// -----------------------------------------------------------------------------
// Client
// -----------------------------------------------------------------------------

// Client is a network-bound RPC client.
type Client struct {
	eth     EthClient
	net     network.Config
	breaker *circuitbreaker.Breaker
	policy  retry.Policy
	logger  *slog.Logger
}

func newClient(eth EthClient, cfg network.Config, breaker *circuitbreaker.Breaker, policy retry.Policy, logger *slog.Logger) *Client {
	return &Client{
		eth:     eth,
		net:     cfg,
		breaker: breaker,
		policy:  policy,
		logger:  logger.With("network", cfg.Name, "chain_id", cfg.ChainID),
	}
}

// Network returns the network this client is bound to.
func (c *Client) Network() network.Config {
	return c.net
}

// LogQuery selects logs for Logs.
type LogQuery struct {
	Addresses []common.Address
	Topics    [][]common.Hash
	From      uint64
	To        *uint64 // nil = chain head
	ChunkSize uint64  // 0 = single query
}

// Logs returns logs matching q in node order. With a chunk size the range
// is split into consecutive windows of ChunkSize blocks that cover
// [From, To] exactly once; the first failing window fails the whole call.
func (c *Client) Logs(ctx context.Context, q LogQuery) ([]types.Log, error) {
	if q.ChunkSize == 0 {
		fq := ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(q.From),
			Addresses: q.Addresses,
			Topics:    q.Topics,
		}
		if q.To != nil {
			fq.ToBlock = new(big.Int).SetUint64(*q.To)
		}
		return c.filterLogs(ctx, fq)
	}

	var end uint64
	if q.To != nil {
		end = *q.To
	} else {
		head, err := c.BlockNumber(ctx)
		if err != nil {
			return nil, err
		}
		end = head
	}

	var out []types.Log
	for _, w := range Windows(q.From, end, q.ChunkSize) {
		logs, err := c.filterLogs(ctx, ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(w[0]),
			ToBlock:   new(big.Int).SetUint64(w[1]),
			Addresses: q.Addresses,
			Topics:    q.Topics,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, logs...)
	}
	return out, nil
}

// Windows splits [from, to] into inclusive block ranges of at most size
// blocks. It returns nil when from > to.
func Windows(from, to, size uint64) [][2]uint64 {
	if from > to || size == 0 {
		return nil
	}
	var out [][2]uint64
	for start := from; ; {
		stop := to
		if to-start >= size {
			stop = start + size - 1
		}
		out = append(out, [2]uint64{start, stop})
		if stop == to {
			return out
		}
		start = stop + 1
	}
}

func (c *Client) filterLogs(ctx context.Context, fq ethereum.FilterQuery) ([]types.Log, error) {
	var logs []types.Log
	err := c.do(ctx, OpFilterLogs, func(ctx context.Context) error {
		var err error
		logs, err = c.eth.FilterLogs(ctx, fq)
		return err
	})
	return logs, err
}

// BlockNumber returns the current head.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	var head uint64
	err := c.do(ctx, OpBlockNumber, func(ctx context.Context) error {
		var err error
		head, err = c.eth.BlockNumber(ctx)
		return err
	})
	return head, err
}

// ChainID asks the node for its chain id.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	var id *big.Int
	err := c.do(ctx, OpChainID, func(ctx context.Context) error {
		var err error
		id, err = c.eth.ChainID(ctx)
		return err
	})
	return id, err
}

// verifyChainID checks that the node serves the configured network.
func (c *Client) verifyChainID(ctx context.Context) error {
	id, err := c.ChainID(ctx)
	if err != nil {
		return err
	}
	if id == nil || !id.IsInt64() || id.Int64() != c.net.ChainID {
		return &CallError{Op: OpChainID, Network: c.net.Name, Err: fmt.Errorf("%w: %w: got %v, want %d", ErrUnavailable, ErrWrongChain, id, c.net.ChainID)}
	}
	return nil
}

// ReputationSummary calls the reputation registry's getSummary with no
// client filter and empty tags.
func (c *Client) ReputationSummary(ctx context.Context, agentID *big.Int) (count uint64, score uint8, err error) {
	input, err := ReputationABI.Pack("getSummary", agentID, []common.Address{}, [32]byte{}, [32]byte{})
	if err != nil {
		return 0, 0, fmt.Errorf("chain: pack reputation getSummary: %w", err)
	}
	return c.summary(ctx, OpReputationSummary, c.net.ReputationRegistry, ReputationABI, input)
}

// ValidationSummary calls the validation registry's getSummary with no
// validator filter and an empty tag.
func (c *Client) ValidationSummary(ctx context.Context, agentID *big.Int) (count uint64, score uint8, err error) {
	input, err := ValidationABI.Pack("getSummary", agentID, []common.Address{}, [32]byte{})
	if err != nil {
		return 0, 0, fmt.Errorf("chain: pack validation getSummary: %w", err)
	}
	return c.summary(ctx, OpValidationSummary, c.net.ValidationRegistry, ValidationABI, input)
}

func (c *Client) summary(ctx context.Context, op string, to common.Address, a abi.ABI, input []byte) (uint64, uint8, error) {
	var count uint64
	var score uint8
	err := c.do(ctx, op, func(ctx context.Context) error {
		out, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &to, Data: input}, nil)
		if err != nil {
			return err
		}
		count, score, err = unpackSummary(a, out)
		if err != nil {
			// The node answered; retrying will not change the payload.
			return retry.Permanent(err)
		}
		return nil
	})
	return count, score, err
}

// Close releases the underlying connection.
func (c *Client) Close() {
	c.eth.Close()
}

// do runs fn inside the breaker and retry envelope and records the outcome.
func (c *Client) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	key := c.net.Name
	if !c.breaker.Allow(key) {
		metrics.RPCCallsTotal.WithLabelValues(key, op, "circuit_open").Inc()
		return &CallError{Op: op, Network: key, Err: ErrCircuitOpen}
	}

	start := time.Now()
	err := retry.Do(ctx, c.policy, fn)
	metrics.RPCCallDuration.WithLabelValues(key, op).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		c.breaker.RecordSuccess(key)
		metrics.RPCCallsTotal.WithLabelValues(key, op, "ok").Inc()
		return nil

	case ctx.Err() != nil:
		// The caller went away; this says nothing about the node.
		c.breaker.Abandon(key)
		metrics.RPCCallsTotal.WithLabelValues(key, op, "cancelled").Inc()
		return &CallError{Op: op, Network: key, Err: err}

	case errors.Is(err, ErrMalformed):
		c.breaker.RecordSuccess(key)
		metrics.RPCCallsTotal.WithLabelValues(key, op, "malformed").Inc()
		c.logger.Warn("malformed rpc response", "op", op, "error", err)
		return &CallError{Op: op, Network: key, Err: err}

	default:
		c.breaker.RecordFailure(key)
		metrics.RPCCallsTotal.WithLabelValues(key, op, "error").Inc()
		c.logger.Warn("rpc call failed", "op", op, "error", err)
		return &CallError{Op: op, Network: key, Err: fmt.Errorf("%w: %w", ErrUnavailable, err)}
	}
}
