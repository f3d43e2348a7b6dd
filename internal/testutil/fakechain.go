// Package testutil provides shared test infrastructure: an in-memory EVM
// node that serves ABI-encoded registry logs and getSummary results.
//
//	node := testutil.NewFakeChain(network.TestnetDefaults())
//	node.Register(1, owner, "ipfs://a", 10)
//	provider := testutil.NewProvider(node)
package testutil

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/orca-network/explorer/internal/chain"
	"github.com/orca-network/explorer/internal/logging"
	"github.com/orca-network/explorer/internal/network"
	"github.com/orca-network/explorer/internal/retry"
)

// ErrNodeDown is the default injected RPC failure.
var ErrNodeDown = errors.New("fake node: connection refused")

type summaryValue struct {
	count uint64
	score uint8
}

// FakeChain implements chain.EthClient for one network.
type FakeChain struct {
	Config network.Config

	mu         sync.Mutex
	head       uint64
	logs       []types.Log
	reputation map[string]summaryValue
	validation map[string]summaryValue
	failLogs   map[common.Address]error
	failRep    map[string]error
	failVal    map[string]error
	malformed  map[common.Address]bool
	failHead   error
	headDelay  time.Duration
	chainID    int64
	queries    []ethereum.FilterQuery
	calls      int
	closed     bool
}

var _ chain.EthClient = (*FakeChain)(nil)

// NewFakeChain creates an empty node for cfg.
func NewFakeChain(cfg network.Config) *FakeChain {
	return &FakeChain{
		Config:     cfg,
		reputation: make(map[string]summaryValue),
		validation: make(map[string]summaryValue),
		failLogs:   make(map[common.Address]error),
		failRep:    make(map[string]error),
		failVal:    make(map[string]error),
		malformed:  make(map[common.Address]bool),
	}
}

// Register appends an identity Registered log at block.
func (f *FakeChain) Register(agentID int64, owner common.Address, tokenURI string, block uint64) types.Log {
	data, err := chain.IdentityABI.Events["Registered"].Inputs.NonIndexed().Pack(tokenURI)
	if err != nil {
		panic(fmt.Sprintf("testutil: pack Registered: %v", err))
	}
	return f.AddLog(types.Log{
		Address: f.Config.IdentityRegistry,
		Topics: []common.Hash{
			chain.RegisteredEventID,
			common.BigToHash(big.NewInt(agentID)),
			common.BytesToHash(owner.Bytes()),
		},
		Data:        data,
		BlockNumber: block,
	})
}

// Activity appends an opaque log emitted by addr at block.
func (f *FakeChain) Activity(addr common.Address, block uint64) types.Log {
	return f.AddLog(types.Log{
		Address:     addr,
		Topics:      []common.Hash{common.HexToHash("0xfeed")},
		BlockNumber: block,
	})
}

// AddLog appends log, filling in a unique tx hash when unset.
func (f *FakeChain) AddLog(log types.Log) types.Log {
	f.mu.Lock()
	defer f.mu.Unlock()

	if log.TxHash == (common.Hash{}) {
		log.TxHash = common.BigToHash(big.NewInt(int64(len(f.logs) + 1)))
	}
	log.Index = uint(len(f.logs))
	f.logs = append(f.logs, log)
	if log.BlockNumber > f.head {
		f.head = log.BlockNumber
	}
	return log
}

// SetHead moves the chain head.
func (f *FakeChain) SetHead(n uint64) {
	f.mu.Lock()
	f.head = n
	f.mu.Unlock()
}

// SetReputation sets the getSummary result of the reputation registry.
func (f *FakeChain) SetReputation(agentID int64, count uint64, score uint8) {
	f.mu.Lock()
	f.reputation[fmt.Sprint(agentID)] = summaryValue{count, score}
	f.mu.Unlock()
}

// SetValidation sets the getSummary result of the validation registry.
func (f *FakeChain) SetValidation(agentID int64, count uint64, score uint8) {
	f.mu.Lock()
	f.validation[fmt.Sprint(agentID)] = summaryValue{count, score}
	f.mu.Unlock()
}

// FailLogs makes log queries touching addr fail with err.
func (f *FakeChain) FailLogs(addr common.Address, err error) {
	f.mu.Lock()
	f.failLogs[addr] = err
	f.mu.Unlock()
}

// FailReputation makes the reputation summary of agentID fail.
func (f *FakeChain) FailReputation(agentID int64, err error) {
	f.mu.Lock()
	f.failRep[fmt.Sprint(agentID)] = err
	f.mu.Unlock()
}

// FailValidation makes the validation summary of agentID fail.
func (f *FakeChain) FailValidation(agentID int64, err error) {
	f.mu.Lock()
	f.failVal[fmt.Sprint(agentID)] = err
	f.mu.Unlock()
}

// FailHead makes BlockNumber fail.
func (f *FakeChain) FailHead(err error) {
	f.mu.Lock()
	f.failHead = err
	f.mu.Unlock()
}

// StallHead makes BlockNumber wait d, or until its context ends.
func (f *FakeChain) StallHead(d time.Duration) {
	f.mu.Lock()
	f.headDelay = d
	f.mu.Unlock()
}

// ReportChainID makes the node claim chain id id instead of its own.
func (f *FakeChain) ReportChainID(id int64) {
	f.mu.Lock()
	f.chainID = id
	f.mu.Unlock()
}

// Malform makes calls to addr answer with bytes that do not decode.
func (f *FakeChain) Malform(addr common.Address) {
	f.mu.Lock()
	f.malformed[addr] = true
	f.mu.Unlock()
}

// Queries returns every FilterLogs query received.
func (f *FakeChain) Queries() []ethereum.FilterQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ethereum.FilterQuery(nil), f.queries...)
}

// Calls returns the number of CallContract requests received.
func (f *FakeChain) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Closed reports whether Close was called.
func (f *FakeChain) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// FilterLogs returns stored logs matching q in insertion order.
func (f *FakeChain) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.queries = append(f.queries, q)
	for _, addr := range q.Addresses {
		if err := f.failLogs[addr]; err != nil {
			return nil, err
		}
	}

	var out []types.Log
	for _, l := range f.logs {
		if !matchLog(l, q) {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func matchLog(l types.Log, q ethereum.FilterQuery) bool {
	if len(q.Addresses) > 0 {
		found := false
		for _, a := range q.Addresses {
			if a == l.Address {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if q.FromBlock != nil && l.BlockNumber < q.FromBlock.Uint64() {
		return false
	}
	if q.ToBlock != nil && l.BlockNumber > q.ToBlock.Uint64() {
		return false
	}
	for i, alts := range q.Topics {
		if len(alts) == 0 {
			continue
		}
		if i >= len(l.Topics) {
			return false
		}
		hit := false
		for _, t := range alts {
			if t == l.Topics[i] {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	return true
}

// CallContract answers getSummary on the reputation and validation
// registries. Unknown agents read as zero, like the real contracts.
func (f *FakeChain) CallContract(ctx context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if call.To == nil || len(call.Data) < 4 {
		return nil, errors.New("fake node: bad call")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	to := *call.To
	if f.malformed[to] {
		return []byte{0x01}, nil
	}

	var (
		method abi.Method
		values map[string]summaryValue
		fails  map[string]error
	)
	switch to {
	case f.Config.ReputationRegistry:
		method, values, fails = chain.ReputationABI.Methods["getSummary"], f.reputation, f.failRep
	case f.Config.ValidationRegistry:
		method, values, fails = chain.ValidationABI.Methods["getSummary"], f.validation, f.failVal
	default:
		// No code at the address: the node returns empty output.
		return []byte{}, nil
	}

	if !bytes.Equal(call.Data[:4], method.ID) {
		return nil, errors.New("fake node: execution reverted")
	}
	args, err := method.Inputs.Unpack(call.Data[4:])
	if err != nil {
		return nil, fmt.Errorf("fake node: bad calldata: %w", err)
	}
	id := args[0].(*big.Int).String()
	if err := fails[id]; err != nil {
		return nil, err
	}
	v := values[id]
	return method.Outputs.Pack(v.count, v.score)
}

// BlockNumber returns the head: the highest block seen unless set.
func (f *FakeChain) BlockNumber(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	f.mu.Lock()
	delay := f.headDelay
	f.mu.Unlock()
	if delay > 0 {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(delay):
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failHead != nil {
		return 0, f.failHead
	}
	return f.head, nil
}

// ChainID returns the configured chain id unless overridden.
func (f *FakeChain) ChainID(context.Context) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.chainID != 0 {
		return big.NewInt(f.chainID), nil
	}
	return big.NewInt(f.Config.ChainID), nil
}

// Close marks the node closed.
func (f *FakeChain) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

// Dialer routes dials to the fake node with the matching RPC URL and counts
// them.
type Dialer struct {
	nodes map[string]*FakeChain
	dials atomic.Int32
	fail  atomic.Bool
}

// NewDialer creates a dialer over nodes.
func NewDialer(nodes ...*FakeChain) *Dialer {
	d := &Dialer{nodes: make(map[string]*FakeChain, len(nodes))}
	for _, n := range nodes {
		d.nodes[n.Config.RPCURL] = n
	}
	return d
}

// Dial implements chain.Dialer.
func (d *Dialer) Dial(_ context.Context, rpcURL string) (chain.EthClient, error) {
	d.dials.Add(1)
	if d.fail.Load() {
		return nil, ErrNodeDown
	}
	n, ok := d.nodes[rpcURL]
	if !ok {
		return nil, fmt.Errorf("fake node: no node at %s", rpcURL)
	}
	return n, nil
}

// Dials returns the number of Dial calls.
func (d *Dialer) Dials() int { return int(d.dials.Load()) }

// FailDials makes subsequent dials fail.
func (d *Dialer) FailDials(fail bool) { d.fail.Store(fail) }

// FastPolicy is a single-attempt policy with no backoff.
func FastPolicy() retry.Policy {
	return retry.Policy{Attempts: 1}
}

// NewProvider builds a chain.Provider over fake nodes with a quiet logger
// and single-attempt RPCs. The first node is the fallback unless a testnet
// node is present.
func NewProvider(nodes ...*FakeChain) *chain.Provider {
	p, _ := NewProviderWithDialer(nodes...)
	return p
}

// NewProviderWithDialer is NewProvider that also returns the dialer.
func NewProviderWithDialer(nodes ...*FakeChain) (*chain.Provider, *Dialer) {
	cfgs := make([]network.Config, 0, len(nodes))
	for _, n := range nodes {
		cfgs = append(cfgs, n.Config)
	}
	catalog, err := network.NewCatalog(cfgs...)
	if err != nil {
		panic(fmt.Sprintf("testutil: catalog: %v", err))
	}
	d := NewDialer(nodes...)
	p := chain.NewProvider(catalog,
		chain.WithDialer(d.Dial),
		chain.WithRetryPolicy(FastPolicy()),
		chain.WithLogger(logging.Discard()),
	)
	return p, d
}
