package registry

import (
	"context"
	"errors"
	"math"
	"math/big"
	"net/url"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orca-network/explorer/internal/chain"
	"github.com/orca-network/explorer/internal/network"
	"github.com/orca-network/explorer/internal/testutil"
)

var (
	ownerA = common.HexToAddress("0xAbCdEf0123456789aBcDeF0123456789AbCdEf01")
	ownerB = common.HexToAddress("0x00000000000000000000000000000000000000B2")
	fixed  = time.Date(2026, 3, 4, 5, 6, 7, 891_000_000, time.UTC)
)

func readerFor(t *testing.T, node *testutil.FakeChain) *chain.Client {
	t.Helper()
	c, err := testutil.NewProvider(node).Client(context.Background(), node.Config.ChainID)
	require.NoError(t, err)
	return c
}

func ids(agents []AgentData) []string {
	out := make([]string, 0, len(agents))
	for _, a := range agents {
		out = append(out, a.ID)
	}
	return out
}

func intp(n int) *int { return &n }

// -----------------------------------------------------------------------------
// Log aggregator
// -----------------------------------------------------------------------------

func TestListRegistrations_NewestFirst(t *testing.T) {
	node := testutil.NewFakeChain(network.TestnetDefaults())
	for i := int64(1); i <= 5; i++ {
		node.Register(i, ownerA, "ipfs://"+big.NewInt(i).String(), uint64(10*i))
	}

	res := ListRegistrations(context.Background(), readerFor(t, node))
	require.True(t, res.OK())
	require.Len(t, res.Data, 5)

	seen := make(map[string]bool)
	for i, reg := range res.Data {
		want := big.NewInt(int64(5 - i)).String()
		assert.Equal(t, want, reg.AgentID.String())
		assert.False(t, seen[reg.AgentID.String()], "ids are distinct")
		seen[reg.AgentID.String()] = true
	}
	assert.Equal(t, uint64(50), res.Data[0].BlockNumber)
	assert.Equal(t, "ipfs://5", res.Data[0].TokenURI)
}

func TestListRegistrations_QueriesIdentityRegisteredOnly(t *testing.T) {
	cfg := network.TestnetDefaults()
	cfg.StartBlock = 100
	node := testutil.NewFakeChain(cfg)
	node.Register(1, ownerA, "a", 50) // before the start block
	node.Register(2, ownerA, "b", 150)
	node.Activity(cfg.ReputationRegistry, 160)

	res := ListRegistrations(context.Background(), readerFor(t, node))
	require.Len(t, res.Data, 1)
	assert.Equal(t, "2", res.Data[0].AgentID.String())

	qs := node.Queries()
	require.Len(t, qs, 1)
	assert.Equal(t, []common.Address{cfg.IdentityRegistry}, qs[0].Addresses)
	assert.Equal(t, chain.RegisteredEventID, qs[0].Topics[0][0])
	assert.Equal(t, int64(100), qs[0].FromBlock.Int64())
}

func TestListRegistrations_Chunked(t *testing.T) {
	cfg := network.TestnetDefaults()
	cfg.LogChunkSize = 4
	node := testutil.NewFakeChain(cfg)
	node.Register(1, ownerA, "a", 1)
	node.Register(2, ownerA, "b", 6)
	node.Register(3, ownerA, "c", 11)

	res := ListRegistrations(context.Background(), readerFor(t, node))
	require.True(t, res.OK())
	assert.Len(t, res.Data, 3)
	assert.Equal(t, "3", res.Data[0].AgentID.String())
	assert.Len(t, node.Queries(), 3) // [0,3] [4,7] [8,11]
}

func TestListRegistrations_QueryFailureDegrades(t *testing.T) {
	node := testutil.NewFakeChain(network.TestnetDefaults())
	node.Register(1, ownerA, "a", 1)
	node.FailLogs(node.Config.IdentityRegistry, testutil.ErrNodeDown)

	res := ListRegistrations(context.Background(), readerFor(t, node))
	assert.NotNil(t, res.Data)
	assert.Empty(t, res.Data)
	require.Len(t, res.Degraded, 1)
	assert.Equal(t, KindUpstreamUnavailable, res.Degraded[0].Kind)
	assert.Equal(t, "registrations", res.Degraded[0].Scope)
	assert.ErrorIs(t, res.Degraded[0].Cause, chain.ErrUnavailable)
}

func TestListRegistrations_SkipsMalformedLogs(t *testing.T) {
	node := testutil.NewFakeChain(network.TestnetDefaults())
	node.Register(1, ownerA, "a", 1)
	node.AddLog(types.Log{
		Address:     node.Config.IdentityRegistry,
		Topics:      []common.Hash{chain.RegisteredEventID, common.BigToHash(big.NewInt(2))},
		BlockNumber: 2,
	})
	node.Register(3, ownerA, "c", 3)

	res := ListRegistrations(context.Background(), readerFor(t, node))
	require.Len(t, res.Data, 2)
	assert.Equal(t, "3", res.Data[0].AgentID.String())
	assert.Equal(t, "1", res.Data[1].AgentID.String())
	require.Len(t, res.Degraded, 1)
	assert.Equal(t, KindMalformedResponse, res.Degraded[0].Kind)
}

// -----------------------------------------------------------------------------
// Summary fetcher
// -----------------------------------------------------------------------------

func TestFetchSummaries_PreservesOrder(t *testing.T) {
	node := testutil.NewFakeChain(network.TestnetDefaults())
	regs := make([]RawRegistration, 0, 20)
	for i := int64(1); i <= 20; i++ {
		node.SetReputation(i, uint64(i), uint8(i))
		node.SetValidation(i, uint64(2*i), 100)
		regs = append(regs, RawRegistration{AgentID: big.NewInt(i)})
	}

	res := FetchSummaries(context.Background(), readerFor(t, node), regs, 3)
	require.True(t, res.OK())
	require.Len(t, res.Data, 20)
	for i, s := range res.Data {
		assert.Equal(t, Summary{Count: i + 1, Score: i + 1}, s.Reputation)
		assert.Equal(t, Summary{Count: 2 * (i + 1), Score: 100}, s.Validation)
	}
}

func TestFetchSummaries_FailureIsIsolated(t *testing.T) {
	node := testutil.NewFakeChain(network.TestnetDefaults())
	node.SetReputation(1, 5, 80)
	node.SetValidation(1, 2, 90)
	node.SetReputation(2, 7, 70)
	node.FailReputation(2, errors.New("execution reverted"))
	node.FailValidation(2, errors.New("execution reverted"))

	regs := []RawRegistration{{AgentID: big.NewInt(1)}, {AgentID: big.NewInt(2)}}
	res := FetchSummaries(context.Background(), readerFor(t, node), regs, 0)

	assert.Equal(t, Summary{Count: 5, Score: 80}, res.Data[0].Reputation)
	assert.Equal(t, Summary{Count: 2, Score: 90}, res.Data[0].Validation)
	assert.Equal(t, Summary{}, res.Data[1].Reputation)
	assert.Equal(t, Summary{}, res.Data[1].Validation)

	require.Len(t, res.Degraded, 2)
	assert.Equal(t, "reputation:2", res.Degraded[0].Scope)
	assert.Equal(t, "validation:2", res.Degraded[1].Scope)
}

func TestFetchSummaries_MalformedIsClassified(t *testing.T) {
	node := testutil.NewFakeChain(network.TestnetDefaults())
	node.Malform(node.Config.ValidationRegistry)

	res := FetchSummaries(context.Background(), readerFor(t, node), []RawRegistration{{AgentID: big.NewInt(4)}}, 1)
	require.Len(t, res.Degraded, 1)
	assert.Equal(t, KindMalformedResponse, res.Degraded[0].Kind)
	assert.Equal(t, "validation:4", res.Degraded[0].Scope)
}

func TestNarrow(t *testing.T) {
	assert.Equal(t, 0, narrow(0))
	assert.Equal(t, 12345, narrow(12345))
	assert.Equal(t, math.MaxInt, narrow(math.MaxUint64))
}

// -----------------------------------------------------------------------------
// Projector
// -----------------------------------------------------------------------------

func TestProject(t *testing.T) {
	raw := RawRegistration{AgentID: big.NewInt(42), Owner: ownerA, TokenURI: "ipfs://meta.json"}
	got := Project(raw, Summary{Count: 3, Score: 77}, Summary{Count: 1, Score: 100}, fixed)

	assert.Equal(t, AgentData{
		ID:          "42",
		Name:        "Agent #42",
		CreatorName: "Unknown",
		Description: "ipfs://meta.json",
		CreatedAt:   "2026-03-04T05:06:07.891Z",
		Status:      "active",
		Address:     "0xabcdef0123456789abcdef0123456789abcdef01",
		Reputation:  Summary{Count: 3, Score: 77},
		Validation:  Summary{Count: 1, Score: 100},
	}, got)
}

func TestProject_IdempotentExceptCreatedAt(t *testing.T) {
	raw := RawRegistration{AgentID: big.NewInt(0), Owner: ownerB, TokenURI: ""}
	a := Project(raw, Summary{}, Summary{}, fixed)
	b := Project(raw, Summary{}, Summary{}, fixed.Add(time.Second))

	assert.NotEqual(t, a.CreatedAt, b.CreatedAt)
	b.CreatedAt = a.CreatedAt
	assert.Equal(t, a, b)
	assert.Equal(t, "Agent #0", a.Name)
}

func TestProject_ConvertsToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	got := Project(RawRegistration{AgentID: big.NewInt(1)}, Summary{}, Summary{}, fixed.In(loc))
	assert.Equal(t, "2026-03-04T05:06:07.891Z", got.CreatedAt)
}

// -----------------------------------------------------------------------------
// Filters
// -----------------------------------------------------------------------------

func sampleAgents() []AgentData {
	return []AgentData{
		{ID: "3", Address: "0xaaaa", Reputation: Summary{10, 95}, Validation: Summary{5, 100}},
		{ID: "2", Address: "0xbbbb", Reputation: Summary{0, 0}, Validation: Summary{0, 0}},
		{ID: "1", Address: "0xaaaa", Reputation: Summary{5, 80}, Validation: Summary{2, 100}},
		{ID: "4", Address: "0xcccc", Reputation: Summary{1, 99}, Validation: Summary{0, 0}},
	}
}

func TestApplyFilters(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"no filter", Filter{}, []string{"3", "2", "1", "4"}},
		{"owner case-insensitive", Filter{Owner: "0xAAAA"}, []string{"3", "1"}},
		{"owner exact", Filter{Owner: "0xaa"}, []string{}},
		{"min reputation", Filter{MinReputation: intp(90)}, []string{"3", "4"}},
		{"min feedback", Filter{MinFeedback: intp(5)}, []string{"3", "1"}},
		{"verified", Filter{VerifiedOnly: true}, []string{"3", "1"}},
		{"combined", Filter{MinReputation: intp(90), VerifiedOnly: true}, []string{"3"}},
		{"zero thresholds", Filter{MinReputation: intp(0), MinFeedback: intp(0)}, []string{"3", "2", "1", "4"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(ApplyFilters(sampleAgents(), tt.filter)))
		})
	}
}

func TestApplyFilters_Conjunctive(t *testing.T) {
	agents := sampleAgents()
	both := ApplyFilters(agents, Filter{MinReputation: intp(90), VerifiedOnly: true})

	rep := ids(ApplyFilters(agents, Filter{MinReputation: intp(90)}))
	ver := ids(ApplyFilters(agents, Filter{VerifiedOnly: true}))
	var intersection []string
	for _, id := range rep {
		for _, v := range ver {
			if id == v {
				intersection = append(intersection, id)
			}
		}
	}
	assert.Equal(t, intersection, ids(both))
}

func TestParseFilter(t *testing.T) {
	tests := []struct {
		query   string
		want    Filter
		wantErr bool
	}{
		{"", Filter{}, false},
		{"owner=0xAbC&verified=true", Filter{Owner: "0xAbC", VerifiedOnly: true}, false},
		{"verified=1", Filter{}, false},
		{"minReputation=90", Filter{MinReputation: intp(90)}, false},
		{"reputation=90", Filter{MinReputation: intp(90)}, false},
		{"minReputation=50&reputation=90", Filter{MinReputation: intp(50)}, false},
		{"feedback=3", Filter{MinFeedback: intp(3)}, false},
		{"minFeedback=3", Filter{MinFeedback: intp(3)}, false},
		{"minReputation=high", Filter{}, true},
		{"feedback=1.5", Filter{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			q, err := url.ParseQuery(tt.query)
			require.NoError(t, err)

			got, err := ParseFilter(q)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidQuery)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// -----------------------------------------------------------------------------
// Transactions
// -----------------------------------------------------------------------------

func TestListTransactions_MergeOrderOnTies(t *testing.T) {
	cfg := network.TestnetDefaults()
	node := testutil.NewFakeChain(cfg)
	idLow := node.Register(1, ownerA, "a", 5)
	valTie := node.Activity(cfg.ValidationRegistry, 9)
	repTie := node.Activity(cfg.ReputationRegistry, 9)
	idTie := node.Register(2, ownerA, "b", 9)
	repLow := node.Activity(cfg.ReputationRegistry, 3)

	res := ListTransactions(context.Background(), readerFor(t, node), fixed)
	require.True(t, res.OK())

	var got []string
	for _, tx := range res.Data {
		got = append(got, tx.ID)
		assert.Equal(t, fixed.UnixMilli(), tx.Timestamp)
	}
	assert.Equal(t, []string{
		idTie.TxHash.Hex(),
		repTie.TxHash.Hex(),
		valTie.TxHash.Hex(),
		idLow.TxHash.Hex(),
		repLow.TxHash.Hex(),
	}, got)

	assert.Equal(t, RegistryIdentity, res.Data[0].Registry)
	assert.Equal(t, RegistryReputation, res.Data[1].Registry)
	assert.Equal(t, RegistryValidation, res.Data[2].Registry)
	assert.Equal(t, uint64(9), res.Data[0].Round)
}

func TestListTransactions_KeepsDuplicatesAcrossRegistries(t *testing.T) {
	cfg := network.TestnetDefaults()
	node := testutil.NewFakeChain(cfg)
	hash := common.HexToHash("0xabc")
	node.AddLog(types.Log{Address: cfg.ReputationRegistry, BlockNumber: 4, TxHash: hash})
	node.AddLog(types.Log{Address: cfg.ValidationRegistry, BlockNumber: 4, TxHash: hash})

	res := ListTransactions(context.Background(), readerFor(t, node), fixed)
	require.Len(t, res.Data, 2)
	assert.Equal(t, res.Data[0].ID, res.Data[1].ID)
}

func TestListTransactions_RegistryFailureDegrades(t *testing.T) {
	cfg := network.TestnetDefaults()
	node := testutil.NewFakeChain(cfg)
	node.Register(1, ownerA, "a", 2)
	node.Activity(cfg.ReputationRegistry, 3)
	node.FailLogs(cfg.ReputationRegistry, testutil.ErrNodeDown)

	res := ListTransactions(context.Background(), readerFor(t, node), fixed)
	require.Len(t, res.Data, 1)
	assert.Equal(t, RegistryIdentity, res.Data[0].Registry)
	require.Len(t, res.Degraded, 1)
	assert.Equal(t, "transactions:reputation", res.Degraded[0].Scope)
}

func TestListTransactions_Empty(t *testing.T) {
	node := testutil.NewFakeChain(network.TestnetDefaults())
	res := ListTransactions(context.Background(), readerFor(t, node), fixed)
	assert.NotNil(t, res.Data)
	assert.Empty(t, res.Data)
	assert.True(t, res.OK())
}
