package registry

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/sync/errgroup"

	"github.com/orca-network/explorer/internal/chain"
	"github.com/orca-network/explorer/internal/logging"
)

// ListTransactions reads the full log history of all three registries and
// returns one TxSummary per log, highest block first. Logs from different
// registries are merged identity, reputation, validation and the sort is
// stable, so equal blocks keep that order. The same transaction hash may
// appear once per registry it touched. A failed registry contributes
// nothing and is reported.
func ListTransactions(ctx context.Context, r LogReader, now time.Time) Result[[]TxSummary] {
	cfg := r.Network()
	sources := []struct {
		name string
		addr common.Address
	}{
		{RegistryIdentity, cfg.IdentityRegistry},
		{RegistryReputation, cfg.ReputationRegistry},
		{RegistryValidation, cfg.ValidationRegistry},
	}

	logs := make([][]types.Log, len(sources))
	errs := make([]error, len(sources))

	var g errgroup.Group
	for i, src := range sources {
		g.Go(func() error {
			logs[i], errs[i] = r.Logs(ctx, chain.LogQuery{
				Addresses: []common.Address{src.addr},
				From:      cfg.StartBlock,
				ChunkSize: cfg.LogChunkSize,
			})
			return nil
		})
	}
	_ = g.Wait()

	ts := now.UnixMilli()
	res := Result[[]TxSummary]{Data: []TxSummary{}}
	for i, src := range sources {
		if errs[i] != nil {
			logging.L(ctx).Warn("registry log query failed",
				"network", cfg.Name, "registry", src.name, "error", errs[i])
			res.Degraded = append(res.Degraded, degrade("transactions:"+src.name, errs[i]))
			continue
		}
		for _, l := range logs[i] {
			res.Data = append(res.Data, TxSummary{
				ID:        l.TxHash.Hex(),
				Round:     l.BlockNumber,
				Timestamp: ts,
				Registry:  src.name,
			})
		}
	}

	slices.SortStableFunc(res.Data, func(a, b TxSummary) int {
		return cmp.Compare(b.Round, a.Round)
	})
	return res
}
